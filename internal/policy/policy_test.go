package policy

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
)

// 60 and 120 share group 0, 90 sits alone in group 1
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.Input{
		{ID: 0, Group: 0, VsyncPeriod: 16666667},
		{ID: 1, Group: 1, VsyncPeriod: 11111111},
		{ID: 2, Group: 0, VsyncPeriod: 8333333},
	}, 0)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func TestValidate(t *testing.T) {
	cat := testCatalog(t)
	cases := []struct {
		name  string
		p     Policy
		valid bool
	}{
		{"default unbounded", Default(0), true},
		{"equal bounds", Policy{DefaultMode: 1, MinFPS: 90, MaxFPS: 90}, true},
		{"default outside bounds is still valid", Policy{DefaultMode: 0, MinFPS: 90, MaxFPS: 120}, true},
		{"unknown default", Policy{DefaultMode: 9, MinFPS: 0, MaxFPS: 120}, false},
		{"min above max", Policy{DefaultMode: 0, MinFPS: 120, MaxFPS: 60}, false},
		{"nan min", Policy{DefaultMode: 0, MinFPS: math.NaN(), MaxFPS: 60}, false},
		{"nan max", Policy{DefaultMode: 0, MinFPS: 0, MaxFPS: math.NaN()}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.p, cat)
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidPolicy) {
				t.Fatalf("err=%v want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestAllowed_GroupConfinement(t *testing.T) {
	cat := testCatalog(t)

	got := Allowed(Default(0), cat)
	want := []catalog.ModeID{0, 2}
	if !equalIDs(got, want) {
		t.Fatalf("allowed=%v want %v", got, want)
	}

	// bounds that would admit 90 do not matter without group switching
	got = Allowed(Policy{DefaultMode: 0, MinFPS: 80, MaxFPS: 100}, cat)
	if !equalIDs(got, []catalog.ModeID{0}) {
		t.Fatalf("allowed=%v want fallback to default [0]", got)
	}
}

func TestAllowed_GroupSwitchingAndBounds(t *testing.T) {
	cat := testCatalog(t)

	p := Policy{DefaultMode: 0, MinFPS: 0, MaxFPS: math.Inf(1), AllowGroupSwitching: true}
	if got := Allowed(p, cat); !equalIDs(got, []catalog.ModeID{0, 1, 2}) {
		t.Fatalf("allowed=%v want [0 1 2]", got)
	}

	p.MinFPS, p.MaxFPS = 60, 90
	if got := Allowed(p, cat); !equalIDs(got, []catalog.ModeID{0, 1}) {
		t.Fatalf("allowed=%v want [0 1]", got)
	}

	// epsilon lets 90.0000009 through a max of exactly 90
	p.MinFPS, p.MaxFPS = 90, 90
	if got := Allowed(p, cat); !equalIDs(got, []catalog.ModeID{1}) {
		t.Fatalf("allowed=%v want [1]", got)
	}
}

func TestEqual_IsExact(t *testing.T) {
	a := Policy{DefaultMode: 0, MinFPS: 60, MaxFPS: 90}
	b := a
	if !a.Equal(b) {
		t.Fatalf("identical policies must be equal")
	}
	b.MaxFPS = 90.0001
	if a.Equal(b) {
		t.Fatalf("no epsilon applies to policy equality")
	}
	if !Default(1).Equal(Default(1)) {
		t.Fatalf("infinite max must compare equal")
	}
}

func TestJSON_UnboundedMaxRoundTrips(t *testing.T) {
	b, err := json.Marshal(Default(2))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"default_mode":2,"min_fps":0,"allow_group_switching":false}` {
		t.Fatalf("unexpected encoding: %s", b)
	}

	var p Policy
	if err := json.Unmarshal([]byte(`{"default_mode":1,"min_fps":30,"max_fps":90,"allow_group_switching":true}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Policy{DefaultMode: 1, MinFPS: 30, MaxFPS: 90, AllowGroupSwitching: true}
	if !p.Equal(want) {
		t.Fatalf("got %v want %v", p, want)
	}

	if err := json.Unmarshal([]byte(`{"default_mode":1}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !math.IsInf(p.MaxFPS, 1) {
		t.Fatalf("missing max_fps should decode as +Inf, got %g", p.MaxFPS)
	}
}

func TestJSON_RejectsUnknownFields(t *testing.T) {
	p := Default(2)
	if err := json.Unmarshal([]byte(`{"default_mode":0,"maxfps":60}`), &p); err == nil {
		t.Fatalf("misspelled max_fps accepted: %v", p)
	}
	if !p.Equal(Default(2)) {
		t.Fatalf("rejected input modified the policy: %v", p)
	}
}

func TestStatus_String(t *testing.T) {
	if Changed.String() != "changed" || Unchanged.String() != "unchanged" {
		t.Fatalf("unexpected status strings")
	}
}

func equalIDs(a, b []catalog.ModeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
