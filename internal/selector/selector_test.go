package selector

import (
	"math"
	"testing"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
)

func mode(id catalog.ModeID, period int64) catalog.Mode {
	return catalog.Mode{ID: id, VsyncPeriod: period, FPS: 1e9 / float64(period)}
}

var (
	m60  = mode(0, 16666667)
	m90  = mode(1, 11111111)
	m120 = mode(2, 8333333)
)

func layer(v Vote, w float64) Layer { return Layer{Label: "test", Vote: v, Weight: w} }

func TestSelect_MinMaxVotes(t *testing.T) {
	allowed := []catalog.Mode{m60, m90, m120}

	got := Select([]Layer{layer(Min{}, 1)}, allowed, m90, false)
	if got.Mode.ID != m60.ID || got.Path != PathScored {
		t.Fatalf("min vote: got %v via %s, want 60fps scored", got.Mode, got.Path)
	}

	got = Select([]Layer{layer(Max{}, 1)}, allowed, m60, false)
	if got.Mode.ID != m120.ID {
		t.Fatalf("max vote: got %v, want 120fps", got.Mode)
	}
	if got.TouchConsidered {
		t.Fatalf("touch must not be considered for scored selection")
	}
}

func TestSelect_SingleAllowedShortCircuits(t *testing.T) {
	got := Select([]Layer{layer(Max{}, 1)}, []catalog.Mode{m90}, m60, true)
	if got.Mode.ID != m90.ID || got.Path != PathSingle || got.TouchConsidered {
		t.Fatalf("got %+v, want the only allowed mode without touch", got)
	}
}

func TestSelect_TouchShortcut(t *testing.T) {
	allowed := []catalog.Mode{m60, m90, m120}
	idle := []Layer{layer(NoVote{}, 1), layer(nil, 0.5)}

	got := Select(idle, allowed, m60, true)
	if got.Mode.ID != m120.ID || !got.TouchConsidered || got.Path != PathTouch {
		t.Fatalf("touch active: got %+v, want fastest with touch considered", got)
	}

	got = Select(idle, allowed, m90, false)
	if got.Mode.ID != m90.ID || got.TouchConsidered || got.Path != PathIdle {
		t.Fatalf("touch inactive: got %+v, want fallback", got)
	}

	got = Select(nil, allowed, m90, true)
	if got.Mode.ID != m120.ID || !got.TouchConsidered {
		t.Fatalf("empty layers with touch: got %+v", got)
	}
}

func TestSelect_ExactOrMultiple(t *testing.T) {
	allowed := []catalog.Mode{m60, m120}

	// 30 tiles both 60 and 120; the tie resolves to the slower one
	got := Select([]Layer{layer(ExplicitExactOrMultiple{FPS: 30}, 1)}, allowed, m120, false)
	if got.Mode.ID != m60.ID || got.Score != 1 {
		t.Fatalf("30fps: got %+v, want 60fps with score 1", got)
	}

	// 40 divides 120 three times but not 60
	got = Select([]Layer{layer(ExplicitExactOrMultiple{FPS: 40}, 1)}, allowed, m60, false)
	if got.Mode.ID != m120.ID {
		t.Fatalf("40fps: got %v, want 120fps", got.Mode)
	}

	// 50 fits neither; the zero tie goes to the slowest mode whatever is current
	for _, current := range []catalog.Mode{m60, m120} {
		got = Select([]Layer{layer(ExplicitExactOrMultiple{FPS: 50}, 1)}, allowed, current, false)
		if got.Mode.ID != m60.ID || got.Path != PathScored || got.Score != 0 {
			t.Fatalf("50fps from %v: got %+v, want 60fps via scored path", current, got)
		}
	}
}

func TestSelect_HeuristicPrefersLeastRemainder(t *testing.T) {
	allowed := []catalog.Mode{m60, m90, m120}

	// 24fps: 120 tiles it five times, 60 leaves half a frame over
	got := Select([]Layer{layer(Heuristic{FPS: 24}, 1)}, allowed, m60, false)
	if got.Mode.ID != m120.ID {
		t.Fatalf("24fps heuristic: got %v, want 120fps", got.Mode)
	}

	// 45fps: 90 is an exact double, 60 and 120 leave a remainder
	got = Select([]Layer{layer(ExplicitDefault{FPS: 45}, 1)}, allowed, m60, false)
	if got.Mode.ID != m90.ID {
		t.Fatalf("45fps explicit default: got %v, want 90fps", got.Mode)
	}

	// 60fps matches 60 and 120 exactly; tie goes to 60
	got = Select([]Layer{layer(Heuristic{FPS: 60}, 1)}, allowed, m120, false)
	if got.Mode.ID != m60.ID {
		t.Fatalf("60fps heuristic: got %v, want 60fps", got.Mode)
	}
}

func TestSelect_TooSlowDisplayIsPenalized(t *testing.T) {
	allowed := []catalog.Mode{m60, m90}
	scores := Scores([]Layer{layer(Heuristic{FPS: 120}, 1)}, allowed)
	for i, s := range scores {
		if s != TooSlowPenalty {
			t.Fatalf("scores[%d]=%g want %g", i, s, TooSlowPenalty)
		}
	}
	got := Select([]Layer{layer(Heuristic{FPS: 120}, 1)}, allowed, m90, false)
	if got.Mode.ID != m60.ID || got.Path != PathScored || got.Score != TooSlowPenalty {
		t.Fatalf("got %+v, want slowest mode when every mode is penalized", got)
	}
}

func TestSelect_NonPositiveTieIgnoresCurrentMode(t *testing.T) {
	cases := []struct {
		name    string
		vote    Vote
		allowed []catalog.Mode
		current catalog.Mode
		want    catalog.Mode
	}{
		{"no exact fit", ExplicitExactOrMultiple{FPS: 50}, []catalog.Mode{m60, m120}, m120, m60},
		{"faster than every mode", Heuristic{FPS: 144}, []catalog.Mode{m60, m90}, m90, m60},
	}
	for _, tc := range cases {
		got := Select([]Layer{layer(tc.vote, 1)}, tc.allowed, tc.current, false)
		if got.Mode.ID != tc.want.ID || got.Path != PathScored {
			t.Fatalf("%s: got %+v, want %v via scored path", tc.name, got, tc.want)
		}
	}
}

func TestSelect_WeightsCombine(t *testing.T) {
	allowed := []catalog.Mode{m60, m90, m120}
	layers := []Layer{
		layer(Min{}, 0.4),
		layer(Max{}, 0.9),
		layer(NoVote{}, 1),
	}
	got := Select(layers, allowed, m60, false)
	if got.Mode.ID != m120.ID {
		t.Fatalf("got %v, want 120fps (max outweighs min)", got.Mode)
	}

	// weights outside [0,1] are clamped, so 5 counts as 1 and ties with the other 1
	layers = []Layer{layer(Min{}, 5), layer(Max{}, 1)}
	got = Select(layers, allowed, m90, false)
	if got.Mode.ID != m60.ID {
		t.Fatalf("got %v, want 60fps from clamped tie", got.Mode)
	}

	scores := Scores([]Layer{layer(Max{}, math.NaN()), layer(Min{}, -1)}, allowed)
	for i, s := range scores {
		if s != 0 {
			t.Fatalf("scores[%d]=%g want 0 for NaN/negative weights", i, s)
		}
	}
}

func TestSelect_UnusableDesiredRateContributesNothing(t *testing.T) {
	allowed := []catalog.Mode{m60, m120}
	for _, fps := range []float64{0, -30, math.NaN(), math.Inf(1), 1e-9} {
		scores := Scores([]Layer{layer(Heuristic{FPS: fps}, 1), layer(ExplicitExactOrMultiple{FPS: fps}, 1)}, allowed)
		if scores[0] != 0 || scores[1] != 0 {
			t.Fatalf("fps=%g: scores=%v want zeros", fps, scores)
		}
	}
}

func TestSelect_Deterministic(t *testing.T) {
	allowed := []catalog.Mode{m60, m90, m120}
	layers := []Layer{
		layer(ExplicitExactOrMultiple{FPS: 30}, 0.7),
		layer(Heuristic{FPS: 48}, 0.3),
	}
	first := Select(layers, allowed, m90, false)
	for range 100 {
		if got := Select(layers, allowed, m90, false); got != first {
			t.Fatalf("non-deterministic result: %+v vs %+v", got, first)
		}
	}
}

func TestDisplayFrames_Margin(t *testing.T) {
	cases := []struct {
		layer, display int64
		quot, rem      int64
	}{
		{33333333, 16666667, 2, 0}, // remainder one period minus 1ns
		{33333333, 8333333, 4, 0},  // remainder 1ns
		{25000000, 16666667, 1, 8333333},
		{10000000, 16666667, 0, 10000000},
		{16000000, 16666667, 1, 0}, // 0.67ms short of a full period
	}
	for _, tc := range cases {
		q, r := displayFrames(tc.layer, tc.display)
		if q != tc.quot || r != tc.rem {
			t.Fatalf("displayFrames(%d,%d)=(%d,%d) want (%d,%d)", tc.layer, tc.display, q, r, tc.quot, tc.rem)
		}
	}
}

func TestParseVote(t *testing.T) {
	v, err := ParseVote("explicit_exact_or_multiple", 30)
	if err != nil {
		t.Fatalf("ParseVote: %v", err)
	}
	if v.Kind() != KindExplicitExactOrMultiple || DesiredFPS(v) != 30 {
		t.Fatalf("got %#v", v)
	}
	v, err = ParseVote("", 99)
	if err != nil || v.Kind() != KindNoVote || DesiredFPS(v) != 0 {
		t.Fatalf("empty kind should be NoVote, got %#v err=%v", v, err)
	}
	if _, err := ParseVote("fastest", 0); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if KindHeuristic.String() != "heuristic" || VoteKind(42).String() != "vote(42)" {
		t.Fatalf("unexpected kind names")
	}
}
