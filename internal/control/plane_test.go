package control

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
	"github.com/mohammed-shakir/adaptive-refresh/internal/logger"
	"github.com/mohammed-shakir/adaptive-refresh/internal/persist/redisstore"
	"github.com/mohammed-shakir/adaptive-refresh/internal/policy"
	"github.com/mohammed-shakir/adaptive-refresh/internal/refreshrate"
)

func testCatalog() *catalog.Catalog {
	return catalog.MustNew([]catalog.Input{
		{ID: 0, Group: 0, VsyncPeriod: 16666667}, // 60
		{ID: 1, Group: 0, VsyncPeriod: 11111111}, // 90
		{ID: 2, Group: 0, VsyncPeriod: 8333333},  // 120
		{ID: 3, Group: 1, VsyncPeriod: 13888889}, // 72
	}, 0)
}

func newConfigs(t *testing.T) *refreshrate.Configs {
	t.Helper()
	c, err := refreshrate.New(testCatalog(), 0, refreshrate.Options{Display: "panel"})
	if err != nil {
		t.Fatalf("refreshrate.New: %v", err)
	}
	return c
}

func newRedis(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

type recorder struct{ events []ChangeEvent }

func (r *recorder) fn(_ context.Context, ev ChangeEvent) { r.events = append(r.events, ev) }

type failingPersister struct{}

var errBackend = errors.New("backend down")

func (failingPersister) SavePolicy(context.Context, string, redisstore.Tier, policy.Policy) error {
	return errBackend
}

func (failingPersister) LoadPolicy(context.Context, string, redisstore.Tier) (policy.Policy, bool, error) {
	return policy.Policy{}, false, errBackend
}

func (failingPersister) DeletePolicy(context.Context, string, redisstore.Tier) error {
	return errBackend
}

func TestSetAdministrative_PersistsAndNotifies(t *testing.T) {
	rc, mr := newRedis(t)
	rec := &recorder{}
	p := New(newConfigs(t), Options{Persister: rc, OnChange: rec.fn})

	ctx := logger.WithSource(context.Background(), "http")
	pol := policy.Policy{DefaultMode: 2, MinFPS: 90, MaxFPS: 120}
	st, err := p.SetAdministrative(ctx, pol)
	if err != nil || st != policy.Changed {
		t.Fatalf("status=%v err=%v", st, err)
	}
	if !mr.Exists(redisstore.Key("panel", redisstore.TierAdministrative)) {
		t.Fatalf("administrative policy not persisted, keys=%v", mr.Keys())
	}

	if len(rec.events) != 1 {
		t.Fatalf("events=%d want 1", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Source != "http" || ev.Display != "panel" {
		t.Fatalf("event source/display = %q/%q", ev.Source, ev.Display)
	}
	if ev.Target.ID != 2 || !ev.Switch {
		t.Fatalf("target=%v switch=%v want mode 2 and a switch", ev.Target, ev.Switch)
	}

	st, err = p.SetAdministrative(ctx, pol)
	if err != nil || st != policy.Unchanged {
		t.Fatalf("repeat status=%v err=%v", st, err)
	}
	if len(rec.events) != 1 {
		t.Fatalf("unchanged update emitted an event")
	}
}

func TestSetAdministrative_InvalidNotPersisted(t *testing.T) {
	rc, mr := newRedis(t)
	p := New(newConfigs(t), Options{Persister: rc})

	_, err := p.SetAdministrative(context.Background(), policy.Policy{DefaultMode: 9, MinFPS: 0, MaxFPS: 60})
	if !errors.Is(err, policy.ErrInvalidPolicy) {
		t.Fatalf("err=%v want ErrInvalidPolicy", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("invalid policy persisted: %v", mr.Keys())
	}
}

func TestOverride_SetAndClear(t *testing.T) {
	rc, mr := newRedis(t)
	rec := &recorder{}
	cfgs := newConfigs(t)
	p := New(cfgs, Options{Persister: rc, OnChange: rec.fn})
	ctx := context.Background()

	o := policy.Policy{DefaultMode: 0, MinFPS: 60, MaxFPS: 60}
	if st, err := p.SetOverride(ctx, o); err != nil || st != policy.Changed {
		t.Fatalf("SetOverride status=%v err=%v", st, err)
	}
	if !mr.Exists(redisstore.Key("panel", redisstore.TierOverride)) {
		t.Fatalf("override not persisted")
	}
	if got := cfgs.EffectivePolicy(); !got.Equal(o) {
		t.Fatalf("effective=%s want %s", got, o)
	}

	if st, err := p.ClearOverride(ctx); err != nil || st != policy.Changed {
		t.Fatalf("ClearOverride status=%v err=%v", st, err)
	}
	if mr.Exists(redisstore.Key("panel", redisstore.TierOverride)) {
		t.Fatalf("override still persisted after clear")
	}
	if st, err := p.ClearOverride(ctx); err != nil || st != policy.Unchanged {
		t.Fatalf("second ClearOverride status=%v err=%v", st, err)
	}
	if len(rec.events) != 2 {
		t.Fatalf("events=%d want 2", len(rec.events))
	}
}

func TestRestore_RebuildsStateAfterRestart(t *testing.T) {
	rc, _ := newRedis(t)
	ctx := context.Background()

	admin := policy.Policy{DefaultMode: 1, MinFPS: 60, MaxFPS: math.Inf(1)}
	over := policy.Policy{DefaultMode: 3, MinFPS: 0, MaxFPS: 72, AllowGroupSwitching: true}
	first := New(newConfigs(t), Options{Persister: rc})
	if _, err := first.SetAdministrative(ctx, admin); err != nil {
		t.Fatalf("SetAdministrative: %v", err)
	}
	if _, err := first.SetOverride(ctx, over); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}

	rec := &recorder{}
	cfgs := newConfigs(t)
	second := New(cfgs, Options{Persister: rc, OnChange: rec.fn})
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := cfgs.AdministrativePolicy(); !got.Equal(admin) {
		t.Fatalf("admin=%s want %s", got, admin)
	}
	if got, ok := cfgs.OverridePolicy(); !ok || !got.Equal(over) {
		t.Fatalf("override=%s ok=%v want %s", got, ok, over)
	}
	for _, ev := range rec.events {
		if ev.Source != "restore" {
			t.Fatalf("restore event source=%q", ev.Source)
		}
	}
}

func TestRestore_SkipsPolicyInvalidForCatalog(t *testing.T) {
	rc, _ := newRedis(t)
	ctx := context.Background()

	if err := rc.SavePolicy(ctx, "panel", redisstore.TierAdministrative, policy.Default(42)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfgs := newConfigs(t)
	if err := New(cfgs, Options{Persister: rc}).Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := cfgs.AdministrativePolicy(); !got.Equal(policy.Default(0)) {
		t.Fatalf("admin=%s want untouched default", got)
	}
}

func TestPersistFailure_StoreStillAuthoritative(t *testing.T) {
	cfgs := newConfigs(t)
	p := New(cfgs, Options{Persister: failingPersister{}})

	pol := policy.Policy{DefaultMode: 1, MinFPS: 0, MaxFPS: 90}
	st, err := p.SetAdministrative(context.Background(), pol)
	if !errors.Is(err, errBackend) || st != policy.Changed {
		t.Fatalf("status=%v err=%v", st, err)
	}
	if got := cfgs.EffectivePolicy(); !got.Equal(pol) {
		t.Fatalf("effective=%s want %s", got, pol)
	}

	if err := p.Restore(context.Background()); !errors.Is(err, errBackend) {
		t.Fatalf("Restore err=%v want backend error", err)
	}
}

func TestConfirmMode(t *testing.T) {
	cfgs := newConfigs(t)
	p := New(cfgs, Options{})

	if err := p.ConfirmMode(context.Background(), 2); err != nil {
		t.Fatalf("ConfirmMode: %v", err)
	}
	if got := cfgs.CurrentMode().ID; got != 2 {
		t.Fatalf("current=%d want 2", got)
	}
	if err := p.ConfirmMode(context.Background(), 99); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}
