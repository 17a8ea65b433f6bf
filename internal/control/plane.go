// Package control applies policy and mode-confirmation requests to the
// refresh rate store, persists them, and tells listeners when the effective
// policy moves.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
	"github.com/mohammed-shakir/adaptive-refresh/internal/logger"
	"github.com/mohammed-shakir/adaptive-refresh/internal/observability"
	"github.com/mohammed-shakir/adaptive-refresh/internal/persist/redisstore"
	"github.com/mohammed-shakir/adaptive-refresh/internal/policy"
	"github.com/mohammed-shakir/adaptive-refresh/internal/refreshrate"
)

// Persister stores policies across restarts. *redisstore.Client implements it.
type Persister interface {
	SavePolicy(ctx context.Context, display string, tier redisstore.Tier, p policy.Policy) error
	LoadPolicy(ctx context.Context, display string, tier redisstore.Tier) (policy.Policy, bool, error)
	DeletePolicy(ctx context.Context, display string, tier redisstore.Tier) error
}

var _ Persister = (*redisstore.Client)(nil)

// ChangeEvent is emitted after the effective policy changed. Target is the
// mode the display should run under the new policy.
type ChangeEvent struct {
	Display   string
	Source    string
	Effective policy.Policy
	Target    catalog.Mode
	Switch    bool
}

type Options struct {
	Logger    *slog.Logger
	Persister Persister
	// OnChange runs synchronously on the calling goroutine.
	OnChange  func(context.Context, ChangeEvent)
	OpTimeout time.Duration
}

type Plane struct {
	cfgs      *refreshrate.Configs
	log       *slog.Logger
	persist   Persister
	onChange  func(context.Context, ChangeEvent)
	opTimeout time.Duration
}

func New(cfgs *refreshrate.Configs, opts Options) *Plane {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 250 * time.Millisecond
	}
	return &Plane{
		cfgs:      cfgs,
		log:       opts.Logger.With("component", "control"),
		persist:   opts.Persister,
		onChange:  opts.OnChange,
		opTimeout: opts.OpTimeout,
	}
}

func (p *Plane) Configs() *refreshrate.Configs { return p.cfgs }

// SetAdministrative validates and applies pol as the administrative policy.
// A persistence error is returned after the in-memory update took effect.
func (p *Plane) SetAdministrative(ctx context.Context, pol policy.Policy) (policy.Status, error) {
	st, err := p.cfgs.SetAdministrativePolicy(pol)
	if err != nil {
		return st, err
	}
	perr := p.save(ctx, redisstore.TierAdministrative, pol)
	p.notify(ctx, st)
	return st, perr
}

func (p *Plane) SetOverride(ctx context.Context, pol policy.Policy) (policy.Status, error) {
	st, err := p.cfgs.SetOverridePolicy(&pol)
	if err != nil {
		return st, err
	}
	perr := p.save(ctx, redisstore.TierOverride, pol)
	p.notify(ctx, st)
	return st, perr
}

func (p *Plane) ClearOverride(ctx context.Context) (policy.Status, error) {
	st, err := p.cfgs.SetOverridePolicy(nil)
	if err != nil {
		return st, err
	}
	perr := p.delete(ctx, redisstore.TierOverride)
	p.notify(ctx, st)
	return st, perr
}

// ConfirmMode records the mode the hardware switched to.
func (p *Plane) ConfirmMode(ctx context.Context, id catalog.ModeID) error {
	if err := p.cfgs.SetCurrentMode(id); err != nil {
		p.log.WarnContext(ctx, "mode confirmation rejected", "mode_id", int(id), "err", err)
		return err
	}
	return nil
}

// Restore loads persisted policies into the store: administrative first,
// then the override. Stored policies that no longer validate against the
// catalog are skipped.
func (p *Plane) Restore(ctx context.Context) error {
	if p.persist == nil {
		return nil
	}
	ctx = logger.WithSource(ctx, "restore")
	display := p.cfgs.Display()

	var errs []error
	for _, tier := range []redisstore.Tier{redisstore.TierAdministrative, redisstore.TierOverride} {
		pol, ok, err := p.load(ctx, display, tier)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", tier, err))
			continue
		}
		if !ok {
			continue
		}

		var st policy.Status
		if tier == redisstore.TierAdministrative {
			st, err = p.cfgs.SetAdministrativePolicy(pol)
		} else {
			st, err = p.cfgs.SetOverridePolicy(&pol)
		}
		if errors.Is(err, policy.ErrInvalidPolicy) {
			p.log.WarnContext(ctx, "skipping persisted policy", "tier", string(tier), "policy", pol.String(), "err", err)
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.log.InfoContext(ctx, "restored policy", "tier", string(tier), "status", st.String())
		p.notify(ctx, st)
	}
	return errors.Join(errs...)
}

func (p *Plane) load(ctx context.Context, display string, tier redisstore.Tier) (policy.Policy, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	return p.persist.LoadPolicy(ctx, display, tier)
}

func (p *Plane) save(ctx context.Context, tier redisstore.Tier, pol policy.Policy) error {
	if p.persist == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	if err := p.persist.SavePolicy(ctx, p.cfgs.Display(), tier, pol); err != nil {
		p.log.ErrorContext(ctx, "persist policy failed", "tier", string(tier), "err", err)
		return fmt.Errorf("persist %s policy: %w", tier, err)
	}
	return nil
}

func (p *Plane) delete(ctx context.Context, tier redisstore.Tier) error {
	if p.persist == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	if err := p.persist.DeletePolicy(ctx, p.cfgs.Display(), tier); err != nil {
		p.log.ErrorContext(ctx, "delete persisted policy failed", "tier", string(tier), "err", err)
		return fmt.Errorf("delete %s policy: %w", tier, err)
	}
	return nil
}

func (p *Plane) notify(ctx context.Context, st policy.Status) {
	if st != policy.Changed {
		return
	}
	source := logger.Source(ctx)
	observability.IncControlChange(source)

	snap := p.cfgs.Snapshot()
	ev := ChangeEvent{
		Display:   p.cfgs.Display(),
		Source:    source,
		Effective: snap.Effective,
		Target:    snap.CurrentByPolicy,
		Switch:    snap.CurrentByPolicy.ID != snap.Current.ID,
	}
	if ev.Switch {
		p.log.InfoContext(ctx, "current mode no longer allowed",
			"current", snap.Current.Name, "target", ev.Target.Name)
	}
	if p.onChange != nil {
		p.onChange(ctx, ev)
	}
}
