// Package refreshrate owns the runtime refresh-rate state of one display:
// the administrative and override policies, the allowed mode set derived from
// them, and the mode the hardware currently runs. It answers selection and
// query calls from any goroutine.
package refreshrate

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
	"github.com/mohammed-shakir/adaptive-refresh/internal/policy"
)

type Options struct {
	Logger *slog.Logger
	// Register receives the package metrics; nil leaves them unregistered.
	Register prometheus.Registerer
	// Display labels logs and metrics.
	Display string
	// SelectionCacheSize enables memoized Select results when > 0.
	SelectionCacheSize int
}

// state is only reachable through Configs.with.
type state struct {
	admin    policy.Policy
	override *policy.Policy

	// derived from the effective policy, slowest first
	allowed []catalog.ModeID
	current catalog.ModeID

	// bumped whenever allowed changes
	generation uint64
}

func (s *state) effective() policy.Policy {
	if s.override != nil {
		return *s.override
	}
	return s.admin
}

func (s *state) isAllowed(id catalog.ModeID) bool {
	for _, a := range s.allowed {
		if a == id {
			return true
		}
	}
	return false
}

// Configs is safe for concurrent use. Policy setters and SetCurrentMode are
// expected from a single control goroutine; every other method may be called
// from anywhere.
type Configs struct {
	cat     *catalog.Catalog
	log     *slog.Logger
	ms      *metricSet
	memo    *memo
	display string

	mu sync.Mutex
	st state
}

// New starts with the unbounded policy anchored on the active mode.
func New(cat *catalog.Catalog, active catalog.ModeID, opts Options) (*Configs, error) {
	if cat == nil {
		return nil, catalog.ErrEmptyCatalog
	}
	if !cat.Has(active) {
		return nil, fmt.Errorf("%w: %d", catalog.ErrUnknownActiveMode, active)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Configs{
		cat:     cat,
		log:     opts.Logger.With("display", opts.Display),
		ms:      newMetricSet(opts.Register, opts.Display),
		display: opts.Display,
	}
	if opts.SelectionCacheSize > 0 {
		m, err := newMemo(opts.SelectionCacheSize)
		if err != nil {
			return nil, fmt.Errorf("selection cache: %w", err)
		}
		c.memo = m
	}

	admin := policy.Default(active)
	c.st = state{
		admin:   admin,
		allowed: policy.Allowed(admin, cat),
		current: active,
	}

	cur, _ := cat.Mode(active)
	c.ms.currentFPS.Set(cur.FPS)
	c.ms.allowed.Set(float64(len(c.st.allowed)))
	return c, nil
}

// with runs fn while holding the state lock. fn must not call back into Configs.
func (c *Configs) with(fn func(s *state)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.st)
}

func (c *Configs) Catalog() *catalog.Catalog { return c.cat }

func (c *Configs) Display() string { return c.display }

// mode resolves an id that is already known to be in the catalog.
func (c *Configs) mode(id catalog.ModeID) catalog.Mode {
	m, err := c.cat.Mode(id)
	if err != nil {
		panic(fmt.Sprintf("refreshrate: state holds unknown mode %d", id))
	}
	return m
}

// Snapshot is a consistent view of the whole state taken under one lock.
type Snapshot struct {
	Effective       policy.Policy
	Administrative  policy.Policy
	Override        *policy.Policy
	Allowed         []catalog.Mode
	Current         catalog.Mode
	CurrentByPolicy catalog.Mode
}

func (c *Configs) Snapshot() Snapshot {
	var out Snapshot
	c.with(func(s *state) {
		out.Effective = s.effective()
		out.Administrative = s.admin
		if s.override != nil {
			o := *s.override
			out.Override = &o
		}
		out.Allowed = c.cat.Resolve(s.allowed)
		out.Current = c.mode(s.current)
		out.CurrentByPolicy = c.currentByPolicyLocked(s)
	})
	return out
}
