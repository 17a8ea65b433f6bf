// Package catalog holds the immutable set of refresh-rate modes a display supports.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// FPSEpsilon is the tolerance within which two frame rates are treated as equal.
const FPSEpsilon = 0.001

var (
	ErrNotFound          = errors.New("mode not found")
	ErrEmptyCatalog      = errors.New("catalog: no modes supplied")
	ErrUnknownActiveMode = errors.New("catalog: active mode is not in the mode list")
	ErrDuplicateMode     = errors.New("catalog: duplicate mode id")
	ErrInvalidPeriod     = errors.New("catalog: vsync period must be positive")
)

// ModeID is the hardware configuration index of a mode.
type ModeID int

// GroupID identifies modes the hardware can switch between seamlessly.
type GroupID int

// Input is one hardware mode as reported at start-up.
type Input struct {
	ID          ModeID
	Group       GroupID
	VsyncPeriod int64
}

type Mode struct {
	ID          ModeID
	VsyncPeriod int64 // nanoseconds
	Group       GroupID
	Name        string
	FPS         float64
}

// Same reports whether both modes describe the same hardware configuration.
// Name and FPS are derived and do not take part.
func (m Mode) Same(o Mode) bool {
	return m.ID == o.ID && m.VsyncPeriod == o.VsyncPeriod && m.Group == o.Group
}

// InPolicy reports whether the mode's fps lies in [lo, hi] with FPSEpsilon slack.
func (m Mode) InPolicy(lo, hi float64) bool {
	return m.FPS >= lo-FPSEpsilon && m.FPS <= hi+FPSEpsilon
}

func (m Mode) String() string {
	return fmt.Sprintf("%s(id=%d group=%d period=%dns)", m.Name, m.ID, m.Group, m.VsyncPeriod)
}

type Catalog struct {
	// ordered by descending vsync period: slowest mode first, fastest last
	modes []Mode
	index map[ModeID]int

	slowest int
	fastest int
}

func New(inputs []Input, active ModeID) (*Catalog, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyCatalog
	}

	modes := make([]Mode, 0, len(inputs))
	seen := make(map[ModeID]struct{}, len(inputs))
	for _, in := range inputs {
		if in.VsyncPeriod <= 0 {
			return nil, fmt.Errorf("%w: mode %d has period %d", ErrInvalidPeriod, in.ID, in.VsyncPeriod)
		}
		if _, dup := seen[in.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateMode, in.ID)
		}
		seen[in.ID] = struct{}{}

		fps := 1e9 / float64(in.VsyncPeriod)
		modes = append(modes, Mode{
			ID:          in.ID,
			VsyncPeriod: in.VsyncPeriod,
			Group:       in.Group,
			Name:        fmt.Sprintf("%.0ffps", math.Round(fps)),
			FPS:         fps,
		})
	}
	if _, ok := seen[active]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownActiveMode, active)
	}

	// ties on period are ordered by id so the layout never depends on input order
	sort.SliceStable(modes, func(i, j int) bool {
		if modes[i].VsyncPeriod != modes[j].VsyncPeriod {
			return modes[i].VsyncPeriod > modes[j].VsyncPeriod
		}
		return modes[i].ID < modes[j].ID
	})

	c := &Catalog{
		modes:   modes,
		index:   make(map[ModeID]int, len(modes)),
		slowest: 0,
		fastest: len(modes) - 1,
	}
	for i, m := range modes {
		c.index[m.ID] = i
	}
	return c, nil
}

// MustNew is New for start-up code where a bad mode list is a programming error.
func MustNew(inputs []Input, active ModeID) *Catalog {
	c, err := New(inputs, active)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Mode(id ModeID) (Mode, error) {
	i, ok := c.index[id]
	if !ok {
		return Mode{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return c.modes[i], nil
}

func (c *Catalog) Has(id ModeID) bool {
	_, ok := c.index[id]
	return ok
}

// Modes returns every mode, slowest first.
func (c *Catalog) Modes() []Mode {
	out := make([]Mode, len(c.modes))
	copy(out, c.modes)
	return out
}

func (c *Catalog) Lookup() map[ModeID]Mode {
	out := make(map[ModeID]Mode, len(c.modes))
	for _, m := range c.modes {
		out[m.ID] = m
	}
	return out
}

func (c *Catalog) Len() int { return len(c.modes) }

// Slowest is the lowest refresh rate the hardware supports.
func (c *Catalog) Slowest() Mode { return c.modes[c.slowest] }

// Fastest is the highest refresh rate the hardware supports.
func (c *Catalog) Fastest() Mode { return c.modes[c.fastest] }

// Sorted returns the ids of modes accepted by keep, slowest first.
func (c *Catalog) Sorted(keep func(Mode) bool) []ModeID {
	out := make([]ModeID, 0, len(c.modes))
	for _, m := range c.modes {
		if keep == nil || keep(m) {
			out = append(out, m.ID)
		}
	}
	return out
}

// Resolve maps ids back to modes, preserving order. Unknown ids are skipped.
func (c *Catalog) Resolve(ids []ModeID) []Mode {
	out := make([]Mode, 0, len(ids))
	for _, id := range ids {
		if i, ok := c.index[id]; ok {
			out = append(out, c.modes[i])
		}
	}
	return out
}
