// Package policy defines the constraints that decide which catalog modes are selectable.
package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
)

var ErrInvalidPolicy = errors.New("invalid refresh rate policy")

// Status is the successful outcome of a policy update.
type Status int

const (
	Changed Status = iota
	// Unchanged means the update was accepted but the effective policy is
	// the same as before, so no display mode switch is needed.
	Unchanged
)

func (s Status) String() string {
	switch s {
	case Changed:
		return "changed"
	case Unchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type Policy struct {
	// DefaultMode is the fallback mode; its group confines switching unless
	// AllowGroupSwitching is set.
	DefaultMode         catalog.ModeID
	MinFPS              float64
	MaxFPS              float64
	AllowGroupSwitching bool
}

// Default returns the unbounded policy anchored on mode.
func Default(mode catalog.ModeID) Policy {
	return Policy{DefaultMode: mode, MinFPS: 0, MaxFPS: math.Inf(1)}
}

// Equal is an exact field-wise comparison, no epsilon.
func (p Policy) Equal(o Policy) bool {
	return p.DefaultMode == o.DefaultMode &&
		p.MinFPS == o.MinFPS &&
		p.MaxFPS == o.MaxFPS &&
		p.AllowGroupSwitching == o.AllowGroupSwitching
}

func (p Policy) String() string {
	return fmt.Sprintf("default=%d fps=[%g, %g] group_switching=%t",
		p.DefaultMode, p.MinFPS, p.MaxFPS, p.AllowGroupSwitching)
}

// Validate checks p against the catalog. min <= max is written so that NaN bounds fail.
func Validate(p Policy, cat *catalog.Catalog) error {
	if !cat.Has(p.DefaultMode) {
		return fmt.Errorf("%w: default mode %d is not supported", ErrInvalidPolicy, p.DefaultMode)
	}
	if !(p.MinFPS <= p.MaxFPS) {
		return fmt.Errorf("%w: min fps %g exceeds max fps %g", ErrInvalidPolicy, p.MinFPS, p.MaxFPS)
	}
	return nil
}

// Allowed derives the selectable mode ids for a valid policy, slowest first.
// When the bounds exclude every candidate the default mode alone is allowed,
// so the result is never empty.
func Allowed(p Policy, cat *catalog.Catalog) []catalog.ModeID {
	def, err := cat.Mode(p.DefaultMode)
	if err != nil {
		return nil
	}
	ids := cat.Sorted(func(m catalog.Mode) bool {
		if !p.AllowGroupSwitching && m.Group != def.Group {
			return false
		}
		return m.InPolicy(p.MinFPS, p.MaxFPS)
	})
	if len(ids) == 0 {
		return []catalog.ModeID{def.ID}
	}
	return ids
}

type wirePolicy struct {
	DefaultMode         catalog.ModeID `json:"default_mode"`
	MinFPS              float64        `json:"min_fps"`
	MaxFPS              *float64       `json:"max_fps,omitempty"`
	AllowGroupSwitching bool           `json:"allow_group_switching"`
}

// MarshalJSON encodes an unbounded max as an absent max_fps.
func (p Policy) MarshalJSON() ([]byte, error) {
	w := wirePolicy{
		DefaultMode:         p.DefaultMode,
		MinFPS:              p.MinFPS,
		AllowGroupSwitching: p.AllowGroupSwitching,
	}
	if !math.IsInf(p.MaxFPS, 1) {
		m := p.MaxFPS
		w.MaxFPS = &m
	}
	return json.Marshal(w)
}

func (p *Policy) UnmarshalJSON(b []byte) error {
	var w wirePolicy
	dec := json.NewDecoder(bytes.NewReader(b))
	// a misspelled bound must not silently become unbounded
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return err
	}
	p.DefaultMode = w.DefaultMode
	p.MinFPS = w.MinFPS
	p.MaxFPS = math.Inf(1)
	if w.MaxFPS != nil {
		p.MaxFPS = *w.MaxFPS
	}
	p.AllowGroupSwitching = w.AllowGroupSwitching
	return nil
}
