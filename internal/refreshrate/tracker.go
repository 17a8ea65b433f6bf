package refreshrate

import (
	"math"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
)

// SetCurrentMode records a mode switch the hardware has confirmed.
func (c *Configs) SetCurrentMode(id catalog.ModeID) error {
	m, err := c.cat.Mode(id)
	if err != nil {
		return err
	}
	var prev catalog.ModeID
	c.with(func(s *state) {
		prev = s.current
		s.current = id
	})
	if prev != id {
		c.ms.modeSwitches.Inc()
		c.ms.currentFPS.Set(m.FPS)
		c.log.Info("display mode confirmed", "mode", m.Name, "mode_id", int(m.ID), "previous_id", int(prev))
	}
	return nil
}

// CurrentMode is the raw confirmed mode, whether or not policy allows it.
func (c *Configs) CurrentMode() catalog.Mode {
	var id catalog.ModeID
	c.with(func(s *state) { id = s.current })
	return c.mode(id)
}

// CurrentModeByPolicy returns the current mode if the effective policy allows
// it, then the policy default, then the allowed mode closest in fps to the
// default.
func (c *Configs) CurrentModeByPolicy() catalog.Mode {
	var m catalog.Mode
	c.with(func(s *state) { m = c.currentByPolicyLocked(s) })
	return m
}

func (c *Configs) currentByPolicyLocked(s *state) catalog.Mode {
	if s.isAllowed(s.current) {
		return c.mode(s.current)
	}
	def := c.mode(s.effective().DefaultMode)
	if s.isAllowed(def.ID) {
		return def
	}

	// the default can fall outside the bounds while a policy change settles
	best := c.mode(s.allowed[0])
	for _, id := range s.allowed[1:] {
		m := c.mode(id)
		if math.Abs(m.FPS-def.FPS) < math.Abs(best.FPS-def.FPS) {
			best = m
		}
	}
	return best
}

// MinModeByPolicy is the slowest allowed mode.
func (c *Configs) MinModeByPolicy() catalog.Mode {
	var id catalog.ModeID
	c.with(func(s *state) { id = s.allowed[0] })
	return c.mode(id)
}

// MaxModeByPolicy is the fastest allowed mode.
func (c *Configs) MaxModeByPolicy() catalog.Mode {
	var id catalog.ModeID
	c.with(func(s *state) { id = s.allowed[len(s.allowed)-1] })
	return c.mode(id)
}

func (c *Configs) ModeByID(id catalog.ModeID) (catalog.Mode, error) {
	return c.cat.Mode(id)
}
