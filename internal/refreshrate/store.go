package refreshrate

import (
	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
	"github.com/mohammed-shakir/adaptive-refresh/internal/policy"
)

const (
	tierAdministrative = "administrative"
	tierOverride       = "override"
)

// SetAdministrativePolicy replaces the administrative policy. While an
// override is active the new policy is stored but the result is Unchanged,
// since the effective policy did not move.
func (c *Configs) SetAdministrativePolicy(p policy.Policy) (policy.Status, error) {
	if err := policy.Validate(p, c.cat); err != nil {
		c.ms.policyUpdates.WithLabelValues(tierAdministrative, "invalid").Inc()
		c.log.Warn("rejected administrative policy", "policy", p.String(), "err", err)
		return policy.Unchanged, err
	}
	return c.update(tierAdministrative, func(s *state) { s.admin = p }), nil
}

// SetOverridePolicy installs p as the override, or clears the override when p is nil.
func (c *Configs) SetOverridePolicy(p *policy.Policy) (policy.Status, error) {
	if p == nil {
		return c.update(tierOverride, func(s *state) { s.override = nil }), nil
	}
	if err := policy.Validate(*p, c.cat); err != nil {
		c.ms.policyUpdates.WithLabelValues(tierOverride, "invalid").Inc()
		c.log.Warn("rejected override policy", "policy", p.String(), "err", err)
		return policy.Unchanged, err
	}
	o := *p
	return c.update(tierOverride, func(s *state) { s.override = &o }), nil
}

func (c *Configs) update(tier string, mutate func(s *state)) policy.Status {
	var (
		status  policy.Status
		eff     policy.Policy
		allowed int
	)
	c.with(func(s *state) {
		prev := s.effective()
		mutate(s)
		eff = s.effective()
		if eff.Equal(prev) {
			status = policy.Unchanged
			return
		}
		s.allowed = policy.Allowed(eff, c.cat)
		s.generation++
		allowed = len(s.allowed)
		status = policy.Changed
	})

	c.ms.policyUpdates.WithLabelValues(tier, status.String()).Inc()
	if status == policy.Changed {
		c.ms.allowed.Set(float64(allowed))
		c.log.Info("refresh rate policy updated",
			"tier", tier,
			"effective", eff.String(),
			"allowed_modes", allowed)
	} else {
		c.log.Debug("refresh rate policy unchanged", "tier", tier)
	}
	return status
}

// EffectivePolicy is the override when one is set, the administrative policy otherwise.
func (c *Configs) EffectivePolicy() policy.Policy {
	var p policy.Policy
	c.with(func(s *state) { p = s.effective() })
	return p
}

func (c *Configs) AdministrativePolicy() policy.Policy {
	var p policy.Policy
	c.with(func(s *state) { p = s.admin })
	return p
}

func (c *Configs) OverridePolicy() (policy.Policy, bool) {
	var (
		p  policy.Policy
		ok bool
	)
	c.with(func(s *state) {
		if s.override != nil {
			p, ok = *s.override, true
		}
	})
	return p, ok
}

func (c *Configs) IsModeAllowed(id catalog.ModeID) bool {
	var ok bool
	c.with(func(s *state) { ok = s.isAllowed(id) })
	return ok
}

// AllowedModes returns the modes permitted by the effective policy, slowest first.
func (c *Configs) AllowedModes() []catalog.Mode {
	var out []catalog.Mode
	c.with(func(s *state) { out = c.cat.Resolve(s.allowed) })
	return out
}
