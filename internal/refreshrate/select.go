package refreshrate

import (
	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
	"github.com/mohammed-shakir/adaptive-refresh/internal/selector"
)

// Select scores the layers against the allowed modes. The lock is held for
// the whole computation so scoring sees one consistent allowed set.
func (c *Configs) Select(layers []selector.Layer, touchActive bool) selector.Result {
	var (
		res selector.Result
		hit bool
	)
	c.with(func(s *state) {
		var key string
		if c.memo != nil {
			key = memoKey(s.generation, s.current, touchActive, layers)
			if res, hit = c.memo.get(key); hit {
				return
			}
		}
		allowed := c.cat.Resolve(s.allowed)
		res = selector.Select(layers, allowed, c.currentByPolicyLocked(s), touchActive)
		if c.memo != nil {
			c.memo.put(key, res)
		}
	})

	if c.memo != nil {
		if hit {
			c.ms.cache.WithLabelValues("hit").Inc()
		} else {
			c.ms.cache.WithLabelValues("miss").Inc()
		}
	}
	c.ms.selections.WithLabelValues(string(res.Path)).Inc()
	return res
}

// SelectForContent runs the single-rate content selector over the allowed modes.
func (c *Configs) SelectForContent(layers []selector.Layer) catalog.Mode {
	var m catalog.Mode
	c.with(func(s *state) {
		m = selector.SelectForContent(layers, c.cat.Resolve(s.allowed), c.cat.Fastest())
	})
	c.ms.selections.WithLabelValues("content").Inc()
	return m
}
