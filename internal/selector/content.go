package selector

import (
	"math"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
)

// contentRatioMargin is how far fps/content may sit from an integer and still
// count as a cadence match.
const contentRatioMargin = 0.05

// SelectForContent is the single-rate selector: it derives one content frame
// rate from the layers and returns the allowed mode closest to it, preferring
// a faster mode when that one divides evenly by the content rate.
//
// Explicit votes outrank heuristic ones. With no rate at all the content rate
// is the fastest supported mode.
func SelectForContent(layers []Layer, allowed []catalog.Mode, fastest catalog.Mode) catalog.Mode {
	if len(allowed) == 0 {
		return fastest
	}

	var content, explicit int
	for _, l := range layers {
		r := int(math.Round(DesiredFPS(l.Vote)))
		switch l.kind() {
		case KindExplicitDefault, KindExplicitExactOrMultiple:
			explicit = max(explicit, r)
		default:
			content = max(content, r)
		}
	}
	switch {
	case explicit > 0:
		content = explicit
	case content <= 0:
		content = int(math.Round(fastest.FPS))
	}
	target := float64(content)

	best := 0
	for i := 1; i < len(allowed); i++ {
		if math.Abs(allowed[i].FPS-target) < math.Abs(allowed[best].FPS-target) {
			best = i
		}
	}

	if !cadenceMatch(allowed[best].FPS, target) {
		// e.g. 45fps content is better served by 90 than by 60
		for i := best; i < len(allowed); i++ {
			if cadenceMatch(allowed[i].FPS, target) {
				return allowed[i]
			}
		}
	}
	return allowed[best]
}

func cadenceMatch(fps, content float64) bool {
	ratio := fps / content
	return math.Abs(math.Round(ratio)-ratio) <= contentRatioMargin
}
