package selector

import (
	"math"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
)

const (
	// PeriodMargin absorbs display timing jitter when dividing a layer
	// period by a display period, in nanoseconds.
	PeriodMargin int64 = 800_000

	// TooSlowPenalty is what an approximate vote gives a display that
	// refreshes slower than the desired rate.
	TooSlowPenalty = -0.1

	// periods above this (under 1 fps) are treated as no usable rate
	maxLayerPeriod = float64(1_000 * 1_000_000_000)
)

// Path records which branch of Select produced the result.
type Path string

const (
	PathSingle  Path = "single"
	PathTouch   Path = "touch"
	PathIdle    Path = "idle"
	PathScored  Path = "scored"
	PathDefault Path = "default"
)

type Result struct {
	Mode            catalog.Mode
	TouchConsidered bool
	Path            Path
	Score           float64
}

// Select picks the allowed mode that best fits the layer votes.
//
// allowed must be ordered slowest first. fallback is the current mode
// clamped to policy and is returned only when every layer abstains and
// touch is idle. Once any layer votes the highest score wins, even when
// it is zero or negative. The function keeps no state; equal inputs give equal results.
func Select(layers []Layer, allowed []catalog.Mode, fallback catalog.Mode, touchActive bool) Result {
	switch len(allowed) {
	case 0:
		return Result{Mode: fallback, Path: PathDefault}
	case 1:
		return Result{Mode: allowed[0], Path: PathSingle}
	}

	if allNoVote(layers) {
		if touchActive {
			return Result{Mode: allowed[len(allowed)-1], TouchConsidered: true, Path: PathTouch}
		}
		return Result{Mode: fallback, Path: PathIdle}
	}

	scores := Scores(layers, allowed)
	best := 0
	for i := 1; i < len(scores); i++ {
		// strict comparison keeps the slower mode on ties
		if scores[i] > scores[best] {
			best = i
		}
	}
	return Result{Mode: allowed[best], Path: PathScored, Score: scores[best]}
}

// Scores returns the weighted score of every allowed mode, index-aligned with allowed.
func Scores(layers []Layer, allowed []catalog.Mode) []float64 {
	scores := make([]float64, len(allowed))
	for _, l := range layers {
		if l.Vote == nil {
			continue
		}
		w := l.weight()
		if w == 0 {
			continue
		}
		for i := range allowed {
			scores[i] += w * l.Vote.contribution(i, allowed)
		}
	}
	return scores
}

func allNoVote(layers []Layer) bool {
	for _, l := range layers {
		if l.kind() != KindNoVote {
			return false
		}
	}
	return true
}

// layerPeriod converts a desired rate to nanoseconds; ok is false when the
// rate cannot be scored.
func layerPeriod(fps float64) (int64, bool) {
	if !(fps > 0) || math.IsInf(fps, 1) {
		return 0, false
	}
	p := math.Round(1e9 / fps)
	if p < 1 || p > maxLayerPeriod {
		return 0, false
	}
	return int64(p), true
}

// displayFrames divides a layer period by a display period. A remainder
// within PeriodMargin of either edge snaps to an exact fit.
func displayFrames(layerPeriod, displayPeriod int64) (quot, rem int64) {
	quot, rem = layerPeriod/displayPeriod, layerPeriod%displayPeriod
	switch {
	case rem <= PeriodMargin:
		rem = 0
	case displayPeriod-rem <= PeriodMargin:
		quot++
		rem = 0
	}
	return quot, rem
}

func approximateScore(fps float64, displayPeriod int64) float64 {
	lp, ok := layerPeriod(fps)
	if !ok || displayPeriod <= 0 {
		return 0
	}
	quot, rem := displayFrames(lp, displayPeriod)
	if quot < 1 {
		return TooSlowPenalty
	}
	return 1 - float64(rem)/float64(displayPeriod)
}

func exactScore(fps float64, displayPeriod int64) float64 {
	lp, ok := layerPeriod(fps)
	if !ok || displayPeriod <= 0 {
		return 0
	}
	quot, rem := displayFrames(lp, displayPeriod)
	if quot >= 1 && rem == 0 {
		return 1
	}
	return 0
}
