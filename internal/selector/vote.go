// Package selector scores allowed refresh-rate modes against per-layer votes.
package selector

import (
	"fmt"
	"math"
	"strings"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
)

type VoteKind int

const (
	KindNoVote VoteKind = iota
	KindMin
	KindMax
	KindHeuristic
	KindExplicitDefault
	KindExplicitExactOrMultiple
)

var kindNames = [...]string{
	KindNoVote:                  "no_vote",
	KindMin:                     "min",
	KindMax:                     "max",
	KindHeuristic:               "heuristic",
	KindExplicitDefault:         "explicit_default",
	KindExplicitExactOrMultiple: "explicit_exact_or_multiple",
}

func (k VoteKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("vote(%d)", int(k))
}

// Vote is a layer's refresh-rate preference. The set of implementations is
// closed: only types in this package satisfy it, and each one must say how
// it scores a mode, so a new kind cannot be added without scoring.
type Vote interface {
	Kind() VoteKind
	// contribution is the unweighted score the vote gives allowed[i]
	contribution(i int, allowed []catalog.Mode) float64
}

// NoVote is a layer with no rate preference.
type NoVote struct{}

// Min asks for the slowest allowed mode.
type Min struct{}

// Max asks for the fastest allowed mode.
type Max struct{}

// Heuristic is a platform-estimated content rate; approximate matches score.
type Heuristic struct{ FPS float64 }

// ExplicitDefault is an app-declared rate scored like Heuristic.
type ExplicitDefault struct{ FPS float64 }

// ExplicitExactOrMultiple requires the display rate to be the desired rate
// or an integer multiple of it.
type ExplicitExactOrMultiple struct{ FPS float64 }

func (NoVote) Kind() VoteKind                  { return KindNoVote }
func (Min) Kind() VoteKind                     { return KindMin }
func (Max) Kind() VoteKind                     { return KindMax }
func (Heuristic) Kind() VoteKind               { return KindHeuristic }
func (ExplicitDefault) Kind() VoteKind         { return KindExplicitDefault }
func (ExplicitExactOrMultiple) Kind() VoteKind { return KindExplicitExactOrMultiple }

func (NoVote) contribution(int, []catalog.Mode) float64 { return 0 }

func (Min) contribution(i int, _ []catalog.Mode) float64 {
	if i == 0 {
		return 1
	}
	return 0
}

func (Max) contribution(i int, allowed []catalog.Mode) float64 {
	if i == len(allowed)-1 {
		return 1
	}
	return 0
}

func (v Heuristic) contribution(i int, allowed []catalog.Mode) float64 {
	return approximateScore(v.FPS, allowed[i].VsyncPeriod)
}

func (v ExplicitDefault) contribution(i int, allowed []catalog.Mode) float64 {
	return approximateScore(v.FPS, allowed[i].VsyncPeriod)
}

func (v ExplicitExactOrMultiple) contribution(i int, allowed []catalog.Mode) float64 {
	return exactScore(v.FPS, allowed[i].VsyncPeriod)
}

// DesiredFPS returns the rate a vote carries, or 0 for kinds without one.
func DesiredFPS(v Vote) float64 {
	switch t := v.(type) {
	case Heuristic:
		return t.FPS
	case ExplicitDefault:
		return t.FPS
	case ExplicitExactOrMultiple:
		return t.FPS
	default:
		return 0
	}
}

// ParseVote builds a vote from its wire name. fps is ignored for kinds that
// carry no rate.
func ParseVote(kind string, fps float64) (Vote, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "no_vote", "novote":
		return NoVote{}, nil
	case "min":
		return Min{}, nil
	case "max":
		return Max{}, nil
	case "heuristic":
		return Heuristic{FPS: fps}, nil
	case "explicit_default", "explicitdefault":
		return ExplicitDefault{FPS: fps}, nil
	case "explicit_exact_or_multiple", "explicitexactormultiple":
		return ExplicitExactOrMultiple{FPS: fps}, nil
	default:
		return nil, fmt.Errorf("unknown vote kind %q", kind)
	}
}

// Layer is one visible layer's requirement for a single selection call.
type Layer struct {
	Label  string
	Vote   Vote
	Weight float64
}

func (l Layer) weight() float64 {
	w := l.Weight
	switch {
	case math.IsNaN(w) || w <= 0:
		return 0
	case w > 1:
		return 1
	default:
		return w
	}
}

func (l Layer) kind() VoteKind {
	if l.Vote == nil {
		return KindNoVote
	}
	return l.Vote.Kind()
}
