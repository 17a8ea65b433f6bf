// Package touch tracks recent touch activity per display with an
// exponentially decaying score.
package touch

import (
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const numShards = 64

// Activity is the view the selection path needs.
type Activity interface {
	Touch(key string)
	Active(key string) bool
}

type Tracker struct {
	HalfLife  time.Duration
	Threshold float64

	now func() time.Time

	shards [numShards]shard
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*counter
}

type counter struct {
	score float64
	last  time.Time
}

var _ Activity = (*Tracker)(nil)

// New returns a tracker whose Active reports true while the decayed score is
// at or above threshold. A single touch scores 1.
func New(halfLife time.Duration, threshold float64) *Tracker {
	if halfLife <= 0 {
		halfLife = 500 * time.Millisecond
	}
	if threshold <= 0 {
		threshold = 1
	}
	t := &Tracker{HalfLife: halfLife, Threshold: threshold, now: time.Now}
	for i := range t.shards {
		t.shards[i].m = make(map[string]*counter)
	}
	return t
}

func (t *Tracker) Touch(key string) {
	if key == "" {
		return
	}
	s := t.pick(key)
	n := t.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.m[key]
	if c == nil {
		s.m[key] = &counter{score: 1, last: n}
		return
	}
	c.score = decay(c.score, n.Sub(c.last).Seconds(), t.HalfLife.Seconds()) + 1.0
	c.last = n
}

func (t *Tracker) Score(key string) float64 {
	if key == "" {
		return 0
	}
	s := t.pick(key)
	n := t.now()

	s.mu.RLock()
	c := s.m[key]
	if c == nil {
		s.mu.RUnlock()
		return 0
	}
	score, last := c.score, c.last
	s.mu.RUnlock()

	return decay(score, n.Sub(last).Seconds(), t.HalfLife.Seconds())
}

// Active reports whether key has been touched recently enough. The 1e-9
// slack keeps a fresh single touch active with Threshold 1.
func (t *Tracker) Active(key string) bool {
	return t.Score(key)+1e-9 >= t.Threshold
}

func (t *Tracker) Reset(keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		s := t.pick(key)
		s.mu.Lock()
		delete(s.m, key)
		s.mu.Unlock()
	}
}

func (t *Tracker) Size() int {
	total := 0
	for i := range t.shards {
		t.shards[i].mu.RLock()
		total += len(t.shards[i].m)
		t.shards[i].mu.RUnlock()
	}
	return total
}

func decay(score, dt, halfLife float64) float64 {
	if score == 0 || dt <= 0 || halfLife <= 0 {
		return score
	}
	// e^(-λt), λ = ln2 / halfLife
	return score * math.Exp(-math.Ln2/halfLife*dt)
}

func (t *Tracker) pick(key string) *shard {
	h := xxhash.Sum64String(key)
	return &t.shards[h&(numShards-1)]
}
