package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// streamKey names one ordered sequence of versions. Ops that write the
// same state share a stream so a stale write cannot undo a newer one.
type streamKey struct {
	display string
	stream  string
}

func streamOf(op string) string {
	switch op {
	case OpSetOverride, OpClearOverride:
		return "override"
	case OpSetPolicy:
		return "administrative"
	default:
		return op
	}
}

// eventVersions remembers the highest version applied per display and stream.
type eventVersions struct {
	mu   sync.Mutex
	seen *lru.Cache[streamKey, uint64]
}

func newEventVersions(size int) *eventVersions {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[streamKey, uint64](size)
	return &eventVersions{seen: c}
}

// admit reports whether w is newer than anything applied on its stream and
// records it if so. Unversioned events are always admitted and not recorded.
func (v *eventVersions) admit(w WireEvent) bool {
	if w.Version == 0 {
		return true
	}
	k := streamKey{display: w.Display, stream: streamOf(w.Op)}
	v.mu.Lock()
	defer v.mu.Unlock()
	if last, ok := v.seen.Get(k); ok && w.Version <= last {
		return false
	}
	v.seen.Add(k, w.Version)
	return true
}
