package refreshrate

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
	"github.com/mohammed-shakir/adaptive-refresh/internal/selector"
)

// memo caches Select results. The full key is kept next to the result so a
// hash collision reads as a miss.
type memo struct {
	lru *lru.Cache[uint64, memoEntry]
}

type memoEntry struct {
	key string
	res selector.Result
}

func newMemo(size int) (*memo, error) {
	c, err := lru.New[uint64, memoEntry](size)
	if err != nil {
		return nil, err
	}
	return &memo{lru: c}, nil
}

func (m *memo) get(key string) (selector.Result, bool) {
	e, ok := m.lru.Get(xxhash.Sum64String(key))
	if !ok || e.key != key {
		return selector.Result{}, false
	}
	return e.res, true
}

func (m *memo) put(key string, res selector.Result) {
	m.lru.Add(xxhash.Sum64String(key), memoEntry{key: key, res: res})
}

// memoKey covers every input of Select except layer labels, which are debug only.
func memoKey(gen uint64, current catalog.ModeID, touch bool, layers []selector.Layer) string {
	var b strings.Builder
	b.Grow(24 + 32*len(layers))
	b.WriteString(strconv.FormatUint(gen, 10))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(current)))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(touch))
	for _, l := range layers {
		kind := selector.KindNoVote
		if l.Vote != nil {
			kind = l.Vote.Kind()
		}
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(int(kind)))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(selector.DesiredFPS(l.Vote), 'g', -1, 64))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(l.Weight, 'g', -1, 64))
	}
	return b.String()
}
