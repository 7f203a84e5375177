package main

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	sourceChain = "chain"
	sourceRTDS  = "rtds"
)

type raceKey struct {
	tx     common.Hash
	trader common.Address
}

type sighting struct {
	chain time.Time
	rtds  time.Time
}

// race records when each source first reported a (tx, trader) pair.
type race struct {
	mu    sync.Mutex
	seen  map[raceKey]*sighting
	leads []int64
}

func newRace() *race {
	return &race{seen: make(map[raceKey]*sighting)}
}

// observe returns the chain lead in ms (negative when RTDS was first) once
// both sources have reported the pair, and ok=false until then.
func (r *race) observe(source string, tx common.Hash, trader common.Address, at time.Time) (leadMs int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := raceKey{tx: tx, trader: trader}
	s := r.seen[key]
	if s == nil {
		s = &sighting{}
		r.seen[key] = s
	}
	switch source {
	case sourceChain:
		if !s.chain.IsZero() {
			return 0, false
		}
		s.chain = at
	case sourceRTDS:
		if !s.rtds.IsZero() {
			return 0, false
		}
		s.rtds = at
	default:
		return 0, false
	}
	if s.chain.IsZero() || s.rtds.IsZero() {
		return 0, false
	}
	lead := s.rtds.Sub(s.chain).Milliseconds()
	r.leads = append(r.leads, lead)
	return lead, true
}

// onlyIn counts pairs one source reported and the other never did.
func (r *race) onlyIn() (chain, rtds int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.seen {
		switch {
		case s.rtds.IsZero():
			chain++
		case s.chain.IsZero():
			rtds++
		}
	}
	return chain, rtds
}

func (r *race) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.leads...)
}

type stats struct {
	n      int
	min    int64
	median int64
	p95    int64
	max    int64
	// chainFirst counts samples where the chain source won.
	chainFirst int
}

func summarize(values []int64) stats {
	if len(values) == 0 {
		return stats{}
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	pick := func(q float64) int64 {
		idx := int(q * float64(len(sorted)))
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	st := stats{
		n:      len(sorted),
		min:    sorted[0],
		median: pick(0.5),
		p95:    pick(0.95),
		max:    sorted[len(sorted)-1],
	}
	for _, v := range sorted {
		if v > 0 {
			st.chainFirst++
		}
	}
	return st
}
