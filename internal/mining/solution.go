package mining

import (
	"sort"
	"sync"
)

// Solution is a hash found by a worker. Diff is empty in pool mode.
type Solution struct {
	Block uint32
	Base  string
	Hash  string
	Diff  string
}

// before orders solutions newest block first, then smallest difficulty
func before(a, b *Solution) bool {
	if a.Block != b.Block {
		return a.Block > b.Block
	}
	return a.Diff < b.Diff
}

// SolutionPool is an ordered multiset of solutions. Equal solutions keep
// their insertion order, so the head is always the earliest of the best.
type SolutionPool struct {
	mu    sync.Mutex
	items []*Solution
}

// NewSolutionPool creates an empty pool
func NewSolutionPool() *SolutionPool {
	return &SolutionPool{}
}

// Add inserts s after every solution that is not ordered after it
func (p *SolutionPool) Add(s *Solution) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := sort.Search(len(p.items), func(i int) bool {
		return before(s, p.items[i])
	})
	p.items = append(p.items, nil)
	copy(p.items[i+1:], p.items[i:])
	p.items[i] = s
}

// Best returns the head of the pool and empties it. Used in solo mode, where
// only the single best solution of a drain cycle is worth sending.
func (p *SolutionPool) Best() *Solution {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.items) == 0 {
		return nil
	}
	best := p.items[0]
	p.items = nil
	return best
}

// Good removes and returns only the head of the pool. Used in pool mode.
func (p *SolutionPool) Good() *Solution {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.items) == 0 {
		return nil
	}
	good := p.items[0]
	p.items[0] = nil
	p.items = p.items[1:]
	return good
}

// Take pops according to mode: Best for solo, Good for pool
func (p *SolutionPool) Take(mode Mode) *Solution {
	if mode == ModeSolo {
		return p.Best()
	}
	return p.Good()
}

// Len returns the number of queued solutions
func (p *SolutionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Clear drops every queued solution
func (p *SolutionPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = nil
}
