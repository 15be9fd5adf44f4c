// Package mining contains the hash-search side of the miner: worker threads
// grinding the counter space, the pool of solutions they find, and the run
// state shared with the coordinator.
package mining

import (
	"sync"
	"sync/atomic"
	"time"
)

// Mode selects where solutions go
type Mode int

const (
	// ModePool submits shares to a mining pool
	ModePool Mode = iota
	// ModeSolo submits solutions to nodes directly
	ModeSolo
)

// String returns the mode name
func (m Mode) String() string {
	if m == ModeSolo {
		return "solo"
	}
	return "pool"
}

// Block timing. A block lasts BlockPeriod seconds; workers grind and the
// coordinator submits only while the age sits inside [WindowOpen, WindowClose].
const (
	BlockPeriod = 600
	WindowOpen  = 1
	WindowClose = 585
	// SubmitAfter is the block age from which solutions are drained
	SubmitAfter = 10
)

// Clock is the time source for block age
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }

// BlockAge returns the seconds elapsed in the current block period
func BlockAge(c Clock) int64 {
	return c.Now().Unix() % BlockPeriod
}

// InWindow reports whether age lies inside the mining window
func InWindow(age int64) bool {
	return age >= WindowOpen && age <= WindowClose
}

// State is the run flag and process-wide counters shared by the coordinator
// and every worker.
type State struct {
	running     atomic.Bool
	done        chan struct{}
	stopOnce    sync.Once
	minedBlocks atomic.Uint32
	poolIndex   atomic.Int32
}

// NewState returns a running state
func NewState() *State {
	s := &State{done: make(chan struct{})}
	s.running.Store(true)
	return s
}

// Running reports whether mining should continue
func (s *State) Running() bool {
	return s.running.Load()
}

// Stop clears the run flag and releases every waiter. Safe to call twice.
func (s *State) Stop() {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		close(s.done)
	})
}

// Done is closed once Stop has been called
func (s *State) Done() <-chan struct{} {
	return s.done
}

// AddMinedBlock records a block won in solo mode and returns the new total
func (s *State) AddMinedBlock() uint32 {
	return s.minedBlocks.Add(1)
}

// MinedBlocks returns the number of blocks won in solo mode
func (s *State) MinedBlocks() uint32 {
	return s.minedBlocks.Load()
}

// PoolIndex returns the index of the pool currently mined against
func (s *State) PoolIndex() int {
	return int(s.poolIndex.Load())
}

// SetPoolIndex records a pool failover
func (s *State) SetPoolIndex(i int) {
	s.poolIndex.Store(int32(i))
}
