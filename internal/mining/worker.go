package mining

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bardlex/noso2m/internal/nosohash"
	"github.com/bardlex/noso2m/pkg/log"
)

// Phase is where a worker sits in its block lifecycle
type Phase int32

const (
	// PhaseIdle waits for a target
	PhaseIdle Phase = iota
	// PhaseMining grinds the counter space
	PhaseMining
	// PhaseReporting holds a block summary until the coordinator takes it
	PhaseReporting
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMining:
		return "mining"
	case PhaseReporting:
		return "reporting"
	default:
		return "unknown"
	}
}

// WorkTarget is what a worker needs from the current network target
type WorkTarget struct {
	// BlockNumber is the last block on chain; the worker mines the next one
	BlockNumber uint32
	PoolPrefix  string
	Address     string
	PrevHash    string
	MinDiff     string
}

// Summary is one worker's result for one block
type Summary struct {
	ThreadID uint32
	Hashes   uint64
	Duration time.Duration
}

// Hashrate returns hashes per second over the summary duration
func (s Summary) Hashrate() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Hashes) / s.Duration.Seconds()
}

// Worker grinds one slice of the search space, disjoint from every other
// worker through its (miner id, thread id) prefix.
type Worker struct {
	minerID  uint32
	threadID uint32
	mode     Mode
	state    *State
	pool     *SolutionPool
	clock    Clock
	logger   *log.Logger

	mu      sync.Mutex
	target  *WorkTarget
	block   uint32
	summary *Summary
	phase   atomic.Int32
	gen     atomic.Uint64

	wake         chan struct{}
	summaryReady chan struct{}
	summaryDone  chan struct{}
}

// NewWorker creates an idle worker
func NewWorker(minerID, threadID uint32, mode Mode, state *State, pool *SolutionPool, clock Clock, logger *log.Logger) *Worker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Worker{
		minerID:      minerID,
		threadID:     threadID,
		mode:         mode,
		state:        state,
		pool:         pool,
		clock:        clock,
		logger:       logger.WithComponent("worker").WithThread(minerID, threadID),
		wake:         make(chan struct{}, 1),
		summaryReady: make(chan struct{}, 1),
		summaryDone:  make(chan struct{}, 1),
	}
}

// ThreadID returns the worker's thread index
func (w *Worker) ThreadID() uint32 { return w.threadID }

// Phase returns the current lifecycle phase
func (w *Worker) Phase() Phase { return Phase(w.phase.Load()) }

// Prefix returns the 9-character search prefix for a pool prefix
func (w *Worker) Prefix(poolPrefix string) string {
	return nosohash.WorkerPrefix(poolPrefix, int(w.minerID), int(w.threadID))
}

// AssignTarget hands the worker a new target and wakes it. A worker still
// grinding an older target stops at its next hash.
func (w *Worker) AssignTarget(t WorkTarget) {
	w.mu.Lock()
	w.target = &t
	w.block = t.BlockNumber + 1
	w.gen.Add(1)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run is the worker loop: wait for a target, grind it, publish a summary and
// wait for the coordinator to collect it. Returns when ctx ends or the run
// state stops.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Debug("worker started")
	defer w.logger.Debug("worker stopped")

	for {
		target, block, gen, ok := w.waitTarget(ctx)
		if !ok {
			return
		}

		w.phase.Store(int32(PhaseMining))
		hashes, elapsed := w.mine(target, block, gen)

		w.mu.Lock()
		w.summary = &Summary{ThreadID: w.threadID, Hashes: hashes, Duration: elapsed}
		if w.gen.Load() == gen {
			w.target = nil
			w.block = 0
		}
		w.mu.Unlock()
		w.phase.Store(int32(PhaseReporting))
		select {
		case w.summaryReady <- struct{}{}:
		default:
		}

		if !w.waitSummaryTaken(ctx) {
			return
		}
		w.phase.Store(int32(PhaseIdle))
	}
}

func (w *Worker) waitTarget(ctx context.Context) (WorkTarget, uint32, uint64, bool) {
	for {
		w.mu.Lock()
		if w.target != nil && w.summary == nil {
			t, block, gen := *w.target, w.block, w.gen.Load()
			w.mu.Unlock()
			return t, block, gen, true
		}
		w.mu.Unlock()

		select {
		case <-w.wake:
		case <-w.state.Done():
			return WorkTarget{}, 0, 0, false
		case <-ctx.Done():
			return WorkTarget{}, 0, 0, false
		}
	}
}

func (w *Worker) waitSummaryTaken(ctx context.Context) bool {
	select {
	case <-w.summaryDone:
		return true
	case <-w.state.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// mine grinds counters until the window closes, the run flag drops or a newer
// target arrives. It returns the hash count and the time spent.
func (w *Worker) mine(t WorkTarget, block uint32, gen uint64) (uint64, time.Duration) {
	start := w.clock.Now()

	hasher, err := nosohash.NewHasher(w.Prefix(t.PoolPrefix), t.Address)
	if err != nil {
		w.logger.WithError(err).Error("cannot build hasher for target")
		return 0, w.clock.Now().Sub(start)
	}

	best := t.MinDiff
	matchLen := min(nosohash.LeadingZeroNibbles(best), nosohash.HashLen)
	prev := t.PrevHash
	if len(prev) < nosohash.HashLen {
		w.logger.Error("target previous hash too short", "prev_hash", prev)
		return 0, w.clock.Now().Sub(start)
	}

	var counter uint32
	for w.state.Running() && w.gen.Load() == gen && InWindow(BlockAge(w.clock)) {
		base, err := hasher.SetCounter(counter)
		if err != nil {
			w.logger.Warn("counter space exhausted", "block", block)
			break
		}
		counter++
		hash := hasher.Hash()

		if hash[:matchLen] != prev[:matchLen] {
			continue
		}

		if w.mode == ModePool {
			w.pool.Add(&Solution{Block: block, Base: base, Hash: hash})
			w.logger.LogSolution(block, base, hash, "")
			continue
		}

		diff := hasher.Diff(prev)
		if !nosohash.Better(diff, best) {
			continue
		}
		w.pool.Add(&Solution{Block: block, Base: base, Hash: hash, Diff: diff})
		w.logger.LogSolution(block, base, hash, diff)
		best = diff
		for matchLen < nosohash.HashLen && best[matchLen] == '0' {
			matchLen++
		}
	}

	return uint64(counter), w.clock.Now().Sub(start)
}

// TakeSummary waits until the worker has finished its block, returns the
// summary and releases the worker to idle. ok is false when the wait was cut
// short by shutdown.
func (w *Worker) TakeSummary(ctx context.Context) (Summary, bool) {
	for {
		w.mu.Lock()
		if w.summary != nil {
			s := *w.summary
			w.summary = nil
			w.mu.Unlock()

			select {
			case w.summaryDone <- struct{}{}:
			default:
			}
			return s, true
		}
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return Summary{}, false
		case <-w.state.Done():
			return Summary{}, false
		case <-w.summaryReady:
		}
	}
}

// Reset drops any pending target and summary. Called at shutdown so nothing
// stays parked.
func (w *Worker) Reset() {
	w.mu.Lock()
	w.target = nil
	w.block = 0
	w.summary = nil
	w.gen.Add(1)
	w.mu.Unlock()
}
