// Package coordinator runs the block lifecycle: it waits for the submission
// window, acquires a target from node consensus or a pool, hands it to the
// workers, drains and submits their solutions, then closes the block.
package coordinator

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/bardlex/noso2m/internal/mining"
	"github.com/bardlex/noso2m/internal/peer"
	"github.com/bardlex/noso2m/internal/report"
	"github.com/bardlex/noso2m/internal/validation"
	"github.com/bardlex/noso2m/pkg/errors"
	"github.com/bardlex/noso2m/pkg/log"
	"github.com/bardlex/noso2m/pkg/retry"
)

// Block-age thresholds for opening a block after the first one
const (
	soloSafeAge = 1
	poolSafeAge = 6
)

// pollInterval paces the window wait, the target poll and the drain loop
const pollInterval = 100 * time.Millisecond

// DefaultQuorum is the number of nodes that must agree on a solo target
const DefaultQuorum = 3

// Config holds the coordinator settings
type Config struct {
	Address string
	MinerID uint32
	// Threads counts the coordinator itself, so Threads-1 workers are started
	Threads int
	Mode    mining.Mode
	Quorum  int
	// VerifySolutions re-hashes every solution before it is submitted
	VerifySolutions bool
}

// Validate checks the settings the coordinator relies on
func (c Config) Validate() error {
	if c.Threads < 2 {
		return errors.Newf(errors.ErrorTypeConfig, "coordinator_config", "threads must be at least 2, got %d", c.Threads)
	}
	if c.Quorum < 1 {
		return errors.Newf(errors.ErrorTypeConfig, "coordinator_config", "quorum must be at least 1, got %d", c.Quorum)
	}
	if c.Address == "" {
		return errors.New(errors.ErrorTypeConfig, "coordinator_config", "miner address is required")
	}
	return nil
}

// Option customises a Coordinator
type Option func(*Coordinator)

// WithClock replaces the wall clock used for block age and timing
func WithClock(clock mining.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithSleep replaces the pause between polls. sleep reports false when the
// wait was cut short.
func WithSleep(sleep func(ctx context.Context, d time.Duration) bool) Option {
	return func(c *Coordinator) { c.sleep = sleep }
}

// WithShuffle replaces the node shuffle
func WithShuffle(shuffle func(n int, swap func(i, j int))) Option {
	return func(c *Coordinator) { c.shuffle = shuffle }
}

// WithState shares a run state with the caller
func WithState(state *mining.State) Option {
	return func(c *Coordinator) { c.state = state }
}

// Coordinator owns the workers and the only goroutine doing peer I/O
type Coordinator struct {
	cfg     Config
	nodes   []peer.Peer
	pools   []peer.Peer
	nodeAPI NodeAPI
	poolAPI PoolAPI
	sink    report.Sink
	logger  *log.Logger

	state     *mining.State
	solutions *mining.SolutionPool
	workers   []*mining.Worker
	validator *validation.SolutionValidator

	clock       mining.Clock
	sleep       func(ctx context.Context, d time.Duration) bool
	shuffle     func(n int, swap func(i, j int))
	poolRetry   *retry.Config
	submitRetry *retry.Config

	// per-block state, touched only by the Run goroutine
	target       *Target
	begin        time.Time
	accepted     int
	rejected     int
	failed       int
	closedBlocks int
}

// New creates a coordinator and its workers
func New(cfg Config, nodes, pools []peer.Peer, nodeAPI NodeAPI, poolAPI PoolAPI, sink report.Sink, logger *log.Logger, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case mining.ModeSolo:
		if len(nodes) < cfg.Quorum {
			return nil, errors.Newf(errors.ErrorTypeConfig, "coordinator_new",
				"solo mining needs at least %d nodes, got %d", cfg.Quorum, len(nodes))
		}
	case mining.ModePool:
		if len(pools) == 0 {
			return nil, errors.New(errors.ErrorTypeConfig, "coordinator_new", "pool mining needs at least one pool")
		}
	}
	if sink == nil {
		sink = report.Nop{}
	}

	c := &Coordinator{
		cfg:         cfg,
		nodes:       nodes,
		pools:       pools,
		nodeAPI:     nodeAPI,
		poolAPI:     poolAPI,
		sink:        sink,
		logger:      logger.WithComponent("coordinator"),
		solutions:   mining.NewSolutionPool(),
		validator:   validation.NewSolutionValidator(cfg.VerifySolutions),
		clock:       mining.SystemClock{},
		sleep:       sleepContext,
		shuffle:     rand.Shuffle,
		poolRetry:   retry.PoolTargetConfig(),
		submitRetry: retry.PoolSubmitConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.state == nil {
		c.state = mining.NewState()
	}

	for i := range cfg.Threads - 1 {
		c.workers = append(c.workers,
			mining.NewWorker(cfg.MinerID, uint32(i), cfg.Mode, c.state, c.solutions, c.clock, logger))
	}
	return c, nil
}

// State returns the run state shared with the workers
func (c *Coordinator) State() *mining.State { return c.state }

// Run mines until ctx ends or the run state is stopped. Workers are joined
// before it returns.
func (c *Coordinator) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopState := context.AfterFunc(ctx, c.state.Stop)
	defer stopState()
	go func() {
		select {
		case <-c.state.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	for _, w := range c.workers {
		wg.Add(1)
		go func(w *mining.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	defer func() {
		c.state.Stop()
		for _, w := range c.workers {
			w.Reset()
		}
		wg.Wait()
		c.logger.Info("coordinator stopped", "mined_blocks", c.state.MinedBlocks())
	}()

	c.logger.Info("coordinator started",
		"mode", c.cfg.Mode.String(),
		"workers", len(c.workers),
		"miner_id", c.cfg.MinerID,
	)

	safe := int64(mining.SubmitAfter)
	prevHash := ""
	for c.running(ctx) {
		if !c.waitWindow(ctx, safe) {
			return
		}
		if c.cfg.Mode == mining.ModeSolo {
			safe = soloSafeAge
		} else {
			safe = poolSafeAge
		}

		target := c.acquireTarget(ctx, prevHash)
		if target == nil {
			return
		}
		c.openBlock(ctx, target)
		c.drain(ctx)
		if !c.closeBlock(ctx) {
			return
		}
		prevHash = target.LastHash
	}
}

func (c *Coordinator) running(ctx context.Context) bool {
	return ctx.Err() == nil && c.state.Running()
}

// waitWindow blocks until the block age lies in [safe, WindowClose]
func (c *Coordinator) waitWindow(ctx context.Context, safe int64) bool {
	for c.running(ctx) {
		age := mining.BlockAge(c.clock)
		if age >= safe && age <= mining.WindowClose {
			return true
		}
		if !c.sleep(ctx, pollInterval) {
			return false
		}
	}
	return false
}

// acquireTarget fetches targets until one is valid and names a block other
// than prevHash
func (c *Coordinator) acquireTarget(ctx context.Context, prevHash string) *Target {
	for c.running(ctx) {
		target := c.fetchTarget(ctx)
		switch {
		case target == nil:
		case target.LastHash != prevHash:
			work := target.Work(c.cfg.Address)
			err := validation.ValidateTarget(&work)
			if err == nil {
				return target
			}
			c.logger.WithError(err).Warn("discarding invalid target", "source", target.Source())
		default:
			c.emit(ctx, &report.Notice{
				Time:    c.clock.Now(),
				Kind:    report.NoticeWaiting,
				Block:   target.Block,
				Message: "waiting for the network to build the next block",
			})
		}
		if !c.sleep(ctx, pollInterval) {
			return nil
		}
	}
	return nil
}

func (c *Coordinator) fetchTarget(ctx context.Context) *Target {
	if c.cfg.Mode == mining.ModeSolo {
		return c.nodeTarget(ctx)
	}
	return c.poolTarget(ctx)
}

// openBlock hands the target to every worker and reports it
func (c *Coordinator) openBlock(ctx context.Context, t *Target) {
	c.target = t
	c.begin = c.clock.Now()

	work := t.Work(c.cfg.Address)
	for _, w := range c.workers {
		w.AssignTarget(work)
	}
	c.reportTarget(ctx, t)
}

// reportTarget announces wins and payments for the block just built, then
// the new block header. Nothing is announced before the first block closed.
func (c *Coordinator) reportTarget(ctx context.Context, t *Target) {
	now := c.clock.Now()
	if c.closedBlocks > 0 {
		switch {
		case t.Node != nil && t.Node.LastAddress == c.cfg.Address:
			total := c.state.AddMinedBlock()
			c.emit(ctx, &report.Notice{
				Time:    now,
				Kind:    report.NoticeBlockWon,
				Block:   t.Block,
				Message: "you won block " + strconv.FormatUint(uint64(t.Block), 10) + ", total mined " + strconv.FormatUint(uint64(total), 10),
			})
		case t.Pool != nil && t.Pool.PaymentBlock == t.Block:
			c.emit(ctx, &report.Notice{
				Time:    now,
				Kind:    report.NoticePayment,
				Block:   t.Block,
				Message: "pool payment received",
				Peer:    t.Pool.Name,
				Amount:  t.Pool.PaymentAmount,
				OrderID: t.Pool.PaymentOrderID,
			})
		}
	}

	c.emit(ctx, &report.BlockOpened{
		Time:     now,
		Mode:     c.cfg.Mode.String(),
		Block:    t.MiningBlock(),
		LastHash: t.LastHash,
		MinDiff:  t.MinDiff,
		Source:   t.Source(),
		Pool:     t.poolSnapshot(),
	})
}

// drain submits queued solutions until the window closes
func (c *Coordinator) drain(ctx context.Context) {
	for c.running(ctx) {
		start := c.clock.Now()
		age := mining.BlockAge(c.clock)
		if age > mining.WindowClose {
			return
		}
		if age >= mining.SubmitAfter {
			if sol := c.solutions.Take(c.cfg.Mode); sol != nil && sol.Diff < c.target.MinDiff {
				c.submit(ctx, sol)
			}
		}
		if took := c.clock.Now().Sub(start); took < pollInterval {
			if !c.sleep(ctx, pollInterval) {
				return
			}
		}
	}
}

// closeBlock collects every worker summary and reports the block. It returns
// false when shutdown interrupted the collection.
func (c *Coordinator) closeBlock(ctx context.Context) bool {
	threads := make([]report.ThreadRate, 0, len(c.workers))
	var hashes uint64
	for _, w := range c.workers {
		s, ok := w.TakeSummary(ctx)
		if !ok {
			return false
		}
		hashes += s.Hashes
		threads = append(threads, report.ThreadRate{
			ThreadID: s.ThreadID,
			Hashes:   s.Hashes,
			Hashrate: s.Hashrate(),
		})
	}

	now := c.clock.Now()
	elapsed := now.Sub(c.begin)
	var hashrate float64
	if elapsed > 0 {
		hashrate = float64(hashes) / elapsed.Seconds()
	}

	c.emit(ctx, &report.BlockClosed{
		Time:        now,
		Mode:        c.cfg.Mode.String(),
		Block:       c.target.MiningBlock(),
		Source:      c.target.Source(),
		Accepted:    c.accepted,
		Rejected:    c.rejected,
		Failed:      c.failed,
		Hashes:      hashes,
		Hashrate:    hashrate,
		Elapsed:     elapsed,
		Threads:     threads,
		MinedBlocks: c.state.MinedBlocks(),
		Pool:        c.target.poolSnapshot(),
	})

	c.closedBlocks++
	c.accepted, c.rejected, c.failed = 0, 0, 0
	c.solutions.Clear()
	return true
}

func (c *Coordinator) emit(ctx context.Context, e report.Event) {
	c.sink.Emit(ctx, e)
}

// connectivity logs a failed exchange and surfaces it as a notice
func (c *Coordinator) connectivity(ctx context.Context, p peer.Peer, message string, err error) {
	c.logger.WithPeer(p.Name, p.Host, p.Port).WithError(err).Debug(message)
	c.emit(ctx, &report.Notice{
		Time:    c.clock.Now(),
		Kind:    report.NoticeConnectivity,
		Message: message,
		Peer:    p.String(),
	})
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
