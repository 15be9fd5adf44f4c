package coordinator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bardlex/noso2m/internal/mining"
	"github.com/bardlex/noso2m/internal/nosohash"
	"github.com/bardlex/noso2m/internal/peer"
	"github.com/bardlex/noso2m/internal/report"
	"github.com/bardlex/noso2m/pkg/errors"
	"github.com/bardlex/noso2m/pkg/log"
	"github.com/bardlex/noso2m/pkg/retry"
)

var (
	_ NodeAPI = (*peer.NodeClient)(nil)
	_ PoolAPI = (*peer.PoolClient)(nil)
	_ NodeAPI = (*fakeNodes)(nil)
	_ PoolAPI = (*fakePools)(nil)
)

const (
	testAddress = "N3G1HhkpXvmLcsWFXySdAxX3GZpkMF"
	testHash    = "0A1B2C3D4E5F60718293A4B5C6D7E8F9"
	testDiff    = "0000FFFFFFFFFFFFFFFFFFFFFFFFFFFF"
	poolAddress = "N4ZR3fKhTUod34evnEcDQ2Rmn6xkgTv"
)

// blockStart is a unix time with a block age of zero
var blockStart = time.Unix(1_700_000_400, 0)

var errDown = errors.New(errors.ErrorTypeNetwork, "test", "peer down")

type fakeNodes struct {
	mu        sync.Mutex
	statuses  map[string]*peer.NodeStatus
	times     map[string]int64
	submits   []*peer.SubmitResult
	submitted []string
}

func (f *fakeNodes) Timestamp(_ context.Context, node peer.Peer) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.times[node.Host]
	if !ok {
		return 0, errDown
	}
	return ts, nil
}

func (f *fakeNodes) Status(_ context.Context, node peer.Peer) (*peer.NodeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[node.Host]
	if !ok {
		return nil, errDown
	}
	cp := *st
	return &cp, nil
}

func (f *fakeNodes) SubmitSolution(_ context.Context, node peer.Peer, _, base string, _ uint32, _ int64) (*peer.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, node.Host+" "+base)
	if len(f.submits) == 0 {
		return nil, errDown
	}
	res := f.submits[0]
	if len(f.submits) > 1 {
		f.submits = f.submits[1:]
	}
	if res == nil {
		return nil, errDown
	}
	return res, nil
}

type fakePools struct {
	mu       sync.Mutex
	statuses map[string]*peer.PoolStatus
	// failures per pool name before Source answers
	failures map[string]int
	sources  []string
	shares   []int
	shareErr error
	shared   int
}

func (f *fakePools) Source(_ context.Context, pool peer.Peer, _ string) (*peer.PoolStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, pool.Name)
	if f.failures[pool.Name] > 0 {
		f.failures[pool.Name]--
		return nil, errDown
	}
	st, ok := f.statuses[pool.Name]
	if !ok {
		return nil, errDown
	}
	cp := *st
	return &cp, nil
}

func (f *fakePools) Share(context.Context, peer.Peer, string, string, uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shared++
	if f.shareErr != nil {
		return 0, f.shareErr
	}
	if len(f.shares) == 0 {
		return peer.CodeAccepted, nil
	}
	code := f.shares[0]
	f.shares = f.shares[1:]
	return code, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []report.Event
	onEmit func(report.Event)
}

func (s *recordingSink) Emit(_ context.Context, e report.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	fn := s.onEmit
	s.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func (s *recordingSink) notices(kind report.NoticeKind) []*report.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*report.Notice
	for _, e := range s.events {
		if n, ok := e.(*report.Notice); ok && n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (s *recordingSink) submissions() []*report.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*report.Submission
	for _, e := range s.events {
		if sub, ok := e.(*report.Submission); ok {
			out = append(out, sub)
		}
	}
	return out
}

// steppingClock is advanced by the injected sleep
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) bool {
	r.mu.Lock()
	r.slept = append(r.slept, d)
	r.mu.Unlock()
	return ctx.Err() == nil
}

func nodeList(hosts ...string) []peer.Peer {
	nodes := make([]peer.Peer, len(hosts))
	for i, h := range hosts {
		nodes[i] = peer.Peer{Host: h, Port: "8080"}
	}
	return nodes
}

func poolList(names ...string) []peer.Peer {
	pools := make([]peer.Peer, len(names))
	for i, n := range names {
		pools[i] = peer.Peer{Name: n, Host: n + ".example", Port: "8082"}
	}
	return pools
}

func noShuffle(int, func(i, j int)) {}

func status(block uint32) *peer.NodeStatus {
	return &peer.NodeStatus{
		Block:       block,
		LastHash:    testHash,
		MinDiff:     testDiff,
		LastTime:    1_700_000_000,
		LastAddress: "N2kFAtGWLb57Qz91sexZSAnYwA3T7Cy",
	}
}

func poolStatus(block uint32) *peer.PoolStatus {
	return &peer.PoolStatus{
		Prefix:       "AB",
		Address:      poolAddress,
		MinDiff:      testDiff,
		LastHash:     testHash,
		Block:        block,
		TillBalance:  150_000_000,
		TillPayment:  12,
		PoolHashrate: 1_500_000,
		NetHashrate:  9_000_000,
	}
}

type testSetup struct {
	cfg   Config
	nodes []peer.Peer
	pools []peer.Peer
	node  *fakeNodes
	pool  *fakePools
	sink  *recordingSink
	sleep *sleepRecorder
	clock *steppingClock
}

func newTestSetup(mode mining.Mode) *testSetup {
	return &testSetup{
		cfg: Config{
			Address: testAddress,
			Threads: 2,
			Mode:    mode,
			Quorum:  DefaultQuorum,
		},
		nodes: nodeList("n1", "n2", "n3"),
		pools: poolList("alpha"),
		node:  &fakeNodes{statuses: map[string]*peer.NodeStatus{}, times: map[string]int64{}},
		pool:  &fakePools{statuses: map[string]*peer.PoolStatus{}, failures: map[string]int{}},
		sink:  &recordingSink{},
		sleep: &sleepRecorder{},
		clock: &steppingClock{now: blockStart.Add(20 * time.Second)},
	}
}

func (s *testSetup) build(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{
		WithClock(s.clock),
		WithSleep(s.sleep.sleep),
		WithShuffle(noShuffle),
	}, opts...)
	c, err := New(s.cfg, s.nodes, s.pools, s.node, s.pool, s.sink, log.Nop(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.submitRetry = &retry.Config{MaxAttempts: 5}
	return c
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*testSetup)
		valid bool
	}{
		{"solo ok", func(*testSetup) {}, true},
		{"one thread", func(s *testSetup) { s.cfg.Threads = 1 }, false},
		{"no address", func(s *testSetup) { s.cfg.Address = "" }, false},
		{"zero quorum", func(s *testSetup) { s.cfg.Quorum = 0 }, false},
		{"solo below quorum", func(s *testSetup) { s.nodes = s.nodes[:2] }, false},
		{"pool without pools", func(s *testSetup) { s.cfg.Mode = mining.ModePool; s.pools = nil }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSetup(mining.ModeSolo)
			tt.mut(s)
			_, err := New(s.cfg, s.nodes, s.pools, s.node, s.pool, s.sink, log.Nop())
			if (err == nil) != tt.valid {
				t.Errorf("New() error = %v, want valid %v", err, tt.valid)
			}
			if err != nil && !errors.IsType(err, errors.ErrorTypeConfig) {
				t.Errorf("error type = %v, want config", err)
			}
		})
	}
}

func TestNewStartsThreadsMinusOneWorkers(t *testing.T) {
	s := newTestSetup(mining.ModeSolo)
	s.cfg.Threads = 4
	c := s.build(t)
	if len(c.workers) != 3 {
		t.Fatalf("workers = %d, want 3", len(c.workers))
	}
	for i, w := range c.workers {
		if w.ThreadID() != uint32(i) {
			t.Errorf("worker %d thread id = %d", i, w.ThreadID())
		}
	}
}

func TestMajority(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"unanimous", []string{"b", "b", "b"}, "b"},
		{"two of three", []string{"a", "b", "b"}, "b"},
		{"tie goes to smallest", []string{"c", "a", "c", "a"}, "a"},
		{"all different", []string{"z", "y", "x"}, "x"},
		{"single", []string{"q"}, "q"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := majority(tt.values); got != tt.want {
				t.Errorf("majority(%v) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}

	if got := majority([]uint32{99, 100, 100}); got != 100 {
		t.Errorf("majority(uint32) = %d, want 100", got)
	}
}

func TestConsensusUnanimous(t *testing.T) {
	s := newTestSetup(mining.ModeSolo)
	for _, n := range s.nodes {
		s.node.statuses[n.Host] = status(100)
	}
	c := s.build(t)

	target := c.nodeTarget(context.Background())
	if target == nil {
		t.Fatal("nodeTarget() = nil")
	}
	want := status(100)
	if target.Block != want.Block || target.LastHash != want.LastHash || target.MinDiff != want.MinDiff {
		t.Errorf("target = %+v", target)
	}
	if target.Node == nil || target.Node.LastTime != want.LastTime || target.Node.LastAddress != want.LastAddress {
		t.Errorf("node fields = %+v", target.Node)
	}
	if target.Pool != nil {
		t.Error("solo target carries pool fields")
	}
	if target.Source() != SourceConsensus || target.MiningBlock() != 101 {
		t.Errorf("Source() = %q, MiningBlock() = %d", target.Source(), target.MiningBlock())
	}
}

func TestConsensusMajorityBlock(t *testing.T) {
	s := newTestSetup(mining.ModeSolo)
	s.node.statuses["n1"] = status(100)
	s.node.statuses["n2"] = status(99)
	s.node.statuses["n3"] = status(100)
	c := s.build(t)

	target := c.nodeTarget(context.Background())
	if target == nil || target.Block != 100 {
		t.Fatalf("nodeTarget() = %+v, want block 100", target)
	}
}

func TestConsensusSkipsFailingNodes(t *testing.T) {
	s := newTestSetup(mining.ModeSolo)
	s.nodes = nodeList("n1", "n2", "n3", "n4", "n5")
	s.node.statuses["n2"] = status(100)
	s.node.statuses["n4"] = status(100)
	s.node.statuses["n5"] = status(100)
	c := s.build(t)

	target := c.nodeTarget(context.Background())
	if target == nil || target.Block != 100 {
		t.Fatalf("nodeTarget() = %+v", target)
	}
	if n := len(s.sink.notices(report.NoticeConnectivity)); n == 0 {
		t.Error("no connectivity notice for failing nodes")
	}
}

func TestConsensusWithoutQuorum(t *testing.T) {
	s := newTestSetup(mining.ModeSolo)
	s.node.statuses["n1"] = status(100)
	s.node.statuses["n2"] = status(100)
	c := s.build(t)

	if target := c.nodeTarget(context.Background()); target != nil {
		t.Errorf("nodeTarget() = %+v, want nil", target)
	}
}

func TestPoolTargetWork(t *testing.T) {
	s := newTestSetup(mining.ModePool)
	s.pool.statuses["alpha"] = poolStatus(200)
	c := s.build(t)

	target := c.poolTarget(context.Background())
	if target == nil || target.Pool == nil {
		t.Fatalf("poolTarget() = %+v", target)
	}
	if target.Source() != "alpha" {
		t.Errorf("Source() = %q", target.Source())
	}
	work := target.Work(testAddress)
	if work.Address != poolAddress || work.PoolPrefix != "AB" || work.BlockNumber != 200 {
		t.Errorf("Work() = %+v", work)
	}

	solo := newNodeTarget(status(5)).Work(testAddress)
	if solo.Address != testAddress || solo.PoolPrefix != "" {
		t.Errorf("solo Work() = %+v", solo)
	}
}

func TestPoolTargetSinglePoolRetries(t *testing.T) {
	s := newTestSetup(mining.ModePool)
	s.pool.statuses["alpha"] = poolStatus(200)
	s.pool.failures["alpha"] = 6
	c := s.build(t)

	target := c.poolTarget(context.Background())
	if target == nil {
		t.Fatal("poolTarget() = nil")
	}
	if c.state.PoolIndex() != 0 {
		t.Errorf("PoolIndex() = %d, want 0", c.state.PoolIndex())
	}
	want := []time.Duration{100, 200, 300, 400, 0, 100}
	if len(s.sleep.slept) != len(want) {
		t.Fatalf("slept %v, want %v ms", s.sleep.slept, want)
	}
	for i, d := range want {
		if s.sleep.slept[i] != d*time.Millisecond {
			t.Errorf("sleep %d = %v, want %v", i, s.sleep.slept[i], d*time.Millisecond)
		}
	}
	if n := len(s.sink.notices(report.NoticeFailover)); n != 0 {
		t.Errorf("failover notices = %d, want 0", n)
	}
}

func TestPoolTargetFailover(t *testing.T) {
	s := newTestSetup(mining.ModePool)
	s.pools = poolList("alpha", "beta")
	s.pool.statuses["beta"] = poolStatus(200)
	s.pool.failures["alpha"] = 100
	c := s.build(t)

	target := c.poolTarget(context.Background())
	if target == nil || target.Source() != "beta" {
		t.Fatalf("poolTarget() = %+v, want target from beta", target)
	}
	if c.state.PoolIndex() != 1 {
		t.Errorf("PoolIndex() = %d, want 1", c.state.PoolIndex())
	}
	if got := strings.Join(s.pool.sources, ","); got != "alpha,alpha,alpha,alpha,alpha,beta" {
		t.Errorf("sources = %s", got)
	}
	notices := s.sink.notices(report.NoticeFailover)
	if len(notices) != 1 || !strings.Contains(notices[0].Peer, "beta") {
		t.Errorf("failover notices = %+v", notices)
	}
}

func TestPoolTargetFirstFailoverGoesToFirstPool(t *testing.T) {
	s := newTestSetup(mining.ModePool)
	s.pools = poolList("alpha", "beta", "gamma")
	s.pool.statuses["beta"] = poolStatus(200)
	s.pool.failures["gamma"] = 100
	s.pool.failures["alpha"] = 100
	state := mining.NewState()
	state.SetPoolIndex(2)
	c := s.build(t, WithState(state))

	target := c.poolTarget(context.Background())
	if target == nil || target.Source() != "beta" {
		t.Fatalf("poolTarget() = %+v, want target from beta", target)
	}
	want := "gamma,gamma,gamma,gamma,gamma,alpha,alpha,alpha,alpha,alpha,beta"
	if got := strings.Join(s.pool.sources, ","); got != want {
		t.Errorf("sources = %s, want %s", got, want)
	}
	if state.PoolIndex() != 1 {
		t.Errorf("PoolIndex() = %d, want 1", state.PoolIndex())
	}
}

func TestPoolTargetStopsWithState(t *testing.T) {
	s := newTestSetup(mining.ModePool)
	s.pool.failures["alpha"] = 100
	c := s.build(t)
	c.state.Stop()

	if target := c.poolTarget(context.Background()); target != nil {
		t.Errorf("poolTarget() = %+v, want nil", target)
	}
	if len(s.pool.sources) != 1 {
		t.Errorf("sources = %v, want a single request", s.pool.sources)
	}
}

func soloSolution(diff string) *mining.Solution {
	return &mining.Solution{
		Block: 101,
		Base:  "AB!!!!!!!000000042",
		Hash:  testHash,
		Diff:  diff,
	}
}

func openSolo(t *testing.T, s *testSetup) *Coordinator {
	t.Helper()
	c := s.build(t)
	c.target = newNodeTarget(status(100))
	return c
}

func TestSubmitSoloBuildingBlock(t *testing.T) {
	tests := []struct {
		name        string
		solDiff     string
		nodeDiff    string
		wantMinDiff string
		requeued    bool
	}{
		{
			name:        "solution still better",
			solDiff:     "00000AFFFFFFFFFFFFFFFFFFFFFFFFFF",
			nodeDiff:    "00000BFFFFFFFFFFFFFFFFFFFFFFFFFF",
			wantMinDiff: "00000AFFFFFFFFFFFFFFFFFFFFFFFFFF",
			requeued:    true,
		},
		{
			name:        "network already better",
			solDiff:     "00000AFFFFFFFFFFFFFFFFFFFFFFFFFF",
			nodeDiff:    "000001FFFFFFFFFFFFFFFFFFFFFFFFFF",
			wantMinDiff: "000001FFFFFFFFFFFFFFFFFFFFFFFFFF",
			requeued:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSetup(mining.ModeSolo)
			s.node.submits = []*peer.SubmitResult{{Code: peer.CodeBuildingBlock, Diff: tt.nodeDiff}}
			c := openSolo(t, s)

			c.submit(context.Background(), soloSolution(tt.solDiff))

			if c.target.MinDiff != tt.wantMinDiff {
				t.Errorf("MinDiff = %s, want %s", c.target.MinDiff, tt.wantMinDiff)
			}
			if got := c.solutions.Len() == 1; got != tt.requeued {
				t.Errorf("requeued = %v, want %v", got, tt.requeued)
			}
			if c.rejected != 1 || c.accepted != 0 || c.failed != 0 {
				t.Errorf("counters = %d/%d/%d", c.accepted, c.rejected, c.failed)
			}
			subs := s.sink.submissions()
			if len(subs) != 1 || subs[0].Requeued != tt.requeued || subs[0].Status != report.StatusRejected {
				t.Errorf("submissions = %+v", subs)
			}
		})
	}
}

func TestSubmitSoloOutcomes(t *testing.T) {
	sol := "00000AFFFFFFFFFFFFFFFFFFFFFFFFFF"
	tests := []struct {
		name     string
		results  []*peer.SubmitResult
		status   string
		requeued bool
		tries    int
	}{
		{"accepted", []*peer.SubmitResult{{Code: peer.CodeAccepted, Diff: sol, Hash: testHash}}, report.StatusAccepted, false, 1},
		{"duplicate", []*peer.SubmitResult{{Code: peer.CodeDuplicateHash, Diff: sol}}, report.StatusRejected, false, 1},
		{"first node down", []*peer.SubmitResult{nil, {Code: peer.CodeAccepted, Diff: sol}}, report.StatusAccepted, false, 2},
		{"every node down", nil, report.StatusFailed, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSetup(mining.ModeSolo)
			s.node.submits = tt.results
			c := openSolo(t, s)

			c.submit(context.Background(), soloSolution(sol))

			subs := s.sink.submissions()
			if len(subs) != 1 {
				t.Fatalf("submissions = %d, want 1", len(subs))
			}
			if subs[0].Status != tt.status || subs[0].Requeued != tt.requeued {
				t.Errorf("submission = %+v", subs[0])
			}
			if (c.solutions.Len() == 1) != tt.requeued {
				t.Errorf("pool length = %d", c.solutions.Len())
			}
			if len(s.node.submitted) != tt.tries {
				t.Errorf("submitted to %v, want %d nodes", s.node.submitted, tt.tries)
			}
			if c.target.MinDiff != sol {
				t.Errorf("MinDiff = %s, want the solution difficulty", c.target.MinDiff)
			}
		})
	}
}

func TestSubmitDropsInvalidSolution(t *testing.T) {
	s := newTestSetup(mining.ModeSolo)
	s.node.submits = []*peer.SubmitResult{{Code: peer.CodeAccepted, Diff: testDiff}}
	c := openSolo(t, s)

	bad := soloSolution("00000AFFFFFFFFFFFFFFFFFFFFFFFFFF")
	bad.Block = 150
	c.submit(context.Background(), bad)

	if len(s.node.submitted) != 0 || len(s.sink.submissions()) != 0 {
		t.Error("invalid solution was submitted")
	}
	if c.accepted+c.rejected+c.failed != 0 {
		t.Error("invalid solution was counted")
	}
}

func openPool(t *testing.T, s *testSetup) *Coordinator {
	t.Helper()
	c := s.build(t)
	c.target = newPoolTarget("alpha", poolStatus(100))
	return c
}

func poolSolution() *mining.Solution {
	return &mining.Solution{Block: 101, Base: "AB!!!!!!!000000042", Hash: testHash}
}

func TestSubmitPoolRetriesThenAbandons(t *testing.T) {
	s := newTestSetup(mining.ModePool)
	s.pool.shareErr = errDown
	c := openPool(t, s)

	c.submit(context.Background(), poolSolution())

	if s.pool.shared != 5 {
		t.Errorf("share tries = %d, want 5", s.pool.shared)
	}
	if c.failed != 1 || c.solutions.Len() != 0 {
		t.Errorf("failed = %d, queued = %d", c.failed, c.solutions.Len())
	}
	if c.state.PoolIndex() != 0 {
		t.Errorf("PoolIndex() = %d, submit must not fail over", c.state.PoolIndex())
	}
}

func TestSubmitPoolCodes(t *testing.T) {
	s := newTestSetup(mining.ModePool)
	s.pool.shares = []int{peer.CodeAccepted, peer.CodeWrongBase, peer.CodeAccepted}
	c := openPool(t, s)

	for range 3 {
		c.submit(context.Background(), poolSolution())
	}

	if c.accepted != 2 || c.rejected != 1 || c.failed != 0 {
		t.Errorf("counters = %d/%d/%d", c.accepted, c.rejected, c.failed)
	}
	subs := s.sink.submissions()
	if len(subs) != 3 || subs[1].Reason != peer.RejectReason(peer.CodeWrongBase) || subs[2].Accepted != 2 {
		t.Errorf("submissions = %+v", subs)
	}
}

func TestReportTargetNotices(t *testing.T) {
	t.Run("solo win after first block", func(t *testing.T) {
		s := newTestSetup(mining.ModeSolo)
		c := s.build(t)
		st := status(100)
		st.LastAddress = testAddress

		c.reportTarget(context.Background(), newNodeTarget(st))
		if n := len(s.sink.notices(report.NoticeBlockWon)); n != 0 {
			t.Errorf("win before any closed block: %d notices", n)
		}

		c.closedBlocks = 1
		c.reportTarget(context.Background(), newNodeTarget(st))
		wins := s.sink.notices(report.NoticeBlockWon)
		if len(wins) != 1 || wins[0].Block != 100 || c.state.MinedBlocks() != 1 {
			t.Errorf("wins = %+v, mined = %d", wins, c.state.MinedBlocks())
		}
	})

	t.Run("pool payment", func(t *testing.T) {
		s := newTestSetup(mining.ModePool)
		c := s.build(t)
		c.closedBlocks = 1
		ps := poolStatus(100)
		ps.PaymentBlock = 100
		ps.PaymentAmount = 250_000_000
		ps.PaymentOrderID = "OR1234"

		c.reportTarget(context.Background(), newPoolTarget("alpha", ps))
		pays := s.sink.notices(report.NoticePayment)
		if len(pays) != 1 || pays[0].Amount != 250_000_000 || pays[0].OrderID != "OR1234" {
			t.Errorf("payments = %+v", pays)
		}
	})
}

func TestAcquireTargetWaitsForNewBlock(t *testing.T) {
	s := newTestSetup(mining.ModeSolo)
	for _, n := range s.nodes {
		s.node.statuses[n.Host] = status(100)
	}
	next := status(101)
	next.LastHash = "1A1B2C3D4E5F60718293A4B5C6D7E8F9"
	c := s.build(t, WithSleep(func(ctx context.Context, d time.Duration) bool {
		s.sleep.sleep(ctx, d)
		s.node.mu.Lock()
		for _, n := range s.nodes {
			s.node.statuses[n.Host] = next
		}
		s.node.mu.Unlock()
		return true
	}))

	target := c.acquireTarget(context.Background(), testHash)
	if target == nil || target.Block != 101 {
		t.Fatalf("acquireTarget() = %+v, want block 101", target)
	}
	if n := len(s.sink.notices(report.NoticeWaiting)); n != 1 {
		t.Errorf("waiting notices = %d, want 1", n)
	}
}

func TestWaitWindow(t *testing.T) {
	s := newTestSetup(mining.ModeSolo)
	s.clock.now = blockStart.Add(590 * time.Second)
	c := s.build(t, WithSleep(func(ctx context.Context, d time.Duration) bool {
		s.clock.advance(time.Second)
		return ctx.Err() == nil
	}))

	if !c.waitWindow(context.Background(), mining.SubmitAfter) {
		t.Fatal("waitWindow() = false")
	}
	if age := mining.BlockAge(s.clock); age != mining.SubmitAfter {
		t.Errorf("window opened at age %d, want %d", age, mining.SubmitAfter)
	}
}

func TestRunMinesOneBlock(t *testing.T) {
	s := newTestSetup(mining.ModeSolo)
	s.cfg.Threads = 3
	st := status(100)
	st.MinDiff = nosohash.MaxDiff
	for _, n := range s.nodes {
		s.node.statuses[n.Host] = st
	}
	s.node.submits = []*peer.SubmitResult{{Code: peer.CodeAccepted, Diff: nosohash.MaxDiff, Hash: testHash}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.sink.onEmit = func(e report.Event) {
		if _, ok := e.(*report.BlockClosed); ok {
			cancel()
		}
	}

	c := s.build(t, WithSleep(func(ctx context.Context, d time.Duration) bool {
		time.Sleep(time.Millisecond)
		s.clock.advance(10 * time.Second)
		return ctx.Err() == nil
	}))
	c.Run(ctx)

	if c.state.Running() {
		t.Error("state still running after Run returned")
	}

	s.sink.mu.Lock()
	defer s.sink.mu.Unlock()
	var opened *report.BlockOpened
	var closed *report.BlockClosed
	for _, e := range s.sink.events {
		switch ev := e.(type) {
		case *report.BlockOpened:
			opened = ev
		case *report.BlockClosed:
			closed = ev
		}
	}
	if opened == nil || opened.Block != 101 || opened.Source != SourceConsensus {
		t.Fatalf("block opened = %+v", opened)
	}
	if closed == nil {
		t.Fatal("no block closed event")
	}
	if closed.Block != 101 || len(closed.Threads) != 2 {
		t.Errorf("block closed = %+v", closed)
	}
	var hashes uint64
	for _, th := range closed.Threads {
		hashes += th.Hashes
	}
	if hashes != closed.Hashes {
		t.Errorf("thread hashes %d != total %d", hashes, closed.Hashes)
	}
	for _, e := range s.sink.events {
		if sub, ok := e.(*report.Submission); ok && sub.Status != report.StatusAccepted {
			t.Errorf("submission = %+v, want accepted", sub)
		}
	}
}
