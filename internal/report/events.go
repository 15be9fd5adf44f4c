// Package report carries what the coordinator has to say about mining to the
// outside: logs, metrics, Kafka, ZMQ subscribers and the history stores.
package report

import (
	"context"
	"time"
)

// Event type names, also used as message keys
const (
	TypeBlockOpened = "block_opened"
	TypeSubmission  = "submission"
	TypeBlockClosed = "block_closed"
	TypeNotice      = "notice"
)

// Event is anything the coordinator emits
type Event interface {
	EventType() string
	EventTime() time.Time
}

// Sink receives events. Emit must not block materially and never fails; a
// sink that can fail is wrapped in Async.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// PoolSnapshot is the pool accounting attached to a pool-mode block
type PoolSnapshot struct {
	Name         string `json:"name"`
	Prefix       string `json:"prefix"`
	TillBalance  uint64 `json:"till_balance"`
	TillPayment  uint32 `json:"till_payment"`
	PoolHashrate uint64 `json:"pool_hashrate"`
	NetHashrate  uint64 `json:"net_hashrate"`
}

// BlockOpened is emitted when workers receive a new target
type BlockOpened struct {
	Time     time.Time     `json:"time"`
	Mode     string        `json:"mode"`
	Block    uint32        `json:"block"`
	LastHash string        `json:"last_hash"`
	MinDiff  string        `json:"min_diff"`
	Source   string        `json:"source"`
	Pool     *PoolSnapshot `json:"pool,omitempty"`
}

// Submission status values
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// Submission is emitted after every submit attempt with the running counters
type Submission struct {
	Time     time.Time `json:"time"`
	Block    uint32    `json:"block"`
	Base     string    `json:"base"`
	Hash     string    `json:"hash"`
	Diff     string    `json:"diff,omitempty"`
	Code     int       `json:"code"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason"`
	Peer     string    `json:"peer,omitempty"`
	Requeued bool      `json:"requeued"`
	Accepted int       `json:"accepted"`
	Rejected int       `json:"rejected"`
	Failed   int       `json:"failed"`
}

// ThreadRate is one worker's hashrate over the closed block
type ThreadRate struct {
	ThreadID uint32  `json:"thread_id"`
	Hashes   uint64  `json:"hashes"`
	Hashrate float64 `json:"hashrate"`
}

// BlockClosed is emitted once every worker has reported for the block
type BlockClosed struct {
	Time        time.Time     `json:"time"`
	Mode        string        `json:"mode"`
	Block       uint32        `json:"block"`
	Source      string        `json:"source"`
	Accepted    int           `json:"accepted"`
	Rejected    int           `json:"rejected"`
	Failed      int           `json:"failed"`
	Hashes      uint64        `json:"hashes"`
	Hashrate    float64       `json:"hashrate"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Threads     []ThreadRate  `json:"threads"`
	MinedBlocks uint32        `json:"mined_blocks"`
	Pool        *PoolSnapshot `json:"pool,omitempty"`
}

// NoticeKind classifies a Notice
type NoticeKind string

// Notice kinds
const (
	NoticeConnectivity NoticeKind = "connectivity"
	NoticeBlockWon     NoticeKind = "block_won"
	NoticePayment      NoticeKind = "payment"
	NoticeFailover     NoticeKind = "failover"
	NoticeWaiting      NoticeKind = "waiting"
)

// Notice is a one-off message for the operator
type Notice struct {
	Time    time.Time  `json:"time"`
	Kind    NoticeKind `json:"kind"`
	Block   uint32     `json:"block,omitempty"`
	Message string     `json:"message"`
	Peer    string     `json:"peer,omitempty"`
	// Amount is in noso units of 1e-8 for payment notices
	Amount  uint64 `json:"amount,omitempty"`
	OrderID string `json:"order_id,omitempty"`
}

func (e *BlockOpened) EventType() string    { return TypeBlockOpened }
func (e *BlockOpened) EventTime() time.Time { return e.Time }
func (e *Submission) EventType() string     { return TypeSubmission }
func (e *Submission) EventTime() time.Time  { return e.Time }
func (e *BlockClosed) EventType() string    { return TypeBlockClosed }
func (e *BlockClosed) EventTime() time.Time { return e.Time }
func (e *Notice) EventType() string         { return TypeNotice }
func (e *Notice) EventTime() time.Time      { return e.Time }

// Nop discards every event
type Nop struct{}

// Emit implements Sink
func (Nop) Emit(context.Context, Event) {}

// Multi fans an event out to several sinks in order
type Multi []Sink

// Emit implements Sink
func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}
