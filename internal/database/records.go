package database

import "time"

// TargetRecord is the target handed to the workers
type TargetRecord struct {
	Mode     string    `json:"mode"`
	Block    uint32    `json:"block"`
	LastHash string    `json:"last_hash"`
	MinDiff  string    `json:"min_diff"`
	Source   string    `json:"source"`
	OpenedAt time.Time `json:"opened_at"`
}

// SubmissionRecord is one submit outcome
type SubmissionRecord struct {
	Mode   string
	Block  uint32
	Base   string
	Hash   string
	Diff   string
	Code   int
	Status string
	Reason string
	Peer   string
	At     time.Time
}

// ThreadRecord is a worker's share of a closed block
type ThreadRecord struct {
	ThreadID uint32
	Hashes   uint64
	Hashrate float64
}

// BlockRecord is a closed block
type BlockRecord struct {
	Mode     string
	Source   string
	Block    uint32
	Accepted int
	Rejected int
	Failed   int
	Hashes   uint64
	Hashrate float64
	Elapsed  time.Duration
	Threads  []ThreadRecord
	At       time.Time
}
