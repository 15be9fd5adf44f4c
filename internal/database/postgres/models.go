package postgres

import (
	"time"
)

// MinedBlock is one closed mining block as seen by this miner
type MinedBlock struct {
	ID           int64     `db:"id"`
	MinerAddress string    `db:"miner_address"`
	Block        int64     `db:"block"`
	Mode         string    `db:"mode"`   // solo, pool
	Source       string    `db:"source"` // "consensus" or the pool name
	Accepted     int       `db:"accepted"`
	Rejected     int       `db:"rejected"`
	Failed       int       `db:"failed"`
	Hashes       int64     `db:"hashes"`
	Hashrate     float64   `db:"hashrate"`
	ElapsedMS    int64     `db:"elapsed_ms"`
	Won          bool      `db:"won"`
	ClosedAt     time.Time `db:"closed_at"`
}

// Submission is one submit attempt and its outcome
type Submission struct {
	ID           int64     `db:"id"`
	MinerAddress string    `db:"miner_address"`
	Block        int64     `db:"block"`
	Mode         string    `db:"mode"`
	Base         string    `db:"base"`
	Hash         string    `db:"hash"`
	Diff         string    `db:"diff"`
	Code         int       `db:"code"`
	Status       string    `db:"status"` // accepted, rejected, failed
	Reason       string    `db:"reason"`
	Peer         string    `db:"peer"`
	SubmittedAt  time.Time `db:"submitted_at"`
}

// StatusCount is the number of submissions with one status
type StatusCount struct {
	Status string `db:"status"`
	Count  int64  `db:"count"`
}
