package report

import (
	"context"

	"github.com/bardlex/noso2m/internal/database"
)

// Store is the part of database.Manager the sink writes through
type Store interface {
	RecordTarget(ctx context.Context, target *database.TargetRecord) error
	RecordSubmission(ctx context.Context, sub *database.SubmissionRecord) error
	RecordBlock(ctx context.Context, block *database.BlockRecord) error
	RecordWin(ctx context.Context, block uint32, mode string) error
}

// StoreHandler persists events as history records
type StoreHandler struct {
	store Store
	mode  string
}

// NewStoreHandler creates a StoreHandler for a miner running in mode. Wrap it
// in Async.
func NewStoreHandler(store Store, mode string) *StoreHandler {
	return &StoreHandler{store: store, mode: mode}
}

// Name implements Handler
func (h *StoreHandler) Name() string { return "store" }

// Handle implements Handler
func (h *StoreHandler) Handle(ctx context.Context, e Event) error {
	switch ev := e.(type) {
	case *BlockOpened:
		return h.store.RecordTarget(ctx, &database.TargetRecord{
			Mode:     ev.Mode,
			Block:    ev.Block,
			LastHash: ev.LastHash,
			MinDiff:  ev.MinDiff,
			Source:   ev.Source,
			OpenedAt: ev.Time,
		})

	case *Submission:
		return h.store.RecordSubmission(ctx, &database.SubmissionRecord{
			Mode:   h.mode,
			Block:  ev.Block,
			Base:   ev.Base,
			Hash:   ev.Hash,
			Diff:   ev.Diff,
			Code:   ev.Code,
			Status: ev.Status,
			Reason: ev.Reason,
			Peer:   ev.Peer,
			At:     ev.Time,
		})

	case *BlockClosed:
		threads := make([]database.ThreadRecord, len(ev.Threads))
		for i, th := range ev.Threads {
			threads[i] = database.ThreadRecord{ThreadID: th.ThreadID, Hashes: th.Hashes, Hashrate: th.Hashrate}
		}
		return h.store.RecordBlock(ctx, &database.BlockRecord{
			Mode:     ev.Mode,
			Source:   ev.Source,
			Block:    ev.Block,
			Accepted: ev.Accepted,
			Rejected: ev.Rejected,
			Failed:   ev.Failed,
			Hashes:   ev.Hashes,
			Hashrate: ev.Hashrate,
			Elapsed:  ev.Elapsed,
			Threads:  threads,
			At:       ev.Time,
		})

	case *Notice:
		if ev.Kind == NoticeBlockWon {
			return h.store.RecordWin(ctx, ev.Block, h.mode)
		}
	}
	return nil
}

var _ Store = (*database.Manager)(nil)
