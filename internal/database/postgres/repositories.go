package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BlockRepository handles mined block history
type BlockRepository struct {
	db *sql.DB
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(db *sql.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// CreateBlock records a closed block. A second close of the same block for the
// same miner overwrites the counters and keeps the won flag.
func (r *BlockRepository) CreateBlock(ctx context.Context, block *MinedBlock) error {
	query := `
		INSERT INTO mined_blocks (miner_address, block, mode, source, accepted, rejected, failed,
		                          hashes, hashrate, elapsed_ms, won, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (miner_address, block) DO UPDATE SET
			mode = EXCLUDED.mode, source = EXCLUDED.source,
			accepted = EXCLUDED.accepted, rejected = EXCLUDED.rejected, failed = EXCLUDED.failed,
			hashes = EXCLUDED.hashes, hashrate = EXCLUDED.hashrate, elapsed_ms = EXCLUDED.elapsed_ms,
			won = mined_blocks.won OR EXCLUDED.won, closed_at = EXCLUDED.closed_at
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		block.MinerAddress, block.Block, block.Mode, block.Source,
		block.Accepted, block.Rejected, block.Failed,
		block.Hashes, block.Hashrate, block.ElapsedMS, block.Won, block.ClosedAt,
	).Scan(&block.ID)

	if err != nil {
		return fmt.Errorf("failed to create block: %w", err)
	}

	return nil
}

// MarkWon flags a block as won by the miner, creating the row if the block
// was never closed locally
func (r *BlockRepository) MarkWon(ctx context.Context, address string, block int64, mode string) error {
	query := `
		INSERT INTO mined_blocks (miner_address, block, mode, source, won, closed_at)
		VALUES ($1, $2, $3, '', TRUE, $4)
		ON CONFLICT (miner_address, block) DO UPDATE SET won = TRUE`

	if _, err := r.db.ExecContext(ctx, query, address, block, mode, time.Now()); err != nil {
		return fmt.Errorf("failed to mark block won: %w", err)
	}
	return nil
}

// GetRecentBlocks retrieves the latest closed blocks for a miner
func (r *BlockRepository) GetRecentBlocks(ctx context.Context, address string, limit int) ([]*MinedBlock, error) {
	query := `
		SELECT id, miner_address, block, mode, source, accepted, rejected, failed,
		       hashes, hashrate, elapsed_ms, won, closed_at
		FROM mined_blocks
		WHERE miner_address = $1
		ORDER BY block DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var blocks []*MinedBlock
	for rows.Next() {
		b := &MinedBlock{}
		err := rows.Scan(
			&b.ID, &b.MinerAddress, &b.Block, &b.Mode, &b.Source,
			&b.Accepted, &b.Rejected, &b.Failed,
			&b.Hashes, &b.Hashrate, &b.ElapsedMS, &b.Won, &b.ClosedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocks: %w", err)
	}

	return blocks, nil
}

// SolutionRepository handles submission history
type SolutionRepository struct {
	db *sql.DB
}

// NewSolutionRepository creates a new solution repository
func NewSolutionRepository(db *sql.DB) *SolutionRepository {
	return &SolutionRepository{db: db}
}

// CreateSubmission records a submit outcome
func (r *SolutionRepository) CreateSubmission(ctx context.Context, sub *Submission) error {
	query := `
		INSERT INTO submissions (miner_address, block, mode, base, hash, diff, code, status, reason, peer, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		sub.MinerAddress, sub.Block, sub.Mode, sub.Base, sub.Hash, sub.Diff,
		sub.Code, sub.Status, sub.Reason, sub.Peer, sub.SubmittedAt,
	).Scan(&sub.ID)

	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}

	return nil
}

// CountByStatus aggregates a miner's submissions since a point in time
func (r *SolutionRepository) CountByStatus(ctx context.Context, address string, since time.Time) ([]StatusCount, error) {
	query := `
		SELECT status, COUNT(*)
		FROM submissions
		WHERE miner_address = $1 AND submitted_at >= $2
		GROUP BY status
		ORDER BY status`

	rows, err := r.db.QueryContext(ctx, query, address, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var counts []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan submission count: %w", err)
		}
		counts = append(counts, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submission counts: %w", err)
	}

	return counts, nil
}
