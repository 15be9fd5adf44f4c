// Package database records the miner's history across Redis, PostgreSQL and
// InfluxDB. Every store is optional; a Manager with none configured records
// nothing.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/bardlex/noso2m/internal/database/influx"
	"github.com/bardlex/noso2m/internal/database/postgres"
	"github.com/bardlex/noso2m/internal/database/redis"
	"github.com/bardlex/noso2m/pkg/circuit"
	"github.com/bardlex/noso2m/pkg/errors"
	"github.com/bardlex/noso2m/pkg/log"
	"github.com/bardlex/noso2m/pkg/retry"
)

// Cache keeps the live state, implemented by *redis.Client
type Cache interface {
	SetCurrentTarget(ctx context.Context, target any, expiration time.Duration) error
	IncrementCounter(ctx context.Context, name string, expiration time.Duration) (int64, error)
	AddHashrate(ctx context.Context, threadID uint32, hashrate float64, at time.Time, window time.Duration) error
	Health(ctx context.Context) error
	Close() error
}

// History keeps blocks and submissions, implemented by postgres repositories
type History interface {
	CreateBlock(ctx context.Context, block *postgres.MinedBlock) error
	MarkWon(ctx context.Context, address string, block int64, mode string) error
	CreateSubmission(ctx context.Context, sub *postgres.Submission) error
	Health(ctx context.Context) error
	Close() error
}

// Series keeps time series, implemented by *influx.Client
type Series interface {
	WriteBlockMetric(block uint32, mode, source string, hashes uint64, hashrate float64, elapsed time.Duration, accepted, rejected, failed int, at time.Time)
	WriteThreadHashrate(block, threadID uint32, hashes uint64, hashrate float64, at time.Time)
	WriteSubmissionMetric(block uint32, mode, status string, code int, at time.Time)
	Health(ctx context.Context) error
	Flush()
	Close()
}

// How long cached state outlives its block
const (
	targetTTL     = 10 * time.Minute
	counterTTL    = 24 * time.Hour
	hashrateRange = time.Hour
)

// Manager coordinates all history writes
type Manager struct {
	address string
	cache   Cache
	history History
	series  Series
	logger  *log.Logger

	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// Config holds configuration for all stores. A nil store config disables it.
type Config struct {
	// Address is the miner address every record belongs to
	Address  string
	Postgres *postgres.Config
	Redis    *redis.Config
	Influx   *influx.Config
}

// Enabled reports whether any store is configured
func (c *Config) Enabled() bool {
	return c != nil && (c.Postgres != nil || c.Redis != nil || c.Influx != nil)
}

// pgHistory joins the postgres client and its repositories
type pgHistory struct {
	*postgres.Client
	*postgres.BlockRepository
	*postgres.SolutionRepository
}

// NewManager connects every configured store
func NewManager(cfg *Config, logger *log.Logger) (*Manager, error) {
	m := &Manager{
		address: cfg.Address,
		logger:  logger.WithComponent("database"),
		circuitBreaker: circuit.New(&circuit.Config{
			Name:            "database",
			MaxFailures:     3,
			SuccessRequired: 2,
			Timeout:         30 * time.Second,
			ResetTimeout:    60 * time.Second,
		}),
		retryConfig: retry.StoreConfig(),
	}

	if cfg.Postgres != nil {
		pg, err := postgres.NewClient(cfg.Postgres)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeStorage, "postgres_connection",
				"failed to connect to PostgreSQL database")
		}
		m.history = &pgHistory{
			Client:             pg,
			BlockRepository:    postgres.NewBlockRepository(pg.DB()),
			SolutionRepository: postgres.NewSolutionRepository(pg.DB()),
		}
	}

	if cfg.Redis != nil {
		rc, err := redis.NewClient(cfg.Redis)
		if err != nil {
			origErr := errors.Wrap(err, errors.ErrorTypeStorage, "redis_connection",
				"failed to connect to Redis database")
			if closeErr := m.Close(); closeErr != nil {
				origErr = origErr.WithContext("cleanup_error", closeErr.Error())
			}
			return nil, origErr
		}
		m.cache = rc
	}

	if cfg.Influx != nil {
		ic, err := influx.NewClient(cfg.Influx)
		if err != nil {
			origErr := errors.Wrap(err, errors.ErrorTypeStorage, "influx_connection",
				"failed to connect to InfluxDB database")
			if closeErr := m.Close(); closeErr != nil {
				origErr = origErr.WithContext("cleanup_error", closeErr.Error())
			}
			return nil, origErr
		}
		m.series = ic
	}

	return m, nil
}

// Close closes all database connections
func (m *Manager) Close() error {
	var errs []error

	if m.history != nil {
		if err := m.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("PostgreSQL close error: %w", err))
		}
	}

	if m.cache != nil {
		if err := m.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if m.series != nil {
		m.series.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("database close errors: %v", errs)
	}

	return nil
}

// Health checks the health of all configured stores
func (m *Manager) Health(ctx context.Context) error {
	if m.history != nil {
		if err := m.history.Health(ctx); err != nil {
			return fmt.Errorf("PostgreSQL health check failed: %w", err)
		}
	}

	if m.cache != nil {
		if err := m.cache.Health(ctx); err != nil {
			return fmt.Errorf("redis health check failed: %w", err)
		}
	}

	if m.series != nil {
		if err := m.series.Health(ctx); err != nil {
			return fmt.Errorf("InfluxDB health check failed: %w", err)
		}
	}

	return nil
}

// RecordTarget caches the target workers are mining on
func (m *Manager) RecordTarget(ctx context.Context, target *TargetRecord) error {
	if m.cache == nil {
		return nil
	}
	return m.circuitBreaker.Execute(ctx, func() error {
		if err := m.cache.SetCurrentTarget(ctx, target, targetTTL); err != nil {
			return errors.Wrap(err, errors.ErrorTypeStorage, "record_target",
				"failed to cache target in Redis").
				WithContext("block", target.Block)
		}
		return nil
	})
}

// RecordSubmission stores a submit outcome. Postgres is authoritative; the
// counter and time series writes are best effort.
func (m *Manager) RecordSubmission(ctx context.Context, sub *SubmissionRecord) error {
	return m.circuitBreaker.Execute(ctx, func() error {
		if m.history != nil {
			row := &postgres.Submission{
				MinerAddress: m.address,
				Block:        int64(sub.Block),
				Mode:         sub.Mode,
				Base:         sub.Base,
				Hash:         sub.Hash,
				Diff:         sub.Diff,
				Code:         sub.Code,
				Status:       sub.Status,
				Reason:       sub.Reason,
				Peer:         sub.Peer,
				SubmittedAt:  sub.At,
			}
			err := retry.Do(ctx, m.retryConfig, func() error {
				return m.history.CreateSubmission(ctx, row)
			})
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeStorage, "record_submission",
					"failed to store submission in PostgreSQL").
					WithContext("block", sub.Block).
					WithContext("status", sub.Status)
			}
		}

		if m.series != nil {
			m.series.WriteSubmissionMetric(sub.Block, sub.Mode, sub.Status, sub.Code, sub.At)
		}

		if m.cache != nil {
			if _, err := m.cache.IncrementCounter(ctx, sub.Status, counterTTL); err != nil {
				m.logger.WithError(err).Warn("failed to update submission counter (non-critical)")
			}
		}

		return nil
	})
}

// RecordBlock stores a closed block with its per-thread hashrates
func (m *Manager) RecordBlock(ctx context.Context, block *BlockRecord) error {
	return m.circuitBreaker.Execute(ctx, func() error {
		if m.history != nil {
			row := &postgres.MinedBlock{
				MinerAddress: m.address,
				Block:        int64(block.Block),
				Mode:         block.Mode,
				Source:       block.Source,
				Accepted:     block.Accepted,
				Rejected:     block.Rejected,
				Failed:       block.Failed,
				Hashes:       int64(block.Hashes),
				Hashrate:     block.Hashrate,
				ElapsedMS:    block.Elapsed.Milliseconds(),
				ClosedAt:     block.At,
			}
			err := retry.Do(ctx, m.retryConfig, func() error {
				return m.history.CreateBlock(ctx, row)
			})
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeStorage, "record_block",
					"failed to store block in PostgreSQL").
					WithContext("block", block.Block)
			}
		}

		if m.series != nil {
			m.series.WriteBlockMetric(block.Block, block.Mode, block.Source, block.Hashes, block.Hashrate,
				block.Elapsed, block.Accepted, block.Rejected, block.Failed, block.At)
			for _, th := range block.Threads {
				m.series.WriteThreadHashrate(block.Block, th.ThreadID, th.Hashes, th.Hashrate, block.At)
			}
		}

		if m.cache != nil {
			for _, th := range block.Threads {
				if err := m.cache.AddHashrate(ctx, th.ThreadID, th.Hashrate, block.At, hashrateRange); err != nil {
					m.logger.WithError(err).Warn("failed to cache thread hashrate (non-critical)", "thread_id", th.ThreadID)
					break
				}
			}
		}

		return nil
	})
}

// RecordWin flags a block as won
func (m *Manager) RecordWin(ctx context.Context, block uint32, mode string) error {
	return m.circuitBreaker.Execute(ctx, func() error {
		if m.history != nil {
			err := retry.Do(ctx, m.retryConfig, func() error {
				return m.history.MarkWon(ctx, m.address, int64(block), mode)
			})
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeStorage, "record_win",
					"failed to mark block won in PostgreSQL").
					WithContext("block", block)
			}
		}
		if m.cache != nil {
			if _, err := m.cache.IncrementCounter(ctx, "won", counterTTL); err != nil {
				m.logger.WithError(err).Warn("failed to update won counter (non-critical)")
			}
		}
		return nil
	})
}

// StartPeriodicTasks flushes the time series every flushEvery until ctx ends
func (m *Manager) StartPeriodicTasks(ctx context.Context, flushEvery time.Duration) {
	if m.series == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(flushEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.series.Flush()
			}
		}
	}()

	if ic, ok := m.series.(*influx.Client); ok {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case err, ok := <-ic.Errors():
					if !ok {
						return
					}
					m.logger.WithError(err).Warn("InfluxDB write failed")
				}
			}
		}()
	}
}

var (
	_ Cache   = (*redis.Client)(nil)
	_ History = (*pgHistory)(nil)
	_ Series  = (*influx.Client)(nil)
)
