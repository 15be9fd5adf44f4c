package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bardlex/noso2m/internal/config"
	"github.com/bardlex/noso2m/internal/database"
	"github.com/bardlex/noso2m/internal/database/influx"
	"github.com/bardlex/noso2m/internal/database/postgres"
	"github.com/bardlex/noso2m/internal/database/redis"
	"github.com/bardlex/noso2m/internal/messaging"
	"github.com/bardlex/noso2m/internal/mining"
	"github.com/bardlex/noso2m/internal/report"
	"github.com/bardlex/noso2m/pkg/errors"
	"github.com/bardlex/noso2m/pkg/log"
)

const storeFlushInterval = 10 * time.Second

// sinkSet owns every configured event sink and what backs it
type sinkSet struct {
	runID   string
	logger  *log.Logger
	sinks   report.Multi
	async   []*report.Async
	metrics *http.Server
	closers []func() error
	// startHooks run with the sink context once Start is called
	startHooks []func(context.Context)

	cancel context.CancelFunc
}

// newSinks builds the log sink and every sink the configuration enables
func newSinks(cfg *config.Config, mode mining.Mode, logger *log.Logger) (*sinkSet, error) {
	s := &sinkSet{
		runID:  uuid.NewString(),
		logger: logger.WithComponent("sinks"),
		sinks:  report.Multi{report.NewLogSink(logger)},
	}

	if cfg.MetricsAddr != "" {
		m := report.NewMetricsSink()
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		s.metrics = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.sinks = append(s.sinks, m)
	}

	if len(cfg.KafkaBrokers) > 0 {
		kc := messaging.NewKafkaClient(cfg.KafkaBrokers, messaging.Encoding(cfg.KafkaEncoding), logger)
		s.addAsync(report.NewKafkaHandler(kc, cfg.KafkaTopicPrefix, s.runID), cfg.SinkQueueSize)
		s.closers = append(s.closers, kc.Close)
	}

	if cfg.ZMQEndpoint != "" {
		zp, err := report.NewZMQPublisher(cfg.ZMQEndpoint, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.addAsync(zp, cfg.SinkQueueSize)
		s.closers = append(s.closers, zp.Close)
	}

	if dbCfg := storeConfig(cfg); dbCfg.Enabled() {
		mgr, err := database.NewManager(dbCfg, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.addAsync(report.NewStoreHandler(mgr, mode.String()), cfg.SinkQueueSize)
		s.closers = append(s.closers, mgr.Close)
		s.startHooks = append(s.startHooks, func(ctx context.Context) {
			mgr.StartPeriodicTasks(ctx, storeFlushInterval)
		})
	}

	s.logger.Info("event sinks ready", "run_id", s.runID, "sinks", len(s.sinks))
	return s, nil
}

func storeConfig(cfg *config.Config) *database.Config {
	dbCfg := &database.Config{Address: cfg.Address}
	if cfg.PostgresURL != "" {
		dbCfg.Postgres = &postgres.Config{
			DSN:          cfg.PostgresURL,
			MaxOpenConns: 4,
			MaxIdleConns: 2,
			MaxLifetime:  5 * time.Minute,
		}
	}
	if cfg.RedisURL != "" {
		dbCfg.Redis = &redis.Config{
			URL:          cfg.RedisURL,
			KeyPrefix:    "noso2m:" + cfg.Address,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}
	}
	if cfg.InfluxURL != "" {
		dbCfg.Influx = &influx.Config{
			URL:     cfg.InfluxURL,
			Token:   cfg.InfluxToken,
			Org:     cfg.InfluxOrg,
			Bucket:  cfg.InfluxBucket,
			Miner:   cfg.Address,
			MinerID: uint32(cfg.MinerID),
		}
	}
	return dbCfg
}

func (s *sinkSet) addAsync(h report.Handler, size int) {
	a := report.NewAsync(h, size, s.logger)
	s.async = append(s.async, a)
	s.sinks = append(s.sinks, a)
}

// Sink returns the fan-out over every sink
func (s *sinkSet) Sink() report.Sink { return s.sinks }

// Start launches the async deliveries and the metrics endpoint. They outlive
// ctx until Close so the last events of a shutdown still go out.
func (s *sinkSet) Start(ctx context.Context) {
	sinkCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	for _, a := range s.async {
		a.Start(sinkCtx)
	}
	for _, hook := range s.startHooks {
		hook(sinkCtx)
	}

	if s.metrics != nil {
		go func() {
			s.logger.Info("metrics endpoint listening", "addr", s.metrics.Addr)
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.WithError(err).Error("metrics endpoint failed")
			}
		}()
	}
}

// Close drains the async sinks, then closes their backends
func (s *sinkSet) Close() {
	if s.cancel != nil {
		for _, a := range s.async {
			a.Close()
		}
		s.cancel()
	}

	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.metrics.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Warn("metrics endpoint shutdown failed")
		}
		cancel()
	}

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.WithError(err).Warn("sink backend close failed")
		}
	}
	s.closers = nil
}
