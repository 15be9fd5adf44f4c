package report

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSink exports mining progress as Prometheus metrics
type MetricsSink struct {
	registry *prometheus.Registry

	block        prometheus.Gauge
	hashrate     prometheus.Gauge
	threadRate   *prometheus.GaugeVec
	hashes       prometheus.Counter
	submissions  *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	minedBlocks  prometheus.Gauge
	notices      *prometheus.CounterVec
	tillBalance  prometheus.Gauge
	blockSeconds prometheus.Histogram
}

// NewMetricsSink registers the collectors on a fresh registry
func NewMetricsSink() *MetricsSink {
	m := &MetricsSink{
		registry: prometheus.NewRegistry(),
		block: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "noso2m", Name: "block",
			Help: "Block currently being mined.",
		}),
		hashrate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "noso2m", Name: "hashrate",
			Help: "Total hashrate over the last closed block in hashes per second.",
		}),
		threadRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "noso2m", Name: "thread_hashrate",
			Help: "Per-thread hashrate over the last closed block.",
		}, []string{"thread"}),
		hashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "noso2m", Name: "hashes_total",
			Help: "Hashes computed since start.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "noso2m", Name: "submissions_total",
			Help: "Solution submissions by outcome.",
		}, []string{"status"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "noso2m", Name: "rejections_total",
			Help: "Rejected submissions by reason.",
		}, []string{"reason"}),
		minedBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "noso2m", Name: "mined_blocks",
			Help: "Blocks won in solo mode.",
		}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "noso2m", Name: "notices_total",
			Help: "Operator notices by kind.",
		}, []string{"kind"}),
		tillBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "noso2m", Name: "pool_balance_noso",
			Help: "Unpaid pool balance.",
		}),
		blockSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "noso2m", Name: "block_mining_seconds",
			Help:    "Time spent mining each block.",
			Buckets: []float64{60, 120, 240, 360, 480, 540, 570, 585, 600},
		}),
	}

	m.registry.MustRegister(
		m.block, m.hashrate, m.threadRate, m.hashes, m.submissions,
		m.rejections, m.minedBlocks, m.notices, m.tillBalance, m.blockSeconds,
	)
	return m
}

// Registry exposes the underlying registry
func (m *MetricsSink) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *MetricsSink) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Emit implements Sink
func (m *MetricsSink) Emit(_ context.Context, e Event) {
	switch ev := e.(type) {
	case *BlockOpened:
		m.block.Set(float64(ev.Block))
		if ev.Pool != nil {
			m.tillBalance.Set(float64(ev.Pool.TillBalance) / nosoUnit)
		}
	case *Submission:
		m.submissions.WithLabelValues(ev.Status).Inc()
		if ev.Status == StatusRejected {
			m.rejections.WithLabelValues(ev.Reason).Inc()
		}
	case *BlockClosed:
		m.hashrate.Set(ev.Hashrate)
		m.hashes.Add(float64(ev.Hashes))
		m.minedBlocks.Set(float64(ev.MinedBlocks))
		m.blockSeconds.Observe(ev.Elapsed.Seconds())
		for _, th := range ev.Threads {
			m.threadRate.WithLabelValues(strconv.FormatUint(uint64(th.ThreadID), 10)).Set(th.Hashrate)
		}
	case *Notice:
		m.notices.WithLabelValues(string(ev.Kind)).Inc()
	}
}
