package report

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"github.com/bardlex/noso2m/pkg/log"
)

// nosoUnit is the number of base units in one NOSO
const nosoUnit = 100_000_000

// LogSink writes events as structured log lines
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger.WithComponent("report")}
}

// Emit implements Sink
func (s *LogSink) Emit(_ context.Context, e Event) {
	switch ev := e.(type) {
	case *BlockOpened:
		l := s.logger.WithBlock(ev.Block)
		args := []any{
			"mode", ev.Mode,
			"source", ev.Source,
			"last_hash", ev.LastHash,
			"min_diff", ev.MinDiff,
		}
		if ev.Pool != nil {
			args = append(args,
				"prefix", ev.Pool.Prefix,
				"balance", FormatNoso(ev.Pool.TillBalance),
				"till_payment", ev.Pool.TillPayment,
				"pool_hashrate", FormatHashrate(float64(ev.Pool.PoolHashrate)),
				"net_hashrate", FormatHashrate(float64(ev.Pool.NetHashrate)),
			)
		}
		l.Info("mining block opened", args...)

	case *Submission:
		s.logger.LogSubmission(ev.Block, ev.Base, ev.Diff, ev.Status, ev.Code)

	case *BlockClosed:
		l := s.logger.WithBlock(ev.Block)
		l.LogBlockSummary(ev.Block, ev.Hashes, ev.Hashrate, ev.Accepted, ev.Rejected, ev.Failed)
		l.Info("block stats",
			"hashrate", FormatHashrate(ev.Hashrate),
			"elapsed", FormatElapsed(ev.Elapsed),
			"threads", len(ev.Threads),
			"mined_blocks", ev.MinedBlocks,
		)
		for _, th := range ev.Threads {
			l.Debug("thread hashrate", "thread_id", th.ThreadID, "hashes", th.Hashes, "hashrate", FormatHashrate(th.Hashrate))
		}

	case *Notice:
		l := s.logger.WithFields("kind", string(ev.Kind))
		if ev.Block != 0 {
			l = l.WithBlock(ev.Block)
		}
		if ev.Peer != "" {
			l = l.WithFields("peer", ev.Peer)
		}
		switch ev.Kind {
		case NoticePayment:
			l.Info(ev.Message, "amount", FormatNoso(ev.Amount), "order_id", ev.OrderID)
		case NoticeBlockWon:
			l.Info(ev.Message)
		case NoticeWaiting:
			l.Debug(ev.Message)
		default:
			l.Warn(ev.Message)
		}
	}
}

// FormatHashrate renders hashes per second with an SI prefix
func FormatHashrate(hps float64) string {
	return humanize.SIWithDigits(hps, 2, "H/s")
}

// FormatElapsed renders a duration to millisecond precision
func FormatElapsed(d time.Duration) string {
	return durafmt.Parse(d.Round(time.Millisecond)).LimitFirstN(2).String()
}

// FormatNoso renders an amount of base units as NOSO
func FormatNoso(units uint64) string {
	return humanize.Commaf(float64(units)/nosoUnit) + " NOSO"
}
