package coordinator

import (
	"context"

	"github.com/bardlex/noso2m/internal/mining"
	"github.com/bardlex/noso2m/internal/nosohash"
	"github.com/bardlex/noso2m/internal/peer"
	"github.com/bardlex/noso2m/internal/report"
	"github.com/bardlex/noso2m/pkg/retry"
)

// codeFailed marks a submission no peer answered
const codeFailed = -1

// submit validates a drained solution and sends it to a node or the pool
func (c *Coordinator) submit(ctx context.Context, sol *mining.Solution) {
	work := c.target.Work(c.cfg.Address)
	if err := c.validator.ValidateSolution(sol, &work, c.cfg.Mode); err != nil {
		c.logger.WithError(err).Warn("dropping invalid solution", "block", sol.Block, "base", sol.Base)
		return
	}

	if c.cfg.Mode == mining.ModeSolo {
		c.submitSolo(ctx, sol)
		return
	}
	c.submitPool(ctx, sol)
}

// submitSolo sends the solution to shuffled nodes until one answers. The
// target difficulty is tightened to the solution's and to whatever better
// difficulty the node reports. Failures are requeued, as are solutions the
// node could not take while building a block and that still beat its
// difficulty.
func (c *Coordinator) submitSolo(ctx context.Context, sol *mining.Solution) {
	c.target.MinDiff = sol.Diff

	code, newDiff, from := c.sendToNodes(ctx, sol)
	if newDiff < c.target.MinDiff {
		c.target.MinDiff = newDiff
	}

	requeue := false
	switch {
	case code == peer.CodeAccepted:
	case code == peer.CodeBuildingBlock:
		requeue = sol.Diff < newDiff
	case code < 0:
		requeue = true
	}
	if requeue {
		c.solutions.Add(sol)
	}
	c.record(ctx, sol, code, from, requeue)
}

func (c *Coordinator) sendToNodes(ctx context.Context, sol *mining.Solution) (int, string, string) {
	for _, node := range c.shuffledNodes() {
		if !c.running(ctx) {
			break
		}
		res, err := c.nodeAPI.SubmitSolution(ctx, node, c.cfg.Address, sol.Base, sol.Block, c.clock.Now().Unix())
		if err != nil {
			c.connectivity(ctx, node, "poor connectivity with node", err)
			continue
		}
		return res.Code, res.Diff, node.String()
	}
	return codeFailed, nosohash.MaxDiff, ""
}

// submitPool sends the share to the current pool, retrying inline. A share
// no try delivered is dropped.
func (c *Coordinator) submitPool(ctx context.Context, sol *mining.Solution) {
	pool := c.currentPool()
	code, err := retry.DoWithResult(ctx, c.submitRetry, func() (int, error) {
		return c.poolAPI.Share(ctx, pool, c.cfg.Address, sol.Base, sol.Block)
	})
	if err != nil {
		c.connectivity(ctx, pool, "poor connectivity with pool", err)
		code = codeFailed
	}
	c.record(ctx, sol, code, pool.String(), false)
}

// record counts the outcome and reports it
func (c *Coordinator) record(ctx context.Context, sol *mining.Solution, code int, from string, requeued bool) {
	var status string
	switch {
	case code == peer.CodeAccepted:
		c.accepted++
		status = report.StatusAccepted
	case code > 0:
		c.rejected++
		status = report.StatusRejected
	default:
		c.failed++
		status = report.StatusFailed
	}

	reason := peer.RejectReason(code)
	if code < 0 {
		reason = "no peer answered"
	}

	c.emit(ctx, &report.Submission{
		Time:     c.clock.Now(),
		Block:    sol.Block,
		Base:     sol.Base,
		Hash:     sol.Hash,
		Diff:     sol.Diff,
		Code:     code,
		Status:   status,
		Reason:   reason,
		Peer:     from,
		Requeued: requeued,
		Accepted: c.accepted,
		Rejected: c.rejected,
		Failed:   c.failed,
	})
}
