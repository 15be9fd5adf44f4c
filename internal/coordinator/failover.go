package coordinator

import (
	"context"

	"github.com/bardlex/noso2m/internal/peer"
	"github.com/bardlex/noso2m/internal/report"
)

// PoolAPI is the pool side of the peer protocol, implemented by
// *peer.PoolClient
type PoolAPI interface {
	Source(ctx context.Context, pool peer.Peer, address string) (*peer.PoolStatus, error)
	Share(ctx context.Context, pool peer.Peer, address, base string, block uint32) (int, error)
}

// maxPoolTries is how many target requests a pool gets before failover
const maxPoolTries = 5

func (c *Coordinator) currentPool() peer.Peer {
	return c.pools[c.state.PoolIndex()%len(c.pools)]
}

// requestPoolTarget asks the current pool for a target once
func (c *Coordinator) requestPoolTarget(ctx context.Context) *Target {
	pool := c.currentPool()
	st, err := c.poolAPI.Source(ctx, pool, c.cfg.Address)
	if err != nil {
		c.connectivity(ctx, pool, "poor connectivity with pool", err)
		return nil
	}
	return newPoolTarget(pool.Name, st)
}

// poolTarget polls the current pool until it answers. Every fifth failure
// moves to another pool when there is one. The first move of a fetch goes to
// the first configured pool, or the second if the first is the one failing;
// later moves go round robin.
func (c *Coordinator) poolTarget(ctx context.Context) *Target {
	firstFail := true
	tries := 1
	target := c.requestPoolTarget(ctx)

	for target == nil && c.running(ctx) {
		old := c.state.PoolIndex()
		oldPool := c.currentPool()
		c.logger.Debug("waiting for target from pool",
			"pool", oldPool.String(), "tries", tries, "max_tries", maxPoolTries)

		if tries >= maxPoolTries {
			tries = 0
			if len(c.pools) > 1 {
				next := (old + 1) % len(c.pools)
				if firstFail {
					next = 0
					if next == old {
						next = 1
					}
					firstFail = false
				}
				c.state.SetPoolIndex(next)
				c.emit(ctx, &report.Notice{
					Time:    c.clock.Now(),
					Kind:    report.NoticeFailover,
					Message: "pool failover from " + oldPool.String() + " to " + c.pools[next].String(),
					Peer:    c.pools[next].String(),
				})
			} else {
				c.logger.Debug("re-entering pool as no pool is configured for failover", "pool", oldPool.String())
			}
		}

		if !c.sleep(ctx, c.poolRetry.Delay(tries-1)) {
			return nil
		}
		target = c.requestPoolTarget(ctx)
		tries++
	}
	return target
}
