package peer

import (
	"context"
	"time"

	"github.com/bardlex/noso2m/pkg/log"
)

// PoolClient talks to mining pools
type PoolClient struct {
	transport Transport
	timeout   time.Duration
	logger    *log.Logger
}

// NewPoolClient creates a pool client. A zero timeout uses DefaultPoolTimeout.
func NewPoolClient(transport Transport, timeout time.Duration, logger *log.Logger) *PoolClient {
	if timeout <= 0 {
		timeout = DefaultPoolTimeout
	}
	return &PoolClient{
		transport: transport,
		timeout:   timeout,
		logger:    logger.WithComponent("pool_client"),
	}
}

// Info fetches miners, hashrate and fee
func (c *PoolClient) Info(ctx context.Context, pool Peer) (*PoolInfo, error) {
	resp, err := c.exec(ctx, pool, PoolInfoRequest())
	if err != nil {
		return nil, err
	}
	return ParsePoolInfo(resp)
}

// Source fetches the pool's current target for address
func (c *PoolClient) Source(ctx context.Context, pool Peer, address string) (*PoolStatus, error) {
	resp, err := c.exec(ctx, pool, SourceRequest(address))
	if err != nil {
		return nil, err
	}
	return ParsePoolStatus(resp)
}

// Share submits one share and returns the pool's code
func (c *PoolClient) Share(ctx context.Context, pool Peer, address, base string, block uint32) (int, error) {
	resp, err := c.exec(ctx, pool, ShareRequest(address, base, block))
	if err != nil {
		return 0, err
	}
	return ParseShareResult(resp)
}

func (c *PoolClient) exec(ctx context.Context, pool Peer, request string) (string, error) {
	resp, err := c.transport.Execute(ctx, pool, c.timeout, request)
	if err != nil {
		c.logger.Debug("poor connectivity with pool", "peer", pool.String(), "error", err)
		return "", err
	}
	return resp, nil
}
