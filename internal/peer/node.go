package peer

import (
	"context"
	"time"

	"github.com/bardlex/noso2m/pkg/log"
)

// NodeClient talks to full nodes
type NodeClient struct {
	transport Transport
	timeout   time.Duration
	logger    *log.Logger
}

// NewNodeClient creates a node client. A zero timeout uses DefaultNodeTimeout.
func NewNodeClient(transport Transport, timeout time.Duration, logger *log.Logger) *NodeClient {
	if timeout <= 0 {
		timeout = DefaultNodeTimeout
	}
	return &NodeClient{
		transport: transport,
		timeout:   timeout,
		logger:    logger.WithComponent("node_client"),
	}
}

// Timestamp asks a node for its network time
func (c *NodeClient) Timestamp(ctx context.Context, node Peer) (int64, error) {
	resp, err := c.exec(ctx, node, TimestampRequest())
	if err != nil {
		return 0, err
	}
	return ParseTimestamp(resp)
}

// Status asks a node for its view of the chain tip
func (c *NodeClient) Status(ctx context.Context, node Peer) (*NodeStatus, error) {
	resp, err := c.exec(ctx, node, NodeStatusRequest())
	if err != nil {
		return nil, err
	}
	return ParseNodeStatus(resp)
}

// SubmitSolution sends a solo solution. A rejection is a result with a
// non-zero code, not an error.
func (c *NodeClient) SubmitSolution(ctx context.Context, node Peer, address, base string, block uint32, timestamp int64) (*SubmitResult, error) {
	resp, err := c.exec(ctx, node, BestHashRequest(address, base, block, timestamp))
	if err != nil {
		return nil, err
	}
	return ParseBestHashResult(resp)
}

func (c *NodeClient) exec(ctx context.Context, node Peer, request string) (string, error) {
	resp, err := c.transport.Execute(ctx, node, c.timeout, request)
	if err != nil {
		c.logger.Debug("poor connectivity with node", "peer", node.String(), "error", err)
		return "", err
	}
	return resp, nil
}
