package coordinator

import (
	"cmp"
	"context"
	"slices"
	"sync/atomic"

	"github.com/remeh/sizedwaitgroup"

	"github.com/bardlex/noso2m/internal/peer"
)

// NodeAPI is the node side of the peer protocol, implemented by
// *peer.NodeClient
type NodeAPI interface {
	Timestamp(ctx context.Context, node peer.Peer) (int64, error)
	Status(ctx context.Context, node peer.Peer) (*peer.NodeStatus, error)
	SubmitSolution(ctx context.Context, node peer.Peer, address, base string, block uint32, timestamp int64) (*peer.SubmitResult, error)
}

// shuffledNodes returns the configured nodes in a fresh random order
func (c *Coordinator) shuffledNodes() []peer.Peer {
	nodes := slices.Clone(c.nodes)
	c.shuffle(len(nodes), func(i, j int) {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	})
	return nodes
}

// nodeStatuses asks shuffled nodes for their status until quorum of them
// answer. At most quorum requests are in flight. Answers keep the shuffled
// order and the first quorum of them are returned.
func (c *Coordinator) nodeStatuses(ctx context.Context) []*peer.NodeStatus {
	quorum := c.cfg.Quorum
	if len(c.nodes) < quorum {
		return nil
	}

	order := c.shuffledNodes()
	results := make([]*peer.NodeStatus, len(order))
	var answered atomic.Int32

	swg := sizedwaitgroup.New(quorum)
	for i, node := range order {
		if int(answered.Load()) >= quorum || !c.running(ctx) {
			break
		}
		if err := swg.AddWithContext(ctx); err != nil {
			break
		}
		go func(i int, node peer.Peer) {
			defer swg.Done()
			st, err := c.nodeAPI.Status(ctx, node)
			if err != nil {
				c.connectivity(ctx, node, "poor connectivity with node", err)
				return
			}
			results[i] = st
			answered.Add(1)
		}(i, node)
	}
	swg.Wait()

	statuses := make([]*peer.NodeStatus, 0, quorum)
	for _, st := range results {
		if st != nil && len(statuses) < quorum {
			statuses = append(statuses, st)
		}
	}
	return statuses
}

// nodeTarget builds the consensus target, or nil without a quorum
func (c *Coordinator) nodeTarget(ctx context.Context) *Target {
	statuses := c.nodeStatuses(ctx)
	if len(statuses) < c.cfg.Quorum {
		return nil
	}
	return consensus(statuses)
}

// consensus takes the most frequent value of every field independently
func consensus(statuses []*peer.NodeStatus) *Target {
	blocks := make([]uint32, len(statuses))
	hashes := make([]string, len(statuses))
	diffs := make([]string, len(statuses))
	times := make([]int64, len(statuses))
	addrs := make([]string, len(statuses))
	for i, st := range statuses {
		blocks[i] = st.Block
		hashes[i] = st.LastHash
		diffs[i] = st.MinDiff
		times[i] = st.LastTime
		addrs[i] = st.LastAddress
	}

	return newNodeTarget(&peer.NodeStatus{
		Block:       majority(blocks),
		LastHash:    majority(hashes),
		MinDiff:     majority(diffs),
		LastTime:    majority(times),
		LastAddress: majority(addrs),
	})
}

// majority returns the most frequent value. Ties go to the smallest value.
func majority[T cmp.Ordered](values []T) T {
	counts := make(map[T]int, len(values))
	for _, v := range values {
		counts[v]++
	}

	keys := make([]T, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var best T
	bestCount := 0
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}
