package coordinator

import (
	"github.com/bardlex/noso2m/internal/mining"
	"github.com/bardlex/noso2m/internal/peer"
	"github.com/bardlex/noso2m/internal/report"
)

// SourceConsensus names the target source in solo mode
const SourceConsensus = "consensus"

// Target is the network state a block is mined against. Exactly one of Node
// and Pool is set.
type Target struct {
	Block    uint32
	LastHash string
	// MinDiff is lowered during the block as solo submissions learn better
	// network difficulties
	MinDiff string

	Node *NodeTarget
	Pool *PoolTarget
}

// NodeTarget carries the consensus fields only solo mode uses
type NodeTarget struct {
	LastTime    int64
	LastAddress string
}

// PoolTarget carries the pool assignment and accounting
type PoolTarget struct {
	Name           string
	Prefix         string
	Address        string
	TillBalance    uint64
	TillPayment    uint32
	PaymentBlock   uint32
	PaymentAmount  uint64
	PaymentOrderID string
	PoolHashrate   uint64
	NetHashrate    uint64
}

func newNodeTarget(st *peer.NodeStatus) *Target {
	return &Target{
		Block:    st.Block,
		LastHash: st.LastHash,
		MinDiff:  st.MinDiff,
		Node: &NodeTarget{
			LastTime:    st.LastTime,
			LastAddress: st.LastAddress,
		},
	}
}

func newPoolTarget(name string, st *peer.PoolStatus) *Target {
	return &Target{
		Block:    st.Block,
		LastHash: st.LastHash,
		MinDiff:  st.MinDiff,
		Pool: &PoolTarget{
			Name:           name,
			Prefix:         st.Prefix,
			Address:        st.Address,
			TillBalance:    st.TillBalance,
			TillPayment:    st.TillPayment,
			PaymentBlock:   st.PaymentBlock,
			PaymentAmount:  st.PaymentAmount,
			PaymentOrderID: st.PaymentOrderID,
			PoolHashrate:   st.PoolHashrate,
			NetHashrate:    st.NetHashrate,
		},
	}
}

// Work is what workers need from the target. Solo miners hash with their own
// address; pool miners hash with the address and prefix the pool assigned.
func (t *Target) Work(minerAddress string) mining.WorkTarget {
	w := mining.WorkTarget{
		BlockNumber: t.Block,
		Address:     minerAddress,
		PrevHash:    t.LastHash,
		MinDiff:     t.MinDiff,
	}
	if t.Pool != nil {
		w.PoolPrefix = t.Pool.Prefix
		w.Address = t.Pool.Address
	}
	return w
}

// Source names where the target came from
func (t *Target) Source() string {
	if t.Pool != nil {
		return t.Pool.Name
	}
	return SourceConsensus
}

// MiningBlock is the block number solutions for this target carry
func (t *Target) MiningBlock() uint32 {
	return t.Block + 1
}

func (t *Target) poolSnapshot() *report.PoolSnapshot {
	if t.Pool == nil {
		return nil
	}
	return &report.PoolSnapshot{
		Name:         t.Pool.Name,
		Prefix:       t.Pool.Prefix,
		TillBalance:  t.Pool.TillBalance,
		TillPayment:  t.Pool.TillPayment,
		PoolHashrate: t.Pool.PoolHashrate,
		NetHashrate:  t.Pool.NetHashrate,
	}
}
