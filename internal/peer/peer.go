// Package peer speaks the noso line protocol. Every exchange is one request
// line answered by one response line on a fresh TCP connection; nodes answer
// NSLTIME, NODESTATUS and BESTHASH, pools answer POOLINFO, SOURCE and SHARE.
package peer

import (
	"context"
	"net"
	"time"
)

// ClientID identifies this miner to pools in SOURCE and SHARE requests
const ClientID = "noso-2m-v0.2.4"

// Default per-call timeouts
const (
	DefaultNodeTimeout = 10 * time.Second
	DefaultPoolTimeout = 60 * time.Second
)

// Peer is a node or pool endpoint. Nodes have an empty Name.
type Peer struct {
	Name string
	Host string
	Port string
}

// Addr returns host:port
func (p Peer) Addr() string {
	return net.JoinHostPort(p.Host, p.Port)
}

// String returns name(host:port) for pools and host:port for nodes
func (p Peer) String() string {
	if p.Name == "" {
		return p.Addr()
	}
	return p.Name + "(" + p.Addr() + ")"
}

// Transport executes one request/response exchange with a peer. The returned
// string is the raw response line. Implementations must give up after timeout.
type Transport interface {
	Execute(ctx context.Context, p Peer, timeout time.Duration, request string) (string, error)
}
