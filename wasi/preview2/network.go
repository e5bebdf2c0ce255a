package preview2

import (
	"github.com/wippyai/wasi-sockets/wasi/preview2/netpool"
)

// NetworkResource is the capability handed to a guest by
// instance-network. Every socket operation that touches an address
// checks it against the pool.
type NetworkResource struct {
	pool *netpool.Pool
}

// NewNetworkResource wraps a pool. A nil pool grants nothing.
func NewNetworkResource(pool *netpool.Pool) *NetworkResource {
	if pool == nil {
		pool = netpool.Empty()
	}
	return &NetworkResource{pool: pool}
}

func (n *NetworkResource) Type() ResourceType { return ResourceNetwork }
func (n *NetworkResource) Drop() error        { return nil }

// Pool returns the shared capability pool.
func (n *NetworkResource) Pool() *netpool.Pool { return n.pool }
