package sockets

import (
	"context"

	"github.com/wippyai/wasi-sockets/wasi/preview2"
	"github.com/wippyai/wasi-sockets/wasi/preview2/netpool"
)

// InstanceNetworkHost implements wasi:sockets/instance-network@0.2.0. Every
// network it hands out shares the same immutable pool.
type InstanceNetworkHost struct {
	resources *preview2.ResourceTable
	pool      *netpool.Pool
}

func NewInstanceNetworkHost(resources *preview2.ResourceTable, pool *netpool.Pool) *InstanceNetworkHost {
	if pool == nil {
		pool = netpool.Empty()
	}
	return &InstanceNetworkHost{resources: resources, pool: pool}
}

func (h *InstanceNetworkHost) Namespace() string {
	return "wasi:sockets/instance-network@0.2.0"
}

func (h *InstanceNetworkHost) InstanceNetwork(_ context.Context) (uint32, *NetworkError) {
	handle, err := h.resources.Add(preview2.NewNetworkResource(h.pool))
	if err != nil {
		return 0, mapError(err)
	}
	return handle, nil
}

func (h *InstanceNetworkHost) Register() map[string]any {
	return map[string]any{
		"instance-network": h.InstanceNetwork,
	}
}

// NetworkHost implements the resource side of wasi:sockets/network@0.2.0.
type NetworkHost struct {
	resources *preview2.ResourceTable
}

func NewNetworkHost(resources *preview2.ResourceTable) *NetworkHost {
	return &NetworkHost{resources: resources}
}

func (h *NetworkHost) Namespace() string {
	return "wasi:sockets/network@0.2.0"
}

// [resource-drop]network
//
// Sockets keep no reference to the network handle, so it can be dropped
// at any time.
func (h *NetworkHost) ResourceDropNetwork(_ context.Context, self uint32) *NetworkError {
	r, ok := h.resources.Get(self)
	if !ok {
		return newError(NetworkErrorInvalidArgument)
	}
	if _, ok := r.(*preview2.NetworkResource); !ok {
		return newError(NetworkErrorInvalidArgument)
	}
	if _, err := h.resources.Delete(self); err != nil {
		return mapError(err)
	}
	return nil
}

func (h *NetworkHost) Register() map[string]any {
	return map[string]any{
		"[resource-drop]network": h.ResourceDropNetwork,
	}
}
