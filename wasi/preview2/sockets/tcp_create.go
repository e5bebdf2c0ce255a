package sockets

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-sockets/wasi/preview2"
	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
)

// Wire values of wasi:sockets/network ip-address-family.
const (
	AddressFamilyIPv4 uint8 = 0
	AddressFamilyIPv6 uint8 = 1
)

func familyToWire(f sysnet.Family) uint8 {
	if f == sysnet.IPv6 {
		return AddressFamilyIPv6
	}
	return AddressFamilyIPv4
}

// TCPCreateSocketHost implements wasi:sockets/tcp-create-socket@0.2.0
type TCPCreateSocketHost struct {
	resources *preview2.ResourceTable
}

func NewTCPCreateSocketHost(resources *preview2.ResourceTable) *TCPCreateSocketHost {
	return &TCPCreateSocketHost{resources: resources}
}

func (h *TCPCreateSocketHost) Namespace() string {
	return "wasi:sockets/tcp-create-socket@0.2.0"
}

// CreateTCPSocket opens a non-blocking socket in the default phase. No
// capability is needed: the socket can do nothing until it is handed a
// network.
func (h *TCPCreateSocketHost) CreateTCPSocket(_ context.Context, addressFamily uint8) (uint32, *NetworkError) {
	var family sysnet.Family
	switch addressFamily {
	case AddressFamilyIPv4:
		family = sysnet.IPv4
	case AddressFamilyIPv6:
		family = sysnet.IPv6
	default:
		return 0, newError(NetworkErrorInvalidArgument)
	}

	socket, err := preview2.NewTCPSocketResource(family)
	if err != nil {
		return 0, mapError(err)
	}

	handle, err := h.resources.Add(socket)
	if err != nil {
		if cerr := socket.Drop(); cerr != nil {
			Logger().Warn("close tcp socket", zap.Error(cerr))
		}
		return 0, mapError(err)
	}

	Logger().Debug("tcp socket created", zap.Uint32("socket", handle), zap.Stringer("family", family))
	return handle, nil
}

func (h *TCPCreateSocketHost) Register() map[string]any {
	return map[string]any{
		"create-tcp-socket": h.CreateTCPSocket,
	}
}
