package netpool

import (
	"net/netip"

	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
)

var ipv4Broadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// ValidateUnicast rejects multicast, broadcast and malformed addresses.
func ValidateUnicast(addr netip.AddrPort) error {
	ip := addr.Addr().Unmap()
	switch {
	case !ip.IsValid():
		return ErrInvalidAddress
	case ip.IsMulticast():
		return ErrInvalidAddress
	case ip == ipv4Broadcast:
		return ErrInvalidAddress
	}
	return nil
}

// ValidateFamily checks addr against the socket family. IPv6 sockets take
// IPv4 peers only in mapped form, and never when v6only is set.
func ValidateFamily(addr netip.AddrPort, family sysnet.Family, v6only bool) error {
	ip := addr.Addr()
	switch family {
	case sysnet.IPv4:
		if !ip.Is4() {
			return ErrInvalidAddress
		}
	case sysnet.IPv6:
		if !ip.Is6() {
			return ErrInvalidAddress
		}
		if v6only && ip.Is4In6() {
			return ErrInvalidAddress
		}
	default:
		return ErrInvalidAddress
	}
	return nil
}

// ValidateRemote rejects connect targets that can never be reached:
// the unspecified address and port 0.
func ValidateRemote(addr netip.AddrPort) error {
	if addr.Addr().Unmap().IsUnspecified() || addr.Port() == 0 {
		return ErrInvalidAddress
	}
	return nil
}
