//go:build linux || darwin

package sysnet

import (
	"io"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Supported reports whether this platform has a socket adapter.
const Supported = true

// SupportsBacklogUpdate reports whether listen may be called again on a
// listening socket to change its backlog.
const SupportsBacklogUpdate = true

// Socket owns one non-blocking TCP socket descriptor.
type Socket struct {
	mu     sync.RWMutex
	fd     int
	family Family
}

func newSocket(fd int, family Family) *Socket {
	return &Socket{fd: fd, family: family}
}

// NewTCP creates a non-blocking TCP socket. IPv6 sockets start dual-stack.
func NewTCP(family Family) (*Socket, error) {
	domain := unix.AF_INET
	if family == IPv6 {
		domain = unix.AF_INET6
	}

	fd, err := socket(domain)
	if err != nil {
		return nil, err
	}

	if family == IPv6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	return newSocket(fd, family), nil
}

// Family returns the address family the socket was created with.
func (s *Socket) Family() Family {
	return s.family
}

// Fd returns the descriptor, or -1 once closed.
func (s *Socket) Fd() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fd
}

func (s *Socket) do(fn func(fd int) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fd < 0 {
		return ErrClosed
	}
	return fn(s.fd)
}

// Bind assigns a local address.
func (s *Socket) Bind(addr netip.AddrPort) error {
	return s.do(func(fd int) error {
		sa, err := toSockaddr(addr, s.family)
		if err != nil {
			return err
		}
		return ignoreEINTR(func() error {
			return unix.Bind(fd, sa)
		})
	})
}

// Connect starts a connection. It returns nil when the kernel completed the
// connect synchronously and ErrInProgress when completion must be polled.
func (s *Socket) Connect(addr netip.AddrPort) error {
	return s.do(func(fd int) error {
		sa, err := toSockaddr(addr, s.family)
		if err != nil {
			return err
		}
		err = unix.Connect(fd, sa)
		switch err {
		case nil:
			return nil
		case unix.EINPROGRESS, unix.EINTR:
			// An interrupted connect keeps going in the background.
			return ErrInProgress
		default:
			return err
		}
	})
}

// Listen marks the socket passive. It may be called again on a listening
// socket to change the backlog.
func (s *Socket) Listen(backlog int) error {
	if backlog < 1 {
		backlog = 1
	}
	return s.do(func(fd int) error {
		return unix.Listen(fd, backlog)
	})
}

// Accept takes one queued connection without blocking.
func (s *Socket) Accept() (*Socket, netip.AddrPort, error) {
	var (
		conn int
		sa   unix.Sockaddr
	)
	err := s.do(func(fd int) error {
		var err error
		conn, sa, err = accept(fd)
		return err
	})
	if err != nil {
		if isWouldBlock(err) {
			return nil, netip.AddrPort{}, ErrWouldBlock
		}
		return nil, netip.AddrPort{}, err
	}
	return newSocket(conn, s.family), fromSockaddr(sa), nil
}

// Shutdown closes one or both halves of a connection.
func (s *Socket) Shutdown(how ShutdownHow) error {
	var h int
	switch how {
	case ShutdownRead:
		h = unix.SHUT_RD
	case ShutdownWrite:
		h = unix.SHUT_WR
	default:
		h = unix.SHUT_RDWR
	}
	return s.do(func(fd int) error {
		return unix.Shutdown(fd, h)
	})
}

// LocalAddr returns the bound address.
func (s *Socket) LocalAddr() (netip.AddrPort, error) {
	var addr netip.AddrPort
	err := s.do(func(fd int) error {
		sa, err := unix.Getsockname(fd)
		if err != nil {
			return err
		}
		addr = fromSockaddr(sa)
		return nil
	})
	return addr, err
}

// PeerAddr returns the connected peer address.
func (s *Socket) PeerAddr() (netip.AddrPort, error) {
	var addr netip.AddrPort
	err := s.do(func(fd int) error {
		sa, err := unix.Getpeername(fd)
		if err != nil {
			return err
		}
		addr = fromSockaddr(sa)
		return nil
	})
	return addr, err
}

// TakeError reads and clears the pending socket error (SO_ERROR).
func (s *Socket) TakeError() error {
	return s.do(func(fd int) error {
		v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return err
		}
		if v != 0 {
			return unix.Errno(v)
		}
		return nil
	})
}

// Poll waits up to timeout for any of events. A zero timeout never blocks.
func (s *Socket) Poll(events Events, timeout time.Duration) (Events, error) {
	var revents Events
	err := s.do(func(fd int) error {
		pfd := []unix.PollFd{{Fd: int32(fd), Events: toPollEvents(events)}}
		ms := int(timeout / time.Millisecond)
		if timeout > 0 && ms == 0 {
			ms = 1
		}
		n, err := unix.Poll(pfd, ms)
		if err == unix.EINTR {
			return nil
		}
		if err != nil {
			return err
		}
		if n > 0 {
			revents = fromPollEvents(pfd[0].Revents)
		}
		return nil
	})
	return revents, err
}

// Read reads without blocking. It returns io.EOF when the peer closed its
// write half and ErrWouldBlock when nothing is buffered.
func (s *Socket) Read(p []byte) (int, error) {
	var n int
	err := s.do(func(fd int) error {
		var err error
		for {
			n, err = unix.Read(fd, p)
			if err != unix.EINTR {
				break
			}
		}
		return err
	})
	switch {
	case err != nil && isWouldBlock(err):
		return 0, ErrWouldBlock
	case err != nil:
		return 0, err
	case n == 0 && len(p) > 0:
		return 0, io.EOF
	}
	return n, nil
}

// Write writes without blocking and may write fewer bytes than len(p).
func (s *Socket) Write(p []byte) (int, error) {
	var n int
	err := s.do(func(fd int) error {
		var err error
		for {
			n, err = unix.Write(fd, p)
			if err != unix.EINTR {
				break
			}
		}
		return err
	})
	if err != nil {
		if isWouldBlock(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// Close releases the descriptor. Closing twice is a no-op.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// KeepAlive reports SO_KEEPALIVE.
func (s *Socket) KeepAlive() (bool, error) {
	v, err := s.getInt(unix.SOL_SOCKET, unix.SO_KEEPALIVE)
	return v != 0, err
}

// SetKeepAlive sets SO_KEEPALIVE.
func (s *Socket) SetKeepAlive(enabled bool) error {
	return s.setInt(unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolInt(enabled))
}

// KeepAliveIdle returns the idle time before the first keepalive probe.
func (s *Socket) KeepAliveIdle() (time.Duration, error) {
	v, err := s.getInt(unix.IPPROTO_TCP, tcpKeepIdle)
	return time.Duration(v) * time.Second, err
}

// SetKeepAliveIdle sets the keepalive idle time, rounded up to whole seconds.
func (s *Socket) SetKeepAliveIdle(d time.Duration) error {
	return s.setInt(unix.IPPROTO_TCP, tcpKeepIdle, seconds(d))
}

// KeepAliveInterval returns the interval between keepalive probes.
func (s *Socket) KeepAliveInterval() (time.Duration, error) {
	v, err := s.getInt(unix.IPPROTO_TCP, unix.TCP_KEEPINTVL)
	return time.Duration(v) * time.Second, err
}

// SetKeepAliveInterval sets the probe interval, rounded up to whole seconds.
func (s *Socket) SetKeepAliveInterval(d time.Duration) error {
	return s.setInt(unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, seconds(d))
}

// KeepAliveCount returns the number of unanswered probes before reset.
func (s *Socket) KeepAliveCount() (int, error) {
	return s.getInt(unix.IPPROTO_TCP, unix.TCP_KEEPCNT)
}

// SetKeepAliveCount sets the number of unanswered probes before reset.
func (s *Socket) SetKeepAliveCount(n int) error {
	return s.setInt(unix.IPPROTO_TCP, unix.TCP_KEEPCNT, n)
}

// HopLimit returns IP_TTL for IPv4 sockets and IPV6_UNICAST_HOPS for IPv6.
func (s *Socket) HopLimit() (int, error) {
	if s.family == IPv6 {
		return s.getInt(unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS)
	}
	return s.getInt(unix.IPPROTO_IP, unix.IP_TTL)
}

// SetHopLimit sets IP_TTL or IPV6_UNICAST_HOPS depending on the family.
func (s *Socket) SetHopLimit(hops int) error {
	if s.family == IPv6 {
		return s.setInt(unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, hops)
	}
	return s.setInt(unix.IPPROTO_IP, unix.IP_TTL, hops)
}

// RecvBuffer returns SO_RCVBUF.
func (s *Socket) RecvBuffer() (int, error) {
	return s.getInt(unix.SOL_SOCKET, unix.SO_RCVBUF)
}

// SetRecvBuffer sets SO_RCVBUF.
func (s *Socket) SetRecvBuffer(n int) error {
	return s.setInt(unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}

// SendBuffer returns SO_SNDBUF.
func (s *Socket) SendBuffer() (int, error) {
	return s.getInt(unix.SOL_SOCKET, unix.SO_SNDBUF)
}

// SetSendBuffer sets SO_SNDBUF.
func (s *Socket) SetSendBuffer(n int) error {
	return s.setInt(unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

// V6Only reports IPV6_V6ONLY.
func (s *Socket) V6Only() (bool, error) {
	v, err := s.getInt(unix.IPPROTO_IPV6, unix.IPV6_V6ONLY)
	return v != 0, err
}

// SetV6Only sets IPV6_V6ONLY.
func (s *Socket) SetV6Only(v6only bool) error {
	return s.setInt(unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, boolInt(v6only))
}

func (s *Socket) getInt(level, opt int) (int, error) {
	var v int
	err := s.do(func(fd int) error {
		var err error
		v, err = unix.GetsockoptInt(fd, level, opt)
		return err
	})
	return v, err
}

func (s *Socket) setInt(level, opt, value int) error {
	return s.do(func(fd int) error {
		return unix.SetsockoptInt(fd, level, opt, value)
	})
}

func toSockaddr(addr netip.AddrPort, family Family) (unix.Sockaddr, error) {
	ip := addr.Addr()
	port := int(addr.Port())
	if !ip.IsValid() {
		return nil, unix.EINVAL
	}
	if family == IPv6 {
		sa := &unix.SockaddrInet6{Port: port, Addr: ip.As16()}
		if z := ip.Zone(); z != "" {
			if id, err := zoneIndex(z); err == nil {
				sa.ZoneId = id
			}
		}
		return sa, nil
	}
	ip = ip.Unmap()
	if !ip.Is4() {
		return nil, unix.EAFNOSUPPORT
	}
	return &unix.SockaddrInet4{Port: port, Addr: ip.As4()}, nil
}

func zoneIndex(zone string) (uint32, error) {
	if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(n), nil
	}
	iface, err := net.InterfaceByName(zone)
	if err != nil {
		return 0, err
	}
	return uint32(iface.Index), nil
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port))
	}
	return netip.AddrPort{}
}

func toPollEvents(e Events) int16 {
	var ev int16
	if e&EventRead != 0 {
		ev |= unix.POLLIN
	}
	if e&EventWrite != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func fromPollEvents(ev int16) Events {
	var e Events
	if ev&unix.POLLIN != 0 {
		e |= EventRead
	}
	if ev&unix.POLLOUT != 0 {
		e |= EventWrite
	}
	if ev&unix.POLLHUP != 0 {
		e |= EventHangup
	}
	if ev&(unix.POLLERR|unix.POLLNVAL) != 0 {
		e |= EventError
	}
	return e
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

func ignoreEINTR(fn func() error) error {
	for {
		if err := fn(); err != unix.EINTR {
			return err
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func seconds(d time.Duration) int {
	s := int64((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	if s > 1<<31-1 {
		s = 1<<31 - 1
	}
	return int(s)
}
