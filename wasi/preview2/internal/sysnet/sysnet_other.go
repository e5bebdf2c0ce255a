//go:build !linux && !darwin

package sysnet

import (
	"net/netip"
	"time"
)

const (
	Supported             = false
	SupportsBacklogUpdate = false
)

// Socket is a placeholder on platforms without an adapter.
type Socket struct {
	family Family
}

func NewTCP(Family) (*Socket, error) { return nil, ErrUnsupported }

func (s *Socket) Family() Family                     { return s.family }
func (s *Socket) Fd() int                            { return -1 }
func (s *Socket) Bind(netip.AddrPort) error          { return ErrUnsupported }
func (s *Socket) Connect(netip.AddrPort) error       { return ErrUnsupported }
func (s *Socket) Listen(int) error                   { return ErrUnsupported }
func (s *Socket) Shutdown(ShutdownHow) error         { return ErrUnsupported }
func (s *Socket) LocalAddr() (netip.AddrPort, error) { return netip.AddrPort{}, ErrUnsupported }
func (s *Socket) PeerAddr() (netip.AddrPort, error)  { return netip.AddrPort{}, ErrUnsupported }
func (s *Socket) TakeError() error                   { return ErrUnsupported }
func (s *Socket) Read([]byte) (int, error)           { return 0, ErrUnsupported }
func (s *Socket) Write([]byte) (int, error)          { return 0, ErrUnsupported }
func (s *Socket) Close() error                       { return nil }

func (s *Socket) Accept() (*Socket, netip.AddrPort, error) {
	return nil, netip.AddrPort{}, ErrUnsupported
}

func (s *Socket) Poll(Events, time.Duration) (Events, error) { return 0, ErrUnsupported }

func (s *Socket) KeepAlive() (bool, error)                  { return false, ErrUnsupported }
func (s *Socket) SetKeepAlive(bool) error                   { return ErrUnsupported }
func (s *Socket) KeepAliveIdle() (time.Duration, error)     { return 0, ErrUnsupported }
func (s *Socket) SetKeepAliveIdle(time.Duration) error      { return ErrUnsupported }
func (s *Socket) KeepAliveInterval() (time.Duration, error) { return 0, ErrUnsupported }
func (s *Socket) SetKeepAliveInterval(time.Duration) error  { return ErrUnsupported }
func (s *Socket) KeepAliveCount() (int, error)              { return 0, ErrUnsupported }
func (s *Socket) SetKeepAliveCount(int) error               { return ErrUnsupported }
func (s *Socket) HopLimit() (int, error)                    { return 0, ErrUnsupported }
func (s *Socket) SetHopLimit(int) error                     { return ErrUnsupported }
func (s *Socket) RecvBuffer() (int, error)                  { return 0, ErrUnsupported }
func (s *Socket) SetRecvBuffer(int) error                   { return ErrUnsupported }
func (s *Socket) SendBuffer() (int, error)                  { return 0, ErrUnsupported }
func (s *Socket) SetSendBuffer(int) error                   { return ErrUnsupported }
func (s *Socket) V6Only() (bool, error)                     { return false, ErrUnsupported }
func (s *Socket) SetV6Only(bool) error                      { return ErrUnsupported }
