package preview2

import (
	"net/netip"
	"time"

	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
)

// TCPState is the lifecycle phase of a TCP socket. It is the single source
// of truth for which operations are legal.
type TCPState uint8

const (
	TCPStateDefault TCPState = iota
	TCPStateBindStarted
	TCPStateBound
	TCPStateListenStarted
	TCPStateListening
	TCPStateConnecting
	TCPStateConnectReady
	TCPStateConnected
	TCPStateConnectFailed
)

var tcpStateNames = [...]string{
	TCPStateDefault:       "default",
	TCPStateBindStarted:   "bind-started",
	TCPStateBound:         "bound",
	TCPStateListenStarted: "listen-started",
	TCPStateListening:     "listening",
	TCPStateConnecting:    "connecting",
	TCPStateConnectReady:  "connect-ready",
	TCPStateConnected:     "connected",
	TCPStateConnectFailed: "connect-failed",
}

func (s TCPState) String() string {
	if int(s) < len(tcpStateNames) {
		return tcpStateNames[s]
	}
	return "unknown"
}

// TCPSocketResource owns one OS socket and tracks its phase.
type TCPSocketResource struct {
	sock    *sysnet.Socket
	backlog *int
	shadow  shadowOptions
	state   TCPState
	family  sysnet.Family
	v6only  bool
}

// NewTCPSocketResource creates a fresh non-blocking socket in TCPStateDefault.
func NewTCPSocketResource(family sysnet.Family) (*TCPSocketResource, error) {
	sock, err := sysnet.NewTCP(family)
	if err != nil {
		return nil, err
	}
	return &TCPSocketResource{sock: sock, family: family}, nil
}

// newConnectedTCPSocket wraps an accepted socket. It starts Connected and
// inherits the listener's family and v6only flag, which some platforms do
// not report for accepted sockets.
func newConnectedTCPSocket(sock *sysnet.Socket, family sysnet.Family, v6only bool) *TCPSocketResource {
	return &TCPSocketResource{
		sock:   sock,
		family: family,
		v6only: v6only,
		state:  TCPStateConnected,
	}
}

func (s *TCPSocketResource) Type() ResourceType { return ResourceTCPSocket }

// Drop closes the OS socket. A pending connect is abandoned.
func (s *TCPSocketResource) Drop() error {
	return s.sock.Close()
}

func (s *TCPSocketResource) Socket() *sysnet.Socket  { return s.sock }
func (s *TCPSocketResource) Family() sysnet.Family   { return s.family }
func (s *TCPSocketResource) State() TCPState         { return s.state }
func (s *TCPSocketResource) SetState(state TCPState) { s.state = state }
func (s *TCPSocketResource) IsListening() bool       { return s.state == TCPStateListening }

// V6Only returns the tracked IPV6_V6ONLY flag.
func (s *TCPSocketResource) V6Only() bool { return s.v6only }

// SetV6Only updates the OS flag and the tracked value.
func (s *TCPSocketResource) SetV6Only(v bool) error {
	if err := s.sock.SetV6Only(v); err != nil {
		return err
	}
	s.v6only = v
	return nil
}

// ListenBacklog returns the stashed or active backlog, if any was set.
func (s *TCPSocketResource) ListenBacklog() (int, bool) {
	if s.backlog == nil {
		return 0, false
	}
	return *s.backlog, true
}

// SetListenBacklog records the backlog for the next listen call.
func (s *TCPSocketResource) SetListenBacklog(n int) {
	s.backlog = &n
}

// Listen calls listen with the recorded backlog or sysnet.DefaultBacklog.
func (s *TCPSocketResource) Listen() error {
	backlog := sysnet.DefaultBacklog
	if n, ok := s.ListenBacklog(); ok {
		backlog = n
	}
	return s.sock.Listen(backlog)
}

// Accept takes one pending connection and wraps it as a Connected socket.
// Listener options the platform does not copy onto accepted sockets are
// replayed; failures there are returned separately and never fail the
// accept.
func (s *TCPSocketResource) Accept() (*TCPSocketResource, []error, error) {
	conn, _, err := s.sock.Accept()
	if err != nil {
		return nil, nil, err
	}
	replayErrs := s.shadow.replay(conn, s.family)
	return newConnectedTCPSocket(conn, s.family, s.v6only), replayErrs, nil
}

func (s *TCPSocketResource) LocalAddr() (netip.AddrPort, error) { return s.sock.LocalAddr() }
func (s *TCPSocketResource) RemoteAddr() (netip.AddrPort, error) {
	return s.sock.PeerAddr()
}

func (s *TCPSocketResource) KeepAliveEnabled() (bool, error)  { return s.sock.KeepAlive() }
func (s *TCPSocketResource) SetKeepAliveEnabled(v bool) error { return s.sock.SetKeepAlive(v) }

func (s *TCPSocketResource) KeepAliveIdleTime() (time.Duration, error) {
	return s.sock.KeepAliveIdle()
}

func (s *TCPSocketResource) SetKeepAliveIdleTime(d time.Duration) error {
	if err := s.sock.SetKeepAliveIdle(d); err != nil {
		return err
	}
	s.shadow.setKeepAliveIdle(d)
	return nil
}

func (s *TCPSocketResource) KeepAliveInterval() (time.Duration, error) {
	return s.sock.KeepAliveInterval()
}

func (s *TCPSocketResource) SetKeepAliveInterval(d time.Duration) error {
	return s.sock.SetKeepAliveInterval(d)
}

func (s *TCPSocketResource) KeepAliveCount() (int, error)  { return s.sock.KeepAliveCount() }
func (s *TCPSocketResource) SetKeepAliveCount(n int) error { return s.sock.SetKeepAliveCount(n) }

func (s *TCPSocketResource) HopLimit() (int, error) { return s.sock.HopLimit() }

func (s *TCPSocketResource) SetHopLimit(n int) error {
	if err := s.sock.SetHopLimit(n); err != nil {
		return err
	}
	s.shadow.setHopLimit(n)
	return nil
}

func (s *TCPSocketResource) ReceiveBufferSize() (int, error) { return s.sock.RecvBuffer() }

func (s *TCPSocketResource) SetReceiveBufferSize(n int) error {
	if err := s.sock.SetRecvBuffer(n); err != nil {
		return err
	}
	s.shadow.setReceiveBuffer(n)
	return nil
}

func (s *TCPSocketResource) SendBufferSize() (int, error) { return s.sock.SendBuffer() }

func (s *TCPSocketResource) SetSendBufferSize(n int) error {
	if err := s.sock.SetSendBuffer(n); err != nil {
		return err
	}
	s.shadow.setSendBuffer(n)
	return nil
}
