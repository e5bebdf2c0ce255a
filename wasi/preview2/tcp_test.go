package preview2

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
)

func newTCP(t *testing.T, family sysnet.Family) *TCPSocketResource {
	t.Helper()
	if !sysnet.Supported {
		t.Skip("no socket adapter on this platform")
	}
	s, err := NewTCPSocketResource(family)
	if err != nil {
		t.Fatalf("NewTCPSocketResource: %v", err)
	}
	t.Cleanup(func() { s.Drop() })
	return s
}

// connectedPair returns a listener, the client and the accepted server side.
func connectedPair(t *testing.T) (*TCPSocketResource, *TCPSocketResource, *TCPSocketResource) {
	t.Helper()

	ln := newTCP(t, sysnet.IPv4)
	if err := ln.Socket().Bind(netip.MustParseAddrPort("127.0.0.1:0")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := ln.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.SetState(TCPStateListening)
	addr, _ := ln.LocalAddr()

	client := newTCP(t, sysnet.IPv4)
	if err := client.Socket().Connect(addr); err != nil && !errors.Is(err, sysnet.ErrInProgress) {
		t.Fatalf("Connect: %v", err)
	}
	client.SetState(TCPStateConnecting)

	NewSocketPollable(ln).Block(timeout(t))
	server, replayErrs, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	t.Cleanup(func() { server.Drop() })
	if len(replayErrs) != 0 {
		t.Errorf("option replay errors: %v", replayErrs)
	}

	NewSocketPollable(client).Block(timeout(t))
	if err := client.Socket().TakeError(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	client.SetState(TCPStateConnected)
	return ln, client, server
}

func timeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTCPSocket_Defaults(t *testing.T) {
	s := newTCP(t, sysnet.IPv4)

	if s.State() != TCPStateDefault {
		t.Errorf("State = %v, want default", s.State())
	}
	if s.Family() != sysnet.IPv4 {
		t.Errorf("Family = %v", s.Family())
	}
	if _, ok := s.ListenBacklog(); ok {
		t.Error("fresh socket should have no backlog")
	}
	s.SetListenBacklog(16)
	if n, ok := s.ListenBacklog(); !ok || n != 16 {
		t.Errorf("ListenBacklog = %d, %v", n, ok)
	}
}

func TestTCPSocket_AcceptIsConnected(t *testing.T) {
	_, _, server := connectedPair(t)

	if server.State() != TCPStateConnected {
		t.Errorf("accepted socket state = %v, want connected", server.State())
	}
	if _, err := server.RemoteAddr(); err != nil {
		t.Errorf("RemoteAddr: %v", err)
	}
}

func TestTCPSocket_AcceptInheritsV6Only(t *testing.T) {
	ln := newTCP(t, sysnet.IPv6)
	if err := ln.SetV6Only(true); err != nil {
		t.Fatalf("SetV6Only: %v", err)
	}
	if err := ln.Socket().Bind(netip.MustParseAddrPort("[::1]:0")); err != nil {
		t.Skipf("IPv6 loopback unavailable: %v", err)
	}
	if err := ln.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.SetState(TCPStateListening)
	addr, _ := ln.LocalAddr()

	client := newTCP(t, sysnet.IPv6)
	client.Socket().Connect(addr)

	NewSocketPollable(ln).Block(timeout(t))
	server, _, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer server.Drop()

	if !server.V6Only() {
		t.Error("accepted socket lost the listener's v6only flag")
	}
	if server.Family() != sysnet.IPv6 {
		t.Errorf("Family = %v", server.Family())
	}
}

// acceptOne listens on addr with ln configured by setup, connects once and
// returns the listener and the accepted socket.
func acceptOne(t *testing.T, family sysnet.Family, addr netip.AddrPort, setup func(ln *TCPSocketResource)) (*TCPSocketResource, *TCPSocketResource) {
	t.Helper()
	ln := newTCP(t, family)
	setup(ln)
	if err := ln.Socket().Bind(addr); err != nil {
		t.Skipf("bind %s: %v", addr, err)
	}
	if err := ln.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.SetState(TCPStateListening)
	local, _ := ln.LocalAddr()

	client := newTCP(t, family)
	if err := client.Socket().Connect(local); err != nil && !errors.Is(err, sysnet.ErrInProgress) {
		t.Fatalf("Connect: %v", err)
	}

	NewSocketPollable(ln).Block(timeout(t))
	server, replayErrs, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	t.Cleanup(func() { server.Drop() })
	if len(replayErrs) != 0 {
		t.Errorf("option replay errors: %v", replayErrs)
	}
	return ln, server
}

func TestTCPSocket_AcceptKeepsListenerOptions(t *testing.T) {
	ln, server := acceptOne(t, sysnet.IPv4, netip.MustParseAddrPort("127.0.0.1:0"), func(ln *TCPSocketResource) {
		if err := ln.SetReceiveBufferSize(32 * 1024); err != nil {
			t.Fatalf("SetReceiveBufferSize: %v", err)
		}
		if err := ln.SetKeepAliveIdleTime(42 * time.Second); err != nil {
			t.Fatalf("SetKeepAliveIdleTime: %v", err)
		}
	})

	want, _ := ln.ReceiveBufferSize()
	if got, err := server.ReceiveBufferSize(); err != nil || got != want {
		t.Errorf("accepted receive buffer = %d, %v; listener has %d", got, err, want)
	}
	if got, err := server.KeepAliveIdleTime(); err != nil || got != 42*time.Second {
		t.Errorf("accepted keep-alive idle = %v, %v; want 42s", got, err)
	}
}

func TestTCPSocket_AcceptWouldBlock(t *testing.T) {
	ln := newTCP(t, sysnet.IPv4)
	ln.Socket().Bind(netip.MustParseAddrPort("127.0.0.1:0"))
	if err := ln.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if _, _, err := ln.Accept(); !errors.Is(err, sysnet.ErrWouldBlock) {
		t.Errorf("Accept = %v, want ErrWouldBlock", err)
	}
}

func TestTCPStreams_RoundTrip(t *testing.T) {
	_, client, server := connectedPair(t)

	in := NewTCPInputStreamResource(server)
	out := NewTCPOutputStreamResource(client)

	data, err := in.Read(64)
	if err != nil {
		t.Fatalf("Read with nothing buffered: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("Read = %q, want empty", data)
	}

	budget, err := out.CheckWrite()
	if err != nil || budget == 0 {
		t.Fatalf("CheckWrite = %d, %v", budget, err)
	}
	if err := out.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := out.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if out.Pending() != 0 {
		t.Errorf("Pending = %d", out.Pending())
	}

	NewStreamPollable(server, sysnet.EventRead).Block(timeout(t))
	data, err = in.Read(64)
	if err != nil || string(data) != "hello" {
		t.Fatalf("Read = %q, %v", data, err)
	}

	if err := client.Socket().Shutdown(sysnet.ShutdownWrite); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	NewStreamPollable(server, sysnet.EventRead).Block(timeout(t))
	_, err = in.Read(64)
	var serr *StreamError
	if !errors.As(err, &serr) || !serr.Closed {
		t.Errorf("Read after peer shutdown = %v, want closed", err)
	}
	if _, err := in.Read(1); !errors.As(err, &serr) {
		t.Error("closed stream should stay closed")
	}
}

func TestTCPStreams_DroppedStreamIsClosed(t *testing.T) {
	_, client, _ := connectedPair(t)

	out := NewTCPOutputStreamResource(client)
	out.Drop()

	var serr *StreamError
	if err := out.Write([]byte("x")); !errors.As(err, &serr) || !serr.Closed {
		t.Errorf("Write after Drop = %v", err)
	}
	if _, err := out.CheckWrite(); err == nil {
		t.Error("CheckWrite after Drop should fail")
	}
}

func TestTCPStreams_WriteRespectsPermit(t *testing.T) {
	_, client, _ := connectedPair(t)
	out := NewTCPOutputStreamResource(client)

	var serr *StreamError
	err := out.Write(make([]byte, DefaultBufferSize+1))
	if !errors.As(err, &serr) || !serr.LastOpFailed || !errors.Is(err, ErrWriteBudget) {
		t.Fatalf("oversized Write = %v, want last-operation-failed", err)
	}
	if out.Pending() != 0 {
		t.Fatalf("rejected Write queued %d bytes", out.Pending())
	}

	// The peer never reads, so the kernel buffers fill up eventually.
	chunk := make([]byte, DefaultBufferSize)
	full := false
	for i := 0; i < 4096; i++ {
		permit, err := out.CheckWrite()
		if err != nil {
			t.Fatalf("CheckWrite: %v", err)
		}
		if permit == 0 {
			full = true
			break
		}
		if err := out.Write(chunk[:permit]); err != nil {
			t.Fatalf("Write within permit: %v", err)
		}
		if out.Pending() > DefaultBufferSize {
			t.Fatalf("Pending = %d, above %d", out.Pending(), DefaultBufferSize)
		}
	}
	if !full {
		t.Skip("kernel buffers never filled")
	}

	held := out.Pending()
	if err := out.Write([]byte("x")); !errors.Is(err, ErrWriteBudget) {
		t.Errorf("Write with zero permit = %v, want ErrWriteBudget", err)
	}
	if out.Pending() != held {
		t.Errorf("Pending grew from %d to %d", held, out.Pending())
	}
}

func TestTCPStreams_DropLeavesSocketOpen(t *testing.T) {
	_, client, server := connectedPair(t)

	in := NewTCPInputStreamResource(client)
	out := NewTCPOutputStreamResource(client)
	in.Drop()
	out.Drop()
	if out.Pending() != 0 {
		t.Errorf("Pending = %d after Drop", out.Pending())
	}

	// both directions of the OS socket still work
	if _, err := server.Socket().Write([]byte("ping")); err != nil {
		t.Fatalf("server Write: %v", err)
	}
	NewStreamPollable(client, sysnet.EventRead).Block(timeout(t))
	buf := make([]byte, 8)
	n, err := client.Socket().Read(buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Errorf("client Read after stream drop = %q, %v", buf[:n], err)
	}
	if _, err := client.Socket().Write([]byte("pong")); err != nil {
		t.Errorf("client Write after stream drop: %v", err)
	}
}

func TestSocketPollable_StateDriven(t *testing.T) {
	s := newTCP(t, sysnet.IPv4)

	p := NewSocketPollable(s)
	for _, st := range []TCPState{TCPStateDefault, TCPStateBound, TCPStateConnectFailed, TCPStateListenStarted} {
		s.SetState(st)
		if !p.Ready() {
			t.Errorf("pollable in %v should be ready immediately", st)
		}
	}

	s.Socket().Bind(netip.MustParseAddrPort("127.0.0.1:0"))
	s.Listen()
	s.SetState(TCPStateListening)
	if p.Ready() {
		t.Error("listener with empty queue should not be ready")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	p.Block(ctx)
	if time.Since(start) > time.Second {
		t.Error("Block ignored ctx cancellation")
	}
}

func TestTCPSocket_OptionsRoundTrip(t *testing.T) {
	s := newTCP(t, sysnet.IPv4)

	if err := s.SetKeepAliveEnabled(true); err != nil {
		t.Fatalf("SetKeepAliveEnabled: %v", err)
	}
	if on, _ := s.KeepAliveEnabled(); !on {
		t.Error("keepalive not enabled")
	}
	if err := s.SetKeepAliveIdleTime(30 * time.Second); err != nil {
		t.Fatalf("SetKeepAliveIdleTime: %v", err)
	}
	if d, _ := s.KeepAliveIdleTime(); d != 30*time.Second {
		t.Errorf("KeepAliveIdleTime = %v", d)
	}
	if err := s.SetKeepAliveInterval(10 * time.Second); err != nil {
		t.Fatalf("SetKeepAliveInterval: %v", err)
	}
	if d, _ := s.KeepAliveInterval(); d != 10*time.Second {
		t.Errorf("KeepAliveInterval = %v", d)
	}
	if err := s.SetHopLimit(17); err != nil {
		t.Fatalf("SetHopLimit: %v", err)
	}
	if n, _ := s.HopLimit(); n != 17 {
		t.Errorf("HopLimit = %d", n)
	}
	if err := s.SetSendBufferSize(32 * 1024); err != nil {
		t.Fatalf("SetSendBufferSize: %v", err)
	}
	if n, _ := s.SendBufferSize(); n <= 0 {
		t.Errorf("SendBufferSize = %d", n)
	}
}
