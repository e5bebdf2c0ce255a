package sysnet

import (
	"errors"
	"io"
	"net/netip"
	"testing"
	"time"
)

func requireSupported(t *testing.T) {
	t.Helper()
	if !Supported {
		t.Skip("no socket adapter on this platform")
	}
}

func listenLoopback(t *testing.T) (*Socket, netip.AddrPort) {
	t.Helper()
	ln, err := NewTCP(IPv4)
	if err != nil {
		t.Fatalf("NewTCP: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	if err := ln.Bind(netip.MustParseAddrPort("127.0.0.1:0")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := ln.Listen(DefaultBacklog); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr, err := ln.LocalAddr()
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}
	if addr.Port() == 0 {
		t.Fatal("expected OS-assigned port")
	}
	return ln, addr
}

func waitFor(t *testing.T, s *Socket, ev Events) Events {
	t.Helper()
	got, err := s.Poll(ev, 2*time.Second)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if got == 0 {
		t.Fatalf("timed out waiting for %v", ev)
	}
	return got
}

func TestAcceptWouldBlock(t *testing.T) {
	requireSupported(t)
	ln, _ := listenLoopback(t)

	if _, _, err := ln.Accept(); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Accept on empty queue = %v, want ErrWouldBlock", err)
	}
}

func TestConnectAcceptRoundTrip(t *testing.T) {
	requireSupported(t)
	ln, addr := listenLoopback(t)

	client, err := NewTCP(IPv4)
	if err != nil {
		t.Fatalf("NewTCP: %v", err)
	}
	defer client.Close()

	err = client.Connect(addr)
	if err != nil && !errors.Is(err, ErrInProgress) {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, client, EventWrite)
	if err := client.TakeError(); err != nil {
		t.Fatalf("TakeError: %v", err)
	}

	waitFor(t, ln, EventRead)
	server, peer, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer server.Close()

	local, _ := client.LocalAddr()
	if peer != local {
		t.Errorf("accepted peer %v, client local %v", peer, local)
	}
	if remote, err := client.PeerAddr(); err != nil || remote != addr {
		t.Errorf("PeerAddr = %v, %v; want %v", remote, err, addr)
	}

	buf := make([]byte, 16)
	if _, err := server.Read(buf); !errors.Is(err, ErrWouldBlock) {
		t.Errorf("Read with no data = %v, want ErrWouldBlock", err)
	}

	if n, err := client.Write([]byte("ping")); err != nil || n != 4 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	waitFor(t, server, EventRead)
	n, err := server.Read(buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Fatalf("Read = %q, %v", buf[:n], err)
	}

	if err := client.Shutdown(ShutdownWrite); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	waitFor(t, server, EventRead)
	if _, err := server.Read(buf); err != io.EOF {
		t.Errorf("Read after peer shutdown = %v, want io.EOF", err)
	}
}

func TestConnectRefused(t *testing.T) {
	requireSupported(t)

	// Reserve a port, then close it so nothing listens there.
	probe, addr := listenLoopback(t)
	probe.Close()

	client, err := NewTCP(IPv4)
	if err != nil {
		t.Fatalf("NewTCP: %v", err)
	}
	defer client.Close()

	err = client.Connect(addr)
	if errors.Is(err, ErrInProgress) {
		waitFor(t, client, EventWrite)
		err = client.TakeError()
	}
	if err == nil {
		t.Fatal("expected connect to a closed port to fail")
	}
}

func TestIPv6DualStackDefault(t *testing.T) {
	requireSupported(t)

	s, err := NewTCP(IPv6)
	if err != nil {
		t.Skipf("IPv6 unavailable: %v", err)
	}
	defer s.Close()

	v6only, err := s.V6Only()
	if err != nil {
		t.Fatalf("V6Only: %v", err)
	}
	if v6only {
		t.Error("new IPv6 sockets should start dual-stack")
	}
	if err := s.SetV6Only(true); err != nil {
		t.Fatalf("SetV6Only: %v", err)
	}
	if v6only, _ := s.V6Only(); !v6only {
		t.Error("V6Only did not stick")
	}
}

func TestOptions(t *testing.T) {
	requireSupported(t)

	s, err := NewTCP(IPv4)
	if err != nil {
		t.Fatalf("NewTCP: %v", err)
	}
	defer s.Close()

	if err := s.SetKeepAlive(true); err != nil {
		t.Fatalf("SetKeepAlive: %v", err)
	}
	if on, _ := s.KeepAlive(); !on {
		t.Error("KeepAlive not enabled")
	}

	if err := s.SetKeepAliveIdle(1500 * time.Millisecond); err != nil {
		t.Fatalf("SetKeepAliveIdle: %v", err)
	}
	if d, _ := s.KeepAliveIdle(); d != 2*time.Second {
		t.Errorf("KeepAliveIdle = %v, want 2s (rounded up)", d)
	}

	if err := s.SetKeepAliveCount(5); err != nil {
		t.Fatalf("SetKeepAliveCount: %v", err)
	}
	if n, _ := s.KeepAliveCount(); n != 5 {
		t.Errorf("KeepAliveCount = %d", n)
	}

	if err := s.SetHopLimit(42); err != nil {
		t.Fatalf("SetHopLimit: %v", err)
	}
	if n, _ := s.HopLimit(); n != 42 {
		t.Errorf("HopLimit = %d", n)
	}

	if err := s.SetRecvBuffer(64 * 1024); err != nil {
		t.Fatalf("SetRecvBuffer: %v", err)
	}
	if n, _ := s.RecvBuffer(); n <= 0 {
		t.Errorf("RecvBuffer = %d", n)
	}
}

func TestClosedSocket(t *testing.T) {
	requireSupported(t)

	s, err := NewTCP(IPv4)
	if err != nil {
		t.Fatalf("NewTCP: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if s.Fd() != -1 {
		t.Errorf("Fd after Close = %d", s.Fd())
	}
	if err := s.Listen(1); !errors.Is(err, ErrClosed) {
		t.Errorf("Listen after Close = %v, want ErrClosed", err)
	}
}

func TestIPv6AddressOnIPv4Socket(t *testing.T) {
	requireSupported(t)

	s, err := NewTCP(IPv4)
	if err != nil {
		t.Fatalf("NewTCP: %v", err)
	}
	defer s.Close()

	if err := s.Bind(netip.MustParseAddrPort("[::1]:0")); err == nil {
		t.Error("binding an IPv6 address on an IPv4 socket should fail")
	}
}
