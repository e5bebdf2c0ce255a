package runtime

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"net/netip"
	"testing"
	"time"

	"github.com/wippyai/wasi-sockets/errors"
	"github.com/wippyai/wasi-sockets/wasi/preview2"
	"github.com/wippyai/wasi-sockets/wasi/preview2/netpool"
	"github.com/wippyai/wasi-sockets/wasi/preview2/sockets"
)

const (
	nsInstanceNetwork = "wasi:sockets/instance-network@0.2.0"
	nsNetwork         = "wasi:sockets/network@0.2.0"
	nsCreate          = "wasi:sockets/tcp-create-socket@0.2.0"
	nsTCP             = "wasi:sockets/tcp@0.2.0"
	nsPoll            = "wasi:io/poll@0.2.0"
	nsStreams         = "wasi:io/streams@0.2.0"
	nsError           = "wasi:io/error@0.2.0"
	nsClock           = "wasi:clocks/monotonic-clock@0.2.0"
)

// guest drives the bound host modules through a proxy module, the same
// import path a core wasm guest takes.
type guest struct {
	t       *testing.T
	ctx     context.Context
	rt      *Runtime
	wasi    *preview2.WASI
	proxy   *Proxy
	network uint32
}

func newGuest(t *testing.T, pool *netpool.Pool) *guest {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	rt, err := New(ctx)
	if err != nil {
		t.Fatalf("create runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close(context.Background()) })

	wasi := preview2.New().WithNetwork(pool)
	if err := rt.RegisterWASI(wasi); err != nil {
		t.Fatalf("register WASI hosts: %v", err)
	}
	proxy, err := rt.NewProxy(ctx, "guest")
	if err != nil {
		t.Fatalf("instantiate proxy: %v", err)
	}

	g := &guest{t: t, ctx: ctx, rt: rt, wasi: wasi, proxy: proxy}
	g.network = uint32(g.ok("instance-network", g.call(nsInstanceNetwork, "instance-network"))[0])
	return g
}

func (g *guest) call(ns, name string, params ...uint64) []uint64 {
	g.t.Helper()
	res, err := g.proxy.Call(g.ctx, ns, name, params...)
	if err != nil {
		g.t.Fatalf("%s#%s: %v", ns, name, err)
	}
	return res
}

// ok strips the error code from res and fails the test if it is set.
func (g *guest) ok(op string, res []uint64) []uint64 {
	g.t.Helper()
	if res[0] != 0 {
		g.t.Fatalf("%s: %s", op, sockets.NetworkErrorCode(res[0]-1))
	}
	return res[1:]
}

func (g *guest) wantCode(op string, res []uint64, want sockets.NetworkErrorCode) {
	g.t.Helper()
	if res[0] != uint64(want)+1 {
		got := "success"
		if res[0] != 0 {
			got = sockets.NetworkErrorCode(res[0] - 1).String()
		}
		g.t.Errorf("%s: got %s, want %s", op, got, want)
	}
}

func (g *guest) write(offset uint32, data []byte) {
	g.t.Helper()
	if !g.proxy.Memory().Write(offset, data) {
		g.t.Fatalf("write %d bytes at %d out of range", len(data), offset)
	}
}

func (g *guest) read(offset, n uint32) []byte {
	g.t.Helper()
	buf, ok := g.proxy.Memory().Read(offset, n)
	if !ok {
		g.t.Fatalf("read %d bytes at %d out of range", n, offset)
	}
	return append([]byte(nil), buf...)
}

func addrParams(handles []uint64, addr netip.AddrPort) []uint64 {
	flat := make([]uint64, 4)
	EncodeAddrPort(addr, flat)
	return append(handles, flat...)
}

func (g *guest) socket() uint64 {
	g.t.Helper()
	res := g.call(nsCreate, "create-tcp-socket", 0)
	if res[0] == uint64(sockets.NetworkErrorNotSupported)+1 {
		g.t.Skip("sockets not supported on this platform")
	}
	return g.ok("create-tcp-socket", res)[0]
}

func (g *guest) wait(sock uint64) {
	g.t.Helper()
	p := g.ok("subscribe", g.call(nsTCP, "[method]tcp-socket.subscribe", sock))[0]
	g.call(nsPoll, "[method]pollable.block", p)
	g.call(nsPoll, "[resource-drop]pollable", p)
}

func (g *guest) listen() (uint64, netip.AddrPort) {
	g.t.Helper()
	sock := g.socket()
	g.ok("start-bind", g.call(nsTCP, "[method]tcp-socket.start-bind",
		addrParams([]uint64{sock, uint64(g.network)}, netip.MustParseAddrPort("127.0.0.1:0"))...))
	g.ok("finish-bind", g.call(nsTCP, "[method]tcp-socket.finish-bind", sock))
	g.ok("start-listen", g.call(nsTCP, "[method]tcp-socket.start-listen", sock))
	g.ok("finish-listen", g.call(nsTCP, "[method]tcp-socket.finish-listen", sock))

	local := g.ok("local-address", g.call(nsTCP, "[method]tcp-socket.local-address", sock))
	return sock, DecodeAddrPort(local)
}

func (g *guest) connect(remote netip.AddrPort) (sock, in, out uint64) {
	g.t.Helper()
	sock = g.socket()
	g.ok("start-connect", g.call(nsTCP, "[method]tcp-socket.start-connect",
		addrParams([]uint64{sock, uint64(g.network)}, remote)...))
	for {
		res := g.call(nsTCP, "[method]tcp-socket.finish-connect", sock)
		if res[0] == uint64(sockets.NetworkErrorWouldBlock)+1 {
			g.wait(sock)
			continue
		}
		streams := g.ok("finish-connect", res)
		return sock, streams[0], streams[1]
	}
}

func (g *guest) accept(listener uint64) (sock, in, out uint64) {
	g.t.Helper()
	for {
		res := g.call(nsTCP, "[method]tcp-socket.accept", listener)
		if res[0] == uint64(sockets.NetworkErrorWouldBlock)+1 {
			g.wait(listener)
			continue
		}
		accepted := g.ok("accept", res)
		return accepted[0], accepted[1], accepted[2]
	}
}

func TestWASIRegistration(t *testing.T) {
	ctx := context.Background()

	rt, err := New(ctx)
	if err != nil {
		t.Fatalf("create runtime: %v", err)
	}
	defer rt.Close(ctx)

	if err := rt.RegisterWASI(nil); err == nil {
		t.Error("nil WASI context accepted")
	}
	if err := rt.RegisterWASI(preview2.New()); err != nil {
		t.Fatalf("register WASI hosts: %v", err)
	}

	counts := map[string]int{}
	total := 0
	for _, ns := range rt.Hosts().Namespaces() {
		counts[ns] = len(rt.Hosts().Functions(ns))
		total += counts[ns]
	}
	if len(counts) != 8 {
		t.Errorf("registered %d namespaces, want 8: %v", len(counts), counts)
	}
	if counts[nsTCP] != 31 || counts[nsCreate] != 1 || counts[nsPoll] != 4 || counts[nsError] != 2 || counts[nsClock] != 4 {
		t.Errorf("unexpected function counts: %v", counts)
	}
	t.Logf("registered %d functions across %d namespaces", total, len(counts))

	// every handler must lower to the flat ABI
	if err := rt.Bind(ctx); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := rt.RegisterWASI(preview2.New()); err == nil {
		t.Error("registering over bound namespaces should conflict")
	}
}

func TestGuestLifecycle(t *testing.T) {
	g := newGuest(t, netpool.New(
		[]netpool.Rule{netpool.AnyPort(netip.MustParsePrefix("127.0.0.0/8"))},
		[]netpool.Rule{netpool.AnyPort(netip.MustParsePrefix("127.0.0.0/8"))},
	))

	listener, local := g.listen()
	if local.Port() == 0 || !local.Addr().IsLoopback() {
		t.Fatalf("listener bound to %s", local)
	}
	if res := g.call(nsTCP, "[method]tcp-socket.is-listening", listener); res[0] != 1 {
		t.Error("is-listening = false")
	}
	if res := g.call(nsTCP, "[method]tcp-socket.address-family", listener); res[0] != uint64(sockets.AddressFamilyIPv4) {
		t.Errorf("address-family = %d", res[0])
	}

	client, clientIn, clientOut := g.connect(local)
	server, serverIn, serverOut := g.accept(listener)

	remote := DecodeAddrPort(g.ok("remote-address", g.call(nsTCP, "[method]tcp-socket.remote-address", client)))
	if remote != local {
		t.Errorf("client remote = %s, want %s", remote, local)
	}
	peer := DecodeAddrPort(g.ok("remote-address", g.call(nsTCP, "[method]tcp-socket.remote-address", server)))
	clientLocal := DecodeAddrPort(g.ok("local-address", g.call(nsTCP, "[method]tcp-socket.local-address", client)))
	if peer != clientLocal {
		t.Errorf("accepted peer = %s, want %s", peer, clientLocal)
	}

	// a second connect on a connected socket is a state error
	g.wantCode("start-connect again", g.call(nsTCP, "[method]tcp-socket.start-connect",
		addrParams([]uint64{client, uint64(g.network)}, local)...), sockets.NetworkErrorInvalidState)

	g.ok("set-keep-alive-enabled", g.call(nsTCP, "[method]tcp-socket.set-keep-alive-enabled", client, 1))
	if res := g.ok("keep-alive-enabled", g.call(nsTCP, "[method]tcp-socket.keep-alive-enabled", client)); res[0] != 1 {
		t.Error("keep-alive not enabled")
	}
	g.wantCode("shutdown 3", g.call(nsTCP, "[method]tcp-socket.shutdown", client, 3), sockets.NetworkErrorInvalidArgument)
	g.wantCode("shutdown 258", g.call(nsTCP, "[method]tcp-socket.shutdown", client, 258), sockets.NetworkErrorInvalidArgument)

	// streams keep the socket alive
	g.wantCode("drop with streams", g.call(nsTCP, "[resource-drop]tcp-socket", client), sockets.NetworkErrorInvalidState)

	for _, s := range []struct {
		drop   string
		handle uint64
	}{
		{"[resource-drop]input-stream", clientIn},
		{"[resource-drop]output-stream", clientOut},
		{"[resource-drop]input-stream", serverIn},
		{"[resource-drop]output-stream", serverOut},
	} {
		g.call(nsStreams, s.drop, s.handle)
	}
	for _, sock := range []uint64{client, server, listener} {
		g.ok("drop socket", g.call(nsTCP, "[resource-drop]tcp-socket", sock))
	}
	g.wantCode("drop twice", g.call(nsTCP, "[resource-drop]tcp-socket", client), sockets.NetworkErrorInvalidArgument)

	g.ok("drop network", g.call(nsNetwork, "[resource-drop]network", uint64(g.network)))
	if n := g.wasi.Resources().Len(); n != 0 {
		t.Errorf("%d resources left after drops", n)
	}
}

func TestGuestStreamRoundTrip(t *testing.T) {
	g := newGuest(t, netpool.AllowAll())
	listener, local := g.listen()
	_, _, clientOut := g.connect(local)
	_, serverIn, _ := g.accept(listener)

	g.write(0, []byte("hello over wasi"))
	res := g.call(nsStreams, "[method]output-stream.blocking-write-and-flush", clientOut, 0, 15)
	if res[0] != streamOK {
		t.Fatalf("blocking-write-and-flush tag = %d", res[0])
	}

	// blocking-read returns what is available, so collect until done
	var got []byte
	for len(got) < 15 {
		res := g.call(nsStreams, "[method]input-stream.blocking-read", serverIn, 64, 128, 64)
		if res[0] != streamOK {
			t.Fatalf("blocking-read tag = %d", res[0])
		}
		got = append(got, g.read(128, uint32(res[2]))...)
	}
	if string(got) != "hello over wasi" {
		t.Errorf("read %q", got)
	}

	// poll over the guest's list of pollables
	p := g.call(nsStreams, "[method]output-stream.subscribe", clientOut)[0]
	handle := make([]byte, 4)
	binary.LittleEndian.PutUint32(handle, uint32(p))
	g.write(192, handle)
	ready := g.call(nsPoll, "poll", 192, 1, 200, 1)
	if ready[0] != 1 || binary.LittleEndian.Uint32(g.read(200, 4)) != 0 {
		t.Errorf("poll = %d ready, first index %d", ready[0], binary.LittleEndian.Uint32(g.read(200, 4)))
	}
	g.call(nsPoll, "[resource-drop]pollable", p)
}

func TestGuestPolicy(t *testing.T) {
	g := newGuest(t, netpool.Empty())
	sock := g.socket()

	g.wantCode("start-bind denied", g.call(nsTCP, "[method]tcp-socket.start-bind",
		addrParams([]uint64{sock, uint64(g.network)}, netip.MustParseAddrPort("127.0.0.1:0"))...),
		sockets.NetworkErrorAccessDenied)

	g.wantCode("start-bind bad family", g.call(nsTCP, "[method]tcp-socket.start-bind",
		sock, uint64(g.network), 7, 0, 0, 0), sockets.NetworkErrorInvalidArgument)

	g.wantCode("start-bind unknown network", g.call(nsTCP, "[method]tcp-socket.start-bind",
		addrParams([]uint64{sock, 9999}, netip.MustParseAddrPort("127.0.0.1:0"))...),
		sockets.NetworkErrorInvalidArgument)

	g.wantCode("create bad family", g.call(nsCreate, "create-tcp-socket", 5), sockets.NetworkErrorInvalidArgument)
	g.wantCode("finish-bind not started", g.call(nsTCP, "[method]tcp-socket.finish-bind", sock), sockets.NetworkErrorNotInProgress)
}

func TestDropUnknownPollableTraps(t *testing.T) {
	g := newGuest(t, netpool.Empty())
	if _, err := g.proxy.Call(g.ctx, nsPoll, "[resource-drop]pollable", 4242); err == nil {
		t.Error("dropping an unknown pollable should trap")
	}
}

func TestProxyUnknownFunction(t *testing.T) {
	g := newGuest(t, netpool.Empty())
	_, err := g.proxy.Call(g.ctx, nsTCP, "[method]tcp-socket.bogus")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindNotFound}) {
		t.Errorf("unknown function: %v", err)
	}
}

func TestCloseReleasesSockets(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wasi := preview2.New().WithNetwork(netpool.AllowAll())
	if err := rt.RegisterWASI(wasi); err != nil {
		t.Fatal(err)
	}
	proxy, err := rt.NewProxy(ctx, "guest")
	if err != nil {
		t.Fatal(err)
	}

	res, err := proxy.Call(ctx, nsCreate, "create-tcp-socket", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res[0] != 0 {
		t.Skipf("create-tcp-socket: %s", sockets.NetworkErrorCode(res[0]-1))
	}
	if n := wasi.Resources().Len(); n != 1 {
		t.Fatalf("%d resources after create, want 1", n)
	}

	if err := rt.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := wasi.Resources().Len(); n != 0 {
		t.Errorf("%d resources left after close", n)
	}
}
