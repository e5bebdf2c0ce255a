package sockets

import (
	"context"
	"errors"
	"math"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-sockets/resource"
	"github.com/wippyai/wasi-sockets/wasi/preview2"
	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
	"github.com/wippyai/wasi-sockets/wasi/preview2/netpool"
)

// TCPHost implements wasi:sockets/tcp@0.2.0
type TCPHost struct {
	resources *preview2.ResourceTable
	mu        sync.Mutex
}

// NewTCPHost creates a new TCP host
func NewTCPHost(resources *preview2.ResourceTable) *TCPHost {
	return &TCPHost{resources: resources}
}

// Namespace returns the WASI namespace
func (h *TCPHost) Namespace() string {
	return "wasi:sockets/tcp@0.2.0"
}

// getSocket retrieves and validates a TCP socket resource
func (h *TCPHost) getSocket(handle uint32) (*preview2.TCPSocketResource, *NetworkError) {
	r, ok := h.resources.Get(handle)
	if !ok {
		return nil, newError(NetworkErrorInvalidArgument)
	}
	socket, ok := r.(*preview2.TCPSocketResource)
	if !ok {
		return nil, newError(NetworkErrorInvalidArgument)
	}
	return socket, nil
}

func (h *TCPHost) getPool(handle uint32) (*netpool.Pool, *NetworkError) {
	r, ok := h.resources.Get(handle)
	if !ok {
		return nil, newError(NetworkErrorInvalidArgument)
	}
	network, ok := r.(*preview2.NetworkResource)
	if !ok {
		return nil, newError(NetworkErrorInvalidArgument)
	}
	return network.Pool(), nil
}

func transition(handle uint32, socket *preview2.TCPSocketResource, to preview2.TCPState) {
	Logger().Debug("tcp socket transition",
		zap.Uint32("socket", handle),
		zap.Stringer("from", socket.State()),
		zap.Stringer("to", to))
	socket.SetState(to)
}

// splitStreams registers the read and write halves of socket as children of
// its handle.
func (h *TCPHost) splitStreams(handle uint32, socket *preview2.TCPSocketResource) (uint32, uint32, *NetworkError) {
	in, err := h.resources.AddChild(preview2.NewTCPInputStreamResource(socket), handle)
	if err != nil {
		return 0, 0, mapError(err)
	}
	out, err := h.resources.AddChild(preview2.NewTCPOutputStreamResource(socket), handle)
	if err != nil {
		_, _ = h.resources.Delete(in)
		return 0, 0, mapError(err)
	}
	return in, out, nil
}

// [method]tcp-socket.start-bind
func (h *TCPHost) MethodTCPSocketStartBind(_ context.Context, self uint32, network uint32, localAddress netip.AddrPort) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	pool, nerr := h.getPool(network)
	if nerr != nil {
		return nerr
	}

	switch socket.State() {
	case preview2.TCPStateDefault:
	case preview2.TCPStateBindStarted:
		return newError(NetworkErrorConcurrencyConflict)
	default:
		return newError(NetworkErrorInvalidState)
	}

	if err := netpool.ValidateUnicast(localAddress); err != nil {
		return mapError(err)
	}
	if err := netpool.ValidateFamily(localAddress, socket.Family(), socket.V6Only()); err != nil {
		return mapError(err)
	}

	binder, err := pool.TCPBinder(localAddress)
	if err != nil {
		return mapError(err)
	}
	if err := binder.Bind(socket.Socket()); err != nil {
		return mapBindConnectError(err)
	}

	transition(self, socket, preview2.TCPStateBindStarted)
	return nil
}

// [method]tcp-socket.finish-bind
func (h *TCPHost) MethodTCPSocketFinishBind(_ context.Context, self uint32) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	if socket.State() != preview2.TCPStateBindStarted {
		return newError(NetworkErrorNotInProgress)
	}

	transition(self, socket, preview2.TCPStateBound)
	return nil
}

// [method]tcp-socket.start-connect
func (h *TCPHost) MethodTCPSocketStartConnect(_ context.Context, self uint32, network uint32, remoteAddress netip.AddrPort) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	pool, nerr := h.getPool(network)
	if nerr != nil {
		return nerr
	}

	switch socket.State() {
	case preview2.TCPStateDefault:
	case preview2.TCPStateBound, preview2.TCPStateConnected,
		preview2.TCPStateConnectFailed, preview2.TCPStateListening:
		return newError(NetworkErrorInvalidState)
	default:
		return newError(NetworkErrorConcurrencyConflict)
	}

	if err := netpool.ValidateUnicast(remoteAddress); err != nil {
		return mapError(err)
	}
	if err := netpool.ValidateRemote(remoteAddress); err != nil {
		return mapError(err)
	}
	if err := netpool.ValidateFamily(remoteAddress, socket.Family(), socket.V6Only()); err != nil {
		return mapError(err)
	}

	connecter, err := pool.TCPConnecter(remoteAddress)
	if err != nil {
		return mapError(err)
	}

	err = connecter.Connect(socket.Socket())
	switch {
	case err == nil:
		transition(self, socket, preview2.TCPStateConnectReady)
	case errors.Is(err, sysnet.ErrInProgress):
		transition(self, socket, preview2.TCPStateConnecting)
	default:
		return mapBindConnectError(err)
	}
	return nil
}

// [method]tcp-socket.finish-connect
func (h *TCPHost) MethodTCPSocketFinishConnect(_ context.Context, self uint32) (uint32, uint32, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return 0, 0, nerr
	}

	switch socket.State() {
	case preview2.TCPStateConnectReady:
	case preview2.TCPStateConnecting:
		ev, err := socket.Socket().Poll(sysnet.EventWrite, 0)
		if err != nil {
			return 0, 0, mapError(err)
		}
		if ev == 0 {
			return 0, 0, newError(NetworkErrorWouldBlock)
		}
		if err := socket.Socket().TakeError(); err != nil {
			transition(self, socket, preview2.TCPStateConnectFailed)
			return 0, 0, mapError(err)
		}
	default:
		return 0, 0, newError(NetworkErrorNotInProgress)
	}

	in, out, nerr := h.splitStreams(self, socket)
	if nerr != nil {
		// The connection is established; a later finish-connect can retry.
		if socket.State() == preview2.TCPStateConnecting {
			transition(self, socket, preview2.TCPStateConnectReady)
		}
		return 0, 0, nerr
	}
	transition(self, socket, preview2.TCPStateConnected)
	return in, out, nil
}

// [method]tcp-socket.start-listen
func (h *TCPHost) MethodTCPSocketStartListen(_ context.Context, self uint32) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}

	switch socket.State() {
	case preview2.TCPStateBound:
	case preview2.TCPStateDefault, preview2.TCPStateConnected,
		preview2.TCPStateConnectFailed, preview2.TCPStateListening:
		return newError(NetworkErrorInvalidState)
	default:
		return newError(NetworkErrorConcurrencyConflict)
	}

	if err := socket.Listen(); err != nil {
		return mapListenError(err)
	}

	transition(self, socket, preview2.TCPStateListenStarted)
	return nil
}

// [method]tcp-socket.finish-listen
func (h *TCPHost) MethodTCPSocketFinishListen(_ context.Context, self uint32) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	if socket.State() != preview2.TCPStateListenStarted {
		return newError(NetworkErrorNotInProgress)
	}

	transition(self, socket, preview2.TCPStateListening)
	return nil
}

// [method]tcp-socket.accept
func (h *TCPHost) MethodTCPSocketAccept(_ context.Context, self uint32) (uint32, uint32, uint32, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return 0, 0, 0, nerr
	}
	if socket.State() != preview2.TCPStateListening {
		return 0, 0, 0, newError(NetworkErrorInvalidState)
	}

	conn, replayErrs, err := socket.Accept()
	if err != nil {
		return 0, 0, 0, mapError(err)
	}
	for _, rerr := range replayErrs {
		Logger().Debug("accept option copy failed", zap.Uint32("listener", self), zap.Error(rerr))
	}

	handle, err := h.resources.Add(conn)
	if err != nil {
		if cerr := conn.Drop(); cerr != nil {
			Logger().Warn("close accepted socket", zap.Error(cerr))
		}
		return 0, 0, 0, mapError(err)
	}

	in, out, nerr := h.splitStreams(handle, conn)
	if nerr != nil {
		_, _ = h.resources.Delete(handle)
		return 0, 0, 0, nerr
	}

	Logger().Debug("tcp socket accepted", zap.Uint32("listener", self), zap.Uint32("socket", handle))
	return handle, in, out, nil
}

// [method]tcp-socket.local-address
func (h *TCPHost) MethodTCPSocketLocalAddress(_ context.Context, self uint32) (netip.AddrPort, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return netip.AddrPort{}, nerr
	}

	switch socket.State() {
	case preview2.TCPStateDefault:
		return netip.AddrPort{}, newError(NetworkErrorInvalidState)
	case preview2.TCPStateBindStarted:
		return netip.AddrPort{}, newError(NetworkErrorConcurrencyConflict)
	}

	addr, err := socket.LocalAddr()
	if err != nil {
		return netip.AddrPort{}, mapError(err)
	}
	return addr, nil
}

// [method]tcp-socket.remote-address
func (h *TCPHost) MethodTCPSocketRemoteAddress(_ context.Context, self uint32) (netip.AddrPort, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return netip.AddrPort{}, nerr
	}

	switch socket.State() {
	case preview2.TCPStateConnected:
	case preview2.TCPStateConnecting, preview2.TCPStateConnectReady:
		return netip.AddrPort{}, newError(NetworkErrorConcurrencyConflict)
	default:
		return netip.AddrPort{}, newError(NetworkErrorInvalidState)
	}

	addr, err := socket.RemoteAddr()
	if err != nil {
		return netip.AddrPort{}, mapError(err)
	}
	return addr, nil
}

// [method]tcp-socket.is-listening
func (h *TCPHost) MethodTCPSocketIsListening(_ context.Context, self uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return false
	}
	return socket.IsListening()
}

// [method]tcp-socket.address-family
func (h *TCPHost) MethodTCPSocketAddressFamily(_ context.Context, self uint32) uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return AddressFamilyIPv4
	}
	return familyToWire(socket.Family())
}

// [method]tcp-socket.ipv6-only
func (h *TCPHost) MethodTCPSocketIPv6Only(_ context.Context, self uint32) (bool, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return false, nerr
	}
	if socket.Family() != sysnet.IPv6 {
		return false, newError(NetworkErrorNotSupported)
	}
	// Tracked rather than read back: accepted sockets on some platforms
	// report the wrong value.
	return socket.V6Only(), nil
}

// [method]tcp-socket.set-ipv6-only
func (h *TCPHost) MethodTCPSocketSetIPv6Only(_ context.Context, self uint32, value bool) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	if socket.Family() != sysnet.IPv6 {
		return newError(NetworkErrorNotSupported)
	}

	switch socket.State() {
	case preview2.TCPStateDefault:
	case preview2.TCPStateBindStarted:
		return newError(NetworkErrorConcurrencyConflict)
	default:
		return newError(NetworkErrorInvalidState)
	}

	if err := socket.SetV6Only(value); err != nil {
		return mapError(err)
	}
	return nil
}

// [method]tcp-socket.set-listen-backlog-size
func (h *TCPHost) MethodTCPSocketSetListenBacklogSize(_ context.Context, self uint32, value uint64) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	if value == 0 {
		return newError(NetworkErrorInvalidArgument)
	}

	// Operating systems clamp silently too.
	backlog := sysnet.MaxBacklog
	if value < uint64(sysnet.MaxBacklog) {
		backlog = int(value)
	}

	switch socket.State() {
	case preview2.TCPStateDefault, preview2.TCPStateBindStarted, preview2.TCPStateBound:
		socket.SetListenBacklog(backlog)
		return nil
	case preview2.TCPStateListening:
		if !sysnet.SupportsBacklogUpdate {
			return newError(NetworkErrorNotSupported)
		}
		if err := socket.Socket().Listen(backlog); err != nil {
			return wrapError(NetworkErrorNotSupported, err)
		}
		socket.SetListenBacklog(backlog)
		return nil
	case preview2.TCPStateConnected, preview2.TCPStateConnectFailed:
		return newError(NetworkErrorInvalidState)
	default:
		return newError(NetworkErrorConcurrencyConflict)
	}
}

// [method]tcp-socket.keep-alive-enabled
func (h *TCPHost) MethodTCPSocketKeepAliveEnabled(_ context.Context, self uint32) (bool, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return false, nerr
	}
	v, err := socket.KeepAliveEnabled()
	if err != nil {
		return false, mapError(err)
	}
	return v, nil
}

// [method]tcp-socket.set-keep-alive-enabled
func (h *TCPHost) MethodTCPSocketSetKeepAliveEnabled(_ context.Context, self uint32, value bool) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	return mapError(socket.SetKeepAliveEnabled(value))
}

// [method]tcp-socket.keep-alive-idle-time
func (h *TCPHost) MethodTCPSocketKeepAliveIdleTime(_ context.Context, self uint32) (uint64, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return 0, nerr
	}
	d, err := socket.KeepAliveIdleTime()
	if err != nil {
		return 0, mapError(err)
	}
	return uint64(d), nil
}

// [method]tcp-socket.set-keep-alive-idle-time
func (h *TCPHost) MethodTCPSocketSetKeepAliveIdleTime(_ context.Context, self uint32, value uint64) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	if value == 0 {
		return newError(NetworkErrorInvalidArgument)
	}
	return mapError(socket.SetKeepAliveIdleTime(nanos(value)))
}

// [method]tcp-socket.keep-alive-interval
func (h *TCPHost) MethodTCPSocketKeepAliveInterval(_ context.Context, self uint32) (uint64, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return 0, nerr
	}
	d, err := socket.KeepAliveInterval()
	if err != nil {
		return 0, mapError(err)
	}
	return uint64(d), nil
}

// [method]tcp-socket.set-keep-alive-interval
func (h *TCPHost) MethodTCPSocketSetKeepAliveInterval(_ context.Context, self uint32, value uint64) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	if value == 0 {
		return newError(NetworkErrorInvalidArgument)
	}
	return mapError(socket.SetKeepAliveInterval(nanos(value)))
}

// [method]tcp-socket.keep-alive-count
func (h *TCPHost) MethodTCPSocketKeepAliveCount(_ context.Context, self uint32) (uint32, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return 0, nerr
	}
	n, err := socket.KeepAliveCount()
	if err != nil {
		return 0, mapError(err)
	}
	return uint32(n), nil
}

// [method]tcp-socket.set-keep-alive-count
func (h *TCPHost) MethodTCPSocketSetKeepAliveCount(_ context.Context, self uint32, value uint32) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	if value == 0 {
		return newError(NetworkErrorInvalidArgument)
	}
	return mapError(socket.SetKeepAliveCount(clampInt(uint64(value))))
}

// [method]tcp-socket.hop-limit
func (h *TCPHost) MethodTCPSocketHopLimit(_ context.Context, self uint32) (uint8, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return 0, nerr
	}
	n, err := socket.HopLimit()
	if err != nil {
		return 0, mapError(err)
	}
	return uint8(n), nil
}

// [method]tcp-socket.set-hop-limit
func (h *TCPHost) MethodTCPSocketSetHopLimit(_ context.Context, self uint32, value uint8) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	if value == 0 {
		return newError(NetworkErrorInvalidArgument)
	}
	return mapError(socket.SetHopLimit(int(value)))
}

// [method]tcp-socket.receive-buffer-size
func (h *TCPHost) MethodTCPSocketReceiveBufferSize(_ context.Context, self uint32) (uint64, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return 0, nerr
	}
	n, err := socket.ReceiveBufferSize()
	if err != nil {
		return 0, mapError(err)
	}
	return uint64(n), nil
}

// [method]tcp-socket.set-receive-buffer-size
func (h *TCPHost) MethodTCPSocketSetReceiveBufferSize(_ context.Context, self uint32, value uint64) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	if value == 0 {
		return newError(NetworkErrorInvalidArgument)
	}
	return mapError(socket.SetReceiveBufferSize(clampInt(value)))
}

// [method]tcp-socket.send-buffer-size
func (h *TCPHost) MethodTCPSocketSendBufferSize(_ context.Context, self uint32) (uint64, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return 0, nerr
	}
	n, err := socket.SendBufferSize()
	if err != nil {
		return 0, mapError(err)
	}
	return uint64(n), nil
}

// [method]tcp-socket.set-send-buffer-size
func (h *TCPHost) MethodTCPSocketSetSendBufferSize(_ context.Context, self uint32, value uint64) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	if value == 0 {
		return newError(NetworkErrorInvalidArgument)
	}
	return mapError(socket.SetSendBufferSize(clampInt(value)))
}

// [method]tcp-socket.subscribe
func (h *TCPHost) MethodTCPSocketSubscribe(_ context.Context, self uint32) (uint32, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return 0, nerr
	}
	handle, err := h.resources.AddChild(preview2.NewSocketPollable(socket), self)
	if err != nil {
		return 0, mapError(err)
	}
	return handle, nil
}

// [method]tcp-socket.shutdown
func (h *TCPHost) MethodTCPSocketShutdown(_ context.Context, self uint32, shutdownType uint8) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return nerr
	}
	if shutdownType > uint8(sysnet.ShutdownBoth) {
		return newError(NetworkErrorInvalidArgument)
	}

	switch socket.State() {
	case preview2.TCPStateConnected:
	case preview2.TCPStateConnecting, preview2.TCPStateConnectReady:
		return newError(NetworkErrorConcurrencyConflict)
	default:
		return newError(NetworkErrorInvalidState)
	}

	if err := socket.Socket().Shutdown(sysnet.ShutdownHow(shutdownType)); err != nil {
		return mapError(err)
	}
	return nil
}

// [resource-drop]tcp-socket
//
// Dropping a socket whose streams or pollables are still live fails with
// invalid-state and leaves every handle valid.
func (h *TCPHost) ResourceDropTCPSocket(_ context.Context, self uint32) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, nerr := h.getSocket(self); nerr != nil {
		return nerr
	}

	_, err := h.resources.Delete(self)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, resource.ErrHasChildren), errors.Is(err, resource.ErrNotFound):
		return mapError(err)
	default:
		// The entry is gone; only the close failed.
		Logger().Warn("close tcp socket", zap.Uint32("socket", self), zap.Error(err))
		return nil
	}
}

// Register returns the host functions keyed by WIT name.
func (h *TCPHost) Register() map[string]any {
	return map[string]any{
		"[method]tcp-socket.start-bind":               h.MethodTCPSocketStartBind,
		"[method]tcp-socket.finish-bind":              h.MethodTCPSocketFinishBind,
		"[method]tcp-socket.start-connect":            h.MethodTCPSocketStartConnect,
		"[method]tcp-socket.finish-connect":           h.MethodTCPSocketFinishConnect,
		"[method]tcp-socket.start-listen":             h.MethodTCPSocketStartListen,
		"[method]tcp-socket.finish-listen":            h.MethodTCPSocketFinishListen,
		"[method]tcp-socket.accept":                   h.MethodTCPSocketAccept,
		"[method]tcp-socket.local-address":            h.MethodTCPSocketLocalAddress,
		"[method]tcp-socket.remote-address":           h.MethodTCPSocketRemoteAddress,
		"[method]tcp-socket.is-listening":             h.MethodTCPSocketIsListening,
		"[method]tcp-socket.address-family":           h.MethodTCPSocketAddressFamily,
		"[method]tcp-socket.ipv6-only":                h.MethodTCPSocketIPv6Only,
		"[method]tcp-socket.set-ipv6-only":            h.MethodTCPSocketSetIPv6Only,
		"[method]tcp-socket.set-listen-backlog-size":  h.MethodTCPSocketSetListenBacklogSize,
		"[method]tcp-socket.keep-alive-enabled":       h.MethodTCPSocketKeepAliveEnabled,
		"[method]tcp-socket.set-keep-alive-enabled":   h.MethodTCPSocketSetKeepAliveEnabled,
		"[method]tcp-socket.keep-alive-idle-time":     h.MethodTCPSocketKeepAliveIdleTime,
		"[method]tcp-socket.set-keep-alive-idle-time": h.MethodTCPSocketSetKeepAliveIdleTime,
		"[method]tcp-socket.keep-alive-interval":      h.MethodTCPSocketKeepAliveInterval,
		"[method]tcp-socket.set-keep-alive-interval":  h.MethodTCPSocketSetKeepAliveInterval,
		"[method]tcp-socket.keep-alive-count":         h.MethodTCPSocketKeepAliveCount,
		"[method]tcp-socket.set-keep-alive-count":     h.MethodTCPSocketSetKeepAliveCount,
		"[method]tcp-socket.hop-limit":                h.MethodTCPSocketHopLimit,
		"[method]tcp-socket.set-hop-limit":            h.MethodTCPSocketSetHopLimit,
		"[method]tcp-socket.receive-buffer-size":      h.MethodTCPSocketReceiveBufferSize,
		"[method]tcp-socket.set-receive-buffer-size":  h.MethodTCPSocketSetReceiveBufferSize,
		"[method]tcp-socket.send-buffer-size":         h.MethodTCPSocketSendBufferSize,
		"[method]tcp-socket.set-send-buffer-size":     h.MethodTCPSocketSetSendBufferSize,
		"[method]tcp-socket.subscribe":                h.MethodTCPSocketSubscribe,
		"[method]tcp-socket.shutdown":                 h.MethodTCPSocketShutdown,
		"[resource-drop]tcp-socket":                   h.ResourceDropTCPSocket,
	}
}

// nanos converts a wire duration, saturating at the largest time.Duration.
func nanos(v uint64) time.Duration {
	if v > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(v)
}

// clampInt saturates v at MaxInt32, the widest value setsockopt takes.
func clampInt(v uint64) int {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}
