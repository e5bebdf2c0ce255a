package runtime

import (
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasi-sockets/errors"
	"github.com/wippyai/wasi-sockets/resource"
	"github.com/wippyai/wasi-sockets/wasi/preview2"
	"github.com/wippyai/wasi-sockets/wasi/preview2/clocks"
	"github.com/wippyai/wasi-sockets/wasi/preview2/io"
	"github.com/wippyai/wasi-sockets/wasi/preview2/sockets"
)

// RegisterWASI registers the socket, I/O and monotonic clock hosts of a
// WASI context.
// The runtime takes ownership of wasi and closes it in Close.
func (r *Runtime) RegisterWASI(wasi *preview2.WASI) error {
	if wasi == nil {
		return errors.InvalidInput(errors.PhaseHost, "wasi context is nil")
	}
	resources := wasi.Resources()

	// A nop logger leaves the package loggers alone.
	if l := wasi.Logger(); l.Core().Enabled(zapcore.FatalLevel) {
		SetLogger(l.Named("runtime"))
		sockets.SetLogger(l.Named("sockets"))
		resource.SetLogger(l.Named("resource"))
	}

	ioHost := io.NewHost(resources)
	hosts := []Host{
		ioHost.Error,
		ioHost.Poll,
		ioHost.Streams,
		clocks.NewMonotonicClockHost(resources),
		sockets.NewInstanceNetworkHost(resources, wasi.Network()),
		sockets.NewNetworkHost(resources),
		sockets.NewTCPCreateSocketHost(resources),
		sockets.NewTCPHost(resources),
	}
	for _, h := range hosts {
		if err := r.RegisterHost(h); err != nil {
			return errors.Registration(errors.PhaseHost, h.Namespace(), "host", err)
		}
	}

	r.wasi = wasi
	return nil
}
