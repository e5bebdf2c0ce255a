package preview2

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasi-sockets/wasi/preview2/netpool"
)

// WASI configures a WASI preview2 socket environment. Use builder methods to set up.
type WASI struct {
	resources *ResourceTable
	network   *netpool.Pool
	logger    *zap.Logger
}

// New creates a WASI context with no network access.
func New() *WASI {
	return &WASI{
		resources: NewResourceTable(),
		network:   netpool.Empty(),
		logger:    zap.NewNop(),
	}
}

// WithNetwork sets the capability pool handed out by instance-network.
func (w *WASI) WithNetwork(pool *netpool.Pool) *WASI {
	if pool == nil {
		pool = netpool.Empty()
	}
	w.network = pool
	return w
}

// WithLogger sets the logger used by hosts built on this context.
func (w *WASI) WithLogger(l *zap.Logger) *WASI {
	if l == nil {
		l = zap.NewNop()
	}
	w.logger = l
	return w
}

// WithMaxResources caps the handles a guest can hold at once. Operations
// that would exceed it fail with new-socket-limit. n <= 0 removes the cap.
func (w *WASI) WithMaxResources(n int) *WASI {
	w.resources.SetLimit(n)
	return w
}

// Resources returns the resource table
func (w *WASI) Resources() *ResourceTable {
	return w.resources
}

// Network returns the capability pool
func (w *WASI) Network() *netpool.Pool {
	return w.network
}

// Logger returns the configured logger
func (w *WASI) Logger() *zap.Logger {
	return w.logger
}

// Close drops every resource, closing any sockets still open.
func (w *WASI) Close() error {
	return w.resources.Close()
}
