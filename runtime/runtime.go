package runtime

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-sockets/errors"
	"github.com/wippyai/wasi-sockets/wasi/preview2"
)

// Config holds configuration for runtime creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// CloseOnContextDone makes guest calls return once their context ends,
	// which unblocks a guest stuck in a busy poll loop.
	CloseOnContextDone bool
}

type Runtime struct {
	wazero wazero.Runtime
	hosts  *HostRegistry
	wasi   *preview2.WASI
}

func New(ctx context.Context) (*Runtime, error) {
	return NewWithConfig(ctx, nil)
}

func NewWithConfig(ctx context.Context, cfg *Config) (*Runtime, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
	}

	return &Runtime{
		wazero: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		hosts:  NewHostRegistry(),
	}, nil
}

// Close releases the wazero runtime and, if RegisterWASI was called, every
// socket still held by the WASI context.
// All guest instances must be finished before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.wazero.Close(ctx)
	if r.wasi != nil {
		err = multierr.Append(err, r.wasi.Close())
	}
	return err
}

// RegisterHost registers all exported methods of h as host functions.
// Must be called BEFORE Bind for the namespace.
// Method names are converted from PascalCase to kebab-case (GetValue -> get-value).
func (r *Runtime) RegisterHost(h Host) error {
	return r.hosts.RegisterHost(h)
}

func (r *Runtime) RegisterFunc(namespace, name string, fn any) error {
	return r.hosts.RegisterFunc(namespace, name, fn)
}

func (r *Runtime) Hosts() *HostRegistry {
	return r.hosts
}

// Bind instantiates the registered host modules so guests can import them.
func (r *Runtime) Bind(ctx context.Context) error {
	return r.hosts.Bind(ctx, r.wazero)
}

// InstantiateWASM compiles and instantiates a core WebAssembly module under
// name. Host modules are bound first, so every registered import resolves.
func (r *Runtime) InstantiateWASM(ctx context.Context, name string, wasm []byte) (api.Module, error) {
	if err := r.Bind(ctx); err != nil {
		return nil, err
	}

	compiled, err := r.wazero.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInstantiation, err, "compile module")
	}

	mod, err := r.wazero.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Instantiation(name, err)
	}
	Logger().Debug("guest module instantiated",
		zap.String("name", name),
		zap.Int("imports", len(compiled.ImportedFunctions())))
	return mod, nil
}

// Wazero exposes the underlying wazero runtime.
func (r *Runtime) Wazero() wazero.Runtime {
	return r.wazero
}
