package runtime

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasi-sockets/errors"
)

// ProxyModule encodes a core module that imports every function of the bound
// namespaces and re-exports each as "<namespace>#<name>", next to one page
// of exported memory. Host modules cannot be called from Go directly; an
// instance of this module gives Go callers the same import path a guest uses,
// including a linear memory for list and string arguments.
func (r *HostRegistry) ProxyModule() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	namespaces := make([]string, 0, len(r.bound))
	for ns := range r.bound {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var fns []proxyImport
	for _, ns := range namespaces {
		names := make([]string, 0, len(r.funcs[ns]))
		for name := range r.funcs[ns] {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			lf, err := lower(r.funcs[ns][name].Handler)
			if err != nil {
				return nil, errors.Registration(errors.PhaseHost, ns, name, err)
			}
			fns = append(fns, proxyImport{module: ns, name: name, params: lf.params, results: lf.results})
		}
	}
	return encodeProxy(fns), nil
}

// Proxy is an instantiated proxy module.
type Proxy struct {
	mod api.Module
}

// NewProxy binds the registered hosts and instantiates a proxy module for
// them under name.
func (r *Runtime) NewProxy(ctx context.Context, name string) (*Proxy, error) {
	if err := r.Bind(ctx); err != nil {
		return nil, err
	}
	wasm, err := r.hosts.ProxyModule()
	if err != nil {
		return nil, err
	}
	mod, err := r.InstantiateWASM(ctx, name, wasm)
	if err != nil {
		return nil, err
	}
	return &Proxy{mod: mod}, nil
}

// Call invokes namespace#name with flat core values. A trap in the host
// function is returned as an error.
func (p *Proxy) Call(ctx context.Context, namespace, name string, params ...uint64) ([]uint64, error) {
	fn := p.mod.ExportedFunction(exportName(namespace, name))
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", exportName(namespace, name))
	}
	return fn.Call(ctx, params...)
}

// Memory is the linear memory host functions read from and write to.
func (p *Proxy) Memory() api.Memory {
	return p.mod.Memory()
}

func (p *Proxy) Module() api.Module {
	return p.mod
}
