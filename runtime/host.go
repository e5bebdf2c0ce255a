package runtime

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-sockets/errors"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) are registered as host functions.
type Host interface {
	// Namespace returns the WIT interface name (e.g., "wasi:sockets/tcp@0.2.0").
	Namespace() string
}

// ExplicitRegistrar allows hosts to provide exact WIT function names
// when automatic PascalCase-to-kebab-case conversion doesn't apply
// (e.g., "[method]tcp-socket.start-bind").
type ExplicitRegistrar interface {
	Register() map[string]any
}

type HostRegistry struct {
	funcs map[string]map[string]*HostFunc
	bound map[string]api.Module
	mu    sync.RWMutex
}

type HostFunc struct {
	Handler  any
	Receiver reflect.Value
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs: make(map[string]map[string]*HostFunc),
		bound: make(map[string]api.Module),
	}
}

func (r *HostRegistry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bound[ns]; ok {
		return errors.New(errors.PhaseHost, errors.KindConflict).
			Resource(ns).
			Detail("namespace already instantiated").
			Build()
	}
	if r.funcs[ns] == nil {
		r.funcs[ns] = make(map[string]*HostFunc)
	}

	if er, ok := h.(ExplicitRegistrar); ok {
		for name, handler := range er.Register() {
			r.funcs[ns][name] = &HostFunc{
				Handler:  handler,
				Receiver: reflect.ValueOf(h),
			}
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()

	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)

		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}

		r.funcs[ns][toKebabCase(method.Name)] = &HostFunc{
			Handler:  rv.Method(i).Interface(),
			Receiver: rv,
		}
	}

	return nil
}

func (r *HostRegistry) RegisterFunc(namespace, name string, fn any) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Resource(namespace).
			Value(name).
			Detail("handler must be a function").
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bound[namespace]; ok {
		return errors.New(errors.PhaseHost, errors.KindConflict).
			Resource(namespace).
			Detail("namespace already instantiated").
			Build()
	}
	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]*HostFunc)
	}

	r.funcs[namespace][name] = &HostFunc{Handler: fn}
	return nil
}

// Namespaces returns the registered namespaces in sorted order.
func (r *HostRegistry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.funcs))
	for ns := range r.funcs {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Functions returns the function names registered under namespace.
func (r *HostRegistry) Functions(namespace string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.funcs[namespace]))
	for name := range r.funcs[namespace] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Bind instantiates one wazero host module per namespace that has not been
// instantiated yet. Every handler is lowered to the flat core ABI first, so
// an unsupported signature fails before anything is instantiated.
func (r *HostRegistry) Bind(ctx context.Context, rt wazero.Runtime) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	namespaces := make([]string, 0, len(r.funcs))
	for ns := range r.funcs {
		if _, ok := r.bound[ns]; !ok {
			namespaces = append(namespaces, ns)
		}
	}
	sort.Strings(namespaces)

	lowered := make(map[string]map[string]*loweredFunc, len(namespaces))
	for _, ns := range namespaces {
		lowered[ns] = make(map[string]*loweredFunc, len(r.funcs[ns]))
		for name, hf := range r.funcs[ns] {
			lf, err := lower(hf.Handler)
			if err != nil {
				return errors.Registration(errors.PhaseHost, ns, name, err)
			}
			lowered[ns][name] = lf
		}
	}

	for _, ns := range namespaces {
		builder := rt.NewHostModuleBuilder(ns)

		names := make([]string, 0, len(lowered[ns]))
		for name := range lowered[ns] {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			lf := lowered[ns][name]
			builder.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(lf.call), lf.params, lf.results).
				WithName(name).
				Export(name)
		}

		mod, err := builder.Instantiate(ctx)
		if err != nil {
			return errors.Instantiation(ns, err)
		}
		r.bound[ns] = mod
		Logger().Debug("host module instantiated", zap.String("namespace", ns), zap.Int("functions", len(names)))
	}
	return nil
}

// Module returns the instantiated host module for namespace, if any.
func (r *HostRegistry) Module(namespace string) (api.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mod, ok := r.bound[namespace]
	return mod, ok
}

// toKebabCase converts PascalCase to kebab-case.
// Handles acronyms: CreateTCPSocket -> create-tcp-socket
func toKebabCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('-')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1 // -1 because loop will increment
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
