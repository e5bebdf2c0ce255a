// Package runtime hosts WASI socket interfaces on a wazero runtime.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	cfg, err := netpool.LoadConfig("policy.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pool, err := cfg.Pool()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := rt.RegisterWASI(preview2.New().WithNetwork(pool)); err != nil {
//	    log.Fatal(err)
//	}
//
//	mod, err := rt.InstantiateWASM(ctx, "guest", wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Host Functions
//
// A host is any type with a Namespace method. Its exported methods are
// registered under kebab-case names, or under the names returned by
// Register when it implements ExplicitRegistrar:
//
//	rt.RegisterFunc("example:app/api@0.1.0", "port-of",
//	    func(ctx context.Context, addr netip.AddrPort) uint32 {
//	        return uint32(addr.Port())
//	    })
//
// Every handler takes context.Context first. Bind lowers each handler to
// core wasm values and instantiates one host module per namespace; a
// namespace cannot be extended once bound.
//
// # Calling From Go
//
// wazero does not allow calling host module exports directly. NewProxy
// instantiates a core module that imports every bound function and
// re-exports it as "<namespace>#<name>" next to its own memory, so Go code
// reaches the hosts the same way a guest does:
//
//	proxy, err := rt.NewProxy(ctx, "proxy")
//	res, err := proxy.Call(ctx, "wasi:sockets/tcp-create-socket@0.2.0", "create-tcp-socket", 0)
//
// # Type Mapping
//
//	Go Type                  Core values
//	──────────────────────────────────────────────────────────────
//	bool, uint8..uint32      i32
//	uint64                   i64
//	netip.AddrPort           i32 family, i64 hi, i64 lo, i32 port
//	[]uint32, []byte (arg)   i32 ptr, i32 len
//	[]uint32, []byte, string trailing i32 ptr, i32 cap; returns i32 count
//	*sockets.NetworkError    leading i32: 0 ok, code+1 on failure
//	*preview2.StreamError    leading i32 tag, i32 error handle
//	error                    traps when non-nil
//
// # Thread Safety
//
// Runtime and HostRegistry are safe for concurrent use. The socket hosts
// serialize guest calls per host.
package runtime
