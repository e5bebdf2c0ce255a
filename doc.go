// Package wasisockets provides WASI preview2 TCP sockets for WebAssembly
// guests running on wazero.
//
// Every socket operation completes immediately or reports that it is still
// in progress; guests drive connects and accepts with start/finish pairs and
// wait on pollables instead of blocking in the host.
//
// # Architecture Overview
//
//	wasisockets/
//	├── runtime/               wazero binding: host registry and flat ABI
//	├── resource/              generation-checked handle table with parent/child links
//	├── errors/                structured errors for setup, table and registration
//	├── wasi/preview2/         WASI context, socket/stream/pollable resources
//	│   ├── sockets/           wasi:sockets tcp, tcp-create-socket, network hosts
//	│   ├── io/                wasi:io poll, streams, error hosts
//	│   ├── clocks/            wasi:clocks monotonic-clock host (poll deadlines)
//	│   ├── netpool/           network capability pool and YAML policy
//	│   └── internal/sysnet/   non-blocking OS sockets
//	└── cmd/sockprobe/         CLI walking the socket lifecycle on loopback
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
//
//	if err := rt.RegisterWASI(preview2.New().WithNetwork(pool)); err != nil {
//	    log.Fatal(err)
//	}
//	mod, err := rt.InstantiateWASM(ctx, "guest", wasmBytes)
//
// # Socket Lifecycle
//
// A socket is created in the default phase and advances through
// bind, listen or connect with start/finish pairs. Calling a finish
// operation that is not ready returns would-block; the guest subscribes to
// the socket and polls before retrying. Accepted sockets start connected.
// Streams and pollables derived from a socket are its children in the
// resource table, and the socket cannot be dropped while they are live.
//
// # Thread Safety
//
// The socket hosts serialize each call. A WASI context should serve one
// guest instance at a time.
package wasisockets
