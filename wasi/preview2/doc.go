// Package preview2 holds the WASI preview2 context and the resource types
// behind the wasi:sockets and wasi:io surfaces.
//
// # Quick Start
//
//	pool := netpool.New(bindRules, connectRules)
//	wasi := preview2.New().
//	    WithNetwork(pool).
//	    WithLogger(logger)
//	defer wasi.Close()
//
// # Resources
//
// Every guest-visible value lives in a ResourceTable:
//
//   - NetworkResource: the capability pool granted by instance-network
//   - TCPSocketResource: one OS socket and its TCPState
//   - TCPInputStreamResource, TCPOutputStreamResource: halves of a
//     connected socket, registered as children of the socket handle
//   - SocketPollable: readiness of a socket or stream, also a child
//   - ErrorResource: detail of a failed stream operation
//
// A socket cannot be deleted while a stream or pollable created from it is
// still live; the guest drops children first.
//
// # Socket Phases
//
//	Default ─start-bind→ BindStarted ─finish-bind→ Bound ─start-listen→ ListenStarted ─finish-listen→ Listening
//	Default ─start-connect→ Connecting | ConnectReady ─finish-connect→ Connected | ConnectFailed
//
// Sockets produced by accept start Connected. No phase leads back to
// Default.
//
// # Thread Safety
//
// A single WASI context should be used with one guest instance at a time.
package preview2
