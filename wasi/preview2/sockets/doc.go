// Package sockets implements the WASI TCP socket interfaces on top of
// non-blocking OS sockets.
//
// Implements:
//   - wasi:sockets/network@0.2.0 - network resource and error codes
//   - wasi:sockets/instance-network@0.2.0 - capability handle
//   - wasi:sockets/tcp-create-socket@0.2.0 - socket creation
//   - wasi:sockets/tcp@0.2.0 - two-phase bind, connect and listen, accept
//
// Every operation returns immediately. Work the OS cannot finish at once is
// split into a start call and a finish call; finish reports would-block until
// the socket is ready, and the caller re-polls after waiting on a pollable
// from tcp-socket.subscribe. A second start while one is in flight fails
// with concurrency-conflict instead of queueing.
//
// Addresses are authorised by the netpool.Pool carried by the network
// handle before any syscall is made.
package sockets
