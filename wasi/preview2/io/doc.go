// Package io implements the WASI I/O interfaces over socket streams.
//
// Implements:
//   - wasi:io/streams@0.2.0 - read and write halves of connected sockets
//   - wasi:io/poll@0.2.0 - readiness of sockets and streams
//   - wasi:io/error@0.2.0 - descriptions of failed stream operations
//
// Non-blocking methods never wait. The blocking variants wait on socket
// readiness in short poll slices and give up when the context ends.
package io
