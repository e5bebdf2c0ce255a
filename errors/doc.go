// Package errors provides structured error types for the socket host.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a field path (for configuration errors), the resource
// name involved, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConfig, errors.KindInvalidInput).
//		Path("bind", "2", "cidr").
//		Value("10.0.0.0/33").
//		Detail("invalid prefix").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseTable, "handle", "17")
//	err := errors.Registration(errors.PhaseHost, "wasi:sockets/tcp@0.2.0", "[method]tcp-socket.start-bind", cause)
//
// Socket call results use the WASI error-code taxonomy in package sockets
// instead; this package covers the surrounding infrastructure.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
