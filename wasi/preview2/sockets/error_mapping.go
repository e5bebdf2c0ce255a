package sockets

import (
	"errors"
	"syscall"

	"github.com/wippyai/wasi-sockets/resource"
	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
	"github.com/wippyai/wasi-sockets/wasi/preview2/netpool"
)

// NetworkErrorCode mirrors wasi:sockets/network error-code. The numeric
// values are the wire encoding.
type NetworkErrorCode uint8

const (
	NetworkErrorUnknown NetworkErrorCode = iota
	NetworkErrorAccessDenied
	NetworkErrorNotSupported
	NetworkErrorInvalidArgument
	NetworkErrorOutOfMemory
	NetworkErrorTimeout
	NetworkErrorConcurrencyConflict
	NetworkErrorNotInProgress
	NetworkErrorWouldBlock
	NetworkErrorInvalidState
	NetworkErrorNewSocketLimit
	NetworkErrorAddressNotBindable
	NetworkErrorAddressInUse
	NetworkErrorRemoteUnreachable
	NetworkErrorConnectionRefused
	NetworkErrorConnectionReset
	NetworkErrorConnectionAborted
	NetworkErrorDatagramTooLarge
	NetworkErrorNameUnresolvable
	NetworkErrorTemporaryResolverFailure
	NetworkErrorPermanentResolverFailure
)

var networkErrorNames = [...]string{
	NetworkErrorUnknown:                  "unknown",
	NetworkErrorAccessDenied:             "access-denied",
	NetworkErrorNotSupported:             "not-supported",
	NetworkErrorInvalidArgument:          "invalid-argument",
	NetworkErrorOutOfMemory:              "out-of-memory",
	NetworkErrorTimeout:                  "timeout",
	NetworkErrorConcurrencyConflict:      "concurrency-conflict",
	NetworkErrorNotInProgress:            "not-in-progress",
	NetworkErrorWouldBlock:               "would-block",
	NetworkErrorInvalidState:             "invalid-state",
	NetworkErrorNewSocketLimit:           "new-socket-limit",
	NetworkErrorAddressNotBindable:       "address-not-bindable",
	NetworkErrorAddressInUse:             "address-in-use",
	NetworkErrorRemoteUnreachable:        "remote-unreachable",
	NetworkErrorConnectionRefused:        "connection-refused",
	NetworkErrorConnectionReset:          "connection-reset",
	NetworkErrorConnectionAborted:        "connection-aborted",
	NetworkErrorDatagramTooLarge:         "datagram-too-large",
	NetworkErrorNameUnresolvable:         "name-unresolvable",
	NetworkErrorTemporaryResolverFailure: "temporary-resolver-failure",
	NetworkErrorPermanentResolverFailure: "permanent-resolver-failure",
}

func (c NetworkErrorCode) String() string {
	if int(c) < len(networkErrorNames) {
		return networkErrorNames[c]
	}
	return "unknown"
}

// NetworkError is the typed result of a failed socket operation.
type NetworkError struct {
	Cause error
	Code  NetworkErrorCode
}

func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return "network error: " + e.Code.String() + ": " + e.Cause.Error()
	}
	return "network error: " + e.Code.String()
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// Is matches on the error code, so errors.Is(err, ErrWouldBlock) works
// regardless of the cause.
func (e *NetworkError) Is(target error) bool {
	t, ok := target.(*NetworkError)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrAccessDenied        = &NetworkError{Code: NetworkErrorAccessDenied}
	ErrNotSupported        = &NetworkError{Code: NetworkErrorNotSupported}
	ErrInvalidArgument     = &NetworkError{Code: NetworkErrorInvalidArgument}
	ErrOutOfMemory         = &NetworkError{Code: NetworkErrorOutOfMemory}
	ErrConcurrencyConflict = &NetworkError{Code: NetworkErrorConcurrencyConflict}
	ErrNotInProgress       = &NetworkError{Code: NetworkErrorNotInProgress}
	ErrWouldBlock          = &NetworkError{Code: NetworkErrorWouldBlock}
	ErrInvalidState        = &NetworkError{Code: NetworkErrorInvalidState}
)

func newError(code NetworkErrorCode) *NetworkError {
	return &NetworkError{Code: code}
}

func wrapError(code NetworkErrorCode, cause error) *NetworkError {
	return &NetworkError{Code: code, Cause: cause}
}

// mapError classifies adapter, pool, table and errno failures.
func mapError(err error) *NetworkError {
	if err == nil {
		return nil
	}

	var nerr *NetworkError
	if errors.As(err, &nerr) {
		return nerr
	}

	switch {
	case errors.Is(err, netpool.ErrAccessDenied):
		return wrapError(NetworkErrorAccessDenied, err)
	case errors.Is(err, netpool.ErrInvalidAddress):
		return wrapError(NetworkErrorInvalidArgument, err)
	case errors.Is(err, sysnet.ErrWouldBlock), errors.Is(err, sysnet.ErrInProgress):
		return wrapError(NetworkErrorWouldBlock, err)
	case errors.Is(err, sysnet.ErrUnsupported):
		return wrapError(NetworkErrorNotSupported, err)
	case errors.Is(err, sysnet.ErrClosed):
		return wrapError(NetworkErrorInvalidState, err)
	case errors.Is(err, resource.ErrNotFound):
		return wrapError(NetworkErrorInvalidArgument, err)
	case errors.Is(err, resource.ErrHasChildren):
		return wrapError(NetworkErrorInvalidState, err)
	case errors.Is(err, resource.ErrTableFull):
		return wrapError(NetworkErrorNewSocketLimit, err)
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		mapped := mapErrno(errno)
		mapped.Cause = err
		return mapped
	}

	return wrapError(NetworkErrorUnknown, err)
}

// mapListenError remaps descriptor exhaustion: listen creates no socket,
// so EMFILE/ENFILE surface as out-of-memory rather than new-socket-limit.
func mapListenError(err error) *NetworkError {
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EMFILE || errno == syscall.ENFILE) {
		return wrapError(NetworkErrorOutOfMemory, err)
	}
	return mapError(err)
}

// mapBindConnectError treats EAFNOSUPPORT as a bad argument in case the
// family validation let something through.
func mapBindConnectError(err error) *NetworkError {
	var errno syscall.Errno
	if errors.As(err, &errno) && errno == syscall.EAFNOSUPPORT {
		return wrapError(NetworkErrorInvalidArgument, err)
	}
	return mapError(err)
}

// mapErrno converts syscall.Errno to WASI network error codes.
func mapErrno(errno syscall.Errno) *NetworkError {
	switch errno {
	case syscall.EACCES, syscall.EPERM:
		return newError(NetworkErrorAccessDenied)
	case syscall.EADDRINUSE:
		return newError(NetworkErrorAddressInUse)
	case syscall.EADDRNOTAVAIL:
		return newError(NetworkErrorAddressNotBindable)
	case syscall.ECONNREFUSED:
		return newError(NetworkErrorConnectionRefused)
	case syscall.ECONNRESET:
		return newError(NetworkErrorConnectionReset)
	case syscall.ECONNABORTED, syscall.EPIPE:
		return newError(NetworkErrorConnectionAborted)
	case syscall.EHOSTUNREACH, syscall.ENETUNREACH, syscall.ENETDOWN:
		return newError(NetworkErrorRemoteUnreachable)
	case syscall.ETIMEDOUT:
		return newError(NetworkErrorTimeout)
	case syscall.EINVAL, syscall.EAFNOSUPPORT, syscall.EDESTADDRREQ:
		return newError(NetworkErrorInvalidArgument)
	case syscall.ENOMEM, syscall.ENOBUFS:
		return newError(NetworkErrorOutOfMemory)
	case syscall.EWOULDBLOCK, syscall.EINPROGRESS:
		return newError(NetworkErrorWouldBlock)
	case syscall.EALREADY:
		return newError(NetworkErrorConcurrencyConflict)
	case syscall.ENOTSOCK, syscall.ENOTCONN, syscall.EISCONN, syscall.EBADF:
		return newError(NetworkErrorInvalidState)
	case syscall.EOPNOTSUPP, syscall.ENOPROTOOPT, syscall.EPROTONOSUPPORT:
		return newError(NetworkErrorNotSupported)
	case syscall.EMSGSIZE:
		return newError(NetworkErrorDatagramTooLarge)
	case syscall.EMFILE, syscall.ENFILE:
		return newError(NetworkErrorNewSocketLimit)
	default:
		return newError(NetworkErrorUnknown)
	}
}

// isWouldBlock reports whether err is the retry-later signal.
func isWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock) || errors.Is(err, sysnet.ErrWouldBlock)
}
