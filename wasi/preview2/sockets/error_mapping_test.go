package sockets

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/wippyai/wasi-sockets/resource"
	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
	"github.com/wippyai/wasi-sockets/wasi/preview2/netpool"
)

func TestMapErrno(t *testing.T) {
	tests := []struct {
		errno syscall.Errno
		want  NetworkErrorCode
	}{
		{syscall.EACCES, NetworkErrorAccessDenied},
		{syscall.EPERM, NetworkErrorAccessDenied},
		{syscall.EADDRINUSE, NetworkErrorAddressInUse},
		{syscall.EADDRNOTAVAIL, NetworkErrorAddressNotBindable},
		{syscall.ECONNREFUSED, NetworkErrorConnectionRefused},
		{syscall.ECONNRESET, NetworkErrorConnectionReset},
		{syscall.ECONNABORTED, NetworkErrorConnectionAborted},
		{syscall.EHOSTUNREACH, NetworkErrorRemoteUnreachable},
		{syscall.ENETUNREACH, NetworkErrorRemoteUnreachable},
		{syscall.ETIMEDOUT, NetworkErrorTimeout},
		{syscall.EINVAL, NetworkErrorInvalidArgument},
		{syscall.EAFNOSUPPORT, NetworkErrorInvalidArgument},
		{syscall.ENOBUFS, NetworkErrorOutOfMemory},
		{syscall.EINPROGRESS, NetworkErrorWouldBlock},
		{syscall.EMFILE, NetworkErrorNewSocketLimit},
		{syscall.ENOTCONN, NetworkErrorInvalidState},
		{syscall.ENOPROTOOPT, NetworkErrorNotSupported},
		{syscall.E2BIG, NetworkErrorUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.errno.Error(), func(t *testing.T) {
			if got := mapErrno(tt.errno).Code; got != tt.want {
				t.Errorf("mapErrno(%v) = %s, want %s", tt.errno, got, tt.want)
			}
		})
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want NetworkErrorCode
	}{
		{"access denied", netpool.ErrAccessDenied, NetworkErrorAccessDenied},
		{"invalid address", fmt.Errorf("bind: %w", netpool.ErrInvalidAddress), NetworkErrorInvalidArgument},
		{"would block", sysnet.ErrWouldBlock, NetworkErrorWouldBlock},
		{"unsupported", sysnet.ErrUnsupported, NetworkErrorNotSupported},
		{"closed", sysnet.ErrClosed, NetworkErrorInvalidState},
		{"stale handle", resource.ErrNotFound, NetworkErrorInvalidArgument},
		{"has children", resource.ErrHasChildren, NetworkErrorInvalidState},
		{"table full", resource.ErrTableFull, NetworkErrorNewSocketLimit},
		{"wrapped errno", fmt.Errorf("connect: %w", syscall.ECONNREFUSED), NetworkErrorConnectionRefused},
		{"network error", ErrConcurrencyConflict, NetworkErrorConcurrencyConflict},
		{"other", errors.New("boom"), NetworkErrorUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if got == nil {
				t.Fatal("mapError returned nil")
			}
			if got.Code != tt.want {
				t.Errorf("code = %s, want %s", got.Code, tt.want)
			}
		})
	}

	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
}

func TestMapListenError(t *testing.T) {
	for _, errno := range []syscall.Errno{syscall.EMFILE, syscall.ENFILE} {
		if got := mapListenError(errno).Code; got != NetworkErrorOutOfMemory {
			t.Errorf("%v: got %s, want out-of-memory", errno, got)
		}
	}
	if got := mapListenError(syscall.EADDRINUSE).Code; got != NetworkErrorAddressInUse {
		t.Errorf("EADDRINUSE: got %s", got)
	}
}

func TestMapBindConnectError(t *testing.T) {
	if got := mapBindConnectError(syscall.EAFNOSUPPORT).Code; got != NetworkErrorInvalidArgument {
		t.Errorf("EAFNOSUPPORT: got %s", got)
	}
	if got := mapBindConnectError(syscall.EADDRNOTAVAIL).Code; got != NetworkErrorAddressNotBindable {
		t.Errorf("EADDRNOTAVAIL: got %s", got)
	}
}

func TestNetworkError(t *testing.T) {
	err := wrapError(NetworkErrorWouldBlock, sysnet.ErrWouldBlock)

	if !errors.Is(err, ErrWouldBlock) {
		t.Error("errors.Is should match by code")
	}
	if errors.Is(err, ErrInvalidState) {
		t.Error("errors.Is matched a different code")
	}
	if !errors.Is(err, sysnet.ErrWouldBlock) {
		t.Error("cause not reachable")
	}
	if !isWouldBlock(err) || !isWouldBlock(sysnet.ErrWouldBlock) {
		t.Error("isWouldBlock")
	}
	if msg := err.Error(); msg != "network error: would-block: sysnet: operation would block" {
		t.Errorf("Error() = %q", msg)
	}
	if msg := newError(NetworkErrorTimeout).Error(); msg != "network error: timeout" {
		t.Errorf("Error() = %q", msg)
	}
}

func TestNetworkErrorCodeString(t *testing.T) {
	if s := NetworkErrorPermanentResolverFailure.String(); s != "permanent-resolver-failure" {
		t.Errorf("String() = %s", s)
	}
	if s := NetworkErrorCode(200).String(); s != "unknown" {
		t.Errorf("String() = %s", s)
	}
	// Wire values follow the WIT enum order.
	if NetworkErrorInvalidState != 9 || NetworkErrorConnectionRefused != 14 {
		t.Error("code values drifted from the wire encoding")
	}
}
