// Package sysnet is the thin OS socket adapter beneath the TCP socket host.
//
// Every socket is created non-blocking and close-on-exec. Calls never wait:
// a connect that cannot complete immediately reports ErrInProgress and an
// accept or read with nothing queued reports ErrWouldBlock. Other failures
// are returned as the raw errno so callers can classify them.
//
// Platform differences live in per-OS files; the rest of the module only
// sees the Socket type and the constants declared here.
package sysnet

import (
	"errors"
	"math"
)

// Family is the address family a socket was created with.
type Family uint8

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	if f == IPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// Events is a readiness mask for Poll.
type Events uint8

const (
	EventRead Events = 1 << iota
	EventWrite
	EventHangup
	EventError
)

// ShutdownHow selects which half of a connection to shut down.
type ShutdownHow uint8

const (
	ShutdownRead ShutdownHow = iota
	ShutdownWrite
	ShutdownBoth
)

var (
	// ErrInProgress reports a non-blocking connect that has not completed.
	ErrInProgress = errors.New("sysnet: operation in progress")

	// ErrWouldBlock reports a non-blocking call with no result yet.
	ErrWouldBlock = errors.New("sysnet: operation would block")

	// ErrUnsupported is returned by every call on platforms without an adapter.
	ErrUnsupported = errors.New("sysnet: sockets not supported on this platform")

	// ErrClosed is returned for calls on a socket after Close.
	ErrClosed = errors.New("sysnet: use of closed socket")
)

const (
	// MaxBacklog is the largest backlog passed to listen. Kernels clamp it
	// further on their own.
	MaxBacklog = math.MaxInt32

	// DefaultBacklog is used when no backlog size was requested.
	DefaultBacklog = 128
)
