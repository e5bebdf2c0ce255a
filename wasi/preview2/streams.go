package preview2

import (
	"errors"
	"io"

	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
)

// DefaultBufferSize is the write budget reported by check-write (64 KB).
const DefaultBufferSize = 65536

// MaxReadSize caps a single read allocation.
const MaxReadSize = 1 << 20

// ErrWriteBudget is the cause of a write larger than the last check-write
// permit.
var ErrWriteBudget = errors.New("write exceeds check-write permit")

// StreamError represents a WASI stream error.
type StreamError struct {
	Err          error  // cause of a failed operation
	Closed       bool   // stream reached EOF or was closed
	LastOpFailed bool   // previous operation failed; Err holds the cause
	Handle       uint32 // error resource describing Err, set by the streams host
}

func (e *StreamError) Error() string {
	if e.Closed {
		return "stream closed"
	}
	if e.Err != nil {
		return "stream operation failed: " + e.Err.Error()
	}
	return "stream error"
}

func (e *StreamError) Unwrap() error { return e.Err }

// TCPInputStreamResource is the read half of a connected socket. It is a
// child of the socket's table entry. Dropping it ends reads through this
// handle; the OS socket stays open until the socket resource is dropped.
type TCPInputStreamResource struct {
	socket *TCPSocketResource
	closed bool
}

func NewTCPInputStreamResource(socket *TCPSocketResource) *TCPInputStreamResource {
	return &TCPInputStreamResource{socket: socket}
}

func (s *TCPInputStreamResource) Type() ResourceType { return ResourceInputStream }
func (s *TCPInputStreamResource) Drop() error {
	s.closed = true
	return nil
}

// Socket returns the owning socket.
func (s *TCPInputStreamResource) Socket() *TCPSocketResource { return s.socket }

// Read returns up to length bytes without blocking. An empty slice means no
// data is buffered yet.
func (s *TCPInputStreamResource) Read(length uint64) ([]byte, error) {
	if s.closed {
		return nil, &StreamError{Closed: true}
	}
	if length > MaxReadSize {
		length = MaxReadSize
	}
	if length == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, length)
	n, err := s.socket.Socket().Read(buf)
	switch {
	case errors.Is(err, sysnet.ErrWouldBlock):
		return []byte{}, nil
	case errors.Is(err, io.EOF):
		s.closed = true
		return nil, &StreamError{Closed: true}
	case err != nil:
		s.closed = true
		return nil, &StreamError{LastOpFailed: true, Err: err}
	}
	return buf[:n], nil
}

// TCPOutputStreamResource is the write half of a connected socket. Bytes the
// kernel does not take immediately are held and retried on the next write,
// check-write or flush. At most DefaultBufferSize bytes are held, and no
// write is accepted while any are. Dropping the stream discards held bytes
// without shutting the socket down.
type TCPOutputStreamResource struct {
	socket  *TCPSocketResource
	pending []byte
	closed  bool
}

func NewTCPOutputStreamResource(socket *TCPSocketResource) *TCPOutputStreamResource {
	return &TCPOutputStreamResource{socket: socket}
}

func (s *TCPOutputStreamResource) Type() ResourceType { return ResourceOutputStream }
func (s *TCPOutputStreamResource) Drop() error {
	s.closed = true
	s.pending = nil
	return nil
}

// Socket returns the owning socket.
func (s *TCPOutputStreamResource) Socket() *TCPSocketResource { return s.socket }

// Write queues data and pushes as much as the kernel accepts. data must fit
// the permit CheckWrite would report; a larger write fails with
// ErrWriteBudget and queues nothing.
func (s *TCPOutputStreamResource) Write(data []byte) error {
	if s.closed {
		return &StreamError{Closed: true}
	}
	if err := s.drain(); err != nil {
		return err
	}
	if uint64(len(data)) > s.permit() {
		return &StreamError{LastOpFailed: true, Err: ErrWriteBudget}
	}
	s.pending = append(s.pending, data...)
	return s.drain()
}

// CheckWrite reports how many bytes may be written now.
func (s *TCPOutputStreamResource) CheckWrite() (uint64, error) {
	if s.closed {
		return 0, &StreamError{Closed: true}
	}
	if err := s.drain(); err != nil {
		return 0, err
	}
	return s.permit(), nil
}

func (s *TCPOutputStreamResource) permit() uint64 {
	if len(s.pending) > 0 {
		return 0
	}
	return DefaultBufferSize
}

// Flush pushes held bytes. It does not wait for the kernel.
func (s *TCPOutputStreamResource) Flush() error {
	if s.closed {
		return &StreamError{Closed: true}
	}
	return s.drain()
}

// Pending returns the number of bytes not yet taken by the kernel.
func (s *TCPOutputStreamResource) Pending() int { return len(s.pending) }

func (s *TCPOutputStreamResource) drain() error {
	for len(s.pending) > 0 {
		n, err := s.socket.Socket().Write(s.pending)
		if errors.Is(err, sysnet.ErrWouldBlock) {
			return nil
		}
		if err != nil {
			s.closed = true
			s.pending = nil
			return &StreamError{LastOpFailed: true, Err: err}
		}
		s.pending = s.pending[n:]
	}
	s.pending = nil
	return nil
}

// ErrorResource holds an error message that can be retrieved via ToDebugString.
type ErrorResource struct {
	msg string
}

func NewErrorResource(msg string) *ErrorResource {
	return &ErrorResource{msg: msg}
}

func (e *ErrorResource) Type() ResourceType    { return ResourceError }
func (e *ErrorResource) Drop() error           { return nil }
func (e *ErrorResource) ToDebugString() string { return e.msg }
