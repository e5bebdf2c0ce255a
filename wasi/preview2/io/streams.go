package io

import (
	"context"
	"errors"

	"github.com/wippyai/wasi-sockets/wasi/preview2"
	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
)

type inputStream interface {
	Read(uint64) ([]byte, error)
}

type outputStream interface {
	Write([]byte) error
	CheckWrite() (uint64, error)
	Flush() error
	Pending() int
}

// socketStream is a stream backed by a socket, whose readiness can be
// waited on.
type socketStream interface {
	Socket() *preview2.TCPSocketResource
}

type StreamsHost struct {
	resources *preview2.ResourceTable
}

func NewStreamsHost(resources *preview2.ResourceTable) *StreamsHost {
	return &StreamsHost{resources: resources}
}

func (h *StreamsHost) Namespace() string {
	return "wasi:io/streams@0.2.0"
}

func (h *StreamsHost) input(self uint32) (inputStream, *preview2.StreamError) {
	r, ok := h.resources.Get(self)
	if !ok {
		return nil, &preview2.StreamError{Closed: true}
	}
	stream, ok := r.(inputStream)
	if !ok {
		return nil, &preview2.StreamError{Closed: true}
	}
	return stream, nil
}

func (h *StreamsHost) output(self uint32) (outputStream, *preview2.StreamError) {
	r, ok := h.resources.Get(self)
	if !ok {
		return nil, &preview2.StreamError{Closed: true}
	}
	stream, ok := r.(outputStream)
	if !ok {
		return nil, &preview2.StreamError{Closed: true}
	}
	return stream, nil
}

// streamError converts err to a StreamError. A failed operation gets an
// error resource the guest can inspect.
func (h *StreamsHost) streamError(err error) *preview2.StreamError {
	var se *preview2.StreamError
	if !errors.As(err, &se) {
		se = &preview2.StreamError{LastOpFailed: true, Err: err}
	}
	if se.LastOpFailed && se.Handle == 0 {
		msg := "stream operation failed"
		if se.Err != nil {
			msg = se.Err.Error()
		}
		if handle, aerr := h.resources.Add(preview2.NewErrorResource(msg)); aerr == nil {
			se.Handle = handle
		}
	}
	return se
}

// wait blocks until the socket behind stream reports events or ctx ends.
func wait(ctx context.Context, stream any, events sysnet.Events) {
	s, ok := stream.(socketStream)
	if !ok {
		return
	}
	preview2.NewStreamPollable(s.Socket(), events).Block(ctx)
}

func (h *StreamsHost) MethodInputStreamRead(_ context.Context, self uint32, length uint64) ([]byte, *preview2.StreamError) {
	stream, serr := h.input(self)
	if serr != nil {
		return nil, serr
	}

	data, err := stream.Read(length)
	if err != nil {
		return nil, h.streamError(err)
	}
	return data, nil
}

// MethodInputStreamBlockingRead waits until at least one byte, EOF or an
// error is available.
func (h *StreamsHost) MethodInputStreamBlockingRead(ctx context.Context, self uint32, length uint64) ([]byte, *preview2.StreamError) {
	stream, serr := h.input(self)
	if serr != nil {
		return nil, serr
	}

	for {
		data, err := stream.Read(length)
		if err != nil {
			return nil, h.streamError(err)
		}
		if len(data) > 0 || length == 0 || ctx.Err() != nil {
			return data, nil
		}
		wait(ctx, stream, sysnet.EventRead)
	}
}

func (h *StreamsHost) MethodInputStreamSkip(ctx context.Context, self uint32, length uint64) (uint64, *preview2.StreamError) {
	data, serr := h.MethodInputStreamRead(ctx, self, length)
	if serr != nil {
		return 0, serr
	}
	return uint64(len(data)), nil
}

func (h *StreamsHost) MethodInputStreamBlockingSkip(ctx context.Context, self uint32, length uint64) (uint64, *preview2.StreamError) {
	data, serr := h.MethodInputStreamBlockingRead(ctx, self, length)
	if serr != nil {
		return 0, serr
	}
	return uint64(len(data)), nil
}

// MethodInputStreamSubscribe returns a pollable that becomes ready when the
// socket has data. It is a child of the stream.
func (h *StreamsHost) MethodInputStreamSubscribe(_ context.Context, self uint32) (uint32, error) {
	return h.subscribe(self, sysnet.EventRead)
}

func (h *StreamsHost) subscribe(self uint32, events sysnet.Events) (uint32, error) {
	r, ok := h.resources.Get(self)
	if !ok {
		return 0, errors.New("subscribe: unknown stream handle")
	}
	var p preview2.Pollable = &preview2.PollableResource{}
	if s, ok := r.(socketStream); ok {
		p = preview2.NewStreamPollable(s.Socket(), events)
	} else {
		p.(*preview2.PollableResource).SetReady(true)
	}
	return h.resources.AddChild(p, self)
}

func (h *StreamsHost) MethodOutputStreamCheckWrite(_ context.Context, self uint32) (uint64, *preview2.StreamError) {
	stream, serr := h.output(self)
	if serr != nil {
		return 0, serr
	}

	size, err := stream.CheckWrite()
	if err != nil {
		return 0, h.streamError(err)
	}
	return size, nil
}

func (h *StreamsHost) MethodOutputStreamWrite(_ context.Context, self uint32, contents []byte) *preview2.StreamError {
	stream, serr := h.output(self)
	if serr != nil {
		return serr
	}

	if err := stream.Write(contents); err != nil {
		return h.streamError(err)
	}
	return nil
}

func (h *StreamsHost) MethodOutputStreamBlockingWriteAndFlush(ctx context.Context, self uint32, contents []byte) *preview2.StreamError {
	stream, serr := h.output(self)
	if serr != nil {
		return serr
	}

	return h.blockingWrite(ctx, stream, contents)
}

// blockingWrite writes contents in permit-sized chunks, waiting for the
// socket between them, then flushes.
func (h *StreamsHost) blockingWrite(ctx context.Context, stream outputStream, contents []byte) *preview2.StreamError {
	for len(contents) > 0 {
		permit, err := stream.CheckWrite()
		if err != nil {
			return h.streamError(err)
		}
		if permit == 0 {
			if ctx.Err() != nil {
				return h.streamError(ctx.Err())
			}
			wait(ctx, stream, sysnet.EventWrite)
			continue
		}
		n := min(uint64(len(contents)), permit)
		if err := stream.Write(contents[:n]); err != nil {
			return h.streamError(err)
		}
		contents = contents[n:]
	}
	return h.blockingFlush(ctx, stream)
}

func (h *StreamsHost) MethodOutputStreamFlush(_ context.Context, self uint32) *preview2.StreamError {
	stream, serr := h.output(self)
	if serr != nil {
		return serr
	}

	if err := stream.Flush(); err != nil {
		return h.streamError(err)
	}
	return nil
}

func (h *StreamsHost) MethodOutputStreamBlockingFlush(ctx context.Context, self uint32) *preview2.StreamError {
	stream, serr := h.output(self)
	if serr != nil {
		return serr
	}
	return h.blockingFlush(ctx, stream)
}

// blockingFlush pushes held bytes until none remain or ctx ends.
func (h *StreamsHost) blockingFlush(ctx context.Context, stream outputStream) *preview2.StreamError {
	for {
		if err := stream.Flush(); err != nil {
			return h.streamError(err)
		}
		if stream.Pending() == 0 {
			return nil
		}
		if ctx.Err() != nil {
			return h.streamError(ctx.Err())
		}
		wait(ctx, stream, sysnet.EventWrite)
	}
}

// MethodOutputStreamSubscribe returns a pollable that becomes ready when the
// socket accepts more bytes. It is a child of the stream.
func (h *StreamsHost) MethodOutputStreamSubscribe(_ context.Context, self uint32) (uint32, error) {
	return h.subscribe(self, sysnet.EventWrite)
}

func (h *StreamsHost) MethodOutputStreamWriteZeroes(ctx context.Context, self uint32, length uint64) *preview2.StreamError {
	if length > preview2.MaxReadSize {
		return h.streamError(errors.New("write-zeroes: length exceeds limit"))
	}
	return h.MethodOutputStreamWrite(ctx, self, make([]byte, length))
}

func (h *StreamsHost) MethodOutputStreamBlockingWriteZeroesAndFlush(ctx context.Context, self uint32, length uint64) *preview2.StreamError {
	if length > preview2.MaxReadSize {
		return h.streamError(errors.New("write-zeroes: length exceeds limit"))
	}
	return h.MethodOutputStreamBlockingWriteAndFlush(ctx, self, make([]byte, length))
}

func (h *StreamsHost) MethodOutputStreamSplice(_ context.Context, self uint32, src uint32, length uint64) (uint64, *preview2.StreamError) {
	in, serr := h.input(src)
	if serr != nil {
		return 0, serr
	}
	out, serr := h.output(self)
	if serr != nil {
		return 0, serr
	}

	// never read more than the output can take
	permit, err := out.CheckWrite()
	if err != nil {
		return 0, h.streamError(err)
	}
	length = min(length, permit)
	if length == 0 {
		return 0, nil
	}

	data, err := in.Read(length)
	if err != nil {
		return 0, h.streamError(err)
	}
	if err := out.Write(data); err != nil {
		return 0, h.streamError(err)
	}
	return uint64(len(data)), nil
}

func (h *StreamsHost) MethodOutputStreamBlockingSplice(ctx context.Context, self uint32, src uint32, length uint64) (uint64, *preview2.StreamError) {
	data, serr := h.MethodInputStreamBlockingRead(ctx, src, length)
	if serr != nil {
		return 0, serr
	}
	if serr := h.MethodOutputStreamBlockingWriteAndFlush(ctx, self, data); serr != nil {
		return 0, serr
	}
	return uint64(len(data)), nil
}

// ResourceDropInputStream fails while a pollable made from the stream is
// still live.
func (h *StreamsHost) ResourceDropInputStream(_ context.Context, self uint32) error {
	_, err := h.resources.Delete(self)
	return err
}

func (h *StreamsHost) ResourceDropOutputStream(_ context.Context, self uint32) error {
	_, err := h.resources.Delete(self)
	return err
}

func (h *StreamsHost) Register() map[string]any {
	return map[string]any{
		"[method]input-stream.read":          h.MethodInputStreamRead,
		"[method]input-stream.blocking-read": h.MethodInputStreamBlockingRead,
		"[method]input-stream.skip":          h.MethodInputStreamSkip,
		"[method]input-stream.blocking-skip": h.MethodInputStreamBlockingSkip,
		"[method]input-stream.subscribe":     h.MethodInputStreamSubscribe,
		// Output stream methods
		"[method]output-stream.check-write":                     h.MethodOutputStreamCheckWrite,
		"[method]output-stream.write":                           h.MethodOutputStreamWrite,
		"[method]output-stream.blocking-write-and-flush":        h.MethodOutputStreamBlockingWriteAndFlush,
		"[method]output-stream.flush":                           h.MethodOutputStreamFlush,
		"[method]output-stream.blocking-flush":                  h.MethodOutputStreamBlockingFlush,
		"[method]output-stream.subscribe":                       h.MethodOutputStreamSubscribe,
		"[method]output-stream.write-zeroes":                    h.MethodOutputStreamWriteZeroes,
		"[method]output-stream.blocking-write-zeroes-and-flush": h.MethodOutputStreamBlockingWriteZeroesAndFlush,
		"[method]output-stream.splice":                          h.MethodOutputStreamSplice,
		"[method]output-stream.blocking-splice":                 h.MethodOutputStreamBlockingSplice,
		// Resource destructors
		"[resource-drop]input-stream":  h.ResourceDropInputStream,
		"[resource-drop]output-stream": h.ResourceDropOutputStream,
	}
}
