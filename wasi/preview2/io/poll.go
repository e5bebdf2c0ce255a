package io

import (
	"context"
	"time"

	"github.com/wippyai/wasi-sockets/wasi/preview2"
)

// pollInterval is how long Poll sleeps between scans when nothing is ready.
const pollInterval = 5 * time.Millisecond

type PollHost struct {
	resources *preview2.ResourceTable
}

func NewPollHost(resources *preview2.ResourceTable) *PollHost {
	return &PollHost{resources: resources}
}

func (h *PollHost) Namespace() string {
	return "wasi:io/poll@0.2.0"
}

// Poll waits until at least one pollable is ready and returns the indices
// of the ready ones. It returns an empty list if ctx ends first.
func (h *PollHost) Poll(ctx context.Context, pollables []uint32) []uint32 {
	for {
		ready := h.scan(pollables)
		if len(ready) > 0 || len(pollables) == 0 {
			return ready
		}
		select {
		case <-ctx.Done():
			return ready
		case <-time.After(pollInterval):
		}
	}
}

func (h *PollHost) scan(pollables []uint32) []uint32 {
	ready := make([]uint32, 0, len(pollables))

	for i, handle := range pollables {
		r, ok := h.resources.Get(handle)
		if !ok {
			// A dead handle can never become ready; report it so the
			// caller is not stuck waiting on it.
			ready = append(ready, uint32(i))
			continue
		}
		if p, ok := r.(preview2.Pollable); ok {
			if p.Ready() {
				ready = append(ready, uint32(i))
			}
		}
	}

	return ready
}

func (h *PollHost) MethodPollableReady(_ context.Context, self uint32) bool {
	r, ok := h.resources.Get(self)
	if !ok {
		return false
	}
	if p, ok := r.(preview2.Pollable); ok {
		return p.Ready()
	}
	return false
}

func (h *PollHost) MethodPollableBlock(ctx context.Context, self uint32) {
	r, ok := h.resources.Get(self)
	if !ok {
		return
	}
	if p, ok := r.(preview2.Pollable); ok {
		p.Block(ctx)
	}
}

func (h *PollHost) ResourceDropPollable(_ context.Context, self uint32) error {
	_, err := h.resources.Delete(self)
	return err
}

func (h *PollHost) Register() map[string]any {
	return map[string]any{
		"poll":                    h.Poll,
		"[method]pollable.ready":  h.MethodPollableReady,
		"[method]pollable.block":  h.MethodPollableBlock,
		"[resource-drop]pollable": h.ResourceDropPollable,
	}
}
