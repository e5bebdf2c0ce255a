package clocks

import (
	"context"
	"math"
	"time"

	"github.com/wippyai/wasi-sockets/wasi/preview2"
)

// MonotonicClockHost serves wasi:clocks/monotonic-clock. Instants are
// nanoseconds since the host was created.
type MonotonicClockHost struct {
	resources *preview2.ResourceTable
	startTime time.Time
}

func NewMonotonicClockHost(resources *preview2.ResourceTable) *MonotonicClockHost {
	return &MonotonicClockHost{
		resources: resources,
		startTime: time.Now(),
	}
}

func (h *MonotonicClockHost) Namespace() string {
	return "wasi:clocks/monotonic-clock@0.2.0"
}

func (h *MonotonicClockHost) Now(_ context.Context) uint64 {
	return uint64(time.Since(h.startTime).Nanoseconds())
}

func (h *MonotonicClockHost) Resolution(_ context.Context) uint64 {
	return 1
}

func (h *MonotonicClockHost) SubscribeInstant(_ context.Context, when uint64) (uint32, error) {
	return h.resources.Add(preview2.NewTimerPollable(h.startTime.Add(duration(when))))
}

func (h *MonotonicClockHost) SubscribeDuration(_ context.Context, d uint64) (uint32, error) {
	return h.resources.Add(preview2.NewTimerPollable(time.Now().Add(duration(d))))
}

// duration converts guest nanoseconds, saturating at the largest Duration.
func duration(ns uint64) time.Duration {
	if ns > math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(ns)
}
