package preview2

import (
	"context"
	"time"

	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
)

// blockSlice bounds one blocking poll so ctx cancellation is noticed.
const blockSlice = 50 * time.Millisecond

// Pollable is the interface for resources that can be polled.
type Pollable interface {
	Resource
	// Ready reports readiness without blocking.
	Ready() bool
	// Block waits until the resource becomes ready or ctx is canceled.
	Block(ctx context.Context)
}

// PollableResource is a pollable whose readiness is set by the host.
type PollableResource struct {
	ready bool
}

func (p *PollableResource) Type() ResourceType { return ResourcePollable }
func (p *PollableResource) Drop() error        { return nil }
func (p *PollableResource) Ready() bool        { return p.ready }
func (p *PollableResource) SetReady(r bool)    { p.ready = r }
func (p *PollableResource) Block(ctx context.Context) {
	if !p.ready {
		<-ctx.Done()
	}
}

// SocketPollable signals socket readiness to the poll host. A pollable made
// by tcp-socket.subscribe derives its interest from the socket phase; one
// made by a stream subscribe waits for a fixed direction.
type SocketPollable struct {
	socket *TCPSocketResource
	events sysnet.Events
}

// NewSocketPollable returns a pollable driven by the socket phase.
func NewSocketPollable(socket *TCPSocketResource) *SocketPollable {
	return &SocketPollable{socket: socket}
}

// NewStreamPollable returns a pollable waiting for events on socket.
func NewStreamPollable(socket *TCPSocketResource, events sysnet.Events) *SocketPollable {
	return &SocketPollable{socket: socket, events: events}
}

func (p *SocketPollable) Type() ResourceType { return ResourcePollable }
func (p *SocketPollable) Drop() error        { return nil }

// interest returns the events to wait for. ok is false when the socket has
// nothing to wait on and is ready immediately.
func (p *SocketPollable) interest() (sysnet.Events, bool) {
	if p.events != 0 {
		return p.events, true
	}
	switch p.socket.State() {
	case TCPStateConnecting:
		return sysnet.EventWrite, true
	case TCPStateListening:
		return sysnet.EventRead, true
	case TCPStateConnected:
		return sysnet.EventRead | sysnet.EventWrite, true
	}
	return 0, false
}

// Ready polls the socket with a zero timeout. Poll errors count as ready so
// the caller observes them on its next call.
func (p *SocketPollable) Ready() bool {
	ev, ok := p.interest()
	if !ok {
		return true
	}
	got, err := p.socket.Socket().Poll(ev, 0)
	return err != nil || got != 0
}

// Block waits in bounded slices until ready or ctx is done.
func (p *SocketPollable) Block(ctx context.Context) {
	for {
		ev, ok := p.interest()
		if !ok {
			return
		}
		got, err := p.socket.Socket().Poll(ev, blockSlice)
		if err != nil || got != 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// TimerPollable becomes ready at a deadline. Guests pair it with socket
// pollables to bound a wait on finish-connect or accept.
type TimerPollable struct {
	deadline time.Time
}

func NewTimerPollable(deadline time.Time) *TimerPollable {
	return &TimerPollable{deadline: deadline}
}

func (p *TimerPollable) Type() ResourceType { return ResourcePollable }
func (p *TimerPollable) Drop() error        { return nil }
func (p *TimerPollable) Ready() bool        { return !time.Now().Before(p.deadline) }

func (p *TimerPollable) Block(ctx context.Context) {
	d := time.Until(p.deadline)
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
