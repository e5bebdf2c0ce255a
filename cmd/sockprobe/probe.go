package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-sockets/wasi/preview2"
	"github.com/wippyai/wasi-sockets/wasi/preview2/io"
	"github.com/wippyai/wasi-sockets/wasi/preview2/sockets"
)

// stepTimeout bounds every wait on a pollable.
const stepTimeout = 5 * time.Second

// stepResult records one host call.
type stepResult struct {
	name   string
	detail string
	state  string
	err    error
}

type step struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// probe drives a listener and a client through the socket hosts and echoes
// a message across the accepted connection.
type probe struct {
	wasi    *preview2.WASI
	network *sockets.InstanceNetworkHost
	drop    *sockets.NetworkHost
	create  *sockets.TCPCreateSocketHost
	tcp     *sockets.TCPHost
	io      *io.Host
	log     *zap.Logger

	family  uint8
	backlog uint64
	message string

	net        uint32
	listener   uint32
	client     uint32
	server     uint32
	clientIn   uint32
	clientOut  uint32
	serverIn   uint32
	serverOut  uint32
	listenAddr netip.AddrPort

	steps []step
	next  int
}

func newProbe(wasi *preview2.WASI, family uint8, backlog uint64, message string) *probe {
	resources := wasi.Resources()
	p := &probe{
		wasi:    wasi,
		network: sockets.NewInstanceNetworkHost(resources, wasi.Network()),
		drop:    sockets.NewNetworkHost(resources),
		create:  sockets.NewTCPCreateSocketHost(resources),
		tcp:     sockets.NewTCPHost(resources),
		io:      io.NewHost(resources),
		log:     wasi.Logger(),
		family:  family,
		backlog: backlog,
		message: message,
	}
	p.steps = p.script()
	return p
}

func (p *probe) loopback() netip.AddrPort {
	if p.family == sockets.AddressFamilyIPv6 {
		return netip.AddrPortFrom(netip.IPv6Loopback(), 0)
	}
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), 0)
}

func (p *probe) script() []step {
	return []step{
		{"instance-network", func(ctx context.Context) (string, error) {
			h, nerr := p.network.InstanceNetwork(ctx)
			if nerr != nil {
				return "", nerr
			}
			p.net = h
			return fmt.Sprintf("network %d", h), nil
		}},
		{"create-tcp-socket (listener)", func(ctx context.Context) (string, error) {
			h, nerr := p.create.CreateTCPSocket(ctx, p.family)
			if nerr != nil {
				return "", nerr
			}
			p.listener = h
			return fmt.Sprintf("socket %d", h), nil
		}},
		{"start-bind", func(ctx context.Context) (string, error) {
			addr := p.loopback()
			return addr.String(), asError(p.tcp.MethodTCPSocketStartBind(ctx, p.listener, p.net, addr))
		}},
		{"finish-bind", func(ctx context.Context) (string, error) {
			return "", asError(p.tcp.MethodTCPSocketFinishBind(ctx, p.listener))
		}},
		{"set-listen-backlog-size", func(ctx context.Context) (string, error) {
			return fmt.Sprint(p.backlog), asError(p.tcp.MethodTCPSocketSetListenBacklogSize(ctx, p.listener, p.backlog))
		}},
		{"start-listen", func(ctx context.Context) (string, error) {
			return "", asError(p.tcp.MethodTCPSocketStartListen(ctx, p.listener))
		}},
		{"finish-listen", func(ctx context.Context) (string, error) {
			if nerr := p.tcp.MethodTCPSocketFinishListen(ctx, p.listener); nerr != nil {
				return "", nerr
			}
			addr, nerr := p.tcp.MethodTCPSocketLocalAddress(ctx, p.listener)
			if nerr != nil {
				return "", nerr
			}
			p.listenAddr = addr
			return "listening on " + addr.String(), nil
		}},
		{"create-tcp-socket (client)", func(ctx context.Context) (string, error) {
			h, nerr := p.create.CreateTCPSocket(ctx, p.family)
			if nerr != nil {
				return "", nerr
			}
			p.client = h
			return fmt.Sprintf("socket %d", h), nil
		}},
		{"start-connect", func(ctx context.Context) (string, error) {
			return p.listenAddr.String(), asError(p.tcp.MethodTCPSocketStartConnect(ctx, p.client, p.net, p.listenAddr))
		}},
		{"finish-connect", func(ctx context.Context) (string, error) {
			polls := 0
			for {
				in, out, nerr := p.tcp.MethodTCPSocketFinishConnect(ctx, p.client)
				if nerr == nil {
					p.clientIn, p.clientOut = in, out
					return fmt.Sprintf("streams %d/%d after %d polls", in, out, polls), nil
				}
				if !errors.Is(nerr, sockets.ErrWouldBlock) {
					return "", nerr
				}
				polls++
				if err := p.wait(ctx, p.client); err != nil {
					return "", err
				}
			}
		}},
		{"accept", func(ctx context.Context) (string, error) {
			polls := 0
			for {
				h, in, out, nerr := p.tcp.MethodTCPSocketAccept(ctx, p.listener)
				if nerr == nil {
					p.server, p.serverIn, p.serverOut = h, in, out
					peer, _ := p.tcp.MethodTCPSocketRemoteAddress(ctx, h)
					return fmt.Sprintf("socket %d from %s after %d polls", h, peer, polls), nil
				}
				if !errors.Is(nerr, sockets.ErrWouldBlock) {
					return "", nerr
				}
				polls++
				if err := p.wait(ctx, p.listener); err != nil {
					return "", err
				}
			}
		}},
		{"client write", func(ctx context.Context) (string, error) {
			return fmt.Sprintf("%q", p.message), streamErr(p.io.Streams.MethodOutputStreamBlockingWriteAndFlush(ctx, p.clientOut, []byte(p.message)))
		}},
		{"server read", func(ctx context.Context) (string, error) {
			got, err := p.readAll(ctx, p.serverIn, len(p.message))
			return fmt.Sprintf("%q", got), err
		}},
		{"server echo", func(ctx context.Context) (string, error) {
			return "", streamErr(p.io.Streams.MethodOutputStreamBlockingWriteAndFlush(ctx, p.serverOut, []byte(p.message)))
		}},
		{"client read", func(ctx context.Context) (string, error) {
			got, err := p.readAll(ctx, p.clientIn, len(p.message))
			if err == nil && got != p.message {
				err = fmt.Errorf("echo mismatch: got %q", got)
			}
			return fmt.Sprintf("%q", got), err
		}},
		{"drop client with live streams", func(ctx context.Context) (string, error) {
			nerr := p.tcp.ResourceDropTCPSocket(ctx, p.client)
			if nerr == nil {
				return "", errors.New("drop succeeded while streams were live")
			}
			if errors.Is(nerr, sockets.ErrInvalidState) {
				return "refused: " + nerr.Code.String(), nil
			}
			return "", nerr
		}},
		{"shutdown client", func(ctx context.Context) (string, error) {
			return "both", asError(p.tcp.MethodTCPSocketShutdown(ctx, p.client, 2))
		}},
		{"drop everything", func(ctx context.Context) (string, error) {
			var err error
			for _, h := range []uint32{p.clientIn, p.serverIn} {
				err = multierr.Append(err, p.io.Streams.ResourceDropInputStream(ctx, h))
			}
			for _, h := range []uint32{p.clientOut, p.serverOut} {
				err = multierr.Append(err, p.io.Streams.ResourceDropOutputStream(ctx, h))
			}
			for _, h := range []uint32{p.client, p.server, p.listener} {
				err = multierr.Append(err, asError(p.tcp.ResourceDropTCPSocket(ctx, h)))
			}
			err = multierr.Append(err, asError(p.drop.ResourceDropNetwork(ctx, p.net)))
			return fmt.Sprintf("%d resources left", p.wasi.Resources().Len()), err
		}},
	}
}

// asError keeps a nil *NetworkError from becoming a non-nil error.
func asError(nerr *sockets.NetworkError) error {
	if nerr == nil {
		return nil
	}
	return nerr
}

func streamErr(serr *preview2.StreamError) error {
	if serr == nil {
		return nil
	}
	return serr
}

func (p *probe) wait(ctx context.Context, socket uint32) error {
	h, nerr := p.tcp.MethodTCPSocketSubscribe(ctx, socket)
	if nerr != nil {
		return nerr
	}
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	p.io.Poll.MethodPollableBlock(ctx, h)
	if err := ctx.Err(); err != nil {
		return multierr.Append(err, p.io.Poll.ResourceDropPollable(ctx, h))
	}
	return p.io.Poll.ResourceDropPollable(ctx, h)
}

func (p *probe) readAll(ctx context.Context, stream uint32, n int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	var buf []byte
	for len(buf) < n {
		chunk, serr := p.io.Streams.MethodInputStreamBlockingRead(ctx, stream, uint64(n-len(buf)))
		if serr != nil {
			return string(buf), streamErr(serr)
		}
		if err := ctx.Err(); err != nil {
			return string(buf), err
		}
		buf = append(buf, chunk...)
	}
	return string(buf), nil
}

// stateOf reports the phase of the socket a step last touched.
func (p *probe) stateOf(handle uint32) string {
	r, ok := p.wasi.Resources().Get(handle)
	if !ok {
		return "dropped"
	}
	if s, ok := r.(*preview2.TCPSocketResource); ok {
		return s.State().String()
	}
	return ""
}

func (p *probe) done() bool { return p.next >= len(p.steps) }

// step runs the next call of the script.
func (p *probe) step(ctx context.Context) stepResult {
	s := p.steps[p.next]
	p.next++

	detail, err := s.run(ctx)
	res := stepResult{name: s.name, detail: detail, err: err}

	var states []string
	for _, sock := range []struct {
		role   string
		handle uint32
	}{{"listener", p.listener}, {"client", p.client}, {"server", p.server}} {
		if sock.handle != 0 {
			states = append(states, sock.role+" "+p.stateOf(sock.handle))
		}
	}
	res.state = strings.Join(states, ", ")

	if err != nil {
		p.log.Warn("probe step failed", zap.String("step", s.name), zap.Error(err))
	} else {
		p.log.Info("probe step", zap.String("step", s.name), zap.String("detail", detail), zap.String("state", res.state))
	}
	return res
}

// run executes the whole script and stops at the first failure.
func (p *probe) run(ctx context.Context) []stepResult {
	var out []stepResult
	for !p.done() {
		res := p.step(ctx)
		out = append(out, res)
		if res.err != nil {
			break
		}
	}
	return out
}
