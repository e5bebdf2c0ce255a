// Package netpool holds the network capability a guest receives: the set of
// local addresses it may bind and remote addresses it may connect to.
//
// A Pool is immutable once built and may be shared by any number of
// sockets. Authorization hands back a Binder or Connecter token that
// performs the single syscall it was granted for.
package netpool

import (
	"errors"
	"net/netip"

	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
)

var (
	// ErrAccessDenied reports an address outside the pool.
	ErrAccessDenied = errors.New("netpool: address not permitted by network capability")

	// ErrInvalidAddress reports an address that fails validation regardless
	// of pool contents.
	ErrInvalidAddress = errors.New("netpool: invalid socket address")
)

// Rule grants every address in Prefix with a port in [MinPort, MaxPort].
type Rule struct {
	Prefix  netip.Prefix
	MinPort uint16
	MaxPort uint16
}

// AnyPort returns a rule for every port of prefix.
func AnyPort(prefix netip.Prefix) Rule {
	return Rule{Prefix: prefix, MinPort: 0, MaxPort: 65535}
}

// Contains reports whether addr is granted by the rule.
func (r Rule) Contains(addr netip.AddrPort) bool {
	ip := addr.Addr().WithZone("")
	if r.Prefix.Addr().Is4() {
		ip = ip.Unmap()
	}
	if !r.Prefix.Contains(ip) {
		return false
	}
	port := addr.Port()
	return port >= r.MinPort && port <= r.MaxPort
}

// Pool is an immutable set of bind and connect grants.
type Pool struct {
	bind     []Rule
	connect  []Rule
	allowAll bool
}

// New builds a pool from explicit bind and connect rules.
func New(bind, connect []Rule) *Pool {
	return &Pool{
		bind:    append([]Rule(nil), bind...),
		connect: append([]Rule(nil), connect...),
	}
}

// AllowAll returns a pool that grants every address.
func AllowAll() *Pool {
	return &Pool{allowAll: true}
}

// Empty returns a pool that grants nothing.
func Empty() *Pool {
	return &Pool{}
}

// IsAllowAll reports whether the pool grants every address.
func (p *Pool) IsAllowAll() bool {
	return p.allowAll
}

// BindRules returns a copy of the bind grants.
func (p *Pool) BindRules() []Rule {
	return append([]Rule(nil), p.bind...)
}

// ConnectRules returns a copy of the connect grants.
func (p *Pool) ConnectRules() []Rule {
	return append([]Rule(nil), p.connect...)
}

func (p *Pool) allows(rules []Rule, addr netip.AddrPort) bool {
	if p.allowAll {
		return true
	}
	for _, r := range rules {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// Binder is permission to bind one local address.
type Binder struct {
	addr netip.AddrPort
}

// Addr returns the granted address.
func (b Binder) Addr() netip.AddrPort { return b.addr }

// Bind binds s to the granted address.
func (b Binder) Bind(s *sysnet.Socket) error {
	return s.Bind(b.addr)
}

// Connecter is permission to connect to one remote address.
type Connecter struct {
	addr netip.AddrPort
}

// Addr returns the granted address.
func (c Connecter) Addr() netip.AddrPort { return c.addr }

// Connect starts a non-blocking connect of s to the granted address.
func (c Connecter) Connect(s *sysnet.Socket) error {
	return s.Connect(c.addr)
}

// TCPBinder authorizes binding addr.
func (p *Pool) TCPBinder(addr netip.AddrPort) (Binder, error) {
	if !p.allows(p.bind, addr) {
		return Binder{}, ErrAccessDenied
	}
	return Binder{addr: addr}, nil
}

// TCPConnecter authorizes connecting to addr.
func (p *Pool) TCPConnecter(addr netip.AddrPort) (Connecter, error) {
	if !p.allows(p.connect, addr) {
		return Connecter{}, ErrAccessDenied
	}
	return Connecter{addr: addr}, nil
}
