package netpool

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	werrors "github.com/wippyai/wasi-sockets/errors"
	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
)

func ap(s string) netip.AddrPort { return netip.MustParseAddrPort(s) }

func TestValidateUnicast(t *testing.T) {
	tests := []struct {
		addr string
		ok   bool
	}{
		{"127.0.0.1:80", true},
		{"0.0.0.0:0", true},
		{"[::1]:80", true},
		{"224.0.0.1:80", false},
		{"255.255.255.255:80", false},
		{"[ff02::1]:80", false},
		{"[::ffff:224.0.0.1]:80", false},
	}
	for _, tt := range tests {
		err := ValidateUnicast(ap(tt.addr))
		if (err == nil) != tt.ok {
			t.Errorf("ValidateUnicast(%s) = %v, want ok=%v", tt.addr, err, tt.ok)
		}
	}

	if err := ValidateUnicast(netip.AddrPort{}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("zero address = %v, want ErrInvalidAddress", err)
	}
}

func TestValidateFamily(t *testing.T) {
	tests := []struct {
		name   string
		addr   string
		family sysnet.Family
		v6only bool
		ok     bool
	}{
		{"v4 on v4", "10.0.0.1:1", sysnet.IPv4, false, true},
		{"v6 on v4", "[::1]:1", sysnet.IPv4, false, false},
		{"mapped on v4", "[::ffff:10.0.0.1]:1", sysnet.IPv4, false, false},
		{"v6 on v6", "[::1]:1", sysnet.IPv6, false, true},
		{"v4 on v6", "10.0.0.1:1", sysnet.IPv6, false, false},
		{"mapped on dual-stack", "[::ffff:10.0.0.1]:1", sysnet.IPv6, false, true},
		{"mapped on v6only", "[::ffff:10.0.0.1]:1", sysnet.IPv6, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFamily(ap(tt.addr), tt.family, tt.v6only)
			if (err == nil) != tt.ok {
				t.Errorf("got %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestValidateRemote(t *testing.T) {
	for _, s := range []string{"0.0.0.0:80", "[::]:80", "127.0.0.1:0", "[::ffff:0.0.0.0]:80"} {
		if err := ValidateRemote(ap(s)); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("ValidateRemote(%s) = %v, want ErrInvalidAddress", s, err)
		}
	}
	if err := ValidateRemote(ap("127.0.0.1:80")); err != nil {
		t.Errorf("ValidateRemote(127.0.0.1:80) = %v", err)
	}
}

func TestPoolMembership(t *testing.T) {
	pool := New(
		[]Rule{{Prefix: netip.MustParsePrefix("127.0.0.0/8"), MinPort: 0, MaxPort: 0}},
		[]Rule{{Prefix: netip.MustParsePrefix("127.0.0.1/32"), MinPort: 1024, MaxPort: 65535}},
	)

	if _, err := pool.TCPBinder(ap("127.0.0.1:0")); err != nil {
		t.Errorf("bind ephemeral loopback: %v", err)
	}
	if _, err := pool.TCPBinder(ap("127.0.0.1:8080")); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("bind fixed port = %v, want ErrAccessDenied", err)
	}
	if _, err := pool.TCPBinder(ap("10.0.0.1:0")); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("bind outside prefix = %v, want ErrAccessDenied", err)
	}

	c, err := pool.TCPConnecter(ap("127.0.0.1:8080"))
	if err != nil {
		t.Fatalf("connect loopback: %v", err)
	}
	if c.Addr() != ap("127.0.0.1:8080") {
		t.Errorf("Connecter.Addr = %v", c.Addr())
	}
	if _, err := pool.TCPConnecter(ap("127.0.0.1:80")); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("connect privileged port = %v, want ErrAccessDenied", err)
	}

	// IPv4-mapped peers match IPv4 rules.
	if _, err := pool.TCPConnecter(ap("[::ffff:127.0.0.1]:8080")); err != nil {
		t.Errorf("mapped connect: %v", err)
	}
}

func TestAllowAllAndEmpty(t *testing.T) {
	if _, err := AllowAll().TCPBinder(ap("[2001:db8::1]:443")); err != nil {
		t.Errorf("AllowAll bind: %v", err)
	}
	if !AllowAll().IsAllowAll() {
		t.Error("IsAllowAll = false")
	}
	if _, err := Empty().TCPConnecter(ap("127.0.0.1:80")); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Empty connect = %v, want ErrAccessDenied", err)
	}
}

func TestPoolIsImmutable(t *testing.T) {
	rules := []Rule{AnyPort(netip.MustParsePrefix("127.0.0.0/8"))}
	pool := New(rules, nil)
	rules[0] = AnyPort(netip.MustParsePrefix("10.0.0.0/8"))

	if _, err := pool.TCPBinder(ap("127.0.0.1:80")); err != nil {
		t.Errorf("caller mutation leaked into pool: %v", err)
	}
	got := pool.BindRules()
	got[0] = Rule{}
	if pool.BindRules()[0].Prefix.Bits() != 8 {
		t.Error("BindRules returned internal slice")
	}
}

func TestParseConfig(t *testing.T) {
	doc := []byte(`
bind:
  - 127.0.0.0/8
  - cidr: "::1"
    ports: "0"
connect:
  - cidr: 127.0.0.1/32
    ports: "1024-65535"
`)
	cfg, err := ParseConfig(doc)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(cfg.Bind) != 2 || cfg.Bind[0].Ports != "*" {
		t.Fatalf("Bind = %+v", cfg.Bind)
	}

	pool, err := cfg.Pool()
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	if _, err := pool.TCPBinder(ap("127.1.2.3:9000")); err != nil {
		t.Errorf("scalar rule should allow any port: %v", err)
	}
	if _, err := pool.TCPBinder(ap("[::1]:0")); err != nil {
		t.Errorf("bare address rule: %v", err)
	}
	if _, err := pool.TCPBinder(ap("[::1]:80")); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("port-0 rule allowed 80: %v", err)
	}
	if _, err := pool.TCPConnecter(ap("127.0.0.1:1023")); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("range lower bound not enforced: %v", err)
	}
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"bad cidr", "bind:\n  - cidr: 10.0.0.0/33\n", "bind.0.cidr"},
		{"bad port", "connect:\n  - cidr: 10.0.0.1\n    ports: \"70000\"\n", "connect.0.ports"},
		{"reversed range", "connect:\n  - cidr: 10.0.0.1\n    ports: \"90-80\"\n", "connect.0.ports"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.doc))
			if err != nil {
				t.Fatalf("ParseConfig: %v", err)
			}
			_, err = cfg.Pool()
			var werr *werrors.Error
			if !errors.As(err, &werr) {
				t.Fatalf("Pool error = %v, want *errors.Error", err)
			}
			if werr.Phase != werrors.PhaseConfig || werr.Kind != werrors.KindInvalidInput {
				t.Errorf("got %s/%s", werr.Phase, werr.Kind)
			}
			if got := joinPath(werr.Path); got != tt.path {
				t.Errorf("Path = %s, want %s", got, tt.path)
			}
		})
	}

	if _, err := ParseConfig([]byte("bind: [")); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func joinPath(p []string) string {
	out := ""
	for i, s := range p {
		if i > 0 {
			out += "."
		}
		out += s
	}
	return out
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("allow_all: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	pool, err := cfg.Pool()
	if err != nil || !pool.IsAllowAll() {
		t.Errorf("Pool = %v, %v", pool, err)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
