package netpool

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasi-sockets/errors"
)

// Config is the on-disk form of a network capability.
type Config struct {
	// AllowAll grants every address and ignores Bind and Connect.
	AllowAll bool `yaml:"allow_all"`

	// Bind lists the local addresses a guest may bind.
	Bind []RuleConfig `yaml:"bind"`

	// Connect lists the remote addresses a guest may connect to.
	Connect []RuleConfig `yaml:"connect"`
}

// RuleConfig is one grant. Supports two forms:
//
//	Simple:   - 127.0.0.0/8
//	Extended: - {cidr: 127.0.0.0/8, ports: "8000-8100"}
type RuleConfig struct {
	// CIDR is a prefix or a bare address (treated as a single host).
	CIDR string `yaml:"cidr"`

	// Ports is a single port, an inclusive range "lo-hi", or "*".
	// Empty means "*".
	Ports string `yaml:"ports"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (r *RuleConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		r.CIDR = value.Value
		r.Ports = "*"
		return nil
	}

	type rawRuleConfig RuleConfig
	var raw rawRuleConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*r = RuleConfig(raw)
	if r.Ports == "" {
		r.Ports = "*"
	}
	return nil
}

// LoadConfig reads a policy file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindIO, err, fmt.Sprintf("read network policy %s", path))
	}
	return ParseConfig(data)
}

// ParseConfig decodes a policy document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse network policy")
	}
	return &cfg, nil
}

// Pool validates the configuration and builds the capability.
func (c *Config) Pool() (*Pool, error) {
	if c.AllowAll {
		return AllowAll(), nil
	}
	bind, err := buildRules("bind", c.Bind)
	if err != nil {
		return nil, err
	}
	connect, err := buildRules("connect", c.Connect)
	if err != nil {
		return nil, err
	}
	return New(bind, connect), nil
}

func buildRules(section string, in []RuleConfig) ([]Rule, error) {
	out := make([]Rule, 0, len(in))
	for i, rc := range in {
		idx := strconv.Itoa(i)

		prefix, err := parsePrefix(rc.CIDR)
		if err != nil {
			return nil, errors.InvalidConfig([]string{section, idx, "cidr"}, rc.CIDR, err)
		}
		lo, hi, err := parsePorts(rc.Ports)
		if err != nil {
			return nil, errors.InvalidConfig([]string{section, idx, "ports"}, rc.Ports, err)
		}
		out = append(out, Rule{Prefix: prefix, MinPort: lo, MaxPort: hi})
	}
	return out, nil
}

func parsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func parsePorts(s string) (uint16, uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return 0, 65535, nil
	}
	loStr, hiStr, isRange := strings.Cut(s, "-")
	lo, err := parsePort(loStr)
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return lo, lo, nil
	}
	hi, err := parsePort(hiStr)
	if err != nil {
		return 0, 0, err
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("port range %d-%d is reversed", lo, hi)
	}
	return lo, hi, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(n), nil
}
