package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasi-sockets/resource"
	"github.com/wippyai/wasi-sockets/runtime"
	"github.com/wippyai/wasi-sockets/wasi/preview2"
	"github.com/wippyai/wasi-sockets/wasi/preview2/netpool"
	"github.com/wippyai/wasi-sockets/wasi/preview2/sockets"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type options struct {
	policy      string
	family      string
	message     string
	backlog     uint64
	guest       string
	verbose     bool
	interactive bool
}

func main() {
	var opts options
	flags := pflag.NewFlagSet("sockprobe", pflag.ExitOnError)
	flags.StringVar(&opts.policy, "policy", "", "network policy YAML (default: loopback only)")
	flags.StringVar(&opts.family, "family", "ipv4", "address family: ipv4 or ipv6")
	flags.StringVar(&opts.message, "message", "hello from sockprobe", "payload echoed across the connection")
	flags.Uint64Var(&opts.backlog, "backlog", 16, "listen backlog size")
	flags.StringVar(&opts.guest, "guest", "", "core wasm module to run against the socket hosts instead of the probe")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every phase transition")
	flags.BoolVarP(&opts.interactive, "interactive", "i", false, "step through the probe one call at a time")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: sockprobe [--policy file.yaml] [--family ipv4|ipv6] [--message text] [-v] [-i]")
		fmt.Fprintln(os.Stderr, "       sockprobe --guest module.wasm [--policy file.yaml]")
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func run(opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log, err := newLogger(opts.verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	sockets.SetLogger(log.Named("sockets"))
	resource.SetLogger(log.Named("resource"))
	runtime.SetLogger(log.Named("runtime"))

	family, err := parseFamily(opts.family)
	if err != nil {
		return err
	}
	pool, err := loadPool(opts.policy)
	if err != nil {
		return err
	}
	log.Info("network policy",
		zap.String("path", opts.policy),
		zap.Bool("allow_all", pool.IsAllowAll()),
		zap.Int("bind_rules", len(pool.BindRules())),
		zap.Int("connect_rules", len(pool.ConnectRules())))
	wasi := preview2.New().WithNetwork(pool).WithLogger(log.Named("probe"))

	if opts.guest != "" {
		return runGuest(ctx, wasi, opts.guest)
	}
	defer wasi.Close()

	p := newProbe(wasi, family, opts.backlog, opts.message)
	if opts.interactive {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return runInteractive(ctx, p)
		}
		log.Warn("stdout is not a terminal, running non-interactively")
	}

	results := p.run(ctx)
	fmt.Println(renderSummary(results))
	for _, r := range results {
		if r.err != nil {
			return fmt.Errorf("%s: %w", r.name, r.err)
		}
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func parseFamily(s string) (uint8, error) {
	switch strings.ToLower(s) {
	case "ipv4", "4", "inet":
		return sockets.AddressFamilyIPv4, nil
	case "ipv6", "6", "inet6":
		return sockets.AddressFamilyIPv6, nil
	}
	return 0, fmt.Errorf("unknown address family %q", s)
}

// loadPool reads the policy file, or grants loopback only when path is empty.
func loadPool(path string) (*netpool.Pool, error) {
	if path == "" {
		loopback := []netpool.Rule{
			netpool.AnyPort(netip.MustParsePrefix("127.0.0.0/8")),
			netpool.AnyPort(netip.MustParsePrefix("::1/128")),
		}
		return netpool.New(loopback, loopback), nil
	}

	cfg, err := netpool.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg.Pool()
}

func runGuest(ctx context.Context, wasi *preview2.WASI, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read guest: %w", err)
	}

	rt, err := runtime.NewWithConfig(ctx, &runtime.Config{CloseOnContextDone: true})
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(context.Background())

	if err := rt.RegisterWASI(wasi); err != nil {
		return fmt.Errorf("register WASI: %w", err)
	}
	mod, err := rt.InstantiateWASM(ctx, "guest", data)
	if err != nil {
		return err
	}

	if fn := mod.ExportedFunction("_start"); fn != nil {
		if _, err := fn.Call(ctx); err != nil {
			return fmt.Errorf("call _start: %w", err)
		}
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("guest %s finished, %d resources still open", path, wasi.Resources().Len())))
	return nil
}

func renderSummary(results []stepResult) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("sockprobe"))
	b.WriteString("\n\n")
	for i, r := range results {
		b.WriteString(renderResult(i+1, r))
		b.WriteString("\n")
	}
	return b.String()
}

func renderResult(n int, r stepResult) string {
	status := okStyle.Render("ok")
	if r.err != nil {
		status = errorStyle.Render(r.err.Error())
	}
	line := fmt.Sprintf("%2d. %s %s", n, funcStyle.Render(r.name), status)
	if r.detail != "" {
		line += " " + r.detail
	}
	if r.state != "" {
		line += "\n    " + stateStyle.Render(r.state)
	}
	return line
}
