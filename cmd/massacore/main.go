// Command massacore runs a single-node deterministic execution pipeline:
// Final State, Active History, Slot Sequencer and the RPC surface of
// spec.md §6.1, fronted by JSON-RPC 2.0 over HTTP.
//
// Usage:
//
//	massacore [flags]
//
// Flags:
//
//	--rpc.addr       RPC listen address (default: :8545)
//	--threads        Execution thread count (default: 32)
//	--slot.ms        Slot duration in milliseconds (default: 16000)
//	--genesis.unix   Genesis timestamp, unix seconds (default: now)
//	--metrics        Enable Prometheus metrics on GET /metrics (default: true)
//	--verbosity      Log level 0-4: debug, info, warn, error (default: 1)
//	--version        Print version and exit
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/internal/metrics"
	"github.com/qdrn/massa/internal/xlog"
	"github.com/qdrn/massa/rpcapi"
	"github.com/qdrn/massa/selector"
	"github.com/qdrn/massa/sequencer"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

// nodeConfig is the process-level configuration surface, separate from
// config.Config (the execution pipeline's own tunables) since it also
// covers transport and logging concerns the pipeline has no opinion on.
type nodeConfig struct {
	RPCAddr     string
	Threads     uint64
	SlotMs      uint64
	GenesisUnix uint64
	Metrics     bool
	Verbosity   uint64
}

func defaultNodeConfig() nodeConfig {
	return nodeConfig{
		RPCAddr:     ":8545",
		Threads:     32,
		SlotMs:      16_000,
		GenesisUnix: uint64(time.Now().Unix()),
		Metrics:     true,
		Verbosity:   1,
	}
}

func verbosityToLevel(v uint64) slog.Level {
	switch {
	case v == 0:
		return slog.LevelDebug
	case v >= 3:
		return slog.LevelError
	case v == 2:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	ncfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	xlog.SetDefault(xlog.New(verbosityToLevel(ncfg.Verbosity)))
	log := xlog.Default().Module("main")

	if ncfg.Threads == 0 || ncfg.Threads > 255 {
		log.Error("invalid thread count", "threads", ncfg.Threads)
		return 1
	}

	cfg := config.DefaultConfig()
	cfg.ThreadCount = uint8(ncfg.Threads)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid execution config", "err", err)
		return 1
	}

	log.Info("massacore starting",
		"version", version, "commit", commit,
		"rpc_addr", ncfg.RPCAddr, "threads", cfg.ThreadCount,
		"slot_ms", ncfg.SlotMs, "genesis_unix", ncfg.GenesisUnix,
		"metrics", ncfg.Metrics)

	fs := finalstate.New(cfg)
	ah := activehistory.New()
	sel := selector.New(fs.Roll, cfg)
	clk := sequencer.NewClock(int64(ncfg.GenesisUnix), ncfg.SlotMs, cfg.ThreadCount)

	var met *metrics.Metrics
	if ncfg.Metrics {
		met = metrics.New()
	}
	sq := sequencer.New(fs, ah, cfg, sel, clk, met)

	srv := rpcapi.NewServer(sq, met)
	httpSrv := &http.Server{Addr: ncfg.RPCAddr, Handler: srv.Router()}

	ctx, cancel := context.WithCancel(context.Background())
	go sq.Run(ctx)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("rpc server listening", "addr", ncfg.RPCAddr)
		serveErr <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig)
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error("rpc server failed", "err", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("rpc server shutdown error", "err", err)
		return 1
	}

	log.Info("shutdown complete")
	return 0
}

// parseFlags parses CLI arguments into a nodeConfig. Returns the config,
// whether the caller should exit immediately, and the exit code.
func parseFlags(args []string) (nodeConfig, bool, int) {
	ncfg := defaultNodeConfig()
	fs := newFlagSet(&ncfg)

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ncfg, true, 2
	}

	if *showVersion {
		fmt.Printf("massacore %s (commit %s)\n", version, commit)
		return ncfg, true, 0
	}

	return ncfg, false, 0
}

// newFlagSet creates a flag.FlagSet that binds all CLI flags to the given
// nodeConfig. The FlagSet uses ContinueOnError so callers control the error
// handling behavior.
func newFlagSet(ncfg *nodeConfig) *flagSet {
	fs := newCustomFlagSet("massacore")
	fs.StringVar(&ncfg.RPCAddr, "rpc.addr", ncfg.RPCAddr, "RPC listen address")
	fs.Uint64Var(&ncfg.Threads, "threads", ncfg.Threads, "execution thread count")
	fs.Uint64Var(&ncfg.SlotMs, "slot.ms", ncfg.SlotMs, "slot duration in milliseconds")
	fs.Uint64Var(&ncfg.GenesisUnix, "genesis.unix", ncfg.GenesisUnix, "genesis timestamp, unix seconds")
	fs.BoolVar(&ncfg.Metrics, "metrics", ncfg.Metrics, "enable Prometheus metrics on GET /metrics")
	fs.Uint64Var(&ncfg.Verbosity, "verbosity", ncfg.Verbosity, "log level 0-4 (0=debug, 4=error)")
	return fs
}
