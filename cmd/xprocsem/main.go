// cmd/xprocsem/main.go
// xprocsem: exercise cross-process shared memory semaphores
//
// LEARN: main.go should be minimal - just configuration and wiring.
// Business logic belongs in pkg/ and internal/ packages.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khaaliswooden-max/xproc/internal/config"
	"github.com/khaaliswooden-max/xproc/internal/logging"
	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/internal/server"
	"github.com/khaaliswooden-max/xproc/pkg/ipcsync"
)

// command runs one subcommand under an installed process environment.
type command func(ctx context.Context, cfg *config.Config, env *procenv.Env) error

var commands = map[string]command{
	"demo":   runDemo,
	"stress": runStress,
	"layout": runLayout,
	"child":  runChild, // started by demo, not by users
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// LEARN: Environment first, flags second: a flag always wins over
	// XPROC_* because its default is the value envconfig loaded.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	fs := flag.NewFlagSet("xprocsem", flag.ContinueOnError)
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.Log.Development, "log-dev", cfg.Log.Development, "Human-readable console logs")
	fs.StringVar(&cfg.Log.AuditFile, "audit-file", cfg.Log.AuditFile, "Append lifecycle events as JSON lines to this file")
	fs.StringVar(&cfg.Metrics.Addr, "metrics-addr", cfg.Metrics.Addr, "Serve /metrics, /health, /layout on this address")
	initial := fs.Uint("initial", uint(cfg.Demo.Initial), "Initial semaphore value for demo")
	fs.DurationVar(&cfg.Demo.Timeout, "timeout", cfg.Demo.Timeout, "Wait timeout for demo and stress")
	fs.IntVar(&cfg.Stress.Workers, "workers", cfg.Stress.Workers, "Concurrent stress workers")
	fs.IntVar(&cfg.Stress.Rounds, "rounds", cfg.Stress.Rounds, "Stress attach/signal/wait/detach cycles")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *initial > ipcsync.SemValueMax {
		fmt.Fprintf(os.Stderr, "initial value %d out of range\n", *initial)
		return 2
	}
	cfg.Demo.Initial = uint32(*initial)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fs.Usage()
		return 2
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Development = cfg.Log.Development
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	env, err := procenv.Start(procenv.Config{Logger: logger, Registerer: reg, AuditFile: cfg.Log.AuditFile})
	if err != nil {
		logger.Error("failed to start process environment", zap.Error(err))
		return 1
	}
	defer procenv.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The demo child inherits the environment; only the parent serves.
	var g errgroup.Group
	srvCtx, stopServer := context.WithCancel(ctx)
	if cfg.Metrics.Addr != "" && name != "child" {
		srv := server.New(server.Config{Addr: cfg.Metrics.Addr}, env, reg)
		g.Go(func() error { return srv.Run(srvCtx) })
	}

	logger.Debug("running command", zap.String("command", name))
	cmdErr := cmd(ctx, cfg, env)
	stopServer()
	srvErr := g.Wait()

	if cmdErr != nil {
		logger.Error("command failed", zap.String("command", name), zap.Error(cmdErr))
		return 1
	}
	if srvErr != nil {
		logger.Error("diagnostics server failed", zap.Error(srvErr))
		return 1
	}
	return 0
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "xprocsem - cross-process shared memory semaphore tool\n\n")
	fmt.Fprintf(out, "Usage: xprocsem [options] <demo|stress|layout>\n\n")
	fmt.Fprintf(out, "Commands:\n")
	fmt.Fprintf(out, "  demo     Share a semaphore with a child process and signal it\n")
	fmt.Fprintf(out, "  stress   Run concurrent attach/signal/wait/detach cycles\n")
	fmt.Fprintf(out, "  layout   Print the shared block layout and fingerprint\n\n")
	fmt.Fprintf(out, "Options:\n")
	fs.PrintDefaults()
	fmt.Fprintf(out, "\nEnvironment Variables:\n")
	fmt.Fprintf(out, "  XPROC_LOG_LEVEL        Log level (default: info)\n")
	fmt.Fprintf(out, "  XPROC_LOG_DEV          Console logs (default: false)\n")
	fmt.Fprintf(out, "  XPROC_LOG_AUDIT_FILE   Lifecycle journal path\n")
	fmt.Fprintf(out, "  XPROC_METRICS_ADDR     Diagnostics listen address\n")
	fmt.Fprintf(out, "  XPROC_DEMO_INITIAL     Demo initial value (default: 0)\n")
	fmt.Fprintf(out, "  XPROC_DEMO_TIMEOUT     Wait timeout (default: 5s)\n")
	fmt.Fprintf(out, "  XPROC_STRESS_WORKERS   Stress concurrency (default: 8)\n")
	fmt.Fprintf(out, "  XPROC_STRESS_ROUNDS    Stress cycles (default: 200)\n")
}
