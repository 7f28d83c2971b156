// ============================================================================
// ruvltra-core CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Function: Cobra-based command line interface wiring config, the worker
// pool, the Tool Mediator, and the JSON-RPC stdio transport together, per
// spec §6 "Process model".
//
// Command Structure:
//   ruvltra-code                  # Root command
//   ├── serve                     # Run the JSON-RPC stdio server
//   │   └── --config, -c         # Config file path
//   ├── status                    # One-shot pool/backend status snapshot
//   ├── scale                     # One-shot pool resize, then report status
//   │   └── --target             # Desired worker count
//   └── sona-stats                # One-shot pattern-memory snapshot
//
// Design origin:
//   Command tree and --config/-c persistent flag are the teacher's
//   internal/cli/cli.go BuildCLI/buildRunCommand shape (cobra.Command per
//   operation, RunE closures over package-level flag vars). The teacher's
//   run/enqueue/status trio assumed a long-lived Controller reachable
//   in-process or over gRPC; this spec's transport is JSON-RPC over stdio
//   with no network listener to dial, so status/scale/sona-stats build
//   their own transient pool instead of querying a separate running
//   process - a diagnostic pattern grounded on the teacher's enqueueJobs
//   "Mode 2: Local Submission" fallback, which does the same thing when no
//   remote master is configured.
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChuLiYu/ruvltra-core/internal/config"
	"github.com/ChuLiYu/ruvltra-core/internal/engine"
	"github.com/ChuLiYu/ruvltra-core/internal/mediator"
	"github.com/ChuLiYu/ruvltra-core/internal/memory"
	"github.com/ChuLiYu/ruvltra-core/internal/metrics"
	"github.com/ChuLiYu/ruvltra-core/internal/transport"
	"github.com/ChuLiYu/ruvltra-core/internal/worker"
	"github.com/ChuLiYu/ruvltra-core/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var configFile string

// BuildCLI assembles the ruvltra-code root command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ruvltra-code",
		Short: "ruvltra-code: a local code-assistance execution core",
		Long: `ruvltra-code runs a worker pool of ranked, self-healing generation
backends behind a JSON-RPC stdio tool interface, with per-worker pattern
memory and fan-out tools for parallel generation and multi-perspective
review.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (defaults built in if omitted)")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildScaleCommand())
	rootCmd.AddCommand(buildSonaStatsCommand())

	return rootCmd
}

// newLogger writes every diagnostic line to stderr, leaving stdout free for
// the JSON-RPC wire, per spec §6 "logging discipline".
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// buildFactory returns a worker.Factory assembling the ranked backend chain
// (http, native-local, embedded-learning, mock) and a persisted pattern
// memory for each spawned worker, per spec §4.2 and §4.3.
func buildFactory(cfg *config.Config, collector *metrics.Collector) worker.Factory {
	return func(workerID string) (*engine.Engine, *memory.Memory) {
		var adapters []engine.Adapter

		if cfg.HTTP.Endpoint != "" {
			adapters = append(adapters, engine.NewHTTPAdapter(engine.HTTPAdapterConfig{
				Endpoint:         cfg.HTTP.Endpoint,
				Model:            cfg.HTTP.Model,
				APIKey:           cfg.HTTP.APIKey,
				Format:           cfg.HTTP.Format,
				RequestTimeout:   cfg.HTTPTimeout(),
				MaxRetries:       cfg.HTTP.MaxRetries,
				BaseBackoff:      cfg.HTTPRetryBase(),
				BreakerThreshold: cfg.HTTP.CircuitFailureThreshold,
				BreakerCooldown:  cfg.HTTPCircuitCooldown(),
			}))
		}
		if cfg.Native.ModelPath != "" {
			adapters = append(adapters, engine.NewNativeAdapter(engine.NativeAdapterConfig{
				Model: cfg.Native.ModelPath,
			}, nil, false))
		}
		adapters = append(adapters, engine.NewEmbeddedAdapter(nil))
		adapters = append(adapters, engine.NewMockAdapter(cfg.Mock.LatencyMs, cfg.Mock.LatencyMs/4))

		eng := engine.New(adapters...)
		if collector != nil {
			eng.SetMetrics(collector)
		}

		var persister *memory.Persister
		if cfg.Memory.SonaEnabled {
			persister = memory.NewPersister(cfg.Memory.SonaStateDir, workerID, cfg.Memory.SonaPersistInterval)
		}
		mem := persister.Load()

		return eng, mem
	}
}

func buildPool(cfg *config.Config, collector *metrics.Collector) *worker.Pool {
	pool := worker.NewPool(worker.Config{
		MinWorkers:       cfg.Worker.MinWorkers,
		MaxWorkers:       cfg.Worker.MaxWorkers,
		InitialWorkers:   cfg.Worker.InitialWorkers,
		QueueMaxLength:   cfg.Worker.QueueMaxLength,
		DefaultTimeoutMs: cfg.Worker.TaskTimeoutMs,
	}, buildFactory(cfg, collector))
	if collector != nil {
		pool.SetMetrics(collector)
	}
	return pool
}

func buildServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC stdio server",
		Long:  "Start the worker pool and serve tool calls over JSON-RPC 2.0 on stdin/stdout until the client disconnects or a shutdown signal arrives.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	return cmd
}

func serve() error {
	cfg := config.Load(configFile)
	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(prometheus.DefaultRegisterer)
	}

	pool := buildPool(cfg, collector)
	if err := pool.Start(); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer pool.Shutdown()

	if collector != nil {
		go pollMetrics(pool, collector)
		go func() {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port, metrics.DefaultHandler()); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	m := mediator.New(pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	logger.Info("serving tool calls over stdio")
	err := transport.Serve(ctx, m)
	logger.Info("server stopped")
	return err
}

// pollMetrics periodically mirrors the pool's point-in-time status into the
// Prometheus collector, since Status() is pull-based but Prometheus gauges
// are push-based. Submission, rejection, settlement, and backend-call
// counters are pushed directly at the point they occur instead (see
// Pool.SetMetrics/Engine.SetMetrics); this loop only covers readings that
// have no single occurrence to hook.
func pollMetrics(pool *worker.Pool, collector *metrics.Collector) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		st := pool.Status()
		collector.UpdatePoolStats(st.WorkerCount, st.IdleCount, st.QueueLength)

		httpConfigured, httpReady := false, false
		for _, b := range pool.BackendReadiness() {
			collector.SetBackendReady(string(b.Backend), b.Ready)
			if b.Backend == types.BackendHTTP {
				httpConfigured, httpReady = true, b.Ready
			}
		}
		if httpConfigured {
			collector.SetCircuitBreakerOpen(!httpReady)
		}

		patterns := 0
		for _, id := range pool.WorkerIDs() {
			if stats, ok := pool.MemoryStats(id, 0); ok {
				patterns += stats.PatternCount
			}
		}
		collector.SetPatternCount(patterns)
	}
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report a one-shot pool and backend status snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransientPool(func(pool *worker.Pool) error {
				return printJSON(map[string]interface{}{"status": pool.Status()})
			})
		},
	}
	return cmd
}

func buildScaleCommand() *cobra.Command {
	var target int
	cmd := &cobra.Command{
		Use:   "scale",
		Short: "Resize a transient pool to --target workers and report the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransientPool(func(pool *worker.Pool) error {
				if _, err := pool.SetWorkerCount(target); err != nil {
					return err
				}
				return printJSON(map[string]interface{}{"status": pool.Status()})
			})
		},
	}
	cmd.Flags().IntVar(&target, "target", 2, "desired worker count")
	return cmd
}

func buildSonaStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sona-stats",
		Short: "Report pattern-memory statistics for every worker in a transient pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransientPool(func(pool *worker.Pool) error {
				all := make([]memory.Stats, 0, len(pool.WorkerIDs()))
				for _, id := range pool.WorkerIDs() {
					if stats, ok := pool.MemoryStats(id, 5); ok {
						all = append(all, stats)
					}
				}
				return printJSON(map[string]interface{}{"sona": all})
			})
		},
	}
	return cmd
}

// withTransientPool loads config, builds and starts a pool purely for one
// diagnostic command's lifetime, and always shuts it down before returning.
func withTransientPool(fn func(pool *worker.Pool) error) error {
	cfg := config.Load(configFile)
	slog.SetDefault(newLogger(cfg.Logging.Level))

	pool := buildPool(cfg, nil)
	if err := pool.Start(); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer pool.Shutdown()

	return fn(pool)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
