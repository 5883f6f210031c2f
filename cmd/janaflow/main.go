// Command janaflow runs a demo arrow/factory topology: a counting source
// feeding a summing sink, wired through pkg/engine. It exists to exercise
// the engine end-to-end and as a template for a real topology's main.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/janaflow/core/internal/config"
	"github.com/janaflow/core/pkg/engine"
	"github.com/janaflow/core/pkg/event"
)

const (
	defaultConfigPath = "config/janaflow.yaml"
	metricsAddr       = ":9090"
)

func main() {
	cfgPathFlag := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := log.New(os.Stdout, "janaflow ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(resolveConfigPath(cfgPathFlag))
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	cfg = config.FromEnv(cfg)
	logger.Printf("configuration loaded: n_workers=%d max_inflight=%d affinity=%s locality=%s",
		cfg.NWorkers, cfg.MaxInflightEvents, cfg.Affinity, cfg.Locality)

	registry := prometheus.NewRegistry()

	src := &demoSource{limit: 20} //nolint:exhaustruct
	proc := &demoSink{}           //nolint:exhaustruct

	eng, err := engine.New(cfg, src, proc, registry)
	if err != nil {
		logger.Fatalf("build engine: %v", err)
	}

	startDebugServer(logger, registry, eng)

	logger.Print("engine started; awaiting completion or shutdown signal")
	runErr := eng.Run(ctx)

	if runErr != nil {
		logger.Printf("engine run ended with error: %v", runErr)
	}
	logger.Printf("events processed: %d, sum: %d", proc.count.Load(), proc.sum.Load())
	os.Exit(eng.ExitCode())
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to engine configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func resolveConfigPath(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// startDebugServer exposes Prometheus metrics at /metrics and the
// engine's rate-limited JSON/websocket introspection endpoints under
// /debug/ (spec.md §6's "performance snapshot" and "external controller").
func startDebugServer(logger *log.Logger, registry *prometheus.Registry, eng *engine.Engine) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})) //nolint:exhaustruct
	mux.Handle("/debug/", http.StripPrefix("/debug", eng.DebugHandler()))
	server := &http.Server{ //nolint:exhaustruct
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("debug server stopped", "error", err)
		}
	}()
	logger.Printf("metrics listening on %s/metrics, debug on %s/debug/", metricsAddr, metricsAddr)
}

// demoSource emits `limit` synthetic events carrying no payload beyond
// their stamped event number; it exists only to exercise the engine.
type demoSource struct {
	engine.NoopSourceExtras
	limit   int
	emitted int
}

func (s *demoSource) Open() error  { return nil }
func (s *demoSource) Close() error { return nil }

func (s *demoSource) Emit(*event.Event) engine.EmitStatus {
	if s.emitted >= s.limit {
		return engine.EmitFailureFinished
	}
	s.emitted++
	return engine.EmitSuccess
}

// demoSink accumulates every event's number.
type demoSink struct {
	sum   atomic.Int64
	count atomic.Int64
}

func (s *demoSink) Init() error  { return nil }
func (s *demoSink) Finish() error { return nil }

func (s *demoSink) Process(ev *event.Event) error {
	s.sum.Add(ev.Number)
	s.count.Add(1)
	return nil
}
