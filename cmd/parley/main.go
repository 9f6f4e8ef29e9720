// Command parley is the voice-capture client for the parley assistant. It
// records commands from the microphone, detects end of speech, and streams
// the encoded audio to the assistant over a persistent WebSocket channel.
//
// Interaction is line-oriented on stdin:
//
//	<enter>      toggle press-to-talk recording
//	/dictate     start a dictation session (no voice detection)
//	/wake on     enable hands-free wake-word listening
//	/wake off    disable hands-free listening
//	/quit        exit
//	anything else is sent to the assistant as a typed chat message
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/parley-voice/parley/internal/config"
	"github.com/parley-voice/parley/internal/heuristic"
	"github.com/parley-voice/parley/internal/history"
	"github.com/parley-voice/parley/internal/observe"
	"github.com/parley-voice/parley/internal/orchestrator"
	"github.com/parley-voice/parley/internal/transport"
	"github.com/parley-voice/parley/pkg/audio"
	paplatform "github.com/parley-voice/parley/pkg/audio/portaudio"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	handsFree := flag.Bool("hands-free", false, "start with wake-word listening enabled")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Client.LogLevel)
	slog.SetDefault(logger)

	slog.Info("parley starting",
		"version", version,
		"config", *configPath,
		"server_url", cfg.Transport.ServerURL,
		"processing_mode", cfg.Transport.ProcessingMode,
		"log_level", cfg.Client.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Command history / matcher ─────────────────────────────────────────────
	matcher, cleanup, err := buildMatcher(ctx, cfg, metrics)
	if err != nil {
		slog.Error("failed to set up command history", "err", err)
		return 1
	}
	if cleanup != nil {
		defer cleanup()
	}

	// ── Audio capture ─────────────────────────────────────────────────────────
	var platform audio.Platform
	if err := paplatform.Initialize(); err != nil {
		slog.Warn("audio capture unavailable", "err", err)
	} else {
		defer func() {
			if err := paplatform.Terminate(); err != nil {
				slog.Warn("audio teardown error", "err", err)
			}
		}()
		platform = paplatform.New()
	}

	// ── Message channel ───────────────────────────────────────────────────────
	channel := transport.NewChannel(transport.Config{
		URL:      cfg.Transport.ServerURL,
		ClientID: uuid.NewString(),
	})

	orch := orchestrator.New(cfg, channel, platform, matcher, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return channel.Run(gctx) })
	g.Go(func() error { return orch.Run(gctx) })
	if cfg.Client.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Client.MetricsAddr) })
	}
	g.Go(func() error { return readInput(gctx, stop, orch) })

	if *handsFree {
		orch.SetHandsFree(ctx, true)
	}

	slog.Info("ready — press Enter to talk, /quit to exit")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildMatcher constructs the local command matcher when the processing mode
// is heuristic, along with a cleanup for the backing store. Returns a nil
// matcher in remote-interpretation mode.
func buildMatcher(ctx context.Context, cfg *config.Config, metrics *observe.Metrics) (*heuristic.Matcher, func(), error) {
	if cfg.Transport.ProcessingMode != config.ModeHeuristic {
		return nil, nil, nil
	}

	var store history.Store
	var cleanup func()
	switch cfg.History.Source {
	case config.HistoryPostgres:
		pool, err := pgxpool.New(ctx, cfg.History.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		pg := history.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		store = pg
		cleanup = pool.Close
	default:
		store = history.NewFileStore(cfg.History.Path)
	}

	matcher := heuristic.New(store, heuristic.ExecFunc(dispatchAction),
		heuristic.WithCacheSize(cfg.Heuristic.CacheSize),
		heuristic.WithLookupObserver(func(hit bool) {
			metrics.HeuristicCacheLookups.Add(context.Background(), 1, observe.CacheHit(hit))
		}),
	)
	return matcher, cleanup, nil
}

// dispatchAction performs a locally matched action. Actions are announced to
// the surrounding desktop integration via stdout; the integration watches for
// these lines and performs the OS-level work.
func dispatchAction(_ context.Context, action history.ActionDescriptor) (string, error) {
	fmt.Printf("ACTION %s %v\n", action.Name, action.Params)
	return "dispatched " + action.Name, nil
}

// serveMetrics exposes the Prometheus /metrics endpoint until ctx ends.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("metrics endpoint up", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// readInput drives the line-oriented user interface on stdin.
func readInput(ctx context.Context, stop func(), orch *orchestrator.Orchestrator) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			if err := orch.PressToTalk(ctx); err != nil {
				reportCaptureError(err)
			}
		case line == "/dictate":
			if err := orch.StartDictation(ctx); err != nil {
				reportCaptureError(err)
			}
		case line == "/wake on":
			orch.SetHandsFree(ctx, true)
		case line == "/wake off":
			orch.SetHandsFree(ctx, false)
		case line == "/quit":
			stop()
			return nil
		default:
			if err := orch.SendText(ctx, line); err != nil {
				slog.Error("send failed", "err", err)
			}
		}
	}
	return scanner.Err()
}

// reportCaptureError tells the user why recording could not start, with
// remediation guidance for classified capture errors.
func reportCaptureError(err error) {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied),
		errors.Is(err, audio.ErrNoDevice),
		errors.Is(err, audio.ErrUnsupported),
		errors.Is(err, audio.ErrInsecureContext):
		fmt.Fprintln(os.Stderr, audio.Guidance(err))
	default:
		slog.Error("could not start recording", "err", err)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
