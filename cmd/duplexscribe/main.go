// Command duplexscribe transcribes a two-party conversation live: it captures
// microphone and remote playback audio, multiplexes them into one stereo
// stream, and maintains a rolling transcript through a streaming speech
// recognition provider.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tomlidgett1/duplexscribe/internal/config"
	"github.com/tomlidgett1/duplexscribe/internal/health"
	"github.com/tomlidgett1/duplexscribe/internal/observe"
	"github.com/tomlidgett1/duplexscribe/internal/session"
	"github.com/tomlidgett1/duplexscribe/internal/transcript"
	"github.com/tomlidgett1/duplexscribe/pkg/audio"
	"github.com/tomlidgett1/duplexscribe/pkg/audio/wav"
	"github.com/tomlidgett1/duplexscribe/pkg/provider/stt"
	"github.com/tomlidgett1/duplexscribe/pkg/provider/stt/deepgram"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	localPath := flag.String("local", "", "path to the local-side (microphone) WAV recording")
	remotePath := flag.String("remote", "", "path to the remote-side (playback) WAV recording")
	realTime := flag.Bool("realtime", true, "pace WAV replay at recording speed")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "duplexscribe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "duplexscribe: %v\n", err)
		}
		return 1
	}
	if *localPath == "" || *remotePath == "" {
		fmt.Fprintln(os.Stderr, "duplexscribe: both -local and -remote WAV paths are required")
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("duplexscribe starting",
		"version", version,
		"config", *configPath,
		"metrics_addr", cfg.Server.MetricsAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	mp, shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "duplexscribe",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Capture source ────────────────────────────────────────────────────────
	format := audio.Format{
		SampleRate:     cfg.Audio.SampleRate,
		BitDepth:       cfg.Audio.BitDepth,
		SourceChannels: cfg.Audio.SourceChannels,
		MuxChannels:    cfg.Audio.MuxChannels,
	}
	capture, err := wav.New(format, *localPath, *remotePath,
		wav.WithCadence(cfg.Audio.Cadence()),
		wav.WithRealTime(*realTime),
	)
	if err != nil {
		slog.Error("failed to open capture source", "err", err)
		return 1
	}

	// ── STT provider ──────────────────────────────────────────────────────────
	provider, err := buildProvider(cfg.Provider)
	if err != nil {
		slog.Error("failed to create transcription provider", "err", err)
		return 1
	}
	slog.Info("provider created", "name", cfg.Provider.Name, "model", cfg.Provider.Model)

	// ── Transcript sink ───────────────────────────────────────────────────────
	var sink session.Sink = session.NewLogSink(logger)
	if len(cfg.Vocabulary) > 0 {
		sink = transcript.NewCorrectingSink(sink, transcript.NewCorrector(cfg.Vocabulary))
		slog.Info("vocabulary correction enabled", "terms", len(cfg.Vocabulary))
	}

	// ── Session controller ────────────────────────────────────────────────────
	ctrl, err := session.New(session.Config{
		Format:         format,
		Cadence:        cfg.Audio.Cadence(),
		BacklogLimit:   cfg.Pipeline.BacklogLimit(),
		Language:       cfg.Provider.Language,
		Model:          cfg.Provider.Model,
		PriorityWindow: cfg.Pipeline.PriorityWindow(),
		HoldWindow:     cfg.Pipeline.HoldWindow(),
		Gate:           audio.NewGate(cfg.Pipeline.SpeechThreshold, cfg.Pipeline.BargeFloor, cfg.Pipeline.BargeRatio),
	}, capture, provider, sink, metrics, logger)
	if err != nil {
		slog.Error("failed to build session", "err", err)
		return 1
	}

	g, ctx := errgroup.WithContext(ctx)

	// ── Metrics and health endpoint ───────────────────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		srv := newMetricsServer(cfg.Server.MetricsAddr, ctrl)
		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// ── Run session ───────────────────────────────────────────────────────────
	g.Go(func() error {
		defer stop()
		return ctrl.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProvider instantiates the streaming STT provider named in entry.
func buildProvider(entry config.ProviderConfig) (stt.Provider, error) {
	switch entry.Name {
	case "deepgram":
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		return deepgram.New(entry.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", entry.Name)
	}
}

// newMetricsServer builds the HTTP server exposing /metrics, /healthz and
// /readyz. Readiness reflects the transcription connection state.
func newMetricsServer(addr string, ctrl *session.Controller) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	h := health.New(health.StateChecker("transcription", func() error {
		if state := ctrl.ConnState(); state != session.StateConnected {
			return fmt.Errorf("connection is %s", state)
		}
		return nil
	}))
	h.Register(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
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
