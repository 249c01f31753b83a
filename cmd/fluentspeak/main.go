// Command fluentspeak serves the course voice-exercise widget API: recording
// sessions, live transcription, pronunciation assessment, and learner
// progress.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Johnwalk12/fluentspeak/internal/app"
	"github.com/Johnwalk12/fluentspeak/internal/config"
	"github.com/Johnwalk12/fluentspeak/internal/observe"
	"github.com/Johnwalk12/fluentspeak/pkg/capture"
	"github.com/Johnwalk12/fluentspeak/pkg/capture/ffmpeg"
	capturemock "github.com/Johnwalk12/fluentspeak/pkg/capture/mock"
	"github.com/Johnwalk12/fluentspeak/pkg/recognize/deepgram"
	recognizemock "github.com/Johnwalk12/fluentspeak/pkg/recognize/mock"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "fluentspeak: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "fluentspeak: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("fluentspeak starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"widgets", len(cfg.Widgets),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "fluentspeak",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Backends ──────────────────────────────────────────────────────────────
	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build backends", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProviders constructs the capture and recognition backends named in
// the config. The "mock" backends run the full widget flow without hardware
// or network, useful for local development.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	p := &app.Providers{}

	switch cfg.Capture.Name {
	case "", "ffmpeg":
		p.Source = &ffmpeg.Source{Device: cfg.Capture.Device}
		p.Factory = ffmpeg.Factory{}
	case "mock":
		p.Source = &capturemock.Source{}
		p.Factory = &capturemock.Factory{}
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Capture.Name)
	}

	p.Broker = capture.NewBroker(p.Source)

	switch cfg.Recognition.Name {
	case "deepgram":
		var opts []deepgram.Option
		if cfg.Recognition.Model != "" {
			opts = append(opts, deepgram.WithModel(cfg.Recognition.Model))
		}
		if cfg.Recognition.Language != "" {
			opts = append(opts, deepgram.WithLanguage(cfg.Recognition.Language))
		}
		if cfg.Recognition.SampleRate > 0 {
			opts = append(opts, deepgram.WithSampleRate(cfg.Recognition.SampleRate))
		}
		engine, err := deepgram.New(cfg.Recognition.APIKey, p.Broker, opts...)
		if err != nil {
			return nil, fmt.Errorf("deepgram: %w", err)
		}
		p.Engine = engine
	case "", "mock":
		if cfg.Recognition.Name == "" {
			slog.Warn("no recognition backend configured; transcripts will be empty")
		}
		p.Engine = &recognizemock.Engine{}
	default:
		return nil, fmt.Errorf("unknown recognition backend %q", cfg.Recognition.Name)
	}

	return p, nil
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
