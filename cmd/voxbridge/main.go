// Command voxbridge is the main entry point for the Voxbridge voice-dialog
// server.
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

	"github.com/joho/godotenv"

	"github.com/voxbridge-ai/voxbridge/internal/app"
	"github.com/voxbridge-ai/voxbridge/internal/config"
	"github.com/voxbridge-ai/voxbridge/internal/observe"
	"github.com/voxbridge-ai/voxbridge/pkg/provider/tts/elevenlabs"
)

// version is stamped by the release build; "dev" otherwise.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Environment ────────────────────────────────────────────────────────────
	// .env is optional; explicit environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voxbridge: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxbridge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxbridge: %v\n", err)
		}
		return 1
	}
	applyEnv(cfg)

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxbridge starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	metricsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxbridge",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Voice check ───────────────────────────────────────────────────────────
	// A mistyped voice ID otherwise only surfaces on the first call.
	if err := verifyVoice(ctx, cfg); err != nil {
		slog.Error("configured voice not available", "voice", cfg.TTS.Voice, "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, logger)
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

// ── Voice check ───────────────────────────────────────────────────────────────

// verifyVoice checks the configured voice against the account's catalog. An
// unreachable catalog is only a warning; a catalog that answers without the
// voice is a startup error.
func verifyVoice(ctx context.Context, cfg *config.Config) error {
	if cfg.TTS.APIKey == "" {
		return nil
	}
	provider, err := elevenlabs.New(cfg.TTS.APIKey)
	if err != nil {
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err = provider.VerifyVoice(checkCtx, cfg.TTS.Voice)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, elevenlabs.ErrVoiceNotFound):
		return err
	default:
		slog.Warn("voice catalog unavailable, skipping voice check", "err", err)
		return nil
	}
}

// ── Environment overrides ─────────────────────────────────────────────────────

// applyEnv fills credentials left empty in the YAML from the environment, so
// secrets can stay out of config files.
func applyEnv(cfg *config.Config) {
	setIfEmpty(&cfg.STT.APIKey, "SONIOX_API_KEY")
	setIfEmpty(&cfg.LLM.Primary.APIKey, "OPENAI_API_KEY")
	if cfg.LLM.Secondary != nil {
		setIfEmpty(&cfg.LLM.Secondary.APIKey, "VOXBRIDGE_SECONDARY_API_KEY")
	}
	setIfEmpty(&cfg.TTS.APIKey, "ELEVENLABS_API_KEY")
	setIfEmpty(&cfg.TranscriptLog.PostgresDSN, "VOXBRIDGE_POSTGRES_DSN")
	setIfEmpty(&cfg.KnowledgeBase.BaseURL, "VOXBRIDGE_KB_URL")
	setIfEmpty(&cfg.KnowledgeBase.APIKey, "VOXBRIDGE_KB_API_KEY")
}

func setIfEmpty(dst *string, envKey string) {
	if *dst == "" {
		*dst = os.Getenv(envKey)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Voxbridge — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("STT", cfg.STT.Provider+" / "+cfg.STT.Model)
	printEntry("LLM primary", cfg.LLM.Primary.Model)
	if cfg.LLM.Secondary != nil {
		printEntry("LLM secondary", cfg.LLM.Secondary.Model)
	} else {
		printEntry("LLM secondary", "(disabled)")
	}
	printEntry("TTS", cfg.TTS.Provider+" / "+cfg.TTS.OutputFormat)
	if cfg.KnowledgeBase.BaseURL != "" {
		printEntry("Knowledge base", "configured")
	} else {
		printEntry("Knowledge base", "(disabled)")
	}
	if cfg.TranscriptLog.PostgresDSN != "" {
		printEntry("Transcript log", "postgres")
	} else {
		printEntry("Transcript log", "(disabled)")
	}
	printEntry("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

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
