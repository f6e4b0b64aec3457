package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/warelay-dev/warelay/internal/config"
	"github.com/warelay-dev/warelay/internal/llm"
	"github.com/warelay-dev/warelay/internal/observability"
	"github.com/warelay-dev/warelay/internal/twilio"
	"github.com/warelay-dev/warelay/internal/webhook"
	"github.com/warelay-dev/warelay/pkg/session"
)

// Version information (set via ldflags)
var Version = "dev"

var (
	configFile = flag.String("config", getEnv("CONFIG_FILE", ""), "Configuration file (YAML)")
	logLevel   = flag.String("log-level", getEnv("LOG_LEVEL", "info"), "Log level")
)

func main() {
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	log.Info().Str("version", Version).Msg("starting warelay")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration failed")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("initializing session store failed")
	}
	defer func() {
		_ = store.Close()
	}()
	log.Info().
		Str("backend", cfg.Storage.Backend).
		Int("max_history", cfg.Session.MaxHistory).
		Int("timeout_minutes", cfg.Session.TimeoutMinutes).
		Msg("session store ready")

	manager := session.NewManager(store, cfg.Session.MaxHistory, log)
	gen := llm.New(cfg.OpenAI.APIKey, llm.Config{
		Model:       cfg.OpenAI.Model,
		Temperature: float32(cfg.OpenAI.Temperature),
		MaxTokens:   cfg.OpenAI.MaxTokens,
	}, log)
	validator := twilio.NewValidator(cfg.Twilio.AuthToken)
	sender := twilio.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.WhatsAppNumber)

	handler := webhook.NewHandler(manager, gen, sender, validator, webhook.Info{
		MaxHistory:     cfg.Session.MaxHistory,
		TimeoutMinutes: cfg.Session.TimeoutMinutes,
	}, cfg.Server.RatePerMinute, log)

	appServer := webhook.NewServer(cfg.Server.Port, handler)
	opsServer := observability.NewServer(cfg.Server.MetricsPort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("webhook server listening")
		return appServer.Start()
	})
	g.Go(func() error {
		log.Info().Int("port", cfg.Server.MetricsPort).Msg("ops server listening")
		return opsServer.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := appServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("webhook server shutdown error")
		}
		return opsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("stopped")
}

// newStore builds the configured session backend. All three satisfy the
// same session.Store contract; nothing downstream knows which one runs.
func newStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	timeout := time.Duration(cfg.Session.TimeoutMinutes) * time.Minute

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return session.NewMemoryBackend(cfg.Session.MaxHistory, timeout), nil

	case config.BackendRedis:
		return session.NewRedisBackend(session.RedisConfig{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
			MaxTurns: cfg.Session.MaxHistory,
			Timeout:  timeout,
		})

	case config.BackendPostgres:
		backend, err := session.NewPostgresBackend(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := backend.Migrate(ctx); err != nil {
			_ = backend.Close()
			return nil, err
		}
		return backend, nil
	}

	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
