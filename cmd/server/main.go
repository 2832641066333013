package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prog-le/Simultaneous-Interpretation/internal/audio"
	"github.com/prog-le/Simultaneous-Interpretation/internal/config"
	"github.com/prog-le/Simultaneous-Interpretation/internal/engine"
	"github.com/prog-le/Simultaneous-Interpretation/internal/engine/gummy"
	"github.com/prog-le/Simultaneous-Interpretation/internal/engine/mock"
	"github.com/prog-le/Simultaneous-Interpretation/internal/events"
	"github.com/prog-le/Simultaneous-Interpretation/internal/httpapi"
	"github.com/prog-le/Simultaneous-Interpretation/internal/observability"
	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/logging"
	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/metrics"
	"github.com/prog-le/Simultaneous-Interpretation/internal/session"
	"github.com/prog-le/Simultaneous-Interpretation/internal/upload"
)

func main() {
	cfg := config.Load()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Observability.LogLevel
	if os.Getenv("ENV") == "dev" {
		logCfg.Format = "console"
	}
	logging.Init(logCfg)

	store, err := upload.NewStore(cfg.Upload.Dir, metrics.DefaultMetrics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize upload store")
	}

	mirror := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	defer mirror.Close()

	registry := session.NewRegistry(session.RegistryOptions{
		EngineFactory:  engineFactory(cfg),
		EngineProvider: cfg.Engine.Provider,
		EngineConfig:   cfg.Engine,
		AudioConfig:    cfg.Audio,
		Mirror:         mirror,
		Metrics:        metrics.DefaultMetrics,
	})

	pacer := audio.NewPacer(cfg.Audio.FrameBytes, cfg.Audio.PaddingBytes, cfg.Audio.SettleDelay, cfg.Audio.FrameDelay)
	handler := httpapi.NewHandler(registry, store, pacer, cfg)

	obs := observability.NewServer(cfg.Observability.MetricsAddr)
	obs.Start()

	server := &http.Server{
		Addr:        ":" + cfg.Service.HTTPPort,
		Handler:     handler.Router(),
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Str("provider", cfg.Engine.Provider).
			Msg("speech translation service started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	registry.Shutdown()
	if err := obs.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("observability shutdown failed")
	}
}

// engineFactory picks the engine provider. Unknown providers fall back
// to the mock so local development never needs credentials.
func engineFactory(cfg *config.Configuration) engine.Factory {
	switch cfg.Engine.Provider {
	case "gummy":
		return gummy.Factory(gummy.Config{
			Endpoint: cfg.Engine.Endpoint,
			Model:    cfg.Engine.Model,
		})
	case "mock":
		return func() engine.Engine { return mock.New() }
	default:
		log.Warn().Str("provider", cfg.Engine.Provider).Msg("unknown engine provider, using mock")
		return func() engine.Engine { return mock.New() }
	}
}
