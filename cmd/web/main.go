package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/osuops/tourney/internal/config"
	"github.com/osuops/tourney/internal/db"
	"github.com/osuops/tourney/internal/notify"
	"github.com/osuops/tourney/internal/service"
	"github.com/osuops/tourney/internal/store"
	"github.com/rs/zerolog"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// Environment variables only; normal outside development.
	}
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	database, err := db.Connect(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsURL); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.NATSURL != "" {
		jsCfg := notify.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		js, err := notify.NewJetStreamNotifier(context.Background(), jsCfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to jetstream")
		}
		defer js.Close()
		notifier = js
	}

	st := store.NewBracketStore(database)
	progression := service.NewProgressionService(database, st, notifier, logger)
	brackets := service.NewBracketService(database, st, progression, logger)
	drafts := service.NewDraftService(database, st, notifier, logger)
	results := service.NewResultService(database, st, logger)
	scheduler := service.NewSchedulerService(database, st, notifier, clockwork.NewRealClock(), logger)
	scheduler.Config.MatchDuration = cfg.MatchDuration

	router := newRouter(st, brackets, progression, drafts, results, scheduler)

	logger.Info().Str("addr", cfg.Addr).Msg("server starting")
	if err := http.ListenAndServe(cfg.Addr, router); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
