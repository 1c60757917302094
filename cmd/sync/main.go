// Command sync runs one threat-intel sync pass and exits.
//
// Useful for cron-style scheduling and for backfilling a fresh database
// without starting the API server. Requires DATABASE_URL; the in-memory
// stores would discard everything on exit.
package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/4ndersonLin/scamledger/internal/address"
	"github.com/4ndersonLin/scamledger/internal/cache"
	"github.com/4ndersonLin/scamledger/internal/config"
	"github.com/4ndersonLin/scamledger/internal/logging"
	"github.com/4ndersonLin/scamledger/internal/report"
	"github.com/4ndersonLin/scamledger/internal/stats"
	"github.com/4ndersonLin/scamledger/internal/threatintel"
)

func main() {
	logger := logging.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required for a one-shot sync")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	addresses := address.NewPostgresStore(db)
	reports := report.NewPostgresStore(db)
	intelStore := threatintel.NewPostgresStore(db)

	var c cache.Cache
	if cfg.RedisAddr != "" {
		c, err = cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
	} else {
		c = cache.NewMemory()
	}
	statsSvc := stats.NewService(reports, addresses, c)

	engine := threatintel.NewEngine(intelStore, addresses, reports, statsSvc, logger)
	engine.Register(threatintel.NewOFACFetcher(cfg.OFACBaseURL, logger))

	logger.Info("starting one-shot sync", "sources", engine.Sources())
	engine.RunAll(ctx)

	for _, source := range engine.Sources() {
		state, err := intelStore.GetSyncState(ctx, source)
		if err != nil || state == nil {
			logger.Warn("no sync state recorded", "source", source)
			continue
		}
		if state.LastError != nil {
			logger.Error("sync finished with error", "source", source, "error", *state.LastError)
			os.Exit(1)
		}
		logger.Info("sync finished", "source", source, "records_imported", state.RecordsImported)
	}
}
