package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	repo "github.com/joseph-ayodele/drawing-quotes/internal/repository"
)

// ConnectDB opens the Postgres quote store described by cfg.
func ConnectDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repo.DB, error) {
	db, err := repo.Open(ctx, repo.Config{
		DSN:              cfg.DSN,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// PingDB pings the database to ensure it's responsive
func PingDB(ctx context.Context, db *repo.DB, logger *slog.Logger, timeout time.Duration) error {
	if err := db.HealthCheck(ctx, timeout); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	return nil
}

// CloseDB closes every database handed to it, skipping nils.
func CloseDB(dbs ...*repo.DB) {
	for _, db := range dbs {
		if db != nil {
			db.Close()
		}
	}
}
