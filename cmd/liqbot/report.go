package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/liqbot/config"
	"github.com/alejandrodnm/liqbot/internal/adapters/notify"
	"github.com/alejandrodnm/liqbot/internal/adapters/storage"
)

// runReport prints the attempts journaled over the last period.
func runReport(ctx context.Context, cfg *config.Config, console *notify.Console, period time.Duration) error {
	if cfg.Storage.DSN == "" {
		return errors.New("storage.dsn is not configured, nothing to report")
	}

	// Zero retention: reading the journal must not prune it.
	journal, err := storage.NewSQLiteJournalWithRetention(cfg.Storage.DSN, 0)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	to := time.Now()
	attempts, err := journal.GetAttempts(ctx, to.Add(-period), to)
	if err != nil {
		return err
	}

	slog.Info("attempt history", "dsn", cfg.Storage.DSN, "since", to.Add(-period).Format("2006-01-02"), "attempts", len(attempts))
	console.PrintHistory(attempts)
	return nil
}
