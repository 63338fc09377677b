package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
)

// AttemptJournal keeps an audit log of liquidation attempts. Nothing in the liquidation
// path reads it back.
type AttemptJournal interface {
	// SaveAttempt persists one attempt report.
	SaveAttempt(ctx context.Context, report domain.AttemptReport) error

	// GetAttempts returns the attempts started in the given range, most recent first.
	GetAttempts(ctx context.Context, from, to time.Time) ([]domain.AttemptReport, error)

	// Close closes the database connection.
	Close() error
}
