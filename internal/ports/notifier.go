package ports

import (
	"context"

	"github.com/alejandrodnm/liqbot/internal/domain"
)

// OutcomeReporter receives one report per liquidation attempt.
type OutcomeReporter interface {
	Report(ctx context.Context, report domain.AttemptReport) error
}
