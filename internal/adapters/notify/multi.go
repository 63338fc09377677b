package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/ports"
)

// Multi fans a report out to several reporters. A failing reporter does not stop the
// others; all errors are joined.
type Multi struct {
	reporters []ports.OutcomeReporter
}

// NewMulti creates a fan-out reporter. Nil reporters are ignored.
func NewMulti(reporters ...ports.OutcomeReporter) *Multi {
	m := &Multi{}
	for _, r := range reporters {
		if r != nil {
			m.reporters = append(m.reporters, r)
		}
	}
	return m
}

// Report implements ports.OutcomeReporter.
func (m *Multi) Report(ctx context.Context, report domain.AttemptReport) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Report(ctx, report); err != nil {
			slog.Warn("notify: reporter failed", "attempt", report.ID, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
