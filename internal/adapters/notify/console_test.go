package notify_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/liqbot/internal/adapters/notify"
	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeReport(outcome domain.LiquidationOutcome) domain.AttemptReport {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return domain.AttemptReport{
		ID:                   "attempt-1",
		StartedAt:            started,
		FinishedAt:           started.Add(2 * time.Second),
		Outcome:              outcome,
		BlockNumber:          19_000_000,
		Selected:             2,
		Liquidated:           2,
		ExpectedCompensation: decimal.RequireFromString("800"),
		WorstCost:            decimal.RequireFromString("210"),
		TxHash:               "0x1111111111111111111111111111111111111111111111111111111111112222",
		GasCost:              decimal.RequireFromString("100.5"),
		Compensation:         decimal.RequireFromString("760"),
		MinerCut:             decimal.RequireFromString("0.02"),
	}
}

func TestConsole_Report_Success(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, c.Report(context.Background(), makeReport(domain.OutcomeSuccess)))

	out := buf.String()
	assert.Contains(t, out, "SUCCESS")
	assert.Contains(t, out, "#19000000")
	assert.Contains(t, out, "comp $760.00")
	assert.Contains(t, out, "profit $659.50")
	assert.Contains(t, out, "0x11111111...2222")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestConsole_Report_HighCost(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	r := makeReport(domain.OutcomeSkippedDueToHighCost)
	r.ExpectedCompensation = decimal.RequireFromString("210")
	r.WorstCost = decimal.RequireFromString("567")
	require.NoError(t, c.Report(context.Background(), r))

	out := buf.String()
	assert.Contains(t, out, "SKIPPED_DUE_TO_HIGH_COST")
	assert.Contains(t, out, "expected $210.00 < worst $567.00")
}

func TestConsole_Report_FailureTruncatesError(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	r := makeReport(domain.OutcomeFailure)
	r.TxHash = ""
	r.Error = strings.Repeat("x", 200)
	require.NoError(t, c.Report(context.Background(), r))

	out := buf.String()
	assert.Contains(t, out, "FAILURE")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, strings.Repeat("x", 100))
}

func TestConsole_Report_Table(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, c.Report(context.Background(), makeReport(domain.OutcomeSuccess)))

	out := buf.String()
	assert.Contains(t, out, "attempt-1")
	assert.Contains(t, out, "Compensation")
	assert.Contains(t, out, "$760.00")
	assert.Contains(t, out, "0.0200 ETH")
	assert.Contains(t, out, "2s")
}

func TestConsole_PrintHistory(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	loss := makeReport(domain.OutcomeSuccess)
	loss.Compensation = decimal.RequireFromString("50")
	loss.GasCost = decimal.RequireFromString("80")

	c.PrintHistory([]domain.AttemptReport{
		makeReport(domain.OutcomeSuccess),
		loss,
		makeReport(domain.OutcomeSkippedDueToHighCost),
		makeReport(domain.OutcomeNothingToLiquidate),
	})

	out := buf.String()
	assert.Contains(t, out, "NOTHING_TO_LIQUIDATE")
	assert.Contains(t, out, "Attempts: 4  success: 2")
	assert.Contains(t, out, "Troves liquidated: 4")
	// 760 + 50 - 100.5 - 80
	assert.Contains(t, out, "net profit: $629.50")
}

func TestConsole_PrintHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	c.PrintHistory(nil)
	assert.Contains(t, buf.String(), "No liquidation attempts recorded")
}

func TestSummarize_OnlySuccessCounts(t *testing.T) {
	failed := makeReport(domain.OutcomeFailure)
	s := notify.Summarize([]domain.AttemptReport{makeReport(domain.OutcomeSuccess), failed})

	assert.Equal(t, 2, s.Attempts)
	assert.Equal(t, 1, s.ByOutcome[domain.OutcomeFailure])
	assert.Equal(t, 2, s.TrovesLiquidated)
	assert.True(t, decimal.RequireFromString("659.5").Equal(s.Profit()))
}

type recordingReporter struct {
	got []domain.AttemptReport
	err error
}

func (r *recordingReporter) Report(_ context.Context, report domain.AttemptReport) error {
	r.got = append(r.got, report)
	return r.err
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("disk full")
	first := &recordingReporter{err: boom}
	second := &recordingReporter{}

	m := notify.NewMulti(first, nil, second)
	err := m.Report(context.Background(), makeReport(domain.OutcomeSuccess))

	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.got, 1)
	assert.Len(t, second.got, 1, "a failing reporter must not stop the others")
}

func TestMulti_NoReporters(t *testing.T) {
	assert.NoError(t, notify.NewMulti().Report(context.Background(), makeReport(domain.OutcomeSuccess)))
}
