package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// Console implements ports.OutcomeReporter by printing to stdout.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	table bool
}

// NewConsole creates a reporter that writes to stdout. With table set, each attempt is
// printed as a small table instead of a single line.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a reporter for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Report prints one attempt in the configured mode.
func (c *Console) Report(_ context.Context, r domain.AttemptReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.table {
		c.printAttemptTable(r)
	} else {
		c.printCompact(r)
	}
	return nil
}

// printCompact prints the attempt on one line.
func (c *Console) printCompact(r domain.AttemptReport) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] #%d %s", r.StartedAt.Local().Format("15:04:05"), r.BlockNumber, r.Outcome)

	switch r.Outcome {
	case domain.OutcomeSuccess:
		fmt.Fprintf(&sb, " | %d troves | comp $%s gas $%s | %s $%s | tx %s",
			r.Liquidated, usd(r.Compensation), usd(r.GasCost),
			profitLabel(r.Profit()), usd(r.Profit().Abs()), shortHash(r.TxHash))
	case domain.OutcomeSkippedDueToHighCost:
		fmt.Fprintf(&sb, " | %d troves | expected $%s < worst $%s",
			r.Selected, usd(r.ExpectedCompensation), usd(r.WorstCost))
	case domain.OutcomeSkippedInReadOnlyMode:
		fmt.Fprintf(&sb, " | %d troves", r.Selected)
	case domain.OutcomeFailure:
		if r.TxHash != "" {
			fmt.Fprintf(&sb, " | tx %s", shortHash(r.TxHash))
		}
		if r.Error != "" {
			fmt.Fprintf(&sb, " | %s", truncate(r.Error, 80))
		}
	}

	fmt.Fprintln(c.out, sb.String())
}

// printAttemptTable prints the attempt with every field in a key/value table.
func (c *Console) printAttemptTable(r domain.AttemptReport) {
	fmt.Fprintf(c.out, "\n[%s] attempt %s: %s\n", r.StartedAt.Local().Format("15:04:05"), r.ID, r.Outcome)

	table := tablewriter.NewWriter(c.out)
	table.Header("Field", "Value")
	table.Append("Block", fmt.Sprintf("%d", r.BlockNumber))
	table.Append("Selected", fmt.Sprintf("%d", r.Selected))
	table.Append("Liquidated", fmt.Sprintf("%d", r.Liquidated))
	table.Append("Expected comp", "$"+usd(r.ExpectedCompensation))
	table.Append("Worst cost", "$"+usd(r.WorstCost))
	if r.TxHash != "" {
		table.Append("Tx", r.TxHash)
	}
	if r.Outcome == domain.OutcomeSuccess {
		table.Append("Gas cost", "$"+usd(r.GasCost))
		table.Append("Compensation", "$"+usd(r.Compensation))
		table.Append("Miner cut", r.MinerCut.StringFixed(4)+" ETH")
		label := "Profit"
		if r.Profit().IsNegative() {
			label = "Loss"
		}
		table.Append(label, "$"+usd(r.Profit().Abs()))
	}
	if r.Error != "" {
		table.Append("Error", truncate(r.Error, 60))
	}
	table.Append("Duration", r.Duration().Round(time.Millisecond).String())
	table.Render()
}

// PrintHistory prints the journal history with a summary by outcome.
func (c *Console) PrintHistory(attempts []domain.AttemptReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(attempts) == 0 {
		fmt.Fprintln(c.out, "\n  No liquidation attempts recorded.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Started", "Block", "Outcome", "Troves", "Expected$", "Worst$", "Comp$", "Gas$", "Profit$", "Tx")

	for i, r := range attempts {
		troves := fmt.Sprintf("%d", r.Selected)
		comp, gas, profit := "-", "-", "-"
		if r.Outcome == domain.OutcomeSuccess {
			troves = fmt.Sprintf("%d/%d", r.Liquidated, r.Selected)
			comp = usd(r.Compensation)
			gas = usd(r.GasCost)
			profit = usd(r.Profit())
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", r.BlockNumber),
			r.Outcome.String(),
			troves,
			usd(r.ExpectedCompensation),
			usd(r.WorstCost),
			comp,
			gas,
			profit,
			shortHash(r.TxHash),
		)
	}
	table.Render()

	s := Summarize(attempts)
	fmt.Fprintf(c.out, "\n  Attempts: %d  success: %d  failure: %d  high cost: %d  read-only: %d  nothing: %d\n",
		s.Attempts, s.ByOutcome[domain.OutcomeSuccess], s.ByOutcome[domain.OutcomeFailure],
		s.ByOutcome[domain.OutcomeSkippedDueToHighCost], s.ByOutcome[domain.OutcomeSkippedInReadOnlyMode],
		s.ByOutcome[domain.OutcomeNothingToLiquidate])
	fmt.Fprintf(c.out, "  Troves liquidated: %d\n", s.TrovesLiquidated)
	fmt.Fprintf(c.out, "  Compensation: $%s  gas: $%s  net %s: $%s\n\n",
		usd(s.Compensation), usd(s.GasCost), profitLabel(s.Profit()), usd(s.Profit().Abs()))
}

// HistorySummary aggregates a list of attempts.
type HistorySummary struct {
	Attempts         int
	ByOutcome        map[domain.LiquidationOutcome]int
	TrovesLiquidated int
	Compensation     decimal.Decimal
	GasCost          decimal.Decimal
}

// Profit is the total compensation minus the total gas cost of successful attempts.
func (s HistorySummary) Profit() decimal.Decimal {
	return s.Compensation.Sub(s.GasCost)
}

// Summarize counts attempts by outcome and sums the realized amounts of the successful ones.
func Summarize(attempts []domain.AttemptReport) HistorySummary {
	s := HistorySummary{
		Attempts:  len(attempts),
		ByOutcome: make(map[domain.LiquidationOutcome]int),
	}
	for _, r := range attempts {
		s.ByOutcome[r.Outcome]++
		if r.Outcome != domain.OutcomeSuccess {
			continue
		}
		s.TrovesLiquidated += r.Liquidated
		s.Compensation = s.Compensation.Add(r.Compensation)
		s.GasCost = s.GasCost.Add(r.GasCost)
	}
	return s
}

// --- helpers ---

func usd(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func profitLabel(d decimal.Decimal) string {
	if d.IsNegative() {
		return "loss"
	}
	return "profit"
}

func shortHash(h string) string {
	if h == "" {
		return "-"
	}
	if len(h) <= 14 {
		return h
	}
	return h[:10] + "..." + h[len(h)-4:]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
