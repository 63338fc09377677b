// Package metrics exposes liquidation attempts as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "liqbot"

// Recorder implements ports.OutcomeReporter by updating counters on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	Attempts         *prometheus.CounterVec
	TrovesLiquidated prometheus.Counter
	Compensation     prometheus.Counter
	GasCost          prometheus.Counter
	AttemptDuration  prometheus.Histogram
	LastBlock        prometheus.Gauge
}

// NewRecorder creates a recorder with every metric registered on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Recorder{
		registry: reg,
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of liquidation attempts by outcome",
		}, []string{"outcome"}),
		TrovesLiquidated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "troves_liquidated_total",
			Help:      "Total number of Troves liquidated by the bot",
		}),
		Compensation: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensation_usd_total",
			Help:      "Total gas compensation received, net of miner cut, in USD",
		}),
		GasCost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gas_cost_usd_total",
			Help:      "Total gas paid by successful liquidations, in USD",
		}),
		AttemptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Liquidation attempt duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 15, 30, 60, 300},
		}),
		LastBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_attempt_block",
			Help:      "Snapshot block of the most recent attempt",
		}),
	}

	// Outcomes show up as zero before the first attempt.
	for o := domain.OutcomeNothingToLiquidate; o <= domain.OutcomeSuccess; o++ {
		r.Attempts.WithLabelValues(o.String())
	}
	return r
}

// Registry returns the registry the metrics live on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Report implements ports.OutcomeReporter.
func (r *Recorder) Report(_ context.Context, report domain.AttemptReport) error {
	r.Attempts.WithLabelValues(report.Outcome.String()).Inc()
	if report.BlockNumber > 0 {
		r.LastBlock.Set(float64(report.BlockNumber))
	}
	if d := report.Duration(); d > 0 {
		r.AttemptDuration.Observe(d.Seconds())
	}

	if report.Outcome != domain.OutcomeSuccess {
		return nil
	}
	r.TrovesLiquidated.Add(float64(report.Liquidated))
	// Counters cannot go down; a negative compensation would panic.
	if comp := report.Compensation.InexactFloat64(); comp > 0 {
		r.Compensation.Add(comp)
	}
	if gas := report.GasCost.InexactFloat64(); gas > 0 {
		r.GasCost.Add(gas)
	}
	return nil
}
