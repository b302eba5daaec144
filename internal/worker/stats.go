package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/licenseiq/licenseiq/internal/types"
)

var (
	rulesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "licenseiq",
		Subsystem: "store",
		Name:      "rules",
		Help:      "Persisted rule definitions.",
	})
	pendingRulesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "licenseiq",
		Subsystem: "store",
		Name:      "pending_rules",
		Help:      "Persisted rules awaiting review.",
	})
	confirmedTermsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "licenseiq",
		Subsystem: "store",
		Name:      "confirmed_term_mappings",
		Help:      "Confirmed contract term to ERP field mappings.",
	})
)

// StatsStore defines the store operations needed by the stats worker.
type StatsStore interface {
	GetStats(ctx context.Context) (*types.StoreStats, error)
}

// StatsWorker periodically publishes store statistics as Prometheus gauges.
type StatsWorker struct {
	store    StatsStore
	interval time.Duration
}

// NewStatsWorker creates a worker with the given store and interval.
func NewStatsWorker(store StatsStore, interval time.Duration) *StatsWorker {
	return &StatsWorker{
		store:    store,
		interval: interval,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
// Publishes once immediately so gauges are populated before the first scrape.
func (w *StatsWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "store-stats",
		"interval", w.interval.String(),
	)

	w.publish(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "store-stats",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.publish(ctx)
		}
	}
}

// publish reads the store statistics once and updates the gauges.
func (w *StatsWorker) publish(ctx context.Context) {
	stats, err := w.store.GetStats(ctx)
	if err != nil {
		// Check for graceful shutdown
		if ctx.Err() != nil {
			return
		}
		slog.Error("store stats failed",
			"component", "worker",
			"action", "stats_failed",
			"error", err,
		)
		return
	}

	rulesGauge.Set(float64(stats.RuleCount))
	pendingRulesGauge.Set(float64(stats.PendingRuleCount))
	confirmedTermsGauge.Set(float64(stats.ConfirmedTermsCount))

	slog.Debug("store stats published",
		"component", "worker",
		"action", "stats_published",
		"rules", stats.RuleCount,
		"pending_rules", stats.PendingRuleCount,
		"confirmed_terms", stats.ConfirmedTermsCount,
	)
}
