package fulfiller

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/speedrun-hq/portal-solver/pkg/intent"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/speedrun-hq/portal-solver/pkg/metrics"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/repository"
)

// DefaultMetricsInterval is the refresh period of the gauges
const DefaultMetricsInterval = 30 * time.Second

// pendingScanLimit bounds the records counted for the pending gauge
const pendingScanLimit = 10000

// MetricsManager refreshes the gauges that are not updated by the pipeline
type MetricsManager struct {
	repo    repository.IntentRepository
	solvers map[uint64]*intent.Solver
	logger  logger.Logger
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(repo repository.IntentRepository, solvers map[uint64]*intent.Solver, log logger.Logger) *MetricsManager {
	return &MetricsManager{
		repo:    repo,
		solvers: solvers,
		logger:  log,
	}
}

// UpdateMetrics updates all metrics
func (mm *MetricsManager) UpdateMetrics(ctx context.Context) {
	mm.logger.Debug("Updating metrics...")

	pending, err := mm.repo.FindByStatus(ctx, models.StatusPending, pendingScanLimit)
	if err != nil {
		mm.logger.Error("Failed to count pending intents: %v", err)
	} else {
		metrics.PendingIntents.Set(float64(len(pending)))
	}

	for chainID, solver := range mm.solvers {
		if solver.Balances == nil {
			continue
		}
		label := strconv.FormatUint(chainID, 10)
		for token := range solver.Targets {
			balance, err := solver.Balances.Balance(ctx, token)
			if err != nil {
				mm.logger.DebugWithChain(chainID, "Failed to read balance of %s: %v", token.Hex(), err)
				continue
			}
			f, _ := new(big.Float).SetInt(balance).Float64()
			metrics.TokenBalance.WithLabelValues(label, token.Hex()).Set(f)
		}
	}

	mm.logger.Debug("Metrics update completed")
}

// StartMetricsUpdater refreshes the metrics until ctx is cancelled
func (mm *MetricsManager) StartMetricsUpdater(ctx context.Context, interval time.Duration) {
	mm.logger.Info("Starting metrics updater")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.logger.Info("Metrics updater shutting down")
			return
		case <-ticker.C:
			mm.UpdateMetrics(ctx)
		}
	}
}
