package intent

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/metrics"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
)

// FeasibleIntent asks the fee oracle whether the route pays. Infeasible
// intents are parked as INFEASABLE for the rescan routine.
func (p *Pipeline) FeasibleIntent(ctx context.Context, hash common.Hash) error {
	record, err := p.load(ctx, hash)
	if err != nil {
		return err
	}
	if record.Status != models.StatusPending && record.Status != models.StatusInfeasable {
		p.logger.Debug("Skipping feasibility of intent %s in status %s", hash.Hex(), record.Status)
		return nil
	}
	intent := &record.Intent

	if err := p.fees.IsRouteFeasible(ctx, intent); err != nil {
		receipt := &models.Receipt{Error: err.Error()}
		if uerr := p.repo.UpdateStatus(ctx, hash, models.StatusInfeasable, receipt); uerr != nil {
			return uerr
		}
		metrics.StageResults.WithLabelValues(StageFeasible, "infeasible").Inc()
		p.logger.InfoWithChain(intent.DestinationChainID, "Intent %s is infeasible: %v", hash.Hex(), err)
		return nil
	}

	if record.Status == models.StatusInfeasable {
		if err := p.repo.UpdateStatus(ctx, hash, models.StatusPending, nil); err != nil {
			return err
		}
	}
	metrics.StageResults.WithLabelValues(StageFeasible, "feasible").Inc()
	return p.enqueue(ctx, queue.FulfillQueue, StageFulfill, intent)
}
