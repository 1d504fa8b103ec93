package intent

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/metrics"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
	"github.com/speedrun-hq/portal-solver/pkg/txbuilder"
)

// DispatchKind is the fulfillment path of an intent
type DispatchKind int

const (
	DispatchWallet DispatchKind = iota
	DispatchCrowdLiquidity
)

func (k DispatchKind) String() string {
	if k == DispatchCrowdLiquidity {
		return txbuilder.PathCrowdLiquidity.String()
	}
	return txbuilder.PathWallet.String()
}

// Dispatch is the outcome of the path decision. Reason explains a wallet
// dispatch when crowd liquidity was ruled out.
type Dispatch struct {
	Kind   DispatchKind
	Reason string
}

// settled reports whether a fulfill job for a record in this status has
// nothing left to do. FAILED records are fulfilled again.
func settled(status models.IntentStatus) bool {
	if status == models.StatusFailed {
		return false
	}
	return status.IsSolved() || status.IsTerminal()
}

// FulfillIntent fulfills a validated intent on its destination chain. The
// crowd liquidity path is tried first when it applies and falls back to the
// solver wallet. Failures are persisted and returned so the queue retries.
func (p *Pipeline) FulfillIntent(ctx context.Context, hash common.Hash) error {
	record, err := p.load(ctx, hash)
	if err != nil {
		return err
	}
	if settled(record.Status) {
		p.logger.Debug("Intent %s already settled in status %s", hash.Hex(), record.Status)
		return nil
	}
	intent := &record.Intent
	chainLabel := strconv.FormatUint(intent.DestinationChainID, 10)

	solver, err := p.Solver(intent.DestinationChainID)
	if err != nil {
		return queue.Permanent(err)
	}

	start := time.Now()
	defer func() {
		metrics.IntentProcessingTime.WithLabelValues(chainLabel).Observe(time.Since(start).Seconds())
	}()

	plan := txbuilder.Plan{
		Path:     txbuilder.PathWallet,
		Provers:  p.provers.Current(),
		Claimant: p.cfg.Claimant,
		Mode:     p.cfg.Mode,
	}
	previous := record.Receipt

	dispatch := p.crowd.Decide(ctx, intent)
	if dispatch.Kind == DispatchCrowdLiquidity {
		receipt, err := p.fulfillCrowdLiquidity(ctx, intent, plan)
		if err == nil {
			metrics.FulfilledIntents.WithLabelValues(chainLabel, DispatchCrowdLiquidity.String()).Inc()
			metrics.StageResults.WithLabelValues(StageFulfill, "cl_solved").Inc()
			p.logger.NoticeWithChain(intent.DestinationChainID, "Intent %s fulfilled from crowd liquidity: %s", hash.Hex(), receipt.TransactionHash)
			return p.repo.UpdateStatus(ctx, hash, models.StatusCLSolved, receipt)
		}
		metrics.CrowdLiquidityFallbacks.WithLabelValues(chainLabel).Inc()
		p.logger.InfoWithChain(intent.DestinationChainID, "Crowd liquidity failed for %s, falling back to wallet: %v", hash.Hex(), err)
		previous = failureReceipt(receipt, err, previous)
	} else {
		p.logger.DebugWithChain(intent.DestinationChainID, "Fulfilling %s with wallet: %s", hash.Hex(), dispatch.Reason)
	}

	receipt, err := p.fulfillWallet(ctx, solver, intent, plan)
	if err != nil {
		failed := failureReceipt(receipt, err, previous)
		if uerr := p.repo.UpdateStatus(ctx, hash, models.StatusFailed, failed); uerr != nil {
			p.logger.ErrorWithChain(intent.DestinationChainID, "Failed to persist failure of %s: %v", hash.Hex(), uerr)
		}
		metrics.FailedIntents.WithLabelValues(chainLabel).Inc()
		metrics.StageResults.WithLabelValues(StageFulfill, "failed").Inc()
		return fmt.Errorf("failed to fulfill intent %s: %w", hash.Hex(), err)
	}

	if receipt.GasUsed > 0 {
		metrics.GasUsed.WithLabelValues(chainLabel).Observe(float64(receipt.GasUsed))
	}
	metrics.FulfilledIntents.WithLabelValues(chainLabel, DispatchWallet.String()).Inc()
	metrics.StageResults.WithLabelValues(StageFulfill, "solved").Inc()
	p.logger.NoticeWithChain(intent.DestinationChainID, "Intent %s fulfilled: %s (block %d)", hash.Hex(), receipt.TransactionHash, receipt.BlockNumber)
	return p.repo.UpdateStatus(ctx, hash, models.StatusSolved, receipt)
}

func (p *Pipeline) fulfillCrowdLiquidity(ctx context.Context, intent *models.Intent, plan txbuilder.Plan) (*models.Receipt, error) {
	if err := p.repo.UpdateStatus(ctx, intent.Hash, models.StatusCLProcessing, nil); err != nil {
		return nil, err
	}
	receipt, err := p.crowd.Fulfill(ctx, intent, plan)
	if err != nil {
		failed := failureReceipt(receipt, err, nil)
		if uerr := p.repo.UpdateStatus(ctx, intent.Hash, models.StatusCLFailed, failed); uerr != nil {
			p.logger.ErrorWithChain(intent.DestinationChainID, "Failed to persist crowd liquidity failure of %s: %v", intent.Hash.Hex(), uerr)
		}
		return receipt, err
	}
	return receipt, nil
}

// fulfillWallet rechecks feasibility, then builds and submits the wallet
// fulfillment. A reverted receipt is returned with ErrFulfillReverted.
func (p *Pipeline) fulfillWallet(ctx context.Context, solver *Solver, intent *models.Intent, plan txbuilder.Plan) (*models.Receipt, error) {
	if err := p.fees.IsRouteFeasible(ctx, intent); err != nil {
		return nil, fmt.Errorf("final feasibility check: %w", err)
	}
	tx, err := solver.Builder.Build(ctx, intent, plan)
	if err != nil {
		return nil, err
	}
	receipt, err := solver.Executor.Execute(ctx, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Reverted() {
		return receipt, fmt.Errorf("%w: %s", ErrFulfillReverted, receipt.TransactionHash)
	}
	return receipt, nil
}

// failureReceipt records err on the receipt of a failed attempt, chaining the
// receipt of the attempt before it
func failureReceipt(receipt *models.Receipt, err error, previous *models.Receipt) *models.Receipt {
	failed := &models.Receipt{}
	if receipt != nil {
		c := *receipt
		failed = &c
	}
	failed.Error = err.Error()
	failed.Previous = previous
	return failed
}
