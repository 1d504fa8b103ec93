package intent

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/metrics"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
	"github.com/speedrun-hq/portal-solver/pkg/svm"
)

// Validation check names, persisted as the receipt of INVALID records
const (
	CheckSupportedProver         = "supportedProver"
	CheckSupportedNative         = "supportedNative"
	CheckSupportedTargets        = "supportedTargets"
	CheckSupportedTransaction    = "supportedTransaction"
	CheckValidTransferLimit      = "validTransferLimit"
	CheckValidExpirationTime     = "validExpirationTime"
	CheckValidDestination        = "validDestination"
	CheckFulfillOnDifferentChain = "fulfillOnDifferentChain"
	CheckValidSourceMax          = "validSourceMax"
	CheckIntentFunded            = "intentFunded"
)

// Validations maps a check name to its outcome
type Validations map[string]bool

// Failed returns the names of the failed checks in sorted order
func (v Validations) Failed() []string {
	var failed []string
	for name, ok := range v {
		if !ok {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

// OK reports whether every check passed
func (v Validations) OK() bool {
	return len(v.Failed()) == 0
}

// TransferLimiter caps the value of a single fill
type TransferLimiter interface {
	WithinLimit(intent *models.Intent) bool
}

// ValidateIntent runs the check vector and the funding check. Failures move
// the record to INVALID with the vector as receipt; success queues the
// feasibility stage.
func (p *Pipeline) ValidateIntent(ctx context.Context, hash common.Hash) error {
	record, err := p.load(ctx, hash)
	if err != nil {
		return err
	}
	if record.Status != models.StatusPending {
		p.logger.Debug("Skipping validation of intent %s in status %s", hash.Hex(), record.Status)
		return nil
	}
	intent := &record.Intent

	if _, err := p.Solver(intent.DestinationChainID); err != nil {
		return p.invalidate(ctx, intent, Validations{CheckValidDestination: false}, err)
	}

	// read errors leave the record PENDING for the queue to retry
	validations, err := p.AssertValidations(ctx, intent)
	if err != nil {
		return fmt.Errorf("validate intent %s: %w", hash.Hex(), err)
	}
	if validations.OK() {
		funded, err := p.intentFunded(ctx, intent)
		if err != nil {
			return fmt.Errorf("validate intent %s: %w", hash.Hex(), err)
		}
		validations[CheckIntentFunded] = funded
	}
	if !validations.OK() {
		return p.invalidate(ctx, intent, validations, nil)
	}

	metrics.StageResults.WithLabelValues(StageValidate, "valid").Inc()
	p.logger.InfoWithChain(intent.SourceChainID, "Intent %s is valid", hash.Hex())
	return p.enqueue(ctx, queue.FeasibilityQueue, StageFeasible, intent)
}

func (p *Pipeline) invalidate(ctx context.Context, intent *models.Intent, validations Validations, cause error) error {
	receipt := &models.Receipt{Validations: validations}
	if cause != nil {
		receipt.Error = cause.Error()
	}
	if err := p.repo.UpdateStatus(ctx, intent.Hash, models.StatusInvalid, receipt); err != nil {
		return err
	}
	metrics.StageResults.WithLabelValues(StageValidate, "invalid").Inc()
	p.logger.InfoWithChain(intent.SourceChainID, "Intent %s failed validation: %s", intent.Hash.Hex(), strings.Join(validations.Failed(), ", "))
	return nil
}

// AssertValidations evaluates every structural and balance check of an intent.
// An error means a balance could not be read and no outcome is known.
func (p *Pipeline) AssertValidations(ctx context.Context, intent *models.Intent) (Validations, error) {
	destination, _ := p.Solver(intent.DestinationChainID)
	sourceMax, err := p.validSourceMax(ctx, intent)
	if err != nil {
		return nil, err
	}
	return Validations{
		CheckSupportedProver:         p.supportedProver(intent),
		CheckSupportedNative:         p.supportedNative(intent),
		CheckSupportedTargets:        supportedTargets(intent, destination),
		CheckSupportedTransaction:    supportedTransaction(intent, destination),
		CheckValidTransferLimit:      p.validTransferLimit(intent),
		CheckValidExpirationTime:     p.validExpirationTime(intent),
		CheckValidDestination:        destination != nil,
		CheckFulfillOnDifferentChain: intent.DestinationChainID != intent.SourceChainID,
		CheckValidSourceMax:          sourceMax,
	}, nil
}

func (p *Pipeline) supportedProver(intent *models.Intent) bool {
	return p.provers.Current().IsSupported(intent.Reward.Prover)
}

// supportedNative rejects native intents unless enabled. Enabled native
// intents must be backed by at least the native value they spend.
func (p *Pipeline) supportedNative(intent *models.Intent) bool {
	if !intent.IsNative() {
		return true
	}
	if !p.cfg.NativeEnabled {
		return false
	}
	reward := intent.Reward.NativeAmount
	if reward == nil {
		reward = new(big.Int)
	}
	return reward.Cmp(intent.TotalCallValue()) >= 0
}

// supportedTargets requires every route token and every call target carrying
// data to be a target of the destination solver. Solana calls target a token
// program, their mint is checked through the route tokens.
func supportedTargets(intent *models.Intent, solver *Solver) bool {
	if solver == nil {
		return false
	}
	for _, token := range intent.Route.Tokens {
		if !solver.SupportsTarget(token.Token) {
			return false
		}
	}
	for _, call := range intent.Route.Calls {
		if len(call.Data) == 0 {
			continue
		}
		if solver.VM == chaintype.SVM {
			if !isTokenProgram(call.Target) {
				return false
			}
			continue
		}
		if !solver.SupportsTarget(call.Target) {
			return false
		}
	}
	return true
}

// supportedTransaction requires at least one call and every call to decode
// as a token transfer on the destination VM
func supportedTransaction(intent *models.Intent, solver *Solver) bool {
	if solver == nil || len(intent.Route.Calls) == 0 {
		return false
	}
	for _, call := range intent.Route.Calls {
		switch solver.VM {
		case chaintype.SVM:
			if _, err := svm.DecodeCalldataWithAccounts(call.Data); err != nil {
				return false
			}
		default:
			if _, _, err := contracts.DecodeTransfer(call.Data); err != nil {
				return false
			}
		}
	}
	return true
}

func isTokenProgram(target address.Address) bool {
	return target == svm.AddressOf(svm.TokenProgramID) || target == svm.AddressOf(svm.Token2022ProgramID)
}

func (p *Pipeline) validTransferLimit(intent *models.Intent) bool {
	limiter, ok := p.fees.(TransferLimiter)
	if !ok {
		return true
	}
	return limiter.WithinLimit(intent)
}

// validExpirationTime requires the reward deadline to leave the prover its
// minimum proof window
func (p *Pipeline) validExpirationTime(intent *models.Intent) bool {
	proofType := p.provers.Current().ProofType(intent.Reward.Prover)
	earliest := p.now().Add(p.cfg.proofWindow(proofType))
	return time.Unix(int64(intent.Reward.Deadline), 0).After(earliest)
}

// errOverMax marks a source balance check that failed on its cap
var errOverMax = errors.New("balance over max")

// validSourceMax keeps the solver balances on the source chain under their
// caps once the reward is paid out. Balance read errors are returned.
func (p *Pipeline) validSourceMax(ctx context.Context, intent *models.Intent) (bool, error) {
	source, err := p.Solver(intent.SourceChainID)
	if err != nil {
		p.logger.DebugWithChain(intent.SourceChainID, "validSourceMax: %v", err)
		return false, nil
	}
	for _, check := range []func(context.Context, *models.Intent, *Solver) error{sourceTokenMax, sourceNativeMax} {
		err := check(ctx, intent, source)
		if err == nil {
			continue
		}
		if errors.Is(err, errOverMax) {
			p.logger.DebugWithChain(intent.SourceChainID, "validSourceMax for %s: %v", intent.Hash.Hex(), err)
			return false, nil
		}
		return false, fmt.Errorf("read source balance: %w", err)
	}
	return true, nil
}

func sourceTokenMax(ctx context.Context, intent *models.Intent, source *Solver) error {
	for _, token := range intent.Reward.Tokens {
		target, ok := source.Targets[token.Token]
		if !ok || target.MaxBalance == nil {
			continue
		}
		if source.Balances == nil {
			return fmt.Errorf("%w: no balance reader for chain %d", errOverMax, source.ChainID)
		}
		balance, err := source.Balances.Balance(ctx, token.Token)
		if err != nil {
			return err
		}
		projected := new(big.Int).Add(balance, token.Amount)
		if projected.Cmp(target.MaxBalance) > 0 {
			return fmt.Errorf("%w: token %s balance %s would exceed %s", errOverMax, token.Token.Hex(), projected, target.MaxBalance)
		}
	}
	return nil
}

func sourceNativeMax(ctx context.Context, intent *models.Intent, source *Solver) error {
	if !intent.IsNative() || source.NativeMax == nil {
		return nil
	}
	if source.Balances == nil {
		return fmt.Errorf("%w: no balance reader for chain %d", errOverMax, source.ChainID)
	}
	balance, err := source.Balances.Balance(ctx, address.Address{})
	if err != nil {
		return err
	}
	projected := new(big.Int).Add(balance, intent.TotalCallValue())
	if intent.Reward.NativeAmount != nil {
		projected.Add(projected, intent.Reward.NativeAmount)
	}
	if projected.Cmp(source.NativeMax) > 0 {
		return fmt.Errorf("%w: native balance %s would exceed %s", errOverMax, projected, source.NativeMax)
	}
	return nil
}

// intentFunded polls the source portal until the intent is funded or the
// retries are used up. Only the calling worker waits. The error of the last
// read is returned when it failed, so an unreachable portal is never taken
// as unfunded.
func (p *Pipeline) intentFunded(ctx context.Context, intent *models.Intent) (bool, error) {
	source, err := p.Solver(intent.SourceChainID)
	if err != nil || source.Funding == nil {
		p.logger.ErrorWithChain(intent.SourceChainID, "No portal reader to check funding of %s", intent.Hash.Hex())
		return false, nil
	}

	var lastErr error
	for attempt := 0; attempt <= p.cfg.FundedRetries; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.cfg.FundedRetryDelay); err != nil {
				return false, err
			}
			p.logger.DebugWithChain(intent.SourceChainID, "Intent %s not funded, retrying (%d/%d)", intent.Hash.Hex(), attempt, p.cfg.FundedRetries)
		}
		funded, err := source.Funding.IsIntentFunded(ctx, intent)
		if err != nil {
			p.logger.ErrorWithChain(intent.SourceChainID, "Failed to read funding of %s: %v", intent.Hash.Hex(), err)
			lastErr = err
			continue
		}
		if funded {
			return true, nil
		}
		lastErr = nil
	}
	if lastErr != nil {
		return false, fmt.Errorf("read funding: %w", lastErr)
	}
	return false, nil
}
