// Package intent implements the intent lifecycle. Each stage consumes its own
// queue, persists its outcome on the intent record and enqueues the next stage.
package intent

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/fee"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/prover"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
	"github.com/speedrun-hq/portal-solver/pkg/repository"
	"github.com/speedrun-hq/portal-solver/pkg/txbuilder"
)

var (
	// ErrSolverNotFound is returned when no solver is configured for a chain
	ErrSolverNotFound = errors.New("no solver configured for chain")
	// ErrFulfillReverted is returned when the fulfill transaction reverted
	ErrFulfillReverted = errors.New("fulfill transaction reverted")
)

// Job id stages. A job id names the stage that consumes it.
const (
	StageCreate          = "create"
	StageValidate        = "validate"
	StageFeasible        = "feasible"
	StageFulfill         = "fulfill"
	StageWithdraw        = "withdraw"
	StageRetryInfeasable = "retry-infeasable"
)

// JobID returns the deterministic id {stage}:{hash}:{logIndex}
func JobID(stage string, hash common.Hash, logIndex uint) string {
	return fmt.Sprintf("%s:%s:%d", stage, hash.Hex(), logIndex)
}

// RetryJobID returns the id of the n-th infeasible rescan of an intent
func RetryJobID(hash common.Hash, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", StageRetryInfeasable, hash.Hex(), attempt)
}

// JobData is the payload of the validate, feasible and fulfill jobs
type JobData struct {
	IntentHash common.Hash `json:"intentHash"`
}

// FundingChecker reads the funding state of an intent from its source portal
type FundingChecker interface {
	IsIntentFunded(ctx context.Context, intent *models.Intent) (bool, error)
}

// BalanceReader returns the solver balance of a token, the zero token being
// the native currency
type BalanceReader interface {
	Balance(ctx context.Context, token address.Address) (*big.Int, error)
}

// Target is a token the solver settles on a chain
type Target struct {
	// MaxBalance caps the solver balance of the token, nil disables the cap
	MaxBalance *big.Int
}

// Solver is everything the pipeline knows about one chain
type Solver struct {
	ChainID uint64
	VM      chaintype.VMType
	Targets map[address.Address]Target
	// NativeMax caps the native balance on the chain, nil disables the cap
	NativeMax *big.Int

	Builder  txbuilder.Builder
	Executor txbuilder.Executor
	// Funding is used when the chain is the source of an intent
	Funding  FundingChecker
	Balances BalanceReader
}

// SupportsTarget reports whether token is a configured target
func (s *Solver) SupportsTarget(token address.Address) bool {
	_, ok := s.Targets[token]
	return ok
}

// Config holds the pipeline settings
type Config struct {
	// FundedRetries is the number of funding re-checks after the first one
	FundedRetries    int
	FundedRetryDelay time.Duration
	// Claimant receives the reward on the source chain
	Claimant      address.Address
	Mode          txbuilder.FulfillMode
	NativeEnabled bool
	// ProofWindows is the minimum time left before the reward deadline, per proof type
	ProofWindows map[prover.ProofType]time.Duration
	JobOptions   queue.Options
}

// DefaultProofWindows is used when Config.ProofWindows has no entry
var DefaultProofWindows = map[prover.ProofType]time.Duration{
	prover.Hyperlane: time.Hour,
	prover.Storage:   24 * time.Hour,
}

// proofWindow returns the minimum time to keep before the reward deadline
func (c Config) proofWindow(t prover.ProofType) time.Duration {
	if w, ok := c.ProofWindows[t]; ok {
		return w
	}
	return DefaultProofWindows[t]
}

// Pipeline runs the lifecycle stages
type Pipeline struct {
	cfg     Config
	repo    repository.IntentRepository
	queue   queue.Queue
	solvers map[uint64]*Solver
	provers *prover.Holder
	fees    fee.Oracle
	gate    WalletGate
	crowd   *CrowdLiquidity
	logger  logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customises a Pipeline
type Option func(*Pipeline)

// WithWalletGate enables the creator wallet gate
func WithWalletGate(gate WalletGate) Option {
	return func(p *Pipeline) { p.gate = gate }
}

// WithCrowdLiquidity enables the crowd liquidity path
func WithCrowdLiquidity(crowd *CrowdLiquidity) Option {
	return func(p *Pipeline) { p.crowd = crowd }
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline over the given solvers keyed by chain id
func NewPipeline(
	cfg Config,
	repo repository.IntentRepository,
	q queue.Queue,
	solvers map[uint64]*Solver,
	provers *prover.Holder,
	fees fee.Oracle,
	log logger.Logger,
	opts ...Option,
) *Pipeline {
	if cfg.JobOptions.Attempts == 0 {
		cfg.JobOptions = queue.DefaultOptions
	}
	if cfg.Mode == "" {
		cfg.Mode = txbuilder.ModeSingle
	}
	p := &Pipeline{
		cfg:     cfg,
		repo:    repo,
		queue:   q,
		solvers: solvers,
		provers: provers,
		fees:    fees,
		logger:  log,
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Solver returns the solver of a chain
func (p *Pipeline) Solver(chainID uint64) (*Solver, error) {
	s, ok := p.solvers[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrSolverNotFound, chainID)
	}
	return s, nil
}

// Solvers returns every configured chain solver
func (p *Pipeline) Solvers() map[uint64]*Solver {
	return p.solvers
}

func (p *Pipeline) enqueue(ctx context.Context, queueName, stage string, intent *models.Intent) error {
	jobID := JobID(stage, intent.Hash, intent.LogIndex)
	added, err := p.queue.Add(ctx, queueName, jobID, JobData{IntentHash: intent.Hash}, p.cfg.JobOptions)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", jobID, err)
	}
	if !added {
		p.logger.DebugWithChain(intent.SourceChainID, "Job %s already queued", jobID)
	}
	return nil
}

// load returns the record of a job, a missing record is permanent for the job
func (p *Pipeline) load(ctx context.Context, hash common.Hash) (*models.IntentRecord, error) {
	record, err := p.repo.GetByHash(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, queue.Permanent(err)
	}
	return record, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
