package intent

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/fee"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/portal"
	"github.com/speedrun-hq/portal-solver/pkg/prover"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
	"github.com/speedrun-hq/portal-solver/pkg/repository"
	"github.com/speedrun-hq/portal-solver/pkg/txbuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sourceChain      = uint64(10)
	destinationChain = uint64(8453)
	deadline         = uint64(1756385182)
)

var (
	usdcBase     = address.FromEVM(common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"))
	usdcOptimism = address.FromEVM(common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"))
	creator      = address.FromEVM(common.HexToAddress("0x90F0c8aCC1E083Bcb4F487f84FC349ae8d5e28D7"))
	hyperProver  = address.FromEVM(common.HexToAddress("0xde255Aab8e56a6Ae6913Df3a9Bbb6a9f22367f4C"))
	claimant     = address.FromEVM(common.HexToAddress("0x000000000000000000000000000000000000c1a1"))
	poolAddress  = address.FromEVM(common.HexToAddress("0x0000000000000000000000000000000000000b01"))

	// two hours before the reward deadline
	testNow = time.Unix(int64(deadline), 0).Add(-2 * time.Hour)
)

func transferData(t *testing.T, to address.Address, amount int64) hexutil.Bytes {
	t.Helper()
	recipient, err := to.EVM()
	require.NoError(t, err)
	data, err := contracts.PackTransfer(recipient, big.NewInt(amount))
	require.NoError(t, err)
	return data
}

// newIntent returns the golden intent with its hash set
func newIntent(t *testing.T) *models.Intent {
	t.Helper()
	intent := &models.Intent{
		SourceChainID:      sourceChain,
		DestinationChainID: destinationChain,
		Route: models.Route{
			Salt:         common.HexToHash("0xe00330d78c883f2c711f01b5c5ba5ed03a5452c7e6c3146607a6f18e3404f1e4"),
			Deadline:     deadline,
			Portal:       creator,
			NativeAmount: big.NewInt(0),
			Tokens:       []models.TokenAmount{{Token: usdcBase, Amount: big.NewInt(70000)}},
			Calls: []models.Call{{
				Target: usdcBase,
				Data:   transferData(t, creator, 70000),
				Value:  big.NewInt(0),
			}},
		},
		Reward: models.Reward{
			Deadline:     deadline,
			Creator:      creator,
			Prover:       hyperProver,
			NativeAmount: big.NewInt(0),
			Tokens:       []models.TokenAmount{{Token: usdcOptimism, Amount: big.NewInt(100000)}},
		},
		LogIndex: 3,
	}
	rehash(t, intent)
	return intent
}

func rehash(t *testing.T, intent *models.Intent) {
	t.Helper()
	hashes, err := portal.GetIntentHash(intent)
	require.NoError(t, err)
	intent.Hash = hashes.IntentHash
}

func publishedEvent(t *testing.T, intent *models.Intent) *models.RawEvent {
	t.Helper()
	event := contracts.PortalParsedABI.Events["IntentPublished"]
	routeBytes, err := portal.Encode(intent.Route, chaintype.EVM)
	require.NoError(t, err)
	reward, err := portal.ToEvmReward(intent.Reward)
	require.NoError(t, err)

	data, err := event.Inputs.NonIndexed().Pack(
		intent.DestinationChainID,
		intent.Reward.Deadline,
		reward.NativeAmount,
		reward.Tokens,
		routeBytes,
	)
	require.NoError(t, err)

	return portal.RawEventFromLog(intent.SourceChainID, types.Log{
		Address: common.HexToAddress("0x90F0c8aCC1E083Bcb4F487f84FC349ae8d5e28D7"),
		Topics: []common.Hash{
			event.ID,
			intent.Hash,
			common.BytesToHash(reward.Creator.Bytes()),
			common.BytesToHash(reward.Prover.Bytes()),
		},
		Data:        data,
		BlockNumber: 100,
		TxHash:      common.HexToHash("0xabc"),
		Index:       intent.LogIndex,
	})
}

func withdrawnEvent(t *testing.T, hash common.Hash, recipient common.Address) *models.RawEvent {
	t.Helper()
	event := contracts.PortalParsedABI.Events["IntentWithdrawn"]
	data, err := event.Inputs.NonIndexed().Pack(hash)
	require.NoError(t, err)
	return portal.RawEventFromLog(sourceChain, types.Log{
		Topics:  []common.Hash{event.ID, common.BytesToHash(recipient.Bytes())},
		Data:    data,
		TxHash:  common.HexToHash("0xdef"),
		Index:   1,
		Address: common.HexToAddress("0x90F0c8aCC1E083Bcb4F487f84FC349ae8d5e28D7"),
	})
}

type fakeFunding struct {
	mu     sync.Mutex
	funded []bool
	calls  int
	err    error
}

func (f *fakeFunding) IsIntentFunded(context.Context, *models.Intent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if len(f.funded) == 0 {
		return false, nil
	}
	if f.calls > len(f.funded) {
		return f.funded[len(f.funded)-1], nil
	}
	return f.funded[f.calls-1], nil
}

func (f *fakeFunding) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBalances map[address.Address]*big.Int

func (f fakeBalances) Balance(_ context.Context, token address.Address) (*big.Int, error) {
	if b, ok := f[token]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

type fakeBuilder struct {
	mu    sync.Mutex
	plans []txbuilder.Plan
	err   error
}

func (f *fakeBuilder) Build(_ context.Context, _ *models.Intent, plan txbuilder.Plan) (*txbuilder.ChainTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, plan)
	if f.err != nil {
		return nil, f.err
	}
	return &txbuilder.ChainTransaction{VM: chaintype.EVM}, nil
}

type fakeExecutor struct {
	mu      sync.Mutex
	receipt *models.Receipt
	err     error
	calls   int
}

func (f *fakeExecutor) Execute(context.Context, *txbuilder.ChainTransaction) (*models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := *f.receipt
	return &r, nil
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func successReceipt(tx string) *models.Receipt {
	return &models.Receipt{TransactionHash: tx, BlockNumber: 7, Status: models.ReceiptSuccess, GasUsed: 21000, ChainID: destinationChain}
}

type harness struct {
	p        *Pipeline
	repo     *repository.MemoryRepository
	q        *queue.MemoryQueue
	funding  *fakeFunding
	balances fakeBalances
	builder  *fakeBuilder
	executor *fakeExecutor
	oracle   *fee.ProportionalOracle
	sleeps   int
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		repo:     repository.NewMemoryRepository(),
		q:        queue.NewMemoryQueue(&logger.EmptyLogger{}, 0),
		funding:  &fakeFunding{funded: []bool{true}},
		balances: fakeBalances{},
		builder:  &fakeBuilder{},
		executor: &fakeExecutor{receipt: successReceipt("0xf11")},
		oracle:   fee.NewProportionalOracle(5, big.NewInt(1_000_000)),
	}
	solvers := map[uint64]*Solver{
		destinationChain: {
			ChainID:  destinationChain,
			VM:       chaintype.EVM,
			Targets:  map[address.Address]Target{usdcBase: {}},
			Builder:  h.builder,
			Executor: h.executor,
		},
		sourceChain: {
			ChainID:  sourceChain,
			VM:       chaintype.EVM,
			Targets:  map[address.Address]Target{usdcOptimism: {MaxBalance: big.NewInt(1_000_000)}},
			Funding:  h.funding,
			Balances: h.balances,
		},
	}
	provers := prover.NewHolder(prover.NewSnapshot(map[address.Address]prover.ProofType{hyperProver: prover.Hyperlane}))
	cfg := Config{
		FundedRetries:    2,
		FundedRetryDelay: time.Second,
		Claimant:         claimant,
		JobOptions:       queue.Options{Attempts: 1},
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	h.p = NewPipeline(cfg, h.repo, h.q, solvers, provers, h.oracle, &logger.EmptyLogger{}, opts...)
	h.p.sleep = func(context.Context, time.Duration) error {
		h.sleeps++
		return nil
	}
	return h
}

func (h *harness) store(t *testing.T, intent *models.Intent, status models.IntentStatus) {
	t.Helper()
	require.NoError(t, h.repo.Create(context.Background(), &models.IntentRecord{
		Hash:        intent.Hash.Hex(),
		Status:      status,
		SourceChain: intent.SourceChainID,
		Intent:      *intent,
	}))
}

func (h *harness) record(t *testing.T, hash common.Hash) *models.IntentRecord {
	t.Helper()
	record, err := h.repo.GetByHash(context.Background(), hash)
	require.NoError(t, err)
	return record
}

func TestJobIDs(t *testing.T) {
	hash := common.HexToHash("0x3dfc026bb437333020c091d1cd3956dcd485914989e1933d9d2ce69c0c60b82f")
	assert.Equal(t, "validate:0x3dfc026bb437333020c091d1cd3956dcd485914989e1933d9d2ce69c0c60b82f:3", JobID(StageValidate, hash, 3))
	assert.Equal(t, "retry-infeasable:0x3dfc026bb437333020c091d1cd3956dcd485914989e1933d9d2ce69c0c60b82f:2", RetryJobID(hash, 2))
}

func TestCreateIntentIsIdempotent(t *testing.T) {
	h := newHarness(t)
	intent := newIntent(t)
	event := publishedEvent(t, intent)
	ctx := context.Background()

	require.NoError(t, h.p.CreateIntent(ctx, event))
	require.NoError(t, h.p.CreateIntent(ctx, event))

	assert.Equal(t, 1, h.repo.Len())
	record := h.record(t, intent.Hash)
	assert.Equal(t, models.StatusPending, record.Status)
	assert.Equal(t, uint(3), record.Intent.LogIndex)
	require.NotNil(t, record.RawEvent)
	assert.Equal(t, event.TxHash, record.RawEvent.TxHash)
	assert.Equal(t, []string{JobID(StageValidate, intent.Hash, 3)}, h.q.JobIDs(queue.ValidateQueue))
}

func TestCreateIntentWalletGate(t *testing.T) {
	intent := newIntent(t)

	h := newHarness(t, WithWalletGate(NewAllowListGate(claimant)))
	require.NoError(t, h.p.CreateIntent(context.Background(), publishedEvent(t, intent)))
	assert.Equal(t, models.StatusNonBendWallet, h.record(t, intent.Hash).Status)
	assert.Empty(t, h.q.JobIDs(queue.ValidateQueue))

	h = newHarness(t, WithWalletGate(NewAllowListGate(creator)))
	require.NoError(t, h.p.CreateIntent(context.Background(), publishedEvent(t, intent)))
	assert.Equal(t, models.StatusPending, h.record(t, intent.Hash).Status)
	assert.Len(t, h.q.JobIDs(queue.ValidateQueue), 1)
}

func TestCreateIntentRejectsForgedHash(t *testing.T) {
	h := newHarness(t)
	intent := newIntent(t)
	intent.Hash = common.HexToHash("0x1234")

	err := h.p.CreateIntent(context.Background(), publishedEvent(t, intent))
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, portal.ErrIntentHashMismatch)
	assert.Equal(t, 0, h.repo.Len())
}

func TestValidateIntentChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, h *harness, intent *models.Intent)
		failed string
	}{
		{
			name: "unsupported prover",
			mutate: func(_ *testing.T, _ *harness, intent *models.Intent) {
				intent.Reward.Prover = address.FromEVM(common.HexToAddress("0x01"))
			},
			failed: CheckSupportedProver,
		},
		{
			name: "native disabled",
			mutate: func(_ *testing.T, _ *harness, intent *models.Intent) {
				intent.Reward.NativeAmount = big.NewInt(1)
			},
			failed: CheckSupportedNative,
		},
		{
			name: "unsupported target",
			mutate: func(t *testing.T, _ *harness, intent *models.Intent) {
				other := address.FromEVM(common.HexToAddress("0x0000000000000000000000000000000000000dad"))
				intent.Route.Tokens[0].Token = other
				intent.Route.Calls[0].Target = other
			},
			failed: CheckSupportedTargets,
		},
		{
			name: "no calls",
			mutate: func(_ *testing.T, _ *harness, intent *models.Intent) {
				intent.Route.Calls = nil
			},
			failed: CheckSupportedTransaction,
		},
		{
			name: "not a transfer",
			mutate: func(_ *testing.T, _ *harness, intent *models.Intent) {
				intent.Route.Calls[0].Data = hexutil.MustDecode("0x095ea7b3")
			},
			failed: CheckSupportedTransaction,
		},
		{
			name: "transfer limit",
			mutate: func(_ *testing.T, h *harness, _ *models.Intent) {
				h.oracle.Limit = big.NewInt(1000)
			},
			failed: CheckValidTransferLimit,
		},
		{
			name: "deadline inside proof window",
			mutate: func(_ *testing.T, _ *harness, intent *models.Intent) {
				intent.Reward.Deadline = uint64(testNow.Add(30 * time.Minute).Unix())
			},
			failed: CheckValidExpirationTime,
		},
		{
			name: "same chain",
			mutate: func(_ *testing.T, _ *harness, intent *models.Intent) {
				intent.DestinationChainID = sourceChain
			},
			failed: CheckFulfillOnDifferentChain,
		},
		{
			name: "source balance over max",
			mutate: func(_ *testing.T, h *harness, _ *models.Intent) {
				h.balances[usdcOptimism] = big.NewInt(950_000)
			},
			failed: CheckValidSourceMax,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			intent := newIntent(t)
			tt.mutate(t, h, intent)
			rehash(t, intent)
			h.store(t, intent, models.StatusPending)

			require.NoError(t, h.p.ValidateIntent(context.Background(), intent.Hash))

			record := h.record(t, intent.Hash)
			assert.Equal(t, models.StatusInvalid, record.Status)
			require.NotNil(t, record.Receipt)
			assert.Contains(t, record.Receipt.Validations, tt.failed)
			assert.False(t, record.Receipt.Validations[tt.failed])
			assert.Empty(t, h.q.JobIDs(queue.FeasibilityQueue))
			assert.Equal(t, 0, h.funding.Calls(), "funding is not read for structurally invalid intents")
		})
	}
}

func TestValidateIntentUnknownDestination(t *testing.T) {
	h := newHarness(t)
	intent := newIntent(t)
	intent.DestinationChainID = 42161
	rehash(t, intent)
	h.store(t, intent, models.StatusPending)

	require.NoError(t, h.p.ValidateIntent(context.Background(), intent.Hash))
	record := h.record(t, intent.Hash)
	assert.Equal(t, models.StatusInvalid, record.Status)
	assert.False(t, record.Receipt.Validations[CheckValidDestination])
	assert.Contains(t, record.Receipt.Error, ErrSolverNotFound.Error())
}

func TestValidateIntentFundingRetries(t *testing.T) {
	h := newHarness(t)
	h.funding.funded = []bool{false, false, true}
	intent := newIntent(t)
	h.store(t, intent, models.StatusPending)

	require.NoError(t, h.p.ValidateIntent(context.Background(), intent.Hash))

	assert.Equal(t, 3, h.funding.Calls())
	assert.Equal(t, 2, h.sleeps)
	assert.Equal(t, models.StatusPending, h.record(t, intent.Hash).Status)
	assert.Equal(t, []string{JobID(StageFeasible, intent.Hash, 3)}, h.q.JobIDs(queue.FeasibilityQueue))
}

func TestValidateIntentFundingExhausted(t *testing.T) {
	h := newHarness(t)
	h.funding.funded = []bool{false}
	intent := newIntent(t)
	h.store(t, intent, models.StatusPending)

	require.NoError(t, h.p.ValidateIntent(context.Background(), intent.Hash))

	assert.Equal(t, 3, h.funding.Calls(), "one check plus two retries")
	record := h.record(t, intent.Hash)
	assert.Equal(t, models.StatusInvalid, record.Status)
	assert.Equal(t, []string{CheckIntentFunded}, Validations(record.Receipt.Validations).Failed())
}

func TestValidateIntentFundingReadErrors(t *testing.T) {
	h := newHarness(t)
	h.funding.err = errors.New("connection refused")
	intent := newIntent(t)
	h.store(t, intent, models.StatusPending)

	err := h.p.ValidateIntent(context.Background(), intent.Hash)
	require.Error(t, err)
	assert.ErrorIs(t, err, h.funding.err)
	assert.False(t, queue.IsPermanent(err), "the queue retries unreadable funding")
	assert.Equal(t, 3, h.funding.Calls())

	record := h.record(t, intent.Hash)
	assert.Equal(t, models.StatusPending, record.Status)
	assert.Nil(t, record.Receipt)
	assert.Empty(t, h.q.JobIDs(queue.FeasibilityQueue))
}

type failingBalances struct{ err error }

func (f failingBalances) Balance(context.Context, address.Address) (*big.Int, error) {
	return nil, f.err
}

func TestValidateIntentBalanceReadErrors(t *testing.T) {
	h := newHarness(t)
	readErr := errors.New("503 service unavailable")
	h.p.solvers[sourceChain].Balances = failingBalances{err: readErr}
	intent := newIntent(t)
	h.store(t, intent, models.StatusPending)

	err := h.p.ValidateIntent(context.Background(), intent.Hash)
	require.ErrorIs(t, err, readErr)
	assert.False(t, queue.IsPermanent(err))
	assert.Equal(t, models.StatusPending, h.record(t, intent.Hash).Status)
	assert.Equal(t, 0, h.funding.Calls())
}

func TestValidateIntentSkipsProcessedRecords(t *testing.T) {
	h := newHarness(t)
	intent := newIntent(t)
	h.store(t, intent, models.StatusSolved)

	require.NoError(t, h.p.ValidateIntent(context.Background(), intent.Hash))
	assert.Equal(t, models.StatusSolved, h.record(t, intent.Hash).Status)
	assert.Equal(t, 0, h.funding.Calls())
}

func TestStageMissingRecordIsPermanent(t *testing.T) {
	h := newHarness(t)
	err := h.p.FulfillIntent(context.Background(), common.HexToHash("0x99"))
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFeasibleIntent(t *testing.T) {
	h := newHarness(t)
	intent := newIntent(t)
	h.store(t, intent, models.StatusPending)

	h.oracle.FeePermille = 1000 // reward must double the route
	require.NoError(t, h.p.FeasibleIntent(context.Background(), intent.Hash))
	record := h.record(t, intent.Hash)
	assert.Equal(t, models.StatusInfeasable, record.Status)
	assert.Contains(t, record.Receipt.Error, "reward too low")
	assert.Empty(t, h.q.JobIDs(queue.FulfillQueue))

	h.oracle.FeePermille = 5
	require.NoError(t, h.p.FeasibleIntent(context.Background(), intent.Hash))
	assert.Equal(t, models.StatusPending, h.record(t, intent.Hash).Status)
	assert.Equal(t, []string{JobID(StageFulfill, intent.Hash, 3)}, h.q.JobIDs(queue.FulfillQueue))
}

func TestFulfillIntentWallet(t *testing.T) {
	h := newHarness(t)
	intent := newIntent(t)
	h.store(t, intent, models.StatusPending)

	require.NoError(t, h.p.FulfillIntent(context.Background(), intent.Hash))

	record := h.record(t, intent.Hash)
	assert.Equal(t, models.StatusSolved, record.Status)
	assert.Equal(t, "0xf11", record.Receipt.TransactionHash)
	require.Len(t, h.builder.plans, 1)
	plan := h.builder.plans[0]
	assert.Equal(t, txbuilder.PathWallet, plan.Path)
	assert.Equal(t, claimant, plan.Claimant)
	assert.Equal(t, txbuilder.ModeSingle, plan.Mode)
	assert.True(t, plan.Provers.IsHyperlaneProver(hyperProver))

	// a redelivered job does not submit twice
	require.NoError(t, h.p.FulfillIntent(context.Background(), intent.Hash))
	assert.Equal(t, 1, h.executor.Calls())
}

func TestFulfillIntentSkipsSettledRecords(t *testing.T) {
	for _, status := range []models.IntentStatus{
		models.StatusWithdrawn,
		models.StatusInvalid,
		models.StatusNonBendWallet,
		models.StatusCLSolved,
		models.StatusFulfilled,
	} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t)
			intent := newIntent(t)
			h.store(t, intent, status)

			require.NoError(t, h.p.FulfillIntent(context.Background(), intent.Hash))
			assert.Equal(t, 0, h.executor.Calls())
			assert.Empty(t, h.builder.plans)
			assert.Equal(t, status, h.record(t, intent.Hash).Status)
		})
	}
}

func TestFulfillIntentRevertedReceipt(t *testing.T) {
	h := newHarness(t)
	h.executor.receipt = &models.Receipt{TransactionHash: "0xbad", Status: models.ReceiptReverted}
	intent := newIntent(t)
	h.store(t, intent, models.StatusPending)

	err := h.p.FulfillIntent(context.Background(), intent.Hash)
	require.ErrorIs(t, err, ErrFulfillReverted)
	assert.False(t, queue.IsPermanent(err))

	record := h.record(t, intent.Hash)
	assert.Equal(t, models.StatusFailed, record.Status)
	assert.Equal(t, "0xbad", record.Receipt.TransactionHash)
	assert.Nil(t, record.Receipt.Previous)

	// the retry keeps the failed attempt as previous receipt
	h.executor.err = errors.New("nonce too low")
	require.Error(t, h.p.FulfillIntent(context.Background(), intent.Hash))
	record = h.record(t, intent.Hash)
	assert.Equal(t, "nonce too low", record.Receipt.Error)
	require.NotNil(t, record.Receipt.Previous)
	assert.Equal(t, "0xbad", record.Receipt.Previous.TransactionHash)
}

func TestFulfillIntentFinalFeasibilityCheck(t *testing.T) {
	h := newHarness(t)
	intent := newIntent(t)
	h.store(t, intent, models.StatusPending)
	h.oracle.FeePermille = 1000

	err := h.p.FulfillIntent(context.Background(), intent.Hash)
	assert.ErrorIs(t, err, fee.ErrRewardTooLow)
	assert.Equal(t, models.StatusFailed, h.record(t, intent.Hash).Status)
	assert.Equal(t, 0, h.executor.Calls())
}

func TestFulfillIntentUnknownSolverIsPermanent(t *testing.T) {
	h := newHarness(t)
	intent := newIntent(t)
	intent.DestinationChainID = 42161
	rehash(t, intent)
	h.store(t, intent, models.StatusPending)

	err := h.p.FulfillIntent(context.Background(), intent.Hash)
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, ErrSolverNotFound)
}

func TestHandleWithdrawal(t *testing.T) {
	ctx := context.Background()
	recipient := common.HexToAddress("0x000000000000000000000000000000000000c1a1")

	h := newHarness(t)
	solved := newIntent(t)
	h.store(t, solved, models.StatusSolved)
	require.NoError(t, h.p.HandleWithdrawal(ctx, withdrawnEvent(t, solved.Hash, recipient)))
	record := h.record(t, solved.Hash)
	assert.Equal(t, models.StatusWithdrawn, record.Status)
	require.NotNil(t, record.WithdrawalID)
	assert.Equal(t, common.HexToHash("0xdef").Hex(), *record.WithdrawalID)

	h = newHarness(t)
	crowd := newIntent(t)
	h.store(t, crowd, models.StatusCLSolved)
	require.NoError(t, h.p.HandleWithdrawal(ctx, withdrawnEvent(t, crowd.Hash, recipient)))
	assert.Equal(t, models.StatusWithdrawn, h.record(t, crowd.Hash).Status)

	h = newHarness(t)
	pending := newIntent(t)
	h.store(t, pending, models.StatusPending)
	require.NoError(t, h.p.HandleWithdrawal(ctx, withdrawnEvent(t, pending.Hash, recipient)))
	assert.Equal(t, models.StatusPending, h.record(t, pending.Hash).Status)

	// unknown intents belong to other solvers
	require.NoError(t, h.p.HandleWithdrawal(ctx, withdrawnEvent(t, common.HexToHash("0x42"), recipient)))
}

func TestRescanner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	live := newIntent(t)
	h.store(t, live, models.StatusInfeasable)

	expired := newIntent(t)
	expired.Route.Salt = common.HexToHash("0x02")
	expired.Reward.Deadline = uint64(testNow.Unix())
	rehash(t, expired)
	h.store(t, expired, models.StatusInfeasable)

	r := NewRescanner(h.p, time.Minute, 0)
	queued, err := r.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	queued, err = r.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	assert.Equal(t, []string{RetryJobID(live.Hash, 1), RetryJobID(live.Hash, 2)}, h.q.JobIDs(queue.FeasibilityQueue))
}

func TestRescannerForgetsSettledIntents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := newIntent(t)
	h.store(t, first, models.StatusInfeasable)
	second := newIntent(t)
	second.Route.Salt = common.HexToHash("0x03")
	rehash(t, second)
	h.store(t, second, models.StatusInfeasable)

	r := NewRescanner(h.p, time.Minute, 0)
	_, err := r.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Tracked())

	// the first intent becomes feasible and is fulfilled
	require.NoError(t, h.repo.UpdateStatus(ctx, first.Hash, models.StatusSolved, nil))
	_, err = r.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Tracked())

	// the second one runs out of proof window
	h.p.now = func() time.Time { return time.Unix(int64(second.Reward.Deadline), 0) }
	queued, err := r.Rescan(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued)
	assert.Zero(t, r.Tracked())
}

func TestRescannerStartStop(t *testing.T) {
	h := newHarness(t)
	r := NewRescanner(h.p, time.Hour, 10)
	assert.False(t, r.IsRunning())
	r.Start(context.Background())
	assert.True(t, r.IsRunning())
	r.Stop()
	assert.False(t, r.IsRunning())
}
