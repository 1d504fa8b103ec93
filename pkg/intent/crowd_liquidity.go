package intent

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/sourcegraph/conc/pool"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/txbuilder"
)

var (
	ErrRouteNotSupported = errors.New("crowd liquidity: route not supported")
	ErrRewardNotEnough   = errors.New("crowd liquidity: reward not enough")
	ErrPoolNotSolvent    = errors.New("crowd liquidity: pool not solvent")
	ErrNoPool            = errors.New("crowd liquidity: no pool on chain")
)

// FeeScale is the denominator of crowd liquidity fee percentages
const FeeScale = 1_000_000

const (
	DefaultBalanceTTL = 30 * time.Second
	DefaultFeeTTL     = 5 * time.Minute
	maxBalanceReads   = 8
)

// TokenBalanceReader reads ERC-20 balances of any owner
type TokenBalanceReader interface {
	BalanceOf(ctx context.Context, token, owner address.Address) (*big.Int, error)
}

// PoolFeeReader reads the current fee of a pool in FeeScale units
type PoolFeeReader interface {
	PoolFee(ctx context.Context) (uint64, error)
}

// Pool is the crowd liquidity pool of one destination chain
type Pool struct {
	Address  address.Address
	Balances TokenBalanceReader
	// Fees is optional, the configured fee percentage is used without it
	Fees     PoolFeeReader
	Builder  txbuilder.Builder
	Executor txbuilder.Executor
}

// CrowdLiquidityConfig configures the crowd liquidity path
type CrowdLiquidityConfig struct {
	// FeePercentage is in FeeScale units, 10000 is 1%
	FeePercentage uint64
	// SupportedTokens is the allow-list of tokens per chain
	SupportedTokens map[uint64][]address.Address
	BalanceTTL      time.Duration
	FeeTTL          time.Duration
}

// CrowdLiquidity fulfills intents from shared pools instead of the solver wallet
type CrowdLiquidity struct {
	cfg       CrowdLiquidityConfig
	pools     map[uint64]*Pool
	supported map[uint64]map[address.Address]struct{}
	balances  *ttlcache.Cache[string, *big.Int]
	fees      *ttlcache.Cache[uint64, uint64]
	logger    logger.Logger
}

// NewCrowdLiquidity creates the crowd liquidity path over pools keyed by chain id
func NewCrowdLiquidity(cfg CrowdLiquidityConfig, pools map[uint64]*Pool, log logger.Logger) *CrowdLiquidity {
	if cfg.BalanceTTL == 0 {
		cfg.BalanceTTL = DefaultBalanceTTL
	}
	if cfg.FeeTTL == 0 {
		cfg.FeeTTL = DefaultFeeTTL
	}
	supported := make(map[uint64]map[address.Address]struct{}, len(cfg.SupportedTokens))
	for chainID, tokens := range cfg.SupportedTokens {
		set := make(map[address.Address]struct{}, len(tokens))
		for _, t := range tokens {
			set[t] = struct{}{}
		}
		supported[chainID] = set
	}
	return &CrowdLiquidity{
		cfg:       cfg,
		pools:     pools,
		supported: supported,
		balances: ttlcache.New(
			ttlcache.WithTTL[string, *big.Int](cfg.BalanceTTL),
			ttlcache.WithDisableTouchOnHit[string, *big.Int](),
		),
		fees: ttlcache.New(
			ttlcache.WithTTL[uint64, uint64](cfg.FeeTTL),
			ttlcache.WithDisableTouchOnHit[uint64, uint64](),
		),
		logger: log,
	}
}

// Start runs the cache expiry loops until Stop
func (c *CrowdLiquidity) Start() {
	go c.balances.Start()
	go c.fees.Start()
}

func (c *CrowdLiquidity) Stop() {
	c.balances.Stop()
	c.fees.Stop()
}

// IsSupportedToken reports whether token is allow-listed on chainID
func (c *CrowdLiquidity) IsSupportedToken(chainID uint64, token address.Address) bool {
	_, ok := c.supported[chainID][token]
	return ok
}

// IsRouteSupported requires allow-listed reward tokens on the source and
// allow-listed transfer targets on the destination
func (c *CrowdLiquidity) IsRouteSupported(intent *models.Intent) bool {
	if _, ok := c.pools[intent.DestinationChainID]; !ok {
		return false
	}
	for _, token := range intent.Reward.Tokens {
		if !c.IsSupportedToken(intent.SourceChainID, token.Token) {
			return false
		}
	}
	for _, call := range intent.Route.Calls {
		if !c.IsSupportedToken(intent.DestinationChainID, call.Target) {
			return false
		}
		if !contracts.IsTransfer(call.Data) {
			return false
		}
	}
	return true
}

// IsRewardEnough reports whether totalReward >= totalRoute * feePercentage / FeeScale
func IsRewardEnough(intent *models.Intent, feePercentage uint64) bool {
	reward := new(big.Int).Mul(intent.TotalRewardTokens(), big.NewInt(FeeScale))
	required := new(big.Int).Mul(intent.TotalRouteTokens(), new(big.Int).SetUint64(feePercentage))
	return reward.Cmp(required) >= 0
}

// FeePercentage returns the pool fee of a chain, read through a cache
func (c *CrowdLiquidity) FeePercentage(ctx context.Context, chainID uint64) uint64 {
	if item := c.fees.Get(chainID); item != nil {
		return item.Value()
	}
	p, ok := c.pools[chainID]
	if !ok || p.Fees == nil {
		return c.cfg.FeePercentage
	}
	fee, err := p.Fees.PoolFee(ctx)
	if err != nil {
		c.logger.ErrorWithChain(chainID, "Failed to read pool fee, using configured fee: %v", err)
		return c.cfg.FeePercentage
	}
	c.fees.Set(chainID, fee, ttlcache.DefaultTTL)
	return fee
}

// IsPoolSolvent reports whether the pool holds every route token amount.
// Balances are read in parallel and cached briefly.
func (c *CrowdLiquidity) IsPoolSolvent(ctx context.Context, intent *models.Intent) (bool, error) {
	p, ok := c.pools[intent.DestinationChainID]
	if !ok {
		return false, fmt.Errorf("%w %d", ErrNoPool, intent.DestinationChainID)
	}

	reads := pool.NewWithResults[bool]().WithContext(ctx).WithMaxGoroutines(maxBalanceReads)
	for _, token := range intent.Route.Tokens {
		reads.Go(func(ctx context.Context) (bool, error) {
			balance, err := c.poolBalance(ctx, intent.DestinationChainID, p, token.Token)
			if err != nil {
				return false, err
			}
			return balance.Cmp(token.Amount) >= 0, nil
		})
	}
	results, err := reads.Wait()
	if err != nil {
		return false, err
	}
	for _, ok := range results {
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func balanceKey(chainID uint64, p *Pool, token address.Address) string {
	return fmt.Sprintf("%d:%s:%s", chainID, p.Address.Hex(), token.Hex())
}

func (c *CrowdLiquidity) poolBalance(ctx context.Context, chainID uint64, p *Pool, token address.Address) (*big.Int, error) {
	key := balanceKey(chainID, p, token)
	if item := c.balances.Get(key); item != nil {
		return item.Value(), nil
	}
	balance, err := p.Balances.BalanceOf(ctx, token, p.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool balance of %s: %w", token.Hex(), err)
	}
	c.balances.Set(key, balance, ttlcache.DefaultTTL)
	return balance, nil
}

// Decide picks the fulfillment path. Pool solvency is checked at execution.
func (c *CrowdLiquidity) Decide(ctx context.Context, intent *models.Intent) Dispatch {
	if c == nil {
		return Dispatch{Kind: DispatchWallet, Reason: "crowd liquidity disabled"}
	}
	if !c.IsRouteSupported(intent) {
		return Dispatch{Kind: DispatchWallet, Reason: ErrRouteNotSupported.Error()}
	}
	if !IsRewardEnough(intent, c.FeePercentage(ctx, intent.DestinationChainID)) {
		return Dispatch{Kind: DispatchWallet, Reason: ErrRewardNotEnough.Error()}
	}
	return Dispatch{Kind: DispatchCrowdLiquidity}
}

// Fulfill pays the route out of the destination pool
func (c *CrowdLiquidity) Fulfill(ctx context.Context, intent *models.Intent, plan txbuilder.Plan) (*models.Receipt, error) {
	p, ok := c.pools[intent.DestinationChainID]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrNoPool, intent.DestinationChainID)
	}
	solvent, err := c.IsPoolSolvent(ctx, intent)
	if err != nil {
		return nil, err
	}
	if !solvent {
		return nil, ErrPoolNotSolvent
	}

	plan.Path = txbuilder.PathCrowdLiquidity
	tx, err := p.Builder.Build(ctx, intent, plan)
	if err != nil {
		return nil, err
	}
	receipt, err := p.Executor.Execute(ctx, tx)
	for _, token := range intent.Route.Tokens {
		c.balances.Delete(balanceKey(intent.DestinationChainID, p, token.Token))
	}
	if err != nil {
		return nil, err
	}
	if receipt.Reverted() {
		return receipt, fmt.Errorf("%w: %s", ErrFulfillReverted, receipt.TransactionHash)
	}
	return receipt, nil
}
