// Package fee decides whether an intent pays enough to be worth fulfilling.
package fee

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/speedrun-hq/portal-solver/pkg/models"
)

var (
	// ErrInfeasible is the base error of every infeasibility reason
	ErrInfeasible = errors.New("route is not feasible")
	// ErrTransferLimit is returned when the route moves more than the solver allows
	ErrTransferLimit = fmt.Errorf("%w: transfer limit exceeded", ErrInfeasible)
	// ErrRewardTooLow is returned when the reward does not cover the route plus fee
	ErrRewardTooLow = fmt.Errorf("%w: reward too low", ErrInfeasible)
	// ErrEmptyRoute is returned when the route moves nothing
	ErrEmptyRoute = fmt.Errorf("%w: route has no value", ErrInfeasible)
)

// Oracle decides profitability. A nil error means the route is feasible.
type Oracle interface {
	IsRouteFeasible(ctx context.Context, intent *models.Intent) error
}

// ProportionalOracle requires the reward to cover the route total plus a
// proportional fee in permille. Amounts are compared in token base units.
type ProportionalOracle struct {
	// FeePermille is the default fee, 5 means 0.5%
	FeePermille uint64
	// ChainFeePermille overrides FeePermille per destination chain
	ChainFeePermille map[uint64]uint64
	// Limit caps the route total, nil or zero disables the cap
	Limit *big.Int
}

var _ Oracle = (*ProportionalOracle)(nil)

// NewProportionalOracle creates an oracle with a default fee and limit
func NewProportionalOracle(feePermille uint64, limit *big.Int) *ProportionalOracle {
	return &ProportionalOracle{
		FeePermille:      feePermille,
		ChainFeePermille: make(map[uint64]uint64),
		Limit:            limit,
	}
}

// RouteTotal sums the route tokens and the native value sent by its calls
func RouteTotal(intent *models.Intent) *big.Int {
	total := intent.TotalRouteTokens()
	return total.Add(total, intent.TotalCallValue())
}

// RewardTotal sums the reward tokens and the native reward
func RewardTotal(intent *models.Intent) *big.Int {
	total := intent.TotalRewardTokens()
	if intent.Reward.NativeAmount != nil {
		total.Add(total, intent.Reward.NativeAmount)
	}
	return total
}

// WithinLimit reports whether the route total respects the transfer limit
func (o *ProportionalOracle) WithinLimit(intent *models.Intent) bool {
	if o.Limit == nil || o.Limit.Sign() == 0 {
		return true
	}
	return RouteTotal(intent).Cmp(o.Limit) <= 0
}

// RequiredReward is the minimum reward for the route of intent
func (o *ProportionalOracle) RequiredReward(intent *models.Intent) *big.Int {
	feePermille := o.FeePermille
	if override, ok := o.ChainFeePermille[intent.DestinationChainID]; ok {
		feePermille = override
	}
	required := new(big.Int).Mul(RouteTotal(intent), new(big.Int).SetUint64(1000+feePermille))
	// round up so the fee is never under-collected
	required.Add(required, big.NewInt(999))
	return required.Div(required, big.NewInt(1000))
}

func (o *ProportionalOracle) IsRouteFeasible(_ context.Context, intent *models.Intent) error {
	total := RouteTotal(intent)
	if total.Sign() == 0 {
		return ErrEmptyRoute
	}
	if !o.WithinLimit(intent) {
		return fmt.Errorf("%w: route total %s above %s", ErrTransferLimit, total, o.Limit)
	}
	required := o.RequiredReward(intent)
	if reward := RewardTotal(intent); reward.Cmp(required) < 0 {
		return fmt.Errorf("%w: reward %s, required %s", ErrRewardTooLow, reward, required)
	}
	return nil
}
