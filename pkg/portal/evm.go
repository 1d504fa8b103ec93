package portal

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/models"
)

var tokenAmountComponents = []abi.ArgumentMarshaling{
	{Name: "token", Type: "address"},
	{Name: "amount", Type: "uint256"},
}

// RouteType is the ABI tuple of a route as the Portal contract hashes it
var RouteType = mustTuple([]abi.ArgumentMarshaling{
	{Name: "salt", Type: "bytes32"},
	{Name: "deadline", Type: "uint64"},
	{Name: "portal", Type: "address"},
	{Name: "nativeAmount", Type: "uint256"},
	{Name: "tokens", Type: "tuple[]", Components: tokenAmountComponents},
	{Name: "calls", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "data", Type: "bytes"},
		{Name: "value", Type: "uint256"},
	}},
})

// RewardType is the ABI tuple of a reward
var RewardType = mustTuple([]abi.ArgumentMarshaling{
	{Name: "deadline", Type: "uint64"},
	{Name: "creator", Type: "address"},
	{Name: "prover", Type: "address"},
	{Name: "nativeAmount", Type: "uint256"},
	{Name: "tokens", Type: "tuple[]", Components: tokenAmountComponents},
})

// TokenAmountsType is the ABI type of a bare token amount array
var TokenAmountsType = mustType("tuple[]", tokenAmountComponents)

func mustTuple(components []abi.ArgumentMarshaling) abi.Type {
	return mustType("tuple", components)
}

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("portal: invalid abi type %s: %v", t, err))
	}
	return typ
}

// evmCodec implements the ABI encoding used by EVM and Tron portals. Tron
// addresses are carried as their 20-byte body, so both chains share the
// same bytes for the same logical intent.
type evmCodec struct {
	vm string
}

func (c evmCodec) EncodeRoute(route models.Route) ([]byte, error) {
	r, err := ToEvmRoute(route)
	if err != nil {
		return nil, fmt.Errorf("%s route: %w", c.vm, err)
	}
	return abi.Arguments{{Type: RouteType}}.Pack(r)
}

func (c evmCodec) EncodeReward(reward models.Reward) ([]byte, error) {
	r, err := ToEvmReward(reward)
	if err != nil {
		return nil, fmt.Errorf("%s reward: %w", c.vm, err)
	}
	return abi.Arguments{{Type: RewardType}}.Pack(r)
}

func (c evmCodec) DecodeRoute(data []byte) (models.Route, error) {
	out, err := abi.Arguments{{Type: RouteType}}.Unpack(data)
	if err != nil {
		return models.Route{}, fmt.Errorf("failed to decode %s route: %w", c.vm, err)
	}
	r := *abi.ConvertType(out[0], new(contracts.PortalRoute)).(*contracts.PortalRoute)
	return FromEvmRoute(r), nil
}

func (c evmCodec) DecodeReward(data []byte) (models.Reward, error) {
	out, err := abi.Arguments{{Type: RewardType}}.Unpack(data)
	if err != nil {
		return models.Reward{}, fmt.Errorf("failed to decode %s reward: %w", c.vm, err)
	}
	r := *abi.ConvertType(out[0], new(contracts.PortalReward)).(*contracts.PortalReward)
	return FromEvmReward(r), nil
}

// ToEvmRoute narrows every address of the route to 20 bytes. It fails when
// an address carries data in its upper 12 bytes.
func ToEvmRoute(route models.Route) (contracts.PortalRoute, error) {
	portal, err := route.Portal.EVM()
	if err != nil {
		return contracts.PortalRoute{}, fmt.Errorf("portal: %w", err)
	}
	tokens, err := toEvmTokens(route.Tokens)
	if err != nil {
		return contracts.PortalRoute{}, err
	}
	calls := make([]contracts.PortalCall, len(route.Calls))
	for i, call := range route.Calls {
		target, err := call.Target.EVM()
		if err != nil {
			return contracts.PortalRoute{}, fmt.Errorf("call %d target: %w", i, err)
		}
		calls[i] = contracts.PortalCall{Target: target, Data: call.Data, Value: orZero(call.Value)}
	}
	return contracts.PortalRoute{
		Salt:         route.Salt,
		Deadline:     route.Deadline,
		Portal:       portal,
		NativeAmount: orZero(route.NativeAmount),
		Tokens:       tokens,
		Calls:        calls,
	}, nil
}

// ToEvmReward narrows every address of the reward to 20 bytes
func ToEvmReward(reward models.Reward) (contracts.PortalReward, error) {
	creator, err := reward.Creator.EVM()
	if err != nil {
		return contracts.PortalReward{}, fmt.Errorf("creator: %w", err)
	}
	prover, err := reward.Prover.EVM()
	if err != nil {
		return contracts.PortalReward{}, fmt.Errorf("prover: %w", err)
	}
	tokens, err := toEvmTokens(reward.Tokens)
	if err != nil {
		return contracts.PortalReward{}, err
	}
	return contracts.PortalReward{
		Deadline:     reward.Deadline,
		Creator:      creator,
		Prover:       prover,
		NativeAmount: orZero(reward.NativeAmount),
		Tokens:       tokens,
	}, nil
}

func FromEvmRoute(r contracts.PortalRoute) models.Route {
	calls := make([]models.Call, len(r.Calls))
	for i, call := range r.Calls {
		calls[i] = models.Call{
			Target: address.FromEVM(call.Target),
			Data:   common.CopyBytes(call.Data),
			Value:  orZero(call.Value),
		}
	}
	return models.Route{
		Salt:         r.Salt,
		Deadline:     r.Deadline,
		Portal:       address.FromEVM(r.Portal),
		NativeAmount: orZero(r.NativeAmount),
		Tokens:       FromEvmTokens(r.Tokens),
		Calls:        calls,
	}
}

func FromEvmReward(r contracts.PortalReward) models.Reward {
	return models.Reward{
		Deadline:     r.Deadline,
		Creator:      address.FromEVM(r.Creator),
		Prover:       address.FromEVM(r.Prover),
		NativeAmount: orZero(r.NativeAmount),
		Tokens:       FromEvmTokens(r.Tokens),
	}
}

func FromEvmTokens(tokens []contracts.PortalTokenAmount) []models.TokenAmount {
	out := make([]models.TokenAmount, len(tokens))
	for i, t := range tokens {
		out[i] = models.TokenAmount{Token: address.FromEVM(t.Token), Amount: orZero(t.Amount)}
	}
	return out
}

func toEvmTokens(tokens []models.TokenAmount) ([]contracts.PortalTokenAmount, error) {
	out := make([]contracts.PortalTokenAmount, len(tokens))
	for i, t := range tokens {
		token, err := t.Token.EVM()
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		out[i] = contracts.PortalTokenAmount{Token: token, Amount: orZero(t.Amount)}
	}
	return out, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
