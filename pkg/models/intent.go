package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/speedrun-hq/portal-solver/pkg/address"
)

// TokenAmount is a token and an amount in its smallest unit
type TokenAmount struct {
	Token  address.Address `json:"token"`
	Amount *big.Int        `json:"amount"`
}

// Call is a single destination-chain call of a route
type Call struct {
	Target address.Address `json:"target"`
	Data   hexutil.Bytes   `json:"data"`
	Value  *big.Int        `json:"value"`
}

// Route is the destination-chain execution plan of an intent
type Route struct {
	Salt         common.Hash     `json:"salt"`
	Deadline     uint64          `json:"deadline"`
	Portal       address.Address `json:"portal"`
	NativeAmount *big.Int        `json:"nativeAmount"`
	Tokens       []TokenAmount   `json:"tokens"`
	Calls        []Call          `json:"calls"`
}

// Reward is the source-chain payment offered to the fulfiller
type Reward struct {
	Deadline     uint64          `json:"deadline"`
	Creator      address.Address `json:"creator"`
	Prover       address.Address `json:"prover"`
	NativeAmount *big.Int        `json:"nativeAmount"`
	Tokens       []TokenAmount   `json:"tokens"`
}

// Intent is a published cross-chain intent
type Intent struct {
	Hash               common.Hash      `json:"hash"`
	SourceChainID      uint64           `json:"sourceChainId"`
	DestinationChainID uint64           `json:"destinationChainId"`
	Route              Route            `json:"route"`
	Reward             Reward           `json:"reward"`
	LogIndex           uint             `json:"logIndex"`
	VaultAddress       *address.Address `json:"vaultAddress,omitempty"`
	PublishTxHash      *common.Hash     `json:"publishTxHash,omitempty"`
}

// TotalRouteTokens sums every route token amount
func (i *Intent) TotalRouteTokens() *big.Int {
	return sumTokens(i.Route.Tokens)
}

// TotalRewardTokens sums every reward token amount
func (i *Intent) TotalRewardTokens() *big.Int {
	return sumTokens(i.Reward.Tokens)
}

// TotalCallValue sums the native value of every route call
func (i *Intent) TotalCallValue() *big.Int {
	total := new(big.Int)
	for _, call := range i.Route.Calls {
		if call.Value != nil {
			total.Add(total, call.Value)
		}
	}
	return total
}

// IsNative reports whether the intent moves native value on either side
func (i *Intent) IsNative() bool {
	if i.Reward.NativeAmount != nil && i.Reward.NativeAmount.Sign() > 0 {
		return true
	}
	return i.TotalCallValue().Sign() > 0
}

func sumTokens(tokens []TokenAmount) *big.Int {
	total := new(big.Int)
	for _, t := range tokens {
		if t.Amount != nil {
			total.Add(total, t.Amount)
		}
	}
	return total
}
