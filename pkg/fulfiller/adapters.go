package fulfiller

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chainclient"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/intent"
	"github.com/speedrun-hq/portal-solver/pkg/svm"
	"github.com/speedrun-hq/portal-solver/pkg/txbuilder"
)

var (
	_ intent.BalanceReader      = (*evmBalances)(nil)
	_ intent.TokenBalanceReader = (*evmBalances)(nil)
	_ intent.BalanceReader      = (*svmBalances)(nil)
	_ intent.BalanceReader      = (*tvmBalances)(nil)
	_ intent.PoolFeeReader      = staticPoolFee(0)
)

// evmBalances reads balances through a chain client, the solver balance being
// the one of the Kernel account when configured
type evmBalances struct {
	client *chainclient.Client
}

func (b *evmBalances) Balance(ctx context.Context, token address.Address) (*big.Int, error) {
	return b.BalanceOf(ctx, token, address.FromEVM(b.client.Account()))
}

func (b *evmBalances) BalanceOf(ctx context.Context, token, owner address.Address) (*big.Int, error) {
	var tokenAddr common.Address
	if !token.IsZero() {
		var err error
		if tokenAddr, err = token.EVM(); err != nil {
			return nil, err
		}
	}
	ownerAddr, err := owner.EVM()
	if err != nil {
		return nil, err
	}
	return b.client.BalanceOf(ctx, tokenAddr, ownerAddr)
}

// GetLatestBlockNumber lets the health server read the head through the same client
func (b *evmBalances) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	return b.client.GetLatestBlockNumber(ctx)
}

// solanaBalanceReader is the part of svm.Client reading balances
type solanaBalanceReader interface {
	Balance(ctx context.Context, owner, mint svm.PublicKey) (*big.Int, error)
}

// svmBalances reads SPL balances of the solver
type svmBalances struct {
	client solanaBalanceReader
	solver svm.PublicKey
}

func (b *svmBalances) Balance(ctx context.Context, token address.Address) (*big.Int, error) {
	return b.client.Balance(ctx, b.solver, svm.FromAddress(token))
}

// tvmBalances reads TRC-20 balances of the solver through constant calls
type tvmBalances struct {
	caller txbuilder.ConstantCaller
	owner  address.Address
}

func (b *tvmBalances) Balance(ctx context.Context, token address.Address) (*big.Int, error) {
	if token.IsZero() {
		return nil, fmt.Errorf("native balance is not read on tron")
	}
	owner, err := b.owner.EVM()
	if err != nil {
		return nil, err
	}
	input, err := contracts.ERC20ParsedABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	out, err := b.caller.CallConstant(ctx, token, input)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	values, err := contracts.ERC20ParsedABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode balance: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balance type %T", values[0])
	}
	return balance, nil
}

// staticPoolFee serves the configured fee of a pool
type staticPoolFee uint64

func (f staticPoolFee) PoolFee(context.Context) (uint64, error) {
	return uint64(f), nil
}
