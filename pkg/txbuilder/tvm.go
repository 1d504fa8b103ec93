package txbuilder

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/models"
)

// TVMBuilder builds Tron fulfillments: the EVM call plan sent as separate
// TriggerSmartContract transactions
type TVMBuilder struct {
	LocalProver common.Address
	Fees        FeeQuoter
}

var _ Builder = (*TVMBuilder)(nil)

// NewTVMBuilder creates a builder for one Tron destination chain
func NewTVMBuilder(localProver common.Address, fees FeeQuoter) *TVMBuilder {
	return &TVMBuilder{LocalProver: localProver, Fees: fees}
}

func (b *TVMBuilder) Build(ctx context.Context, intent *models.Intent, plan Plan) (*ChainTransaction, error) {
	if plan.Path != PathWallet {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedPath, plan.Path, chaintype.TVM)
	}
	executions, err := buildPortalCalls(ctx, b.LocalProver, b.Fees, intent, plan)
	if err != nil {
		return nil, err
	}

	calls := make([]TVMCall, len(executions))
	for i, e := range executions {
		calls[i] = TVMCall{Contract: address.FromEVM(e.Target), Data: e.CallData, Value: e.Value}
	}
	return &ChainTransaction{VM: chaintype.TVM, TVM: calls}, nil
}

// ConstantCaller runs read-only Tron contract calls
type ConstantCaller interface {
	CallConstant(ctx context.Context, contract address.Address, data []byte) ([]byte, error)
}

// TVMFeeQuoter quotes prover fees through triggerconstantcontract
type TVMFeeQuoter struct {
	Caller ConstantCaller
}

var _ FeeQuoter = (*TVMFeeQuoter)(nil)

func (q *TVMFeeQuoter) FetchProverFee(ctx context.Context, prover common.Address, source uint64, encodedProofs, data []byte) (*big.Int, error) {
	input, err := contracts.MessageBridgeProverParsedABI.Pack("fetchFee", source, encodedProofs, data)
	if err != nil {
		return nil, err
	}
	out, err := q.Caller.CallConstant(ctx, address.FromEVM(prover), input)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prover fee: %w", err)
	}
	values, err := contracts.MessageBridgeProverParsedABI.Unpack("fetchFee", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode prover fee: %w", err)
	}
	fee, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected prover fee type %T", values[0])
	}
	return fee, nil
}
