package txbuilder

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"math/big"

	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/svm"
)

// BatchSender executes an EVM call batch, see chainclient.Client
type BatchSender interface {
	Execute(ctx context.Context, calls []contracts.Execution) (*models.Receipt, error)
}

// EVMExecutor submits Kernel batches
type EVMExecutor struct {
	Sender BatchSender
}

func (e *EVMExecutor) Execute(ctx context.Context, tx *ChainTransaction) (*models.Receipt, error) {
	if tx.VM != chaintype.EVM {
		return nil, fmt.Errorf("%w: %s", ErrVMMismatch, tx.VM)
	}
	return e.Sender.Execute(ctx, tx.EVM)
}

// InstructionSender executes Solana instructions, see svm.Client
type InstructionSender interface {
	Execute(ctx context.Context, chainID uint64, instructions []svm.Instruction, payer ed25519.PrivateKey, signers ...ed25519.PrivateKey) (*models.Receipt, error)
}

// SVMExecutor signs with the solver key plus the transaction's extra signers
type SVMExecutor struct {
	Sender  InstructionSender
	ChainID uint64
	Payer   ed25519.PrivateKey
}

func (e *SVMExecutor) Execute(ctx context.Context, tx *ChainTransaction) (*models.Receipt, error) {
	if tx.VM != chaintype.SVM || tx.SVM == nil {
		return nil, fmt.Errorf("%w: %s", ErrVMMismatch, tx.VM)
	}
	return e.Sender.Execute(ctx, e.ChainID, tx.SVM.Instructions, e.Payer, tx.SVM.Signers...)
}

// TriggerSender sends Tron contract calls, see tvm.Client
type TriggerSender interface {
	Send(ctx context.Context, contract address.Address, data []byte, value *big.Int) (string, error)
	WaitForReceipt(ctx context.Context, chainID uint64, txID string) (*models.Receipt, error)
}

// TVMExecutor sends each call and waits for it before the next one, so an
// approval is confirmed before the fulfill that spends it
type TVMExecutor struct {
	Sender  TriggerSender
	ChainID uint64
}

func (e *TVMExecutor) Execute(ctx context.Context, tx *ChainTransaction) (*models.Receipt, error) {
	if tx.VM != chaintype.TVM {
		return nil, fmt.Errorf("%w: %s", ErrVMMismatch, tx.VM)
	}
	var receipt *models.Receipt
	for i, call := range tx.TVM {
		txID, err := e.Sender.Send(ctx, call.Contract, call.Data, call.Value)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		receipt, err = e.Sender.WaitForReceipt(ctx, e.ChainID, txID)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		if receipt.Reverted() {
			return receipt, nil
		}
	}
	return receipt, nil
}
