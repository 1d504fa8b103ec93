package svm

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/borsh"
	"github.com/speedrun-hq/portal-solver/pkg/models"
)

// fulfillIntentDiscriminator is the Anchor discriminator of fulfill_intent
var fulfillIntentDiscriminator = []byte{236, 191, 7, 151, 169, 132, 84, 160}

var (
	seedExecutionAuthority = []byte("execution_authority")
	seedDispatchAuthority  = []byte("dispatch_authority")
	seedFulfillmentMarker  = []byte("intent_fulfillment_marker")
	seedHyperlane          = []byte("hyperlane")
	seedDash               = []byte("-")
	seedOutbox             = []byte("outbox")
	seedDispatchedMessage  = []byte("dispatched_message")
)

// AccountChecker reports whether an account exists on chain
type AccountChecker interface {
	AccountExists(ctx context.Context, account PublicKey) (bool, error)
}

// FulfillParams are the inputs of a portal fulfill_intent transaction
type FulfillParams struct {
	Program       PublicKey
	Solver        PublicKey
	UniqueMessage PublicKey
	IntentHash    common.Hash
	Intent        *models.Intent
}

// PortalAccounts are the program derived addresses a fulfillment touches
type PortalAccounts struct {
	ExecutionAuthority PublicKey
	DispatchAuthority  PublicKey
	FulfillmentMarker  PublicKey
	Outbox             PublicKey
	DispatchedMessage  PublicKey
}

// DerivePortalAccounts derives every PDA of a fulfillment
func DerivePortalAccounts(program PublicKey, salt, intentHash common.Hash, uniqueMessage PublicKey) (PortalAccounts, error) {
	var (
		accs PortalAccounts
		err  error
	)
	if accs.ExecutionAuthority, _, err = FindProgramAddress([][]byte{seedExecutionAuthority, salt[:]}, program); err != nil {
		return accs, fmt.Errorf("execution authority: %w", err)
	}
	if accs.DispatchAuthority, _, err = FindProgramAddress([][]byte{seedDispatchAuthority}, program); err != nil {
		return accs, fmt.Errorf("dispatch authority: %w", err)
	}
	if accs.FulfillmentMarker, _, err = FindProgramAddress([][]byte{seedFulfillmentMarker, intentHash[:]}, program); err != nil {
		return accs, fmt.Errorf("fulfillment marker: %w", err)
	}
	if accs.Outbox, _, err = FindProgramAddress([][]byte{seedHyperlane, seedDash, seedOutbox}, MailboxProgramID); err != nil {
		return accs, fmt.Errorf("outbox: %w", err)
	}
	seeds := [][]byte{seedHyperlane, seedDash, seedDispatchedMessage, seedDash, uniqueMessage[:]}
	if accs.DispatchedMessage, _, err = FindProgramAddress(seeds, MailboxProgramID); err != nil {
		return accs, fmt.Errorf("dispatched message: %w", err)
	}
	return accs, nil
}

// BuildFulfillInstructions returns the idempotent ATA creations for every
// route token the execution authority lacks, followed by the fulfill_intent
// instruction.
func BuildFulfillInstructions(ctx context.Context, checker AccountChecker, p FulfillParams) ([]Instruction, error) {
	intent := p.Intent
	accs, err := DerivePortalAccounts(p.Program, intent.Route.Salt, p.IntentHash, p.UniqueMessage)
	if err != nil {
		return nil, err
	}

	var (
		instructions []Instruction
		tokenMetas   []AccountMeta
	)
	for _, token := range intent.Route.Tokens {
		mint := FromAddress(token.Token)
		destination, err := FindAssociatedTokenAddress(accs.ExecutionAuthority, mint, TokenProgramID)
		if err != nil {
			return nil, fmt.Errorf("execution authority ATA for %s: %w", mint, err)
		}
		source, err := FindAssociatedTokenAddress(p.Solver, mint, TokenProgramID)
		if err != nil {
			return nil, fmt.Errorf("solver ATA for %s: %w", mint, err)
		}

		exists, err := checker.AccountExists(ctx, destination)
		if err != nil {
			return nil, fmt.Errorf("failed to check account %s: %w", destination, err)
		}
		if !exists {
			instructions = append(instructions, CreateAssociatedTokenAccountIdempotent(
				p.Solver, destination, accs.ExecutionAuthority, mint, TokenProgramID))
		}

		tokenMetas = append(tokenMetas,
			AccountMeta{PublicKey: mint},
			AccountMeta{PublicKey: source, IsWritable: true},
			AccountMeta{PublicKey: destination, IsWritable: true},
		)
	}

	data, callMetas, err := encodeFulfillArgs(p, accs)
	if err != nil {
		return nil, err
	}

	accounts := []AccountMeta{
		{PublicKey: p.Solver, IsSigner: true, IsWritable: true},
		{PublicKey: p.Solver, IsSigner: true, IsWritable: true},
		{PublicKey: accs.ExecutionAuthority, IsWritable: true},
		{PublicKey: accs.DispatchAuthority, IsWritable: true},
		{PublicKey: MailboxProgramID},
		{PublicKey: accs.Outbox, IsWritable: true},
		{PublicKey: SplNoopProgramID},
		{PublicKey: p.UniqueMessage, IsSigner: true, IsWritable: true},
		{PublicKey: accs.FulfillmentMarker, IsWritable: true},
		{PublicKey: accs.DispatchedMessage, IsWritable: true},
		{PublicKey: TokenProgramID},
		{PublicKey: Token2022ProgramID},
		{PublicKey: SystemProgramID},
	}
	accounts = append(accounts, tokenMetas...)
	accounts = append(accounts, callMetas...)

	return append(instructions, Instruction{
		ProgramID: p.Program,
		Accounts:  accounts,
		Data:      data,
	}), nil
}

// encodeFulfillArgs writes the fulfill_intent arguments with account metas
// stripped from the calls, and returns those metas as remaining accounts
func encodeFulfillArgs(p FulfillParams, accs PortalAccounts) ([]byte, []AccountMeta, error) {
	intent := p.Intent
	source, err := toU32(intent.SourceChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("source domain: %w", err)
	}
	destination, err := toU32(intent.DestinationChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("destination domain: %w", err)
	}

	w := borsh.NewWriter()
	w.WriteFixed(fulfillIntentDiscriminator)
	w.WriteFixed(p.IntentHash[:])

	w.WriteFixed(intent.Route.Salt[:])
	w.WriteU32(source)
	w.WriteU32(destination)
	w.WriteFixed(intent.Route.Portal[:])
	if err := writeTokenAmounts(w, intent.Route.Tokens); err != nil {
		return nil, nil, fmt.Errorf("route tokens: %w", err)
	}

	var metas []AccountMeta
	w.WriteLen(len(intent.Route.Calls))
	for i, call := range intent.Route.Calls {
		decoded, err := DecodeCalldataWithAccounts(call.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("call %d: %w", i, err)
		}
		w.WriteFixed(call.Target[:])
		w.WriteBytes(decoded.Calldata.Bytes())

		for _, meta := range decoded.Accounts {
			m := AccountMeta{PublicKey: meta.PublicKey, IsSigner: meta.IsSigner, IsWritable: meta.IsWritable}
			switch meta.PublicKey {
			case p.Program:
				m = AccountMeta{PublicKey: p.Solver}
			case accs.ExecutionAuthority:
				m.IsSigner, m.IsWritable = false, true
			}
			metas = append(metas, m)
		}
	}

	reward := intent.Reward
	w.WriteFixed(reward.Creator[:])
	if err := writeTokenAmounts(w, reward.Tokens); err != nil {
		return nil, nil, fmt.Errorf("reward tokens: %w", err)
	}
	w.WriteFixed(reward.Prover[:])
	native, err := toU64(reward.NativeAmount)
	if err != nil {
		return nil, nil, fmt.Errorf("reward native amount: %w", err)
	}
	w.WriteU64(native)
	if reward.Deadline > math.MaxInt64 {
		return nil, nil, fmt.Errorf("reward deadline %d overflows i64", reward.Deadline)
	}
	w.WriteI64(int64(reward.Deadline))

	if err := w.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to encode fulfill arguments: %w", err)
	}
	return w.Bytes(), metas, nil
}

func writeTokenAmounts(w *borsh.Writer, tokens []models.TokenAmount) error {
	w.WriteLen(len(tokens))
	for _, t := range tokens {
		amount, err := toU64(t.Amount)
		if err != nil {
			return err
		}
		w.WriteFixed(t.Token[:])
		w.WriteU64(amount)
	}
	return nil
}

func toU32(v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%d overflows u32", v)
	}
	return uint32(v), nil
}

func toU64(v *big.Int) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows u64", v)
	}
	return v.Uint64(), nil
}
