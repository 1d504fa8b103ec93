package txbuilder

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/portal"
	"github.com/speedrun-hq/portal-solver/pkg/svm"
)

// SVMBuilder builds portal fulfill_intent transactions for Solana destinations
type SVMBuilder struct {
	Program  svm.PublicKey
	Solver   svm.PublicKey
	Accounts svm.AccountChecker
}

var _ Builder = (*SVMBuilder)(nil)

// NewSVMBuilder creates a builder for the portal program
func NewSVMBuilder(program, solver svm.PublicKey, accounts svm.AccountChecker) *SVMBuilder {
	if program.IsZero() {
		program = svm.DefaultPortalProgramID
	}
	return &SVMBuilder{Program: program, Solver: solver, Accounts: accounts}
}

// Build returns the instructions plus the fresh unique message key the
// dispatched hyperlane message account is created with. Only the wallet path
// exists on Solana.
func (b *SVMBuilder) Build(ctx context.Context, intent *models.Intent, plan Plan) (*ChainTransaction, error) {
	if plan.Path != PathWallet {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedPath, plan.Path, chaintype.SVM)
	}

	hashes, err := portal.GetIntentHash(intent)
	if err != nil {
		return nil, err
	}
	if intent.Hash != (common.Hash{}) && hashes.IntentHash != intent.Hash {
		return nil, fmt.Errorf("%w: event %s, computed %s", portal.ErrIntentHashMismatch, intent.Hash.Hex(), hashes.IntentHash.Hex())
	}

	_, uniqueMessage, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate unique message key: %v", err)
	}

	instructions, err := svm.BuildFulfillInstructions(ctx, b.Accounts, svm.FulfillParams{
		Program:       b.Program,
		Solver:        b.Solver,
		UniqueMessage: svm.PublicKeyOf(uniqueMessage),
		IntentHash:    hashes.IntentHash,
		Intent:        intent,
	})
	if err != nil {
		return nil, err
	}

	return &ChainTransaction{
		VM: chaintype.SVM,
		SVM: &SVMTransaction{
			Instructions: instructions,
			Signers:      []ed25519.PrivateKey{uniqueMessage},
		},
	}, nil
}
