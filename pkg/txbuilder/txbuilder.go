// Package txbuilder turns an intent into the destination-chain transaction
// that fulfills it, with one builder and one executor per VM family.
package txbuilder

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/big"

	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/prover"
	"github.com/speedrun-hq/portal-solver/pkg/svm"
)

var (
	// ErrUnsupportedProver is returned when the reward prover has no known proof type
	ErrUnsupportedProver = errors.New("unsupported prover")
	// ErrUnsupportedPath is returned when a VM has no implementation of a fulfillment path
	ErrUnsupportedPath = errors.New("unsupported fulfillment path")
	// ErrNoLocalProver is returned when a fee-paying fulfill has no destination prover configured
	ErrNoLocalProver = errors.New("no destination prover configured")
	// ErrVMMismatch is returned when a transaction reaches the executor of another VM
	ErrVMMismatch = errors.New("transaction built for another vm")
)

// Path is the source of the funds a fulfillment spends
type Path int

const (
	// PathWallet spends the solver's own wallet, approving the portal to pull funds
	PathWallet Path = iota
	// PathCrowdLiquidity spends the crowd liquidity pool, transferring funds to the portal
	PathCrowdLiquidity
)

func (p Path) String() string {
	switch p {
	case PathWallet:
		return "wallet"
	case PathCrowdLiquidity:
		return "crowd-liquidity"
	}
	return fmt.Sprintf("path(%d)", int(p))
}

// FulfillMode selects the hyperlane fulfill variant
type FulfillMode string

const (
	// ModeSingle proves every fulfillment in its own paid message
	ModeSingle FulfillMode = "single"
	// ModeBatch fulfills without proving; proofs are sent later in batches
	ModeBatch FulfillMode = "batch"
)

// Plan carries the per-invocation inputs of a build
type Plan struct {
	Path Path
	// Provers is the prover snapshot current when the job started
	Provers prover.Classifier
	// Claimant receives the reward on the source chain
	Claimant address.Address
	Mode     FulfillMode
}

// TVMCall is one Tron contract call
type TVMCall struct {
	Contract address.Address
	Data     []byte
	Value    *big.Int
}

// ChainTransaction is a built fulfillment tagged by VM. Exactly one of the
// payload fields is set.
type ChainTransaction struct {
	VM  chaintype.VMType
	EVM []contracts.Execution
	SVM *SVMTransaction
	TVM []TVMCall
}

// SVMTransaction is an instruction list plus the extra keys that must sign it
type SVMTransaction struct {
	Instructions []svm.Instruction
	Signers      []ed25519.PrivateKey
}

// Builder builds the fulfillment transaction of an intent
type Builder interface {
	Build(ctx context.Context, intent *models.Intent, plan Plan) (*ChainTransaction, error)
}

// Executor submits a built transaction and waits for its receipt
type Executor interface {
	Execute(ctx context.Context, tx *ChainTransaction) (*models.Receipt, error)
}
