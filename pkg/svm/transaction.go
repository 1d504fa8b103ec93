package svm

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrMissingSigner is returned when a required signer has no key
	ErrMissingSigner = errors.New("missing signer")
	// ErrNoPayer is returned when compiling a transaction without fee payer
	ErrNoPayer = errors.New("transaction has no fee payer")
)

// AccountMeta is an account referenced by an instruction
type AccountMeta = solana.AccountMeta

// Instruction is a single program invocation
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

func (ix Instruction) compile() solana.Instruction {
	metas := make(solana.AccountMetaSlice, len(ix.Accounts))
	for i := range ix.Accounts {
		meta := ix.Accounts[i]
		metas[i] = &meta
	}
	return solana.NewInstruction(ix.ProgramID, metas, ix.Data)
}

// CreateAssociatedTokenAccountIdempotent creates the ATA of owner for mint
// unless it already exists
func CreateAssociatedTokenAccountIdempotent(payer, ata, owner, mint, tokenProgram PublicKey) Instruction {
	return Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []AccountMeta{
			{PublicKey: payer, IsSigner: true, IsWritable: true},
			{PublicKey: ata, IsWritable: true},
			{PublicKey: owner},
			{PublicKey: mint},
			{PublicKey: SystemProgramID},
			{PublicKey: tokenProgram},
		},
		Data: []byte{1},
	}
}

// NewTransaction compiles instructions into a v0 message paid by the first
// key and signs it with every required signer found in keys
func NewTransaction(instructions []Instruction, blockhash solana.Hash, keys ...ed25519.PrivateKey) (*solana.Transaction, error) {
	if len(keys) == 0 {
		return nil, ErrNoPayer
	}
	compiled := make([]solana.Instruction, len(instructions))
	for i, ix := range instructions {
		compiled[i] = ix.compile()
	}

	tx, err := solana.NewTransaction(compiled, blockhash, solana.TransactionPayer(PublicKeyOf(keys[0])))
	if err != nil {
		return nil, fmt.Errorf("failed to compile transaction: %w", err)
	}
	tx.Message.SetVersion(solana.MessageVersionV0)

	vault := make(map[PublicKey]solana.PrivateKey, len(keys))
	for _, k := range keys {
		vault[PublicKeyOf(k)] = solana.PrivateKey(k)
	}
	for _, signer := range tx.Message.Signers() {
		if _, ok := vault[signer]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSigner, signer)
		}
	}
	if _, err := tx.Sign(func(pk PublicKey) *solana.PrivateKey {
		key := vault[pk]
		return &key
	}); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

// Base64 is the wire encoding accepted by sendTransaction
func Base64(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
