// Package svm builds, signs and submits Solana transactions for the portal
// program: public keys and program derived addresses, instructions, versioned
// messages and a JSON-RPC client.
package svm

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/speedrun-hq/portal-solver/pkg/address"
)

// PublicKeyLength is the size of a Solana public key
const PublicKeyLength = 32

// ErrInvalidPublicKey is returned for malformed Base58 keys
var ErrInvalidPublicKey = errors.New("invalid public key")

// PublicKey is a Solana account address
type PublicKey = solana.PublicKey

var (
	SystemProgramID          = solana.SystemProgramID
	TokenProgramID           = solana.TokenProgramID
	Token2022ProgramID       = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedTokenProgramID = solana.SPLAssociatedTokenAccountProgramID
	MailboxProgramID         = solana.MustPublicKeyFromBase58("E588QtVUvresuXq2KoNEwAmoifCzYGpRBdHByN9KQMbi")
	SplNoopProgramID         = solana.MustPublicKeyFromBase58("noopb9bkMVfRPU8AsbpTUg8AQkHtKwMYZiFUjNRtMmV")
	// DefaultPortalProgramID is the mainnet portal program
	DefaultPortalProgramID = solana.MustPublicKeyFromBase58("3zbEiMYyf4y1bGsVBAzKrXVzMndRQdTMDgx3aKCs8BHs")
)

// ParsePublicKey decodes a Base58 public key
func ParsePublicKey(s string) (PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %q: %v", ErrInvalidPublicKey, s, err)
	}
	return pk, nil
}

// MustPublicKey is ParsePublicKey for package level constants
func MustPublicKey(s string) PublicKey {
	return solana.MustPublicKeyFromBase58(s)
}

// FromAddress reinterprets a universal address as a public key
func FromAddress(a address.Address) PublicKey {
	return PublicKey(a)
}

// AddressOf returns the universal form of a key
func AddressOf(pk PublicKey) address.Address {
	return address.Address(pk)
}

// FindProgramAddress searches bumps from 255 down and returns the first off-curve address
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	return solana.FindProgramAddress(seeds, program)
}

// FindAssociatedTokenAddress derives the associated token account of owner
// for mint under the given token program
func FindAssociatedTokenAddress(owner, mint, tokenProgram PublicKey) (PublicKey, error) {
	if tokenProgram.Equals(solana.TokenProgramID) {
		ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
		return ata, err
	}
	ata, _, err := solana.FindProgramAddress([][]byte{owner[:], tokenProgram[:], mint[:]}, AssociatedTokenProgramID)
	return ata, err
}

// ParseKeypair reads a solver key given either as a JSON byte array (the
// solana-keygen file format) or as a Base58 string of the 64-byte secret key.
func ParseKeypair(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		key, err := solana.PrivateKeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("failed to decode keypair: %v", err)
		}
		return keypairFromBytes(key)
	}

	var ints []int
	if err := json.Unmarshal([]byte(s), &ints); err != nil {
		return nil, fmt.Errorf("failed to parse keypair array: %v", err)
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > math.MaxUint8 {
			return nil, fmt.Errorf("keypair byte %d out of range", i)
		}
		raw[i] = byte(v)
	}
	return keypairFromBytes(raw)
}

func keypairFromBytes(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	}
	return nil, fmt.Errorf("keypair has %d bytes, expected %d", len(raw), ed25519.PrivateKeySize)
}

// PublicKeyOf returns the public key of an ed25519 private key
func PublicKeyOf(key ed25519.PrivateKey) PublicKey {
	return solana.PrivateKey(key).PublicKey()
}
