// Package chaintype classifies chain identifiers into virtual-machine families
// and validates addresses against a family's native format.
package chaintype

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// VMType is the virtual-machine family of a chain
type VMType string

const (
	EVM VMType = "EVM"
	SVM VMType = "SVM"
	TVM VMType = "TVM"
)

// ErrUnknownChainType is returned when an identifier matches no family
var ErrUnknownChainType = errors.New("unknown chain type")

// Tron network ids
const (
	TronMainnetChainID uint64 = 728126428
	TronShastaChainID  uint64 = 2494104990
	TronNileChainID    uint64 = 3448148188
)

// Solana network ids
const (
	SolanaMainnetChainID uint64 = 1399811149
	SolanaDevnetChainID  uint64 = 1399811150
	SolanaTestnetChainID uint64 = 1399811151
)

var tvmChainIDs = map[uint64]string{
	TronMainnetChainID: "tron-mainnet",
	TronShastaChainID:  "tron-shasta",
	TronNileChainID:    "tron-nile",
}

var svmChainIDs = map[uint64]string{
	SolanaMainnetChainID: "solana-mainnet",
	SolanaDevnetChainID:  "solana-devnet",
	SolanaTestnetChainID: "solana-testnet",
}

var svmChainNames = map[string]uint64{
	"solana-mainnet": SolanaMainnetChainID,
	"solana-devnet":  SolanaDevnetChainID,
	"solana-testnet": SolanaTestnetChainID,
}

// Detect returns the VM family for a chain identifier. Accepted identifiers are
// integers of any width, *big.Int, decimal strings and the Solana network names.
// Results are memoised in the process-wide detector.
func Detect(chain interface{}) (VMType, error) {
	return shared.Detect(chain)
}

// ChainID resolves a chain identifier to its numeric id
func ChainID(chain interface{}) (uint64, error) {
	switch v := chain.(type) {
	case int:
		return fromInt64(int64(v))
	case int8:
		return fromInt64(int64(v))
	case int16:
		return fromInt64(int64(v))
	case int32:
		return fromInt64(int64(v))
	case int64:
		return fromInt64(v)
	case uint:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case uint64:
		return v, nil
	case *big.Int:
		if v == nil || v.Sign() <= 0 || !v.IsUint64() {
			return 0, fmt.Errorf("%w: %v", ErrUnknownChainType, v)
		}
		return v.Uint64(), nil
	case string:
		return fromString(v)
	default:
		return 0, fmt.Errorf("%w: unsupported identifier type %T", ErrUnknownChainType, chain)
	}
}

// IsTVM reports whether the chain is a Tron network
func IsTVM(chain interface{}) bool {
	vm, err := Detect(chain)
	return err == nil && vm == TVM
}

// IsSVM reports whether the chain is a Solana network
func IsSVM(chain interface{}) bool {
	vm, err := Detect(chain)
	return err == nil && vm == SVM
}

// IsEVM reports whether the chain is an EVM network
func IsEVM(chain interface{}) bool {
	vm, err := Detect(chain)
	return err == nil && vm == EVM
}

// NetworkName returns the well-known name of a non-EVM network, or an empty string
func NetworkName(chainID uint64) string {
	if name, ok := tvmChainIDs[chainID]; ok {
		return name
	}
	return svmChainIDs[chainID]
}

func detectID(id uint64) (VMType, error) {
	if _, ok := tvmChainIDs[id]; ok {
		return TVM, nil
	}
	if _, ok := svmChainIDs[id]; ok {
		return SVM, nil
	}
	if id > 0 && id <= math.MaxUint32 {
		return EVM, nil
	}
	return "", fmt.Errorf("%w: %d", ErrUnknownChainType, id)
}

func fromInt64(v int64) (uint64, error) {
	if v <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrUnknownChainType, v)
	}
	return uint64(v), nil
}

func fromString(s string) (uint64, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if id, ok := svmChainNames[name]; ok {
		return id, nil
	}
	id, err := strconv.ParseUint(name, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownChainType, s)
	}
	return id, nil
}
