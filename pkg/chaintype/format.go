package chaintype

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/address"
)

// AddressFormat describes the textual shape of a family's addresses
type AddressFormat struct {
	Encoding  string
	Prefix    string
	MinLength int
	MaxLength int
	ByteSize  int
}

var addressFormats = map[VMType]AddressFormat{
	EVM: {Encoding: "hex", Prefix: "0x", MinLength: 42, MaxLength: 42, ByteSize: 20},
	TVM: {Encoding: "base58check", Prefix: "T", MinLength: 34, MaxLength: 34, ByteSize: 20},
	SVM: {Encoding: "base58", MinLength: 32, MaxLength: 44, ByteSize: 32},
}

var base58Pattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

// GetAddressFormat returns the address format of a VM family
func GetAddressFormat(vm VMType) (AddressFormat, error) {
	f, ok := addressFormats[vm]
	if !ok {
		return AddressFormat{}, fmt.Errorf("%w: %s", ErrUnknownChainType, vm)
	}
	return f, nil
}

// IsValidAddressForChain reports whether addr has the shape of a vm address
func IsValidAddressForChain(addr string, vm VMType) bool {
	f, err := GetAddressFormat(vm)
	if err != nil {
		return false
	}
	if len(addr) < f.MinLength || len(addr) > f.MaxLength {
		return false
	}

	switch vm {
	case EVM:
		return strings.HasPrefix(addr, f.Prefix) && common.IsHexAddress(addr)
	case TVM:
		if !strings.HasPrefix(addr, f.Prefix) || !base58Pattern.MatchString(addr) {
			return false
		}
		_, err := address.ParseTron(addr)
		return err == nil
	case SVM:
		if !base58Pattern.MatchString(addr) {
			return false
		}
		_, err := address.ParseSolana(addr)
		return err == nil
	}
	return false
}

// ParseAddress parses a vm-native textual address into the universal form
func ParseAddress(addr string, vm VMType) (address.Address, error) {
	switch vm {
	case EVM:
		return address.ParseEVM(addr)
	case TVM:
		return address.ParseTron(addr)
	case SVM:
		return address.ParseSolana(addr)
	}
	return address.Zero, fmt.Errorf("%w: %s", ErrUnknownChainType, vm)
}

// FormatAddress renders a universal address in the vm-native textual form
func FormatAddress(a address.Address, vm VMType) (string, error) {
	switch vm {
	case EVM:
		evm, err := a.EVM()
		if err != nil {
			return "", err
		}
		return evm.Hex(), nil
	case TVM:
		return a.Tron()
	case SVM:
		return a.Solana(), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownChainType, vm)
}
