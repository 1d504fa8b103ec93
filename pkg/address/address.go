// Package address holds the 32-byte universal address used across all
// virtual-machine families and the codecs to and from each family's native
// text form.
package address

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// Length is the size of a universal address in bytes
const Length = 32

const (
	// TronPrefix is the version byte of a Tron mainnet account address
	TronPrefix byte = 0x41

	tronAddressLength = 21
	checksumLength    = 4
)

var (
	// ErrInvalidAddress is returned when a textual address cannot be parsed
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNotEVMCompatible is returned when a universal address has non-zero high bytes
	// and cannot be narrowed to a 20-byte account
	ErrNotEVMCompatible = errors.New("address does not fit in 20 bytes")
)

// Address is a chain-agnostic address. EVM and Tron accounts occupy the low 20
// bytes, Solana public keys use all 32.
type Address [Length]byte

// Zero is the all-zero address
var Zero Address

// BytesToAddress left-pads b into an Address. Longer inputs keep their low 32 bytes.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > Length {
		b = b[len(b)-Length:]
	}
	copy(a[Length-len(b):], b)
	return a
}

// FromEVM widens a 20-byte account into the universal form
func FromEVM(addr common.Address) Address {
	return BytesToAddress(addr.Bytes())
}

// ParseHex parses either a 20-byte EVM hex address or a 32-byte universal hex address
func ParseHex(s string) (Address, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != 40 && len(raw) != 64 {
		return Zero, fmt.Errorf("%w: %q has %d hex characters", ErrInvalidAddress, s, len(raw))
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return BytesToAddress(b), nil
}

// ParseEVM parses a 0x-prefixed 20-byte hex address
func ParseEVM(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return Zero, fmt.Errorf("%w: %q is not an EVM address", ErrInvalidAddress, s)
	}
	return FromEVM(common.HexToAddress(s)), nil
}

// ParseTron decodes a Base58Check Tron address ("T...")
func ParseTron(s string) (Address, error) {
	payload, err := decodeBase58Check(s)
	if err != nil {
		return Zero, err
	}
	if len(payload) != tronAddressLength || payload[0] != TronPrefix {
		return Zero, fmt.Errorf("%w: %q is not a Tron account", ErrInvalidAddress, s)
	}
	return BytesToAddress(payload[1:]), nil
}

// ParseSolana decodes a Base58 Solana public key
func ParseSolana(s string) (Address, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(b) != Length {
		return Zero, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, s, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// IsEVMCompatible reports whether the address fits in 20 bytes
func (a Address) IsEVMCompatible() bool {
	for _, b := range a[:Length-common.AddressLength] {
		if b != 0 {
			return false
		}
	}
	return true
}

// IsZero reports whether every byte is zero
func (a Address) IsZero() bool {
	return a == Zero
}

// Bytes returns a copy of the 32 bytes
func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// Hash returns the address as a bytes32 word
func (a Address) Hash() common.Hash {
	return common.Hash(a)
}

// EVM narrows the address to a 20-byte account
func (a Address) EVM() (common.Address, error) {
	if !a.IsEVMCompatible() {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNotEVMCompatible, a.Hex())
	}
	return common.BytesToAddress(a[Length-common.AddressLength:]), nil
}

// Tron renders the address as Base58Check with the 0x41 version byte
func (a Address) Tron() (string, error) {
	if !a.IsEVMCompatible() {
		return "", fmt.Errorf("%w: %s", ErrNotEVMCompatible, a.Hex())
	}
	payload := make([]byte, 0, tronAddressLength)
	payload = append(payload, TronPrefix)
	payload = append(payload, a[Length-common.AddressLength:]...)
	return encodeBase58Check(payload), nil
}

// Solana renders the address as a Base58 public key
func (a Address) Solana() string {
	return base58.Encode(a[:])
}

// Hex returns the 0x-prefixed 64 character universal form
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

// MarshalText implements encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Address) UnmarshalText(input []byte) error {
	parsed, err := ParseHex(string(input))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// IsValidBase58Check reports whether s is Base58 with a valid 4-byte double-SHA256 checksum
func IsValidBase58Check(s string) bool {
	_, err := decodeBase58Check(s)
	return err == nil
}

func encodeBase58Check(payload []byte) string {
	sum := doubleSHA256(payload)
	out := make([]byte, 0, len(payload)+checksumLength)
	out = append(out, payload...)
	out = append(out, sum[:checksumLength]...)
	return base58.Encode(out)
}

func decodeBase58Check(s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) <= checksumLength {
		return nil, fmt.Errorf("%w: %q is too short", ErrInvalidAddress, s)
	}
	payload, checksum := raw[:len(raw)-checksumLength], raw[len(raw)-checksumLength:]
	sum := doubleSHA256(payload)
	for i := 0; i < checksumLength; i++ {
		if sum[i] != checksum[i] {
			return nil, fmt.Errorf("%w: bad checksum for %q", ErrInvalidAddress, s)
		}
	}
	return payload, nil
}

func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}
