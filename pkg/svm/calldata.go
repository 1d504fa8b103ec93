package svm

import (
	"fmt"
	"math"

	"github.com/speedrun-hq/portal-solver/pkg/borsh"
)

// SerializableAccountMeta is an account meta carried inside route call data
type SerializableAccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Calldata is the call payload the portal program executes: instruction data
// and the number of accounts the call consumes from the remaining accounts.
type Calldata struct {
	Data         []byte
	AccountCount uint8
}

// CalldataWithAccounts is the route call data published by intent creators.
// The account metas are stripped before fulfillment and passed as remaining
// accounts instead.
type CalldataWithAccounts struct {
	Calldata Calldata
	Accounts []SerializableAccountMeta
}

// Bytes encodes the stripped call data
func (c Calldata) Bytes() []byte {
	w := borsh.NewWriter()
	c.write(w)
	return w.Bytes()
}

func (c Calldata) write(w *borsh.Writer) {
	w.WriteBytes(c.Data)
	w.WriteU8(c.AccountCount)
}

// Bytes encodes the call data with its account metas
func (c CalldataWithAccounts) Bytes() []byte {
	w := borsh.NewWriter()
	c.Calldata.write(w)
	w.WriteLen(len(c.Accounts))
	for _, meta := range c.Accounts {
		w.WriteFixed(meta.PublicKey[:])
		w.WriteBool(meta.IsSigner)
		w.WriteBool(meta.IsWritable)
	}
	return w.Bytes()
}

// NewCalldataWithAccounts sets the account count from accounts
func NewCalldataWithAccounts(data []byte, accounts []SerializableAccountMeta) (CalldataWithAccounts, error) {
	if len(accounts) > math.MaxUint8 {
		return CalldataWithAccounts{}, fmt.Errorf("call carries %d accounts", len(accounts))
	}
	return CalldataWithAccounts{
		Calldata: Calldata{Data: data, AccountCount: uint8(len(accounts))},
		Accounts: accounts,
	}, nil
}

// DecodeCalldataWithAccounts parses route call data
func DecodeCalldataWithAccounts(b []byte) (CalldataWithAccounts, error) {
	r := borsh.NewReader(b)
	var c CalldataWithAccounts
	c.Calldata.Data = r.ReadBytes()
	c.Calldata.AccountCount = r.ReadU8()
	n := r.ReadLen()
	for i := 0; i < n && r.Err() == nil; i++ {
		var meta SerializableAccountMeta
		copy(meta.PublicKey[:], r.ReadFixed(PublicKeyLength))
		meta.IsSigner = r.ReadBool()
		meta.IsWritable = r.ReadBool()
		c.Accounts = append(c.Accounts, meta)
	}
	if err := r.Finish(); err != nil {
		return CalldataWithAccounts{}, fmt.Errorf("failed to decode call data: %w", err)
	}
	if int(c.Calldata.AccountCount) != len(c.Accounts) {
		return CalldataWithAccounts{}, fmt.Errorf("call data declares %d accounts but carries %d", c.Calldata.AccountCount, len(c.Accounts))
	}
	return c, nil
}
