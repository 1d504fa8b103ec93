package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// IntentStatus is the lifecycle state of an intent record
type IntentStatus string

const (
	StatusPending       IntentStatus = "PENDING"
	StatusNonBendWallet IntentStatus = "NON-BEND-WALLET"
	StatusInvalid       IntentStatus = "INVALID"
	StatusInfeasable    IntentStatus = "INFEASABLE"
	StatusCLProcessing  IntentStatus = "CL_PROCESSING"
	StatusCLSolved      IntentStatus = "CL_SOLVED"
	StatusCLFailed      IntentStatus = "CL_FAILED"
	StatusSolved        IntentStatus = "SOLVED"
	StatusFulfilled     IntentStatus = "FULFILLED"
	StatusFailed        IntentStatus = "FAILED"
	StatusWithdrawn     IntentStatus = "WITHDRAWN"
)

// IsTerminal reports whether no stage moves the record out of this status.
// INFEASABLE is excluded since the rescan routine may requeue it.
func (s IntentStatus) IsTerminal() bool {
	switch s {
	case StatusSolved, StatusFulfilled, StatusFailed, StatusInvalid, StatusNonBendWallet, StatusWithdrawn:
		return true
	}
	return false
}

// IsSolved reports whether the intent was fulfilled by this solver
func (s IntentStatus) IsSolved() bool {
	return s == StatusSolved || s == StatusFulfilled || s == StatusCLSolved
}

// ReceiptStatus is the outcome of a chain transaction
type ReceiptStatus string

const (
	ReceiptSuccess  ReceiptStatus = "success"
	ReceiptReverted ReceiptStatus = "reverted"
)

// Receipt is attached to a record. A submitted transaction fills the
// transaction fields; a failed check or error fills Validations or Error.
// Previous keeps the receipt that was on the record before a failure.
type Receipt struct {
	TransactionHash string          `json:"transactionHash,omitempty"`
	BlockNumber     uint64          `json:"blockNumber,omitempty"`
	Status          ReceiptStatus   `json:"status,omitempty"`
	GasUsed         uint64          `json:"gasUsed,omitempty"`
	ChainID         uint64          `json:"chainId,omitempty"`
	Validations     map[string]bool `json:"validations,omitempty"`
	Error           string          `json:"error,omitempty"`
	Previous        *Receipt        `json:"previous,omitempty"`
}

// Reverted reports whether the receipt belongs to a reverted transaction
func (r *Receipt) Reverted() bool {
	return r != nil && r.Status == ReceiptReverted
}

// RawEvent is the on-chain log an intent record was created from
type RawEvent struct {
	ChainID     uint64        `json:"chainId"`
	Address     string        `json:"address"`
	BlockNumber uint64        `json:"blockNumber"`
	TxHash      common.Hash   `json:"transactionHash"`
	LogIndex    uint          `json:"logIndex"`
	Topics      []common.Hash `json:"topics"`
	Data        hexutil.Bytes `json:"data"`
}

// IntentRecord is the persisted state of one intent, unique per hash
type IntentRecord struct {
	ID           string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Hash         string       `json:"hash" gorm:"uniqueIndex;type:varchar(66);not null"`
	Status       IntentStatus `json:"status" gorm:"index;type:varchar(32);not null"`
	SourceChain  uint64       `json:"sourceChainId" gorm:"index"`
	Intent       Intent       `json:"intent" gorm:"serializer:json;type:jsonb"`
	RawEvent     *RawEvent    `json:"rawEvent,omitempty" gorm:"serializer:json;type:jsonb"`
	Receipt      *Receipt     `json:"receipt,omitempty" gorm:"serializer:json;type:jsonb"`
	WithdrawalID *string      `json:"withdrawalId,omitempty" gorm:"type:varchar(66)"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// TableName overrides the gorm table name
func (IntentRecord) TableName() string {
	return "intent_records"
}
