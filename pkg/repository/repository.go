// Package repository persists intent records, one per intent hash.
package repository

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/models"
)

var (
	// ErrNotFound is returned when no record exists for a hash
	ErrNotFound = errors.New("intent record not found")
	// ErrDuplicate is returned when a record for the hash already exists
	ErrDuplicate = errors.New("intent record already exists")
)

// IntentRepository defines the data access the pipeline stages need
type IntentRepository interface {
	// Create inserts a new record and fails with ErrDuplicate if the hash is taken
	Create(ctx context.Context, record *models.IntentRecord) error
	GetByHash(ctx context.Context, hash common.Hash) (*models.IntentRecord, error)
	Exists(ctx context.Context, hash common.Hash) (bool, error)
	// Update writes status, receipt, intent and withdrawal id of an existing record
	Update(ctx context.Context, record *models.IntentRecord) error
	UpdateStatus(ctx context.Context, hash common.Hash, status models.IntentStatus, receipt *models.Receipt) error
	FindByStatus(ctx context.Context, status models.IntentStatus, limit int) ([]*models.IntentRecord, error)
	// MarkWithdrawn moves a record to WITHDRAWN and stores the withdrawal transaction
	MarkWithdrawn(ctx context.Context, hash common.Hash, withdrawalID string) error
	Ping(ctx context.Context) error
}
