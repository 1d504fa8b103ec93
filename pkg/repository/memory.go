package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/speedrun-hq/portal-solver/pkg/models"
)

// MemoryRepository keeps records in process memory. Records are copied on
// the way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*models.IntentRecord
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*models.IntentRecord)}
}

func (m *MemoryRepository) Create(_ context.Context, record *models.IntentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.Hash]; ok {
		return ErrDuplicate
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	stored, err := clone(record)
	if err != nil {
		return err
	}
	m.records[record.Hash] = stored
	return nil
}

func (m *MemoryRepository) GetByHash(_ context.Context, hash common.Hash) (*models.IntentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[hash.Hex()]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(record)
}

func (m *MemoryRepository) Exists(_ context.Context, hash common.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[hash.Hex()]
	return ok, nil
}

func (m *MemoryRepository) Update(_ context.Context, record *models.IntentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[record.Hash]
	if !ok {
		return ErrNotFound
	}
	updated, err := clone(record)
	if err != nil {
		return err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.RawEvent = existing.RawEvent
	updated.UpdatedAt = time.Now()
	m.records[record.Hash] = updated
	return nil
}

func (m *MemoryRepository) UpdateStatus(_ context.Context, hash common.Hash, status models.IntentStatus, receipt *models.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[hash.Hex()]
	if !ok {
		return ErrNotFound
	}
	existing.Status = status
	if receipt != nil {
		existing.Receipt = cloneReceipt(receipt)
	}
	existing.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRepository) FindByStatus(_ context.Context, status models.IntentStatus, limit int) ([]*models.IntentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.IntentRecord
	for _, record := range m.records {
		if record.Status != status {
			continue
		}
		c, err := clone(record)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) MarkWithdrawn(_ context.Context, hash common.Hash, withdrawalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[hash.Hex()]
	if !ok {
		return ErrNotFound
	}
	existing.Status = models.StatusWithdrawn
	existing.WithdrawalID = &withdrawalID
	existing.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRepository) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored records
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func clone(record *models.IntentRecord) (*models.IntentRecord, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	out := new(models.IntentRecord)
	if err := json.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneReceipt(r *models.Receipt) *models.Receipt {
	b, err := json.Marshal(r)
	if err != nil {
		return r
	}
	out := new(models.Receipt)
	if err := json.Unmarshal(b, out); err != nil {
		return r
	}
	return out
}
