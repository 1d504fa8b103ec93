package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresRepository stores records in the intent_records table
type PostgresRepository struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the intent_records table
func OpenPostgres(dsn string) (*PostgresRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := db.AutoMigrate(&models.IntentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate intent records: %w", err)
	}
	return NewPostgresRepository(db), nil
}

// NewPostgresRepository wraps an open gorm handle
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, record *models.IntentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "hash"}}, DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *PostgresRepository) GetByHash(ctx context.Context, hash common.Hash) (*models.IntentRecord, error) {
	var record models.IntentRecord
	err := r.db.WithContext(ctx).Where("hash = ?", hash.Hex()).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, hash common.Hash) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.IntentRecord{}).Where("hash = ?", hash.Hex()).Count(&count).Error
	return count > 0, err
}

func (r *PostgresRepository) Update(ctx context.Context, record *models.IntentRecord) error {
	result := r.db.WithContext(ctx).
		Model(&models.IntentRecord{}).
		Where("hash = ?", record.Hash).
		Select("status", "receipt", "intent", "withdrawal_id", "updated_at").
		Updates(&models.IntentRecord{
			Status:       record.Status,
			Receipt:      record.Receipt,
			Intent:       record.Intent,
			WithdrawalID: record.WithdrawalID,
			UpdatedAt:    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, hash common.Hash, status models.IntentStatus, receipt *models.Receipt) error {
	columns := []interface{}{"status", "updated_at"}
	if receipt != nil {
		columns = append(columns, "receipt")
	}
	result := r.db.WithContext(ctx).
		Model(&models.IntentRecord{}).
		Where("hash = ?", hash.Hex()).
		Select(columns[0], columns[1:]...).
		Updates(&models.IntentRecord{Status: status, Receipt: receipt, UpdatedAt: time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) FindByStatus(ctx context.Context, status models.IntentStatus, limit int) ([]*models.IntentRecord, error) {
	var records []*models.IntentRecord
	query := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *PostgresRepository) MarkWithdrawn(ctx context.Context, hash common.Hash, withdrawalID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.IntentRecord{}).
		Where("hash = ?", hash.Hex()).
		Updates(map[string]interface{}{
			"status":        models.StatusWithdrawn,
			"withdrawal_id": withdrawalID,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool
func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
