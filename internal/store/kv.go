// Package store persists small pieces of view state, such as the page
// position of each list, in a key/value table.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/pkg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one stored key/value pair.
type Entry struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName pins the table name independently of the struct name.
func (Entry) TableName() string { return "kv_entries" }

// KV is a string key/value store.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// SetMany stores all pairs atomically.
	SetMany(ctx context.Context, pairs map[string]string) error
}

type gormKV struct {
	db *gorm.DB
}

// NewKV returns a KV backed by db. Call Migrate once before use.
func NewKV(db *gorm.DB) KV {
	return &gormKV{db: db}
}

// Migrate creates or updates the kv_entries table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

func (s *gormKV) Get(ctx context.Context, key string) (string, bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.NewAppError(domain.CodeInternal, "read view state", err)
	}
	return e.Value, true, nil
}

func (s *gormKV) Set(ctx context.Context, key, value string) error {
	if err := upsert(s.db.WithContext(ctx), key, value); err != nil {
		return domain.NewAppError(domain.CodeInternal, "write view state", err)
	}
	return nil
}

func (s *gormKV) SetMany(ctx context.Context, pairs map[string]string) error {
	err := pkg.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		for k, v := range pairs {
			if err := upsert(tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.NewAppError(domain.CodeInternal, "write view state", err)
	}
	return nil
}

func upsert(db *gorm.DB, key, value string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Entry{Key: key, Value: value}).Error
}
