package kv

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// kvEntry is the single table PostgresStore keeps, mirroring the shape of
// kv.Store itself: one opaque JSON blob per key plus an optional expiry.
type kvEntry struct {
	Key       string `gorm:"column:key;primaryKey;size:512"`
	Value     datatypes.JSON
	ExpiresAt *time.Time `gorm:"column:expires_at;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (kvEntry) TableName() string { return "kv_entries" }

// PostgresStore persists entries to a single kv_entries table, schema-managed
// by cmd/migrate. It is the store a real deployment uses.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore wraps an already-connected *gorm.DB. The caller is
// responsible for running migrations before traffic arrives.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row kvEntry
	err := p.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if row.ExpiresAt != nil && time.Now().After(*row.ExpiresAt) {
		_ = p.Delete(ctx, key)
		return nil, false, nil
	}
	return []byte(row.Value), true, nil
}

func (p *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	row := kvEntry{Key: key, Value: datatypes.JSON(value)}
	if ttl > 0 {
		expiresAt := time.Now().Add(ttl)
		row.ExpiresAt = &expiresAt
	}
	return p.db.WithContext(ctx).Save(&row).Error
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	return p.db.WithContext(ctx).Where("key = ?", key).Delete(&kvEntry{}).Error
}

func (p *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var rows []kvEntry
	q := p.db.WithContext(ctx).
		Where("key LIKE ?", prefix+"%").
		Where("expires_at IS NULL OR expires_at > ?", time.Now())
	if err := q.Select("key").Find(&rows).Error; err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.Key)
	}
	return keys, nil
}
