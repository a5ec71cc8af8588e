package kv

import (
	"context"
	"errors"

	"peachcash/pkg/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MySQL stores every key as one row of kv_entries
type MySQL struct {
	db *gorm.DB
}

func NewMySQL(db *gorm.DB) *MySQL {
	return &MySQL{db: db}
}

func (m *MySQL) Name() string { return "mysql" }

func (m *MySQL) Read(ctx context.Context, key string) ([]byte, error) {
	var entry model.KvEntry
	err := m.db.WithContext(ctx).Where("`key`=?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry.Val, nil
}

func (m *MySQL) Write(ctx context.Context, key string, val []byte) error {
	entry := model.KvEntry{Key: key, Val: val}
	return m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"val", "updated_at"}),
		}).
		Create(&entry).Error
}

func (m *MySQL) Remove(ctx context.Context, key string) error {
	return m.db.WithContext(ctx).Where("`key`=?", key).Delete(&model.KvEntry{}).Error
}

func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
