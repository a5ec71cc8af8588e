// Package model defines the database models and opens the mysql and redis connections.
package model

import (
	"time"
)

type Model struct {
	CreatedAt time.Time `json:"createdAt" gorm:"omitempty; not null; default:CURRENT_TIMESTAMP(3);"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"omitempty; not null; default:CURRENT_TIMESTAMP(3);"`
}

// KvEntry model, one row per storage key holding the whole serialized collection
type KvEntry struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	Key string `json:"key" gorm:"omitempty; not null; default:''; type:varchar(191); uniqueindex:idx_kv_key;"` // e.g. assets, balances
	Val []byte `json:"val" gorm:"omitempty; type:longblob;"`

	Model
}

func (KvEntry) TableName() string {
	return "kv_entries"
}
