package models

import (
	"time"

	"gorm.io/datatypes"
)

// StorageEntry is one persisted key of the SQL-backed store.
type StorageEntry struct {
	Namespace string         `gorm:"primaryKey;type:varchar(64)" json:"namespace"`
	Key       string         `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value     datatypes.JSON `gorm:"type:json;not null" json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (StorageEntry) TableName() string {
	return "storage_entries"
}
