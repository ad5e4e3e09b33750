package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/medistore/pkg/config"
	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/storage"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore keeps each key as one row of storage_entries.
type SQLStore struct {
	db        *gorm.DB
	namespace string
}

func OpenSQLStore(cfg *config.MySQLConfig, namespace string) (*SQLStore, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)

	return NewSQLStore(db, namespace)
}

// NewSQLStore wraps an open gorm handle and migrates the entries table.
func NewSQLStore(db *gorm.DB, namespace string) (*SQLStore, error) {
	if err := db.AutoMigrate(&models.StorageEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &SQLStore{db: db, namespace: namespace}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	var entry models.StorageEntry
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND `key` = ?", s.namespace, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	if err := json.Unmarshal(entry.Value, dest); err != nil {
		return true, &storage.DecodeError{Key: key, Err: err}
	}
	return true, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	entry := models.StorageEntry{
		Namespace: s.namespace,
		Key:       key,
		Value:     datatypes.JSON(raw),
		UpdatedAt: time.Now(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND `key` = ?", s.namespace, key).
		Delete(&models.StorageEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
