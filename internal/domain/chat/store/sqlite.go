package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// sessionRecord 会话指针表，始终只有一行
type sessionRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"column:session_id"`
	UpdatedAt time.Time
}

func (sessionRecord) TableName() string {
	return "chat_sessions"
}

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds a SQLite-backed session store.
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate chat_sessions failed: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Save(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&sessionRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(&sessionRecord{SessionID: sessionID}).Error
	})
}

func (s *sqliteStore) Load(ctx context.Context) (string, error) {
	var record sessionRecord
	err := s.db.WithContext(ctx).Order("updated_at desc").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return record.SessionID, nil
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("1 = 1").Delete(&sessionRecord{}).Error
}

func (s *sqliteStore) Close(_ context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
