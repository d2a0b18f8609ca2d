package store

import (
	"context"
)

// Store 持久化当前会话指针。只有 sessionId 落地，消息不落地。
type Store interface {
	Save(ctx context.Context, sessionID string) error
	Load(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	Redis  *RedisConfig
	SQLite *SQLiteConfig
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// SQLiteConfig provides the database dependency.
type SQLiteConfig struct {
	DSN string
}
