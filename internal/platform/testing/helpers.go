package testing

import (
	"testing"
	"time"

	"github.com/yisheng0/ai-interview/internal/platform/config"
	"github.com/yisheng0/ai-interview/internal/platform/logging"
)

func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Log.Level = "DEBUG"
	cfg.Log.Dir = t.TempDir()
	cfg.ASR.AppID = "test-appid"
	cfg.ASR.APIKey = "test-api-key"
	cfg.AI.Token = "test-token"
	cfg.Session.SilenceThreshold = 100 * time.Millisecond
	cfg.Session.PollInterval = 20 * time.Millisecond

	return cfg
}

func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	cfg := SetupTestConfig(t)
	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
	})

	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}

	return logger
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}
