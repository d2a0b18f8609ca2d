package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "copilot.log",
		},
		Web: WebConfig{
			Enabled:   true,
			IP:        "127.0.0.1",
			Port:      8090,
			StaticDir: "web/panel",
		},
		ASR: ASRConfig{
			URL:              "wss://rtasr.xfyun.cn/v1/ws",
			Lang:             "cn",
			HandshakeTimeout: 5 * time.Second,
			SampleRate:       16000,
			FrameSamples:     1024,
			FrameInterval:    64,
		},
		AI: AIConfig{
			BaseURL: "http://127.0.0.1:8080/api/ai",
			Timeout: 30 * time.Second,
		},
		Session: SessionConfig{
			SilenceThreshold: 1000 * time.Millisecond,
			PollInterval:     500 * time.Millisecond,
			AnalysisPrefix:   50,
		},
		Store: StoreConfig{
			Type: "memory",
			SQLite: SQLiteStore{
				DSN: "data/copilot.db",
			},
		},
	}
}
