package config

import (
	"time"
)

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Web     WebConfig     `yaml:"web"`
	ASR     ASRConfig     `yaml:"asr"`
	AI      AIConfig      `yaml:"ai"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// WebConfig 本地面板 HTTP 服务配置
type WebConfig struct {
	Enabled   bool   `yaml:"enabled"`
	IP        string `yaml:"ip"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

// ASRConfig 实时语音转写通道配置
type ASRConfig struct {
	URL              string        `yaml:"url"`
	AppID            string        `yaml:"appid"`
	APIKey           string        `yaml:"api_key"`
	Lang             string        `yaml:"lang"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// 音频帧参数：单声道 16kHz 16bit PCM
	SampleRate    int `yaml:"sample_rate"`
	FrameSamples  int `yaml:"frame_samples"`
	FrameInterval int `yaml:"frame_interval_ms"`
}

// AIConfig AI 后端接口配置
type AIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig 会话编排配置
type SessionConfig struct {
	InterviewID      string        `yaml:"interview_id"`
	RoundID          string        `yaml:"round_id"`
	ResumeSessionID  string        `yaml:"resume_session_id"`
	SilenceThreshold time.Duration `yaml:"silence_threshold"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	AnalysisPrefix   int           `yaml:"analysis_prefix"`
}

// StoreConfig 会话ID持久化存储配置
type StoreConfig struct {
	Type   string      `yaml:"type"`
	Redis  RedisStore  `yaml:"redis,omitempty"`
	SQLite SQLiteStore `yaml:"sqlite,omitempty"`
}

type RedisStore struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type SQLiteStore struct {
	DSN string `yaml:"dsn,omitempty"`
}
