package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = ".config.yaml"

// Loader 从 YAML 文件和环境变量加载配置
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader that reads from the default config file path.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the configuration file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Load 读取配置：默认值 <- 配置文件 <- 环境变量，逐层覆盖。
func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("未找到 .env 文件，使用系统环境变量")
		}
	}

	path := l.path
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigFile
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %v", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}

	l.applyEnv(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量覆盖敏感配置项
func (l *Loader) applyEnv(cfg *Config) {
	if v := os.Getenv("ASR_APP_ID"); v != "" {
		cfg.ASR.AppID = v
	}
	if v := os.Getenv("ASR_API_KEY"); v != "" {
		cfg.ASR.APIKey = v
	}
	if v := os.Getenv("AI_TOKEN"); v != "" {
		cfg.AI.Token = v
	}
	if v := os.Getenv("AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Web.Enabled && (cfg.Web.Port <= 0 || cfg.Web.Port > 65535) {
		return fmt.Errorf("无效的面板端口: %d", cfg.Web.Port)
	}
	if cfg.Session.SilenceThreshold <= 0 {
		return fmt.Errorf("静音阈值必须大于零")
	}
	if cfg.Session.PollInterval <= 0 {
		return fmt.Errorf("静音检测间隔必须大于零")
	}
	if cfg.Session.AnalysisPrefix <= 0 {
		return fmt.Errorf("分析摘要长度必须大于零")
	}
	if cfg.ASR.SampleRate != 16000 {
		return fmt.Errorf("转写通道仅支持16kHz采样率, 当前: %d", cfg.ASR.SampleRate)
	}
	return nil
}
