package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	LogRetentionDays = 7 // 日志保留天数
)

var DefaultLogger *Logger

// Config 日志配置
type Config struct {
	Level    string `yaml:"log_level" json:"log_level"`
	Dir      string `yaml:"log_dir" json:"log_dir"`
	Filename string `yaml:"log_file" json:"log_file"`
}

var (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m" // 时间：灰色
	colorDebug = "\x1b[36m" // DEBUG：青色
	colorInfo  = "\x1b[32m" // INFO：绿色
	colorWarn  = "\x1b[33m" // WARN：黄色
	colorError = "\x1b[31m" // ERROR：红色
)

// moduleColors 各模块标签的控制台颜色
var moduleColors = map[string]string{
	"[引导]":   "\x1b[96m", // 亮青色
	"[ASR]":  "\x1b[35m", // 品红
	"[静音]":   "\x1b[92m", // 亮绿色
	"[会话]":   "\x1b[34m", // 蓝色
	"[流式]":   "\x1b[94m", // 亮蓝色
	"[历史]":   "\x1b[95m", // 亮品红
	"[存储]":   "\x1b[33m", // 黄色
	"[认证]":   "\x1b[94m", // 亮蓝色
	"[HTTP]": "\x1b[95m", // 亮品红
}

// consoleHandler 自定义文本处理器，支持彩色输出和模块标签
type consoleHandler struct {
	writer io.Writer
	level  slog.Level
	mu     sync.Mutex
}

func (h *consoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	timeStr := r.Time.Format("2006-01-02 15:04:05.000")

	var levelStr, levelColor string
	switch r.Level {
	case slog.LevelDebug:
		levelStr, levelColor = "调试", colorDebug
	case slog.LevelInfo:
		levelStr, levelColor = "信息", colorInfo
	case slog.LevelWarn:
		levelStr, levelColor = "警告", colorWarn
	case slog.LevelError:
		levelStr, levelColor = "错误", colorError
	default:
		levelStr, levelColor = "信息", colorReset
	}

	msg := r.Message
	var output string
	if moduleColor, ok := matchModuleTag(msg); ok {
		// 模块日志格式: [时间] [模块] 消息
		output = fmt.Sprintf("%s[%s]%s %s%s%s",
			colorTime, timeStr, colorReset,
			moduleColor, msg, colorReset)
	} else {
		// 普通日志格式: [时间] [级别] 消息
		output = fmt.Sprintf("%s[%s]%s %s[%s]%s %s",
			colorTime, timeStr, colorReset,
			levelColor, levelStr, colorReset,
			msg)
	}

	if r.NumAttrs() > 0 {
		output += " {"
		r.Attrs(func(a slog.Attr) bool {
			output += fmt.Sprintf(" %s=%v", a.Key, a.Value)
			return true
		})
		output += " }"
	}
	output += "\n"

	_, err := h.writer.Write([]byte(output))
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *consoleHandler) WithGroup(name string) slog.Handler { return h }

func matchModuleTag(msg string) (string, bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", false
	}
	for tag, color := range moduleColors {
		if strings.HasPrefix(msg, tag) {
			return color, true
		}
	}
	return "", false
}

// Logger 同时输出到文件（JSON）和控制台（彩色文本）的日志记录器
type Logger struct {
	config      *Config
	jsonLogger  *slog.Logger
	textLogger  *slog.Logger
	logFile     *os.File
	currentDate string
	mu          sync.RWMutex
	ticker      *time.Ticker
	stopCh      chan struct{}
	stopOnce    sync.Once
}

func parseLevel(configLevel string) slog.Level {
	switch strings.ToLower(configLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New 创建新的日志记录器
func New(config Config) (*Logger, error) {
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %v", err)
	}

	logPath := filepath.Join(config.Dir, config.Filename)
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败: %v", err)
	}

	slogLevel := parseLevel(config.Level)

	jsonHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slogLevel})
	textHandler := &consoleHandler{writer: os.Stdout, level: slogLevel}

	logger := &Logger{
		config:      &config,
		jsonLogger:  slog.New(jsonHandler),
		textLogger:  slog.New(textHandler),
		logFile:     file,
		currentDate: time.Now().Format("2006-01-02"),
		stopCh:      make(chan struct{}),
	}

	logger.startRotationChecker()
	if DefaultLogger == nil {
		DefaultLogger = logger
	}

	return logger, nil
}

// startRotationChecker 启动日志轮转定时检查器
func (l *Logger) startRotationChecker() {
	l.ticker = time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-l.ticker.C:
				l.checkAndRotate()
			case <-l.stopCh:
				return
			}
		}
	}()
}

func (l *Logger) checkAndRotate() {
	today := time.Now().Format("2006-01-02")
	if today != l.currentDate {
		l.rotateLogFile(today)
		l.cleanOldLogs()
	}
}

// rotateLogFile 按日期归档当前日志文件并重新打开
func (l *Logger) rotateLogFile(newDate string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		l.logFile.Close()
	}

	logDir := l.config.Dir
	currentLogPath := filepath.Join(logDir, l.config.Filename)

	baseFileName := strings.TrimSuffix(l.config.Filename, filepath.Ext(l.config.Filename))
	ext := filepath.Ext(l.config.Filename)
	archivedLogPath := filepath.Join(logDir, fmt.Sprintf("%s-%s%s", baseFileName, l.currentDate, ext))

	if _, err := os.Stat(currentLogPath); err == nil {
		if err := os.Rename(currentLogPath, archivedLogPath); err != nil {
			l.textLogger.Error("重命名日志文件失败", slog.String("error", err.Error()))
		}
	}

	file, err := os.OpenFile(currentLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.textLogger.Error("创建新日志文件失败", slog.String("error", err.Error()))
		return
	}

	l.logFile = file
	l.currentDate = newDate

	jsonHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: parseLevel(l.config.Level)})
	l.jsonLogger = slog.New(jsonHandler)

	l.textLogger.Info("日志文件已轮转", slog.String("new_date", newDate))
}

// cleanOldLogs 清理超过保留期的归档日志
func (l *Logger) cleanOldLogs() {
	logDir := l.config.Dir

	entries, err := os.ReadDir(logDir)
	if err != nil {
		l.textLogger.Error("读取日志目录失败", slog.String("error", err.Error()))
		return
	}

	cutoffDate := time.Now().AddDate(0, 0, -LogRetentionDays)
	baseFileName := strings.TrimSuffix(l.config.Filename, filepath.Ext(l.config.Filename))
	ext := filepath.Ext(l.config.Filename)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		fileName := entry.Name()
		if strings.HasPrefix(fileName, baseFileName+"-") && strings.HasSuffix(fileName, ext) {
			dateStr := strings.TrimPrefix(fileName, baseFileName+"-")
			dateStr = strings.TrimSuffix(dateStr, ext)

			fileDate, err := time.Parse("2006-01-02", dateStr)
			if err != nil {
				continue
			}

			if fileDate.Before(cutoffDate) {
				if err := os.Remove(filepath.Join(logDir, fileName)); err != nil {
					l.textLogger.Error("删除旧日志文件失败",
						slog.String("file", fileName),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}

// Close 关闭日志文件
func (l *Logger) Close() error {
	if l.ticker != nil {
		l.ticker.Stop()
	}
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

// log 通用日志记录（内部使用）
func (l *Logger) log(level slog.Level, msg string, fields ...interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var attrs []slog.Attr
	if len(fields) > 0 && fields[0] != nil {
		if fieldsMap, ok := fields[0].(map[string]interface{}); ok {
			keys := make([]string, 0, len(fieldsMap))
			for k := range fieldsMap {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				attrs = append(attrs, slog.Any(k, fieldsMap[k]))
			}
		} else {
			attrs = append(attrs, slog.Any("fields", fields[0]))
		}
	}

	ctx := context.Background()
	l.jsonLogger.LogAttrs(ctx, level, msg, attrs...)
	l.textLogger.LogAttrs(ctx, level, msg, attrs...)
}

func containsFormatPlaceholders(s string) bool {
	return strings.Contains(s, "%")
}

func (l *Logger) logf(level slog.Level, msg string, args ...interface{}) {
	if len(args) > 0 && containsFormatPlaceholders(msg) {
		l.log(level, fmt.Sprintf(msg, args...))
	} else {
		l.log(level, msg, args...)
	}
}

// Debug 记录调试级别日志
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.logf(slog.LevelDebug, msg, args...)
}

// Info 记录信息级别日志
func (l *Logger) Info(msg string, args ...interface{}) {
	l.logf(slog.LevelInfo, msg, args...)
}

// Warn 记录警告级别日志
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.logf(slog.LevelWarn, msg, args...)
}

// Error 记录错误级别日志
func (l *Logger) Error(msg string, args ...interface{}) {
	l.logf(slog.LevelError, msg, args...)
}

// FormatLog 构造带单一分类标签的日志消息。例如：FormatLog("会话", "已启动") -> "[会话] 已启动"
// 如果传入的 message 已经以 "[" 开头（表示可能已包含标签），则直接返回原文。
func FormatLog(tag, message string) string {
	tag = strings.TrimSpace(tag)
	message = strings.TrimSpace(message)
	if tag == "" {
		return message
	}
	if strings.HasPrefix(message, "[") {
		return message
	}
	return fmt.Sprintf("[%s] %s", tag, message)
}

// DebugTag 记录带分类标签的调试日志
func (l *Logger) DebugTag(tag, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logf(slog.LevelDebug, FormatLog(tag, msg), args...)
}

// InfoTag 记录带分类标签的信息日志
func (l *Logger) InfoTag(tag, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logf(slog.LevelInfo, FormatLog(tag, msg), args...)
}

// WarnTag 记录带分类标签的警告日志
func (l *Logger) WarnTag(tag, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logf(slog.LevelWarn, FormatLog(tag, msg), args...)
}

// ErrorTag 记录带分类标签的错误日志
func (l *Logger) ErrorTag(tag, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logf(slog.LevelError, FormatLog(tag, msg), args...)
}

// Slog exposes the underlying slog text logger for structured integrations.
func (l *Logger) Slog() *slog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.textLogger
}
