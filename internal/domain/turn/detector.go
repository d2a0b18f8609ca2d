package turn

import (
	"strings"
	"sync"
	"time"

	"github.com/yisheng0/ai-interview/internal/platform/logging"
)

// Gate 判断当前是否允许触发提问。由编排层注入，
// 处理中或回答流进行中时返回 false。
type Gate func() bool

// DispatchFunc 静音触发后的提问派发回调，收到完整的候选问题文本。
// 回调执行前检测器已自行停表，回调内可安全地 Restart。
type DispatchFunc func(question string)

// Detector 静音断句检测器。
// 聚合最终文本与临时文本为候选问题，按固定间隔轮询，
// 静音超过阈值且满足触发条件时派发一次提问。
type Detector struct {
	threshold time.Duration
	interval  time.Duration
	gate      Gate
	dispatch  DispatchFunc
	logger    *logging.Logger

	nowFunc func() time.Time

	mu           sync.Mutex
	finals       []string
	interim      string
	lastActivity time.Time
	running      bool
	stopChan     chan struct{}
}

// Option 检测器可选参数
type Option func(*Detector)

// WithNowFunc 注入时钟，测试用
func WithNowFunc(now func() time.Time) Option {
	return func(d *Detector) { d.nowFunc = now }
}

// NewDetector 创建检测器。threshold 静音阈值，interval 轮询间隔。
func NewDetector(threshold, interval time.Duration, gate Gate, dispatch DispatchFunc, logger *logging.Logger, opts ...Option) *Detector {
	d := &Detector{
		threshold: threshold,
		interval:  interval,
		gate:      gate,
		dispatch:  dispatch,
		logger:    logger,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NoteFinal 记录一段最终文本，空白段忽略
func (d *Detector) NoteFinal(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	d.mu.Lock()
	d.finals = append(d.finals, text)
	d.interim = ""
	d.lastActivity = d.nowFunc()
	d.mu.Unlock()
}

// NoteInterim 替换当前临时文本
func (d *Detector) NoteInterim(text string) {
	d.mu.Lock()
	d.interim = text
	if strings.TrimSpace(text) != "" {
		d.lastActivity = d.nowFunc()
	}
	d.mu.Unlock()
}

// Buffer 当前候选问题：最终段落空格拼接，临时文本缀尾
func (d *Detector) Buffer() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bufferLocked()
}

func (d *Detector) bufferLocked() string {
	parts := d.finals
	if strings.TrimSpace(d.interim) != "" {
		parts = append(append([]string{}, d.finals...), strings.TrimSpace(d.interim))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Clear 清空已聚合的候选问题
func (d *Detector) Clear() {
	d.mu.Lock()
	d.finals = nil
	d.interim = ""
	d.mu.Unlock()
}

// Start 启动静音轮询。重复调用无效果。
func (d *Detector) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.lastActivity = d.nowFunc()
	stopChan := make(chan struct{})
	d.stopChan = stopChan
	d.mu.Unlock()

	d.logger.InfoTag("静音", "断句检测已启动, 阈值 %v, 轮询间隔 %v", d.threshold, d.interval)

	go d.watch(stopChan)
}

// Restart 重新启动轮询并将静音基点重置为当前时刻
func (d *Detector) Restart() {
	d.Stop()
	d.Start()
}

// Stop 停表。幂等，未启动时调用无效果。
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.stopChan = nil
	d.mu.Unlock()
}

func (d *Detector) watch(stopChan chan struct{}) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			if question, ok := d.check(stopChan); ok {
				// 先停表再派发，避免回调期间重复触发
				d.logger.InfoTag("静音", "静音超过阈值, 派发提问: %s", question)
				d.dispatch(question)
				return
			}
		}
	}
}

// check 判断触发条件：缓冲非空、允许触发、静音达到阈值。
// 满足时先停表再返回问题文本。
func (d *Detector) check(stopChan chan struct{}) (string, bool) {
	if d.gate != nil && !d.gate() {
		return "", false
	}

	d.mu.Lock()
	if !d.running || d.stopChan != stopChan {
		d.mu.Unlock()
		return "", false
	}
	question := d.bufferLocked()
	silence := d.nowFunc().Sub(d.lastActivity)
	if question == "" || silence < d.threshold {
		d.mu.Unlock()
		return "", false
	}
	d.running = false
	d.stopChan = nil
	d.mu.Unlock()

	close(stopChan)
	return question, true
}
