package session

import (
	"context"
	"sync"

	"github.com/yisheng0/ai-interview/internal/domain/chat"
	"github.com/yisheng0/ai-interview/internal/domain/eventbus"
	platerrors "github.com/yisheng0/ai-interview/internal/platform/errors"
	"github.com/yisheng0/ai-interview/internal/platform/logging"
)

// ErrSessionMissing 会话未建立时派发问题
var ErrSessionMissing = platerrors.New(platerrors.KindSession, "session.Dispatch", "会话不存在, 请先创建面试会话")

// Analyzer 问题分析接口，非流式
type Analyzer interface {
	SendMessage(ctx context.Context, sessionID, message string) (string, error)
}

// AnswerOpener 流式回答接口
type AnswerOpener interface {
	Open(ctx context.Context, sessionID, question string,
		onChunk func(string), onComplete func(), onError func(error)) func()
}

// Watchdog 静音断句检测器接口，由 turn.Detector 实现
type Watchdog interface {
	NoteInterim(text string)
	NoteFinal(text string)
	Buffer() string
	Clear()
	Restart()
	Stop()
}

// Display 面板快照
type Display struct {
	State    string         `json:"state"`
	Question string         `json:"question"`
	Interim  string         `json:"interim"`
	Analysis string         `json:"analysis"`
	Answer   string         `json:"answer"`
	History  []chat.Message `json:"history"`
}

// Dispatcher 提问派发器与会话状态机。
// 静音触发后把候选问题同时派给分析腿和流式回答腿，
// 两条腿互不影响，回答落定后恰好提交一轮对话到历史。
type Dispatcher struct {
	analyzer       Analyzer
	opener         AnswerOpener
	history        *chat.History
	watchdog       Watchdog
	logger         *logging.Logger
	analysisPrefix int

	mu           sync.Mutex
	state        UIState
	processing   bool
	lastQuestion string
	question     string
	analysis     string
	answer       string
	round        int
	cancelStream func()

	ctx    context.Context
	cancel context.CancelFunc
}

// Config 派发器依赖
type Config struct {
	Analyzer       Analyzer
	Opener         AnswerOpener
	History        *chat.History
	Watchdog       Watchdog
	Logger         *logging.Logger
	AnalysisPrefix int
}

// NewDispatcher 创建派发器
func NewDispatcher(cfg Config) *Dispatcher {
	prefix := cfg.AnalysisPrefix
	if prefix <= 0 {
		prefix = 50
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		analyzer:       cfg.Analyzer,
		opener:         cfg.Opener,
		history:        cfg.History,
		watchdog:       cfg.Watchdog,
		logger:         cfg.Logger,
		analysisPrefix: prefix,
		state:          StateInitial,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// SetWatchdog 注入静音检测器。检测器构造时需要派发器的回调，
// 因此接线分两步完成。
func (d *Dispatcher) SetWatchdog(w Watchdog) {
	d.watchdog = w
}

// CanDispatch 静音检测的触发门禁：处理中或已派发未被新语音打断时不触发
func (d *Dispatcher) CanDispatch() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.processing && d.state != StateProcessing
}

// NoteInterim 记录一段临时识别文本
func (d *Dispatcher) NoteInterim(text string) {
	if text == "" {
		return
	}
	if !d.noteActivity() {
		return
	}
	d.watchdog.NoteInterim(text)
}

// NoteFinal 记录一段最终识别文本
func (d *Dispatcher) NoteFinal(text string) {
	if text == "" {
		return
	}
	if !d.noteActivity() {
		return
	}
	d.watchdog.NoteFinal(text)
}

// noteActivity 处理语音活动引起的状态迁移。
// 处理中忽略语音；回答落定后的新语音把状态切回识别中，
// 并清掉上一轮残留的问题展示。返回是否接纳本次语音。
func (d *Dispatcher) noteActivity() bool {
	d.mu.Lock()
	if d.processing {
		d.mu.Unlock()
		return false
	}

	cleared := false
	if d.state == StateProcessing {
		// 新语音打断处理态：旧问题展示清空，未派发的残留缓冲一并丢弃
		d.question = ""
		cleared = true
	}
	prev := d.state
	d.state = StateRecognizing
	d.mu.Unlock()

	if cleared {
		d.watchdog.Clear()
	}
	if prev != StateRecognizing {
		d.logger.InfoTag("会话", "状态切换: %s -> %s", prev, StateRecognizing)
		eventbus.PublishAsync(eventbus.EventSessionState, eventbus.SessionStateEventData{State: StateRecognizing.String()})
	}
	return true
}

// Dispatch 派发一个候选问题。空问题忽略，处理中或重复问题跳过。
func (d *Dispatcher) Dispatch(question string) {
	if question == "" {
		d.logger.InfoTag("会话", "问题为空, 不处理")
		return
	}

	d.mu.Lock()
	if d.processing {
		d.mu.Unlock()
		d.logger.InfoTag("会话", "已在处理中, 跳过请求")
		d.watchdog.Restart()
		return
	}
	if d.lastQuestion == question {
		d.mu.Unlock()
		d.logger.InfoTag("会话", "相同问题已处理, 跳过")
		// 检测器触发后已自行停表，丢弃重复内容并继续监听
		d.watchdog.Clear()
		d.watchdog.Restart()
		return
	}

	if !d.history.HasActiveSession() {
		d.answer = ErrSessionMissing.Error()
		d.mu.Unlock()
		d.logger.WarnTag("会话", "派发失败: %v", ErrSessionMissing)
		d.watchdog.Clear()
		d.watchdog.Restart()
		return
	}

	d.processing = true
	d.lastQuestion = question
	d.state = StateProcessing
	d.question = question
	d.analysis = ""
	d.answer = ""
	d.round++
	round := d.round
	sessionID := d.history.SessionID()
	ctx := d.ctx
	d.mu.Unlock()

	// 派发瞬间清空活语音缓冲，为下一个问题让路
	d.watchdog.Clear()

	d.logger.InfoTag("会话", "第 %d 轮派发, 问题: %s", round, question)
	eventbus.PublishAsync(eventbus.EventSessionState, eventbus.SessionStateEventData{
		State:    StateProcessing.String(),
		Question: question,
	})
	eventbus.PublishAsync(eventbus.EventSessionDispatch, eventbus.SessionStateEventData{Question: question})

	go d.runAnalysis(ctx, sessionID, question)
	d.runAnswer(ctx, sessionID, question, round)
}

// runAnalysis 分析腿。失败只记日志，面板保留生成中占位。
func (d *Dispatcher) runAnalysis(ctx context.Context, sessionID, question string) {
	reply, err := d.analyzer.SendMessage(ctx, sessionID, question)
	if err != nil {
		d.logger.WarnTag("会话", "分析请求失败: %v", err)
		d.mu.Lock()
		d.analysis = "生成中"
		d.mu.Unlock()
		return
	}

	summary := truncateRunes(reply, d.analysisPrefix)
	d.mu.Lock()
	d.analysis = summary
	d.mu.Unlock()

	eventbus.PublishAsync(eventbus.EventSessionAnalysis, eventbus.SessionStateEventData{Question: question})
}

// runAnswer 流式回答腿。出错时已到达的部分回答照常提交。
func (d *Dispatcher) runAnswer(ctx context.Context, sessionID, question string, round int) {
	var commitOnce sync.Once

	settle := func(streamErr error) {
		commitOnce.Do(func() {
			d.mu.Lock()
			partial := d.answer
			d.processing = false
			d.cancelStream = nil
			d.mu.Unlock()

			// 先用户后助手，一轮恰好提交一次。
			// 一个字都没到就出错时不提交空回答。
			d.history.AddUserMessage(question)
			if partial != "" || streamErr == nil {
				d.history.AddAssistantMessage(partial)
			}

			if streamErr != nil {
				d.logger.WarnTag("会话", "第 %d 轮回答中断: %v, 已提交部分回答", round, streamErr)
			} else {
				d.logger.InfoTag("会话", "第 %d 轮回答完成, 等待下次语音活动", round)
			}

			// 回答落定后重启静音检测，状态保持处理中直到新语音到来
			d.watchdog.Restart()
		})
	}

	cancel := d.opener.Open(ctx, sessionID, question,
		func(chunk string) {
			d.mu.Lock()
			d.answer += chunk
			d.mu.Unlock()
		},
		func() { settle(nil) },
		func(err error) { settle(err) },
	)

	d.mu.Lock()
	// 流可能在此之前已落定，落定后不再保留取消句柄
	if d.processing && d.round == round {
		d.cancelStream = cancel
	}
	d.mu.Unlock()
}

// Snapshot 面板快照
func (d *Dispatcher) Snapshot() Display {
	d.mu.Lock()
	display := Display{
		State:    d.state.String(),
		Question: d.question,
		Analysis: d.analysis,
		Answer:   d.answer,
	}
	d.mu.Unlock()

	display.Interim = d.watchdog.Buffer()
	display.History = d.history.Messages()

	// 处理中显示已派发的问题，否则显示实时聚合文本
	if display.State != StateProcessing.String() {
		display.Question = display.Interim
	}
	return display
}

// Close 终止派发器：取消在途回答流，停掉静音检测。
func (d *Dispatcher) Close() {
	d.mu.Lock()
	cancelStream := d.cancelStream
	d.cancelStream = nil
	d.mu.Unlock()

	if cancelStream != nil {
		cancelStream()
	}
	d.cancel()
	d.watchdog.Stop()
}
