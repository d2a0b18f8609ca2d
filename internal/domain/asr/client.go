package asr

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/yisheng0/ai-interview/internal/domain/eventbus"
	platerrors "github.com/yisheng0/ai-interview/internal/platform/errors"
	"github.com/yisheng0/ai-interview/internal/platform/logging"
)

// ErrAudioPermission 音频采集源拒绝授权
var ErrAudioPermission = errors.New("无法获取系统音频, 请检查采集授权")

// FrameSource 提供 16kHz 单声道 16bit PCM 音频帧。
// ReadFrame 返回 io.EOF 表示采集端已结束，通道会自动停止。
type FrameSource interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// Callbacks 识别过程中的回调，均在客户端内部协程中触发
type Callbacks struct {
	OnStatus     func(status Status)
	OnTranscript func(final, interim string)
	OnError      func(err error)
}

// Config 转写通道参数
type Config struct {
	URL              string
	AppID            string
	APIKey           string
	Lang             string
	HandshakeTimeout time.Duration
	FrameInterval    time.Duration
}

// Client 讯飞实时语音转写客户端。
// 最终文本只增不减，临时文本整体替换，与服务端 type 字段语义一致。
type Client struct {
	config    Config
	logger    *logging.Logger
	callbacks Callbacks

	mu      sync.Mutex
	conn    *websocket.Conn
	status  Status
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	textMu     sync.Mutex
	transcript strings.Builder
	interim    string

	errMu   sync.Mutex
	lastErr error
}

// wsMessage 服务端下行帧
type wsMessage struct {
	Action string `json:"action"`
	Code   string `json:"code,omitempty"`
	Data   string `json:"data,omitempty"`
	Desc   string `json:"desc,omitempty"`
	Sid    string `json:"sid,omitempty"`
}

// resultPayload 转写结果载荷，按 cn.st.rt[].ws[].cw[].w 逐词拼接
type resultPayload struct {
	Cn struct {
		St struct {
			Type string `json:"type"`
			Rt   []struct {
				Ws []struct {
					Cw []struct {
						W string `json:"w"`
					} `json:"cw"`
				} `json:"ws"`
			} `json:"rt"`
		} `json:"st"`
	} `json:"cn"`
}

// NewClient 创建转写客户端
func NewClient(config Config, callbacks Callbacks, logger *logging.Logger) *Client {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 5 * time.Second
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = 64 * time.Millisecond
	}
	return &Client{
		config:    config,
		logger:    logger,
		callbacks: callbacks,
		status:    StatusUninitiated,
	}
}

// Status 当前通道状态
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Transcript 已确认的最终文本
func (c *Client) Transcript() string {
	c.textMu.Lock()
	defer c.textMu.Unlock()
	return c.transcript.String()
}

// InterimTranscript 当前临时文本
func (c *Client) InterimTranscript() string {
	c.textMu.Lock()
	defer c.textMu.Unlock()
	return c.interim
}

// Err 最近一次识别错误
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// ResetTranscript 清空最终文本与临时文本
func (c *Client) ResetTranscript() {
	c.textMu.Lock()
	c.transcript.Reset()
	c.interim = ""
	c.textMu.Unlock()
}

func (c *Client) setStatus(status Status) {
	c.mu.Lock()
	if c.status == status {
		c.mu.Unlock()
		return
	}
	c.status = status
	c.mu.Unlock()

	eventbus.PublishAsync(eventbus.EventASRStatus, eventbus.ASRStatusEventData{Status: status.String()})
	if c.callbacks.OnStatus != nil {
		c.callbacks.OnStatus(status)
	}
}

// Start 建立转写连接并开始推送音频帧。
// 连接建立即就绪，收到服务端 started 确认后进入识别中。
func (c *Client) Start(ctx context.Context, source FrameSource) error {
	if source == nil {
		c.setStatus(StatusError)
		return ErrAudioPermission
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return platerrors.New(platerrors.KindASR, "asr.Start", "转写通道已在运行")
	}
	c.stopped = false
	c.mu.Unlock()

	url, err := authURL(c.config.URL, c.config.AppID, c.config.APIKey, c.config.Lang, time.Now())
	if err != nil {
		c.setStatus(StatusError)
		return platerrors.Wrap(platerrors.KindASR, "asr.Start", "生成鉴权URL失败", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.setStatus(StatusError)
		return platerrors.Wrap(platerrors.KindASR, "asr.Start", "转写服务连接失败", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.InfoTag("ASR", "转写通道已建立: %s", c.config.URL)
	c.setStatus(StatusReady)

	c.wg.Add(2)
	go c.readLoop(conn)
	go c.pumpLoop(runCtx, conn, source)

	return nil
}

// readLoop 处理服务端下行帧直到连接关闭
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stopped := c.stopped
			c.mu.Unlock()
			if !stopped {
				// 连接意外断开按停止处理，只有服务端错误帧才算出错
				c.logger.WarnTag("ASR", "转写连接中断: %v", err)
				c.teardown(false)
				c.setStatus(StatusStopped)
			}
			return
		}

		var msg wsMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			c.logger.ErrorTag("ASR", "解析下行帧失败: %v", err)
			continue
		}

		switch msg.Action {
		case "started":
			c.logger.InfoTag("ASR", "服务端确认, 开始识别")
			c.setStatus(StatusRecognizing)
		case "result":
			c.handleResult(msg.Data)
		case "error":
			desc := msg.Desc
			if desc == "" {
				desc = "未知错误"
			}
			c.logger.ErrorTag("ASR", "服务端返回错误 code=%s: %s", msg.Code, desc)
			c.fail(platerrors.New(platerrors.KindASR, "asr.readLoop", desc))
		}
	}
}

// handleResult 解析结果载荷。type=0 为最终结果追加，type=1 为临时结果替换。
func (c *Client) handleResult(data string) {
	if data == "" {
		return
	}

	var payload resultPayload
	if err := sonic.UnmarshalString(data, &payload); err != nil {
		c.logger.ErrorTag("ASR", "解析结果载荷失败: %v", err)
		return
	}

	var words strings.Builder
	for _, rt := range payload.Cn.St.Rt {
		for _, ws := range rt.Ws {
			for _, cw := range ws.Cw {
				if strings.TrimSpace(cw.W) != "" {
					words.WriteString(cw.W)
				}
			}
		}
	}
	text := words.String()

	c.textMu.Lock()
	switch payload.Cn.St.Type {
	case "0":
		c.transcript.WriteString(text)
		c.interim = ""
	case "1":
		c.interim = text
	default:
		c.textMu.Unlock()
		return
	}
	final, interim := c.transcript.String(), c.interim
	c.textMu.Unlock()

	if payload.Cn.St.Type == "0" {
		c.logger.InfoTag("ASR", "最终结果: %s", text)
	}

	eventbus.PublishAsync(eventbus.EventASRTranscript, eventbus.TranscriptEventData{
		Text:    text,
		IsFinal: payload.Cn.St.Type == "0",
	})
	if c.callbacks.OnTranscript != nil {
		c.callbacks.OnTranscript(final, interim)
	}
}

// pumpLoop 按帧间隔推送PCM数据，采集源EOF后自动停止
func (c *Client) pumpLoop(ctx context.Context, conn *websocket.Conn, source FrameSource) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := source.ReadFrame()
			if err != nil {
				if errors.Is(err, io.EOF) {
					c.logger.InfoTag("ASR", "音频采集结束, 停止转写")
					go c.Stop()
					return
				}
				c.logger.ErrorTag("ASR", "读取音频帧失败: %v", err)
				c.fail(platerrors.Wrap(platerrors.KindASR, "asr.pumpLoop", "读取音频帧失败", err))
				return
			}
			if len(frame) == 0 {
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.mu.Lock()
				stopped := c.stopped
				c.mu.Unlock()
				if !stopped {
					c.fail(platerrors.Wrap(platerrors.KindASR, "asr.pumpLoop", "推送音频帧失败", err))
				}
				return
			}
		}
	}
}

func (c *Client) fail(err error) {
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()

	c.setStatus(StatusError)
	eventbus.PublishAsync(eventbus.EventASRError, eventbus.SystemEventData{Level: "error", Message: err.Error()})
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(err)
	}
	c.teardown(false)
}

// Stop 停止转写。幂等，多次调用只有第一次生效。
// 先发送结束指令让服务端吐出尾包，延迟一秒再关闭连接。
func (c *Client) Stop() {
	c.teardown(true)
}

func (c *Client) teardown(graceful bool) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if conn != nil {
		if graceful {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"end":true}`)); err != nil {
				c.logger.WarnTag("ASR", "发送结束指令失败: %v", err)
			}
			time.AfterFunc(time.Second, func() {
				conn.Close()
			})
		} else {
			conn.Close()
		}
	}

	if graceful {
		c.logger.InfoTag("ASR", "转写通道已停止")
		c.setStatus(StatusStopped)
	}
}
