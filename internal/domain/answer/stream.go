package answer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/bytedance/sonic"

	"github.com/yisheng0/ai-interview/internal/domain/eventbus"
	platerrors "github.com/yisheng0/ai-interview/internal/platform/errors"
	"github.com/yisheng0/ai-interview/internal/platform/logging"
)

// chunkEvent 流式回答的数据行
type chunkEvent struct {
	Content  string `json:"content"`
	Finished bool   `json:"finished"`
}

// errorBody 非 200 响应的错误载荷
type errorBody struct {
	Message string `json:"message"`
}

// Streamer 流式回答消费者。向 AI 后端发起流式请求，
// 逐行消费响应并通过回调吐出文本块。
type Streamer struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *logging.Logger
}

// NewStreamer 创建流式回答消费者
func NewStreamer(baseURL, token string, logger *logging.Logger) *Streamer {
	return &Streamer{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			// 流式响应没有总时长上限，靠取消函数收尾
			Timeout: 0,
		},
		logger: logger,
	}
}

// Open 发起流式回答请求，返回取消函数。
// 终态回调（onComplete 或 onError）恰好触发一次；
// 调用取消函数后不再触发任何回调。
func (s *Streamer) Open(ctx context.Context, sessionID, question string,
	onChunk func(string), onComplete func(), onError func(error)) func() {

	var cancelled atomic.Bool
	streamCtx, cancelCtx := context.WithCancel(ctx)

	go s.consume(streamCtx, &cancelled, sessionID, question, onChunk, onComplete, onError)

	return func() {
		cancelled.Store(true)
		cancelCtx()
	}
}

func (s *Streamer) consume(ctx context.Context, cancelled *atomic.Bool, sessionID, question string,
	onChunk func(string), onComplete func(), onError func(error)) {

	terminal := false
	complete := func() {
		if terminal || cancelled.Load() {
			return
		}
		terminal = true
		eventbus.PublishAsync(eventbus.EventAnswerCompleted, eventbus.AnswerEventData{Question: question, Done: true})
		onComplete()
	}
	fail := func(err error) {
		if terminal || cancelled.Load() {
			return
		}
		terminal = true
		eventbus.PublishAsync(eventbus.EventAnswerError, eventbus.SystemEventData{Level: "error", Message: err.Error()})
		onError(err)
	}
	emit := func(text string) {
		if terminal || cancelled.Load() {
			return
		}
		eventbus.PublishAsync(eventbus.EventAnswerChunk, eventbus.AnswerEventData{Question: question, Content: text})
		onChunk(text)
	}

	url := fmt.Sprintf("%s/sessions/%s/messages/stream", s.baseURL, sessionID)
	payload, err := sonic.Marshal(map[string]interface{}{
		"message":   question,
		"streaming": true,
	})
	if err != nil {
		fail(platerrors.Wrap(platerrors.KindStream, "answer.Open", "编码请求体失败", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		fail(platerrors.Wrap(platerrors.KindStream, "answer.Open", "构建流式请求失败", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	s.logger.InfoTag("流式", "发起流式回答请求: %s", sessionID)

	resp, err := s.client.Do(req)
	if err != nil {
		fail(platerrors.Wrap(platerrors.KindStream, "answer.Open", "流式请求失败", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fail(s.decodeErrorBody(resp))
		return
	}

	reader := bufio.NewReader(resp.Body)
	for {
		if cancelled.Load() {
			return
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// 残留的半行不再处理，直接按完成收尾
				complete()
				return
			}
			if cancelled.Load() || ctx.Err() != nil {
				return
			}
			fail(platerrors.Wrap(platerrors.KindStream, "answer.consume", "读取响应流失败", err))
			return
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, ":") {
			continue
		}

		if strings.HasPrefix(trimmed, "data:") {
			jsonStr := strings.TrimSpace(trimmed[len("data:"):])
			var event chunkEvent
			if err := sonic.UnmarshalString(jsonStr, &event); err != nil {
				s.logger.WarnTag("流式", "解析数据行失败: %s", trimmed)
				continue
			}
			if event.Content != "" {
				emit(event.Content)
			}
			if event.Finished {
				// 标记完成后提前收尾，不再读后续行
				complete()
				return
			}
			continue
		}

		// 裸行先按JSON解析，失败则整行作为文本块
		var event chunkEvent
		if err := sonic.UnmarshalString(trimmed, &event); err != nil {
			emit(trimmed)
			continue
		}
		if event.Content != "" {
			emit(event.Content)
		}
		if event.Finished {
			complete()
			return
		}
	}
}

// decodeErrorBody 错误响应体按 JSON、纯文本、状态行逐级回退
func (s *Streamer) decodeErrorBody(resp *http.Response) error {
	op := "answer.consume"
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil {
		var parsed errorBody
		if jsonErr := sonic.Unmarshal(body, &parsed); jsonErr == nil && parsed.Message != "" {
			return platerrors.New(platerrors.KindStream, op, parsed.Message)
		}
		if text := strings.TrimSpace(string(body)); text != "" {
			return platerrors.New(platerrors.KindStream, op, text)
		}
	}
	return platerrors.New(platerrors.KindStream, op,
		fmt.Sprintf("服务器响应错误: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
}
