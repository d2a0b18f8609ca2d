package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yisheng0/ai-interview/internal/domain/chat"
	platerrors "github.com/yisheng0/ai-interview/internal/platform/errors"
	"github.com/yisheng0/ai-interview/internal/platform/logging"
)

// serverResponse AI后端统一响应包装
type serverResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// AIClient AI 后端 REST 客户端。分析、会话管理等非流式接口走这里，
// 流式回答走 answer 包。
type AIClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *logging.Logger
}

// NewAIClient 创建 AI 后端客户端
func NewAIClient(baseURL, token string, timeout time.Duration, logger *logging.Logger) *AIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// CreateSession 创建面试会话，返回 sessionId
func (c *AIClient) CreateSession(ctx context.Context, interviewID, roundID string) (string, error) {
	var result struct {
		SessionID string `json:"sessionId"`
	}
	err := c.post(ctx, "/sessions", map[string]interface{}{
		"interviewId": interviewID,
		"roundId":     roundID,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.SessionID == "" {
		return "", platerrors.New(platerrors.KindSession, "ai.CreateSession", "后端未返回会话ID")
	}
	c.logger.InfoTag("会话", "会话已创建: %s", result.SessionID)
	return result.SessionID, nil
}

// SendMessage 非流式发送消息，用于问题分析
func (c *AIClient) SendMessage(ctx context.Context, sessionID, message string) (string, error) {
	var result struct {
		Reply string `json:"reply"`
	}
	path := fmt.Sprintf("/sessions/%s/messages", url.PathEscape(sessionID))
	err := c.post(ctx, path, map[string]interface{}{
		"sessionId": sessionID,
		"message":   message,
		"streaming": false,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.Reply, nil
}

// GetConversationHistory 拉取会话历史，用于恢复
func (c *AIClient) GetConversationHistory(ctx context.Context, sessionID string) ([]chat.Message, error) {
	var result []chat.Message
	path := fmt.Sprintf("/conversations/%s", url.PathEscape(sessionID))
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveConversation 回传完整对话历史
func (c *AIClient) SaveConversation(ctx context.Context, sessionID string, history []chat.Message) error {
	return c.post(ctx, "/conversations/save", map[string]interface{}{
		"sessionId": sessionID,
		"history":   history,
	}, nil)
}

func (c *AIClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return platerrors.Wrap(platerrors.KindTransport, "ai.post", "编码请求体失败", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return platerrors.Wrap(platerrors.KindTransport, "ai.post", "构建请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *AIClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return platerrors.Wrap(platerrors.KindTransport, "ai.get", "构建请求失败", err)
	}
	return c.do(req, out)
}

func (c *AIClient) do(req *http.Request, out interface{}) error {
	op := "ai." + req.Method
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return platerrors.Wrap(platerrors.KindTransport, op, "请求AI后端失败", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return platerrors.Wrap(platerrors.KindTransport, op, "读取响应失败", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope serverResponse
		if jsonErr := sonic.Unmarshal(body, &envelope); jsonErr == nil && envelope.Message != "" {
			return platerrors.New(platerrors.KindTransport, op, envelope.Message)
		}
		return platerrors.New(platerrors.KindTransport, op,
			fmt.Sprintf("服务器响应错误: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	var envelope serverResponse
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		return platerrors.Wrap(platerrors.KindTransport, op, "解析响应失败", err)
	}
	if envelope.Code != 0 && envelope.Code != 200 {
		msg := envelope.Message
		if msg == "" {
			msg = fmt.Sprintf("后端返回错误码 %d", envelope.Code)
		}
		return platerrors.New(platerrors.KindTransport, op, msg)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := sonic.Unmarshal(envelope.Data, out); err != nil {
			return platerrors.Wrap(platerrors.KindTransport, op, "解析响应数据失败", err)
		}
	}
	return nil
}
