package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message 一条对话消息
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix 毫秒
}

// History 会话内的对话历史。消息只追加不修改，
// 重启后只有 sessionId 能恢复，消息本身不落地。
type History struct {
	mu        sync.RWMutex
	sessionID string
	messages  []Message
	nowFunc   func() time.Time
}

// NewHistory 创建空的对话历史
func NewHistory() *History {
	return &History{nowFunc: time.Now}
}

// SetSessionID 绑定会话。切换到不同会话时清空已有消息。
func (h *History) SetSessionID(sessionID string) {
	h.mu.Lock()
	if h.sessionID != sessionID {
		h.messages = nil
	}
	h.sessionID = sessionID
	h.mu.Unlock()
}

// ClearSessionID 解绑会话并清空消息
func (h *History) ClearSessionID() {
	h.mu.Lock()
	h.sessionID = ""
	h.messages = nil
	h.mu.Unlock()
}

// SessionID 当前绑定的会话ID
func (h *History) SessionID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessionID
}

// HasActiveSession 是否已绑定会话
func (h *History) HasActiveSession() bool {
	return h.SessionID() != ""
}

// AddUserMessage 追加一条用户消息
func (h *History) AddUserMessage(content string) Message {
	return h.append(RoleUser, content)
}

// AddAssistantMessage 追加一条助手消息
func (h *History) AddAssistantMessage(content string) Message {
	return h.append(RoleAssistant, content)
}

// AddSystemMessage 追加一条系统消息
func (h *History) AddSystemMessage(content string) Message {
	return h.append(RoleSystem, content)
}

func (h *History) append(role, content string) Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.nowFunc().UnixMilli()
	msg := Message{
		ID:        fmt.Sprintf("%s-%s", role, uuid.New().String()),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	h.messages = append(h.messages, msg)
	return msg
}

// LoadMessages 整体载入历史消息，用于会话恢复
func (h *History) LoadMessages(messages []Message) {
	h.mu.Lock()
	h.messages = append([]Message{}, messages...)
	h.mu.Unlock()
}

// ClearMessages 清空消息，保留会话绑定
func (h *History) ClearMessages() {
	h.mu.Lock()
	h.messages = nil
	h.mu.Unlock()
}

// Messages 返回消息快照
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Message{}, h.messages...)
}

// Len 消息条数
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}
