package eventbus

import (
	"log"

	"github.com/yisheng0/ai-interview/internal/platform/logging"
)

// EventHandler 事件处理器接口
type EventHandler interface {
	Handle(eventType string, data interface{})
}

// DefaultEventHandler 默认事件处理器，把总线事件落到结构化日志
type DefaultEventHandler struct {
	logger *logging.Logger
}

// NewDefaultEventHandler 创建默认事件处理器
func NewDefaultEventHandler(logger *logging.Logger) *DefaultEventHandler {
	return &DefaultEventHandler{logger: logger}
}

// Handle 处理事件
func (h *DefaultEventHandler) Handle(eventType string, data interface{}) {
	switch eventType {
	case EventASRStatus:
		h.handleASRStatus(data.(ASRStatusEventData))
	case EventASRTranscript:
		h.handleTranscript(data.(TranscriptEventData))
	case EventSessionState, EventSessionDispatch, EventSessionAnalysis:
		h.handleSessionState(eventType, data.(SessionStateEventData))
	case EventAnswerCompleted:
		h.handleAnswerCompleted(data.(AnswerEventData))
	case EventASRError, EventAnswerError, EventSystemError:
		h.handleError(data.(SystemEventData))
	default:
		log.Printf("未处理的事件类型: %s", eventType)
	}
}

// handleASRStatus 处理转写状态变化
func (h *DefaultEventHandler) handleASRStatus(data ASRStatusEventData) {
	h.logger.DebugTag("ASR", "通道状态变化: %s", data.Status)
}

// handleTranscript 处理转写文本事件
func (h *DefaultEventHandler) handleTranscript(data TranscriptEventData) {
	h.logger.DebugTag("ASR", "转写文本: %s, 最终=%v", data.Text, data.IsFinal)
}

// handleSessionState 处理会话状态/派发/分析事件
func (h *DefaultEventHandler) handleSessionState(eventType string, data SessionStateEventData) {
	switch eventType {
	case EventSessionDispatch:
		h.logger.InfoTag("会话", "事件: 派发问题 %s", data.Question)
	case EventSessionAnalysis:
		h.logger.InfoTag("会话", "事件: 分析就绪, 问题 %s", data.Question)
	default:
		h.logger.DebugTag("会话", "事件: 状态 %s", data.State)
	}
}

// handleAnswerCompleted 处理回答完成事件
func (h *DefaultEventHandler) handleAnswerCompleted(data AnswerEventData) {
	h.logger.InfoTag("流式", "事件: 回答完成, 问题 %s", data.Question)
}

// handleError 处理错误类事件
func (h *DefaultEventHandler) handleError(data SystemEventData) {
	h.logger.ErrorTag("会话", "事件: 系统错误 级别=%s, 消息=%s", data.Level, data.Message)
}

// SetupEventHandlers 设置事件处理器。
// 所有发布方走异步总线，订阅也挂在异步总线上。
func SetupEventHandlers(logger *logging.Logger) {
	handler := NewDefaultEventHandler(logger)

	topics := []string{
		EventASRStatus,
		EventASRTranscript,
		EventASRError,
		EventSessionState,
		EventSessionDispatch,
		EventSessionAnalysis,
		EventAnswerCompleted,
		EventAnswerError,
		EventSystemError,
	}
	for _, topic := range topics {
		topic := topic
		_ = SubscribeAsync(topic, func(args ...interface{}) {
			if len(args) > 0 {
				handler.Handle(topic, args[0])
			}
		})
	}
}
