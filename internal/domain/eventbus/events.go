package eventbus

// 事件类型定义
const (
	// 转写相关事件
	EventASRStatus     = "asr:status"
	EventASRTranscript = "asr:transcript"
	EventASRError      = "asr:error"

	// 会话相关事件
	EventSessionState    = "session:state"
	EventSessionDispatch = "session:dispatch"
	EventSessionAnalysis = "session:analysis"

	// 回答流相关事件
	EventAnswerChunk     = "answer:chunk"
	EventAnswerCompleted = "answer:completed"
	EventAnswerError     = "answer:error"

	// 系统事件
	EventSystemError = "system:error"
	EventSystemInfo  = "system:info"
)

// 事件数据结构
type ASRStatusEventData struct {
	Status string `json:"status"`
}

type TranscriptEventData struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type SessionStateEventData struct {
	State    string `json:"state"`
	Question string `json:"question,omitempty"`
}

type AnswerEventData struct {
	Question string `json:"question"`
	Content  string `json:"content"`
	Done     bool   `json:"done"`
}

type SystemEventData struct {
	Level   string      `json:"level"` // error, warn, info
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
