package session

// UIState 会话界面状态
type UIState int

const (
	// StateInitial 初始状态，尚未识别到任何问题
	StateInitial UIState = iota
	// StateRecognizing 识别中，正在聚合面试官的问题
	StateRecognizing
	// StateProcessing 处理中，已派发问题等待回答
	StateProcessing
)

func (s UIState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateRecognizing:
		return "recognizing"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}
