package asr

// Status 识别通道状态
type Status int32

const (
	// StatusUninitiated 未初始化
	StatusUninitiated Status = iota
	// StatusReady 连接已建立，等待服务端确认
	StatusReady
	// StatusRecognizing 识别中
	StatusRecognizing
	// StatusStopped 已停止
	StatusStopped
	// StatusError 出错
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUninitiated:
		return "uninitiated"
	case StatusReady:
		return "ready"
	case StatusRecognizing:
		return "recognizing"
	case StatusStopped:
		return "stopped"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
