package services

import (
	"context"
	"time"

	"github.com/yisheng0/ai-interview/internal/domain/asr"
	"github.com/yisheng0/ai-interview/internal/domain/auth"
	"github.com/yisheng0/ai-interview/internal/domain/chat"
	"github.com/yisheng0/ai-interview/internal/domain/chat/store"
	"github.com/yisheng0/ai-interview/internal/domain/session"
	"github.com/yisheng0/ai-interview/internal/domain/turn"
	"github.com/yisheng0/ai-interview/internal/platform/config"
	platerrors "github.com/yisheng0/ai-interview/internal/platform/errors"
	"github.com/yisheng0/ai-interview/internal/platform/logging"
)

// SessionService 把转写、断句、派发和历史串成一条完整的会话链路
type SessionService struct {
	cfg    *config.Config
	logger *logging.Logger

	client     *AIClient
	history    *chat.History
	store      store.Store
	detector   *turn.Detector
	dispatcher *session.Dispatcher
	adapter    *asr.Client
}

// SessionDeps 会话服务依赖
type SessionDeps struct {
	Config   *config.Config
	Logger   *logging.Logger
	AIClient *AIClient
	Opener   session.AnswerOpener
	Store    store.Store
}

// NewSessionService 创建会话服务并完成内部接线
func NewSessionService(deps SessionDeps) *SessionService {
	history := chat.NewHistory()

	s := &SessionService{
		cfg:     deps.Config,
		logger:  deps.Logger,
		client:  deps.AIClient,
		history: history,
		store:   deps.Store,
	}

	dispatcher := session.NewDispatcher(session.Config{
		Analyzer:       deps.AIClient,
		Opener:         deps.Opener,
		History:        history,
		Logger:         deps.Logger,
		AnalysisPrefix: deps.Config.Session.AnalysisPrefix,
	})

	detector := turn.NewDetector(
		deps.Config.Session.SilenceThreshold,
		deps.Config.Session.PollInterval,
		dispatcher.CanDispatch,
		dispatcher.Dispatch,
		deps.Logger,
	)
	dispatcher.SetWatchdog(detector)

	adapter := asr.NewClient(asr.Config{
		URL:              deps.Config.ASR.URL,
		AppID:            deps.Config.ASR.AppID,
		APIKey:           deps.Config.ASR.APIKey,
		Lang:             deps.Config.ASR.Lang,
		HandshakeTimeout: deps.Config.ASR.HandshakeTimeout,
		FrameInterval:    time.Duration(deps.Config.ASR.FrameInterval) * time.Millisecond,
	}, asr.Callbacks{
		OnTranscript: s.onTranscript,
		OnError: func(err error) {
			deps.Logger.ErrorTag("会话", "语音识别错误: %v", err)
		},
	}, deps.Logger)

	s.dispatcher = dispatcher
	s.detector = detector
	s.adapter = adapter
	return s
}

// onTranscript 把识别结果喂给派发器。
// 最终文本落定后重置识别缓冲，避免重复消费。
func (s *SessionService) onTranscript(final, interim string) {
	if final != "" {
		s.dispatcher.NoteFinal(final)
		s.adapter.ResetTranscript()
		return
	}
	if interim != "" {
		s.dispatcher.NoteInterim(interim)
	}
}

// Start 建立或恢复面试会话，然后拉起识别链路
func (s *SessionService) Start(ctx context.Context, source asr.FrameSource) error {
	s.inspectToken()

	if err := s.ensureSession(ctx); err != nil {
		return err
	}

	if err := s.adapter.Start(ctx, source); err != nil {
		return platerrors.Wrap(platerrors.KindSession, "session.Start", "启动语音识别失败", err)
	}
	s.detector.Start()

	s.logger.InfoTag("会话", "面试会话已就绪: %s", s.history.SessionID())
	return nil
}

// ensureSession 会话指针优先级：配置指定 > 存储恢复 > 新建
func (s *SessionService) ensureSession(ctx context.Context) error {
	sessionID := s.cfg.Session.ResumeSessionID
	if sessionID == "" {
		stored, err := s.store.Load(ctx)
		if err != nil {
			s.logger.WarnTag("存储", "读取会话指针失败: %v", err)
		} else {
			sessionID = stored
		}
	}

	if sessionID != "" {
		return s.resume(ctx, sessionID)
	}

	created, err := s.client.CreateSession(ctx, s.cfg.Session.InterviewID, s.cfg.Session.RoundID)
	if err != nil {
		return platerrors.Wrap(platerrors.KindSession, "session.Start", "创建会话失败", err)
	}
	s.history.SetSessionID(created)
	if err := s.store.Save(ctx, created); err != nil {
		s.logger.WarnTag("存储", "保存会话指针失败: %v", err)
	}
	return nil
}

// resume 恢复既有会话并拉取历史
func (s *SessionService) resume(ctx context.Context, sessionID string) error {
	s.history.SetSessionID(sessionID)
	if err := s.store.Save(ctx, sessionID); err != nil {
		s.logger.WarnTag("存储", "保存会话指针失败: %v", err)
	}

	messages, err := s.client.GetConversationHistory(ctx, sessionID)
	if err != nil {
		// 历史拉不到不挡会话，继续空历史开场
		s.logger.WarnTag("会话", "拉取历史失败, 以空历史继续: %v", err)
		return nil
	}
	s.history.LoadMessages(messages)
	s.logger.InfoTag("会话", "会话已恢复: %s, 历史 %d 条", sessionID, len(messages))
	return nil
}

// inspectToken 启动时检查访问令牌，仅提示不拦截
func (s *SessionService) inspectToken() {
	info, err := auth.Inspect(s.cfg.AI.Token)
	if err != nil {
		s.logger.WarnTag("认证", "未配置访问令牌, AI 请求可能被拒绝")
		return
	}
	now := time.Now()
	if info.Expired(now) {
		s.logger.WarnTag("认证", "访问令牌已过期")
	} else if info.ExpiresSoon(now, time.Hour) {
		s.logger.WarnTag("认证", "访问令牌即将过期: %v", info.ExpiresAt)
	}
}

// Display 面板快照
func (s *SessionService) Display() session.Display {
	return s.dispatcher.Snapshot()
}

// History 对话历史快照
func (s *SessionService) History() []chat.Message {
	return s.history.Messages()
}

// Exit 结束会话：取消在途回答流，停掉检测与识别，回传历史。
// 历史回传失败只记日志。
func (s *SessionService) Exit(ctx context.Context) error {
	s.dispatcher.Close()
	s.adapter.Stop()

	sessionID := s.history.SessionID()
	if sessionID == "" {
		return nil
	}
	if err := s.client.SaveConversation(ctx, sessionID, s.history.Messages()); err != nil {
		s.logger.WarnTag("会话", "回传对话历史失败: %v", err)
	}
	s.logger.InfoTag("会话", "面试会话已结束: %s", sessionID)
	return nil
}
