package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yisheng0/ai-interview/internal/domain/chat"
	"github.com/yisheng0/ai-interview/internal/domain/session"
	"github.com/yisheng0/ai-interview/internal/platform/logging"
)

// SessionFacade 面板所需的会话操作，由 app 层的会话服务实现
type SessionFacade interface {
	Display() session.Display
	History() []chat.Message
	Exit(ctx context.Context) error
}

// PanelService 本地面板接口服务
type PanelService struct {
	facade SessionFacade
	logger *logging.Logger
}

// NewPanelService 构造函数
func NewPanelService(facade SessionFacade, logger *logging.Logger) *PanelService {
	return &PanelService{
		facade: facade,
		logger: logger,
	}
}

// Start 注册所有面板相关路由
func (s *PanelService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	engine.GET("/health", s.handleHealth)

	apiGroup.GET("/session", s.handleSessionGet)
	apiGroup.GET("/session/history", s.handleHistoryGet)
	apiGroup.POST("/session/exit", s.handleSessionExit)
	apiGroup.GET("/system", s.handleSystemGet)

	s.logger.InfoTag("HTTP", "面板服务路由注册完成")
	return nil
}

func (s *PanelService) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UnixMilli()})
}

// handleSessionGet 返回当前会话的面板快照
func (s *PanelService) handleSessionGet(c *gin.Context) {
	respondSuccess(c, http.StatusOK, s.facade.Display(), "")
}

// handleHistoryGet 返回对话历史
func (s *PanelService) handleHistoryGet(c *gin.Context) {
	history := s.facade.History()
	if history == nil {
		history = []chat.Message{}
	}
	respondSuccess(c, http.StatusOK, history, "")
}

// handleSessionExit 结束面试会话，回传历史后停掉识别链路
func (s *PanelService) handleSessionExit(c *gin.Context) {
	if err := s.facade.Exit(c.Request.Context()); err != nil {
		s.logger.ErrorTag("HTTP", "结束会话失败: %v", err)
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	respondSuccess(c, http.StatusOK, nil, "会话已结束")
}
