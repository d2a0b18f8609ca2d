package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yisheng0/ai-interview/internal/app/services"
	"github.com/yisheng0/ai-interview/internal/domain/answer"
	"github.com/yisheng0/ai-interview/internal/domain/asr"
	chatstore "github.com/yisheng0/ai-interview/internal/domain/chat/store"
	"github.com/yisheng0/ai-interview/internal/domain/eventbus"
	platformconfig "github.com/yisheng0/ai-interview/internal/platform/config"
	platformerrors "github.com/yisheng0/ai-interview/internal/platform/errors"
	platformlogging "github.com/yisheng0/ai-interview/internal/platform/logging"
	httptransport "github.com/yisheng0/ai-interview/internal/transport/http"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config  *platformconfig.Config
	logger  *platformlogging.Logger
	store   chatstore.Store
	session *services.SessionService
	source  asr.FrameSource
}

// Run 启动整个服务生命周期，负责加载配置、初始化依赖和优雅关停。
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	defer func() {
		eventbus.Shutdown()
		if state.store != nil {
			if closeErr := state.store.Close(context.Background()); closeErr != nil {
				logger.ErrorTag("存储", "会话存储未正常关闭: %v", closeErr)
			}
		}
		logger.Close()
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	<-signalCtx.Done()
	logger.InfoTag("引导", "收到退出信号, 开始关停")

	exitCtx, exitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer exitCancel()
	if err := state.session.Exit(exitCtx); err != nil {
		logger.WarnTag("引导", "会话未正常结束: %v", err)
	}

	cancel()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) &&
		!errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.InfoTag("引导", "服务已退出")
	return nil
}

// startServices 拉起会话链路与本地面板
func startServices(state *appState, group *errgroup.Group, ctx context.Context) error {
	config := state.config
	logger := state.logger

	if err := state.session.Start(ctx, state.source); err != nil {
		return err
	}

	if !config.Web.Enabled {
		logger.InfoTag("引导", "本地面板已禁用")
		return nil
	}

	router, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "bootstrap.startServices", "构建路由失败", err)
	}

	panel := httptransport.NewPanelService(state.session, logger)
	if err := panel.Start(ctx, router.Engine, router.API); err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "bootstrap.startServices", "注册面板路由失败", err)
	}

	addr := fmt.Sprintf("%s:%d", config.Web.IP, config.Web.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router.Engine,
	}

	group.Go(func() error {
		logger.InfoTag("引导", "本地面板已启动: http://%s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("引导", "初始化依赖关系概览")

	stepNames := map[string]string{
		"config:load":        "加载配置",
		"logging:init":       "初始化日志",
		"storage:init-store": "初始化会话存储",
		"services:init":      "初始化会话服务",
	}

	for _, step := range steps {
		if name, ok := stepNames[step.ID]; ok {
			logger.InfoTag("引导", name)
		}
	}
	logger.InfoTag("引导", "启动服务")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph 初始化步骤及其依赖关系
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init",
			Title:     "Initialise logging",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:init-store",
			Title:     "Initialise session store",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      platformerrors.KindStorage,
			Execute:   initStoreStep,
		},
		{
			ID:        "services:init",
			Title:     "Initialise session services",
			DependsOn: []string{"storage:init-store"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initServicesStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	cfg, err := platformconfig.NewLoader().Load()
	if err != nil {
		return err
	}
	state.config = cfg
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return err
	}
	state.logger = logger
	platformlogging.DefaultLogger = logger
	return nil
}

func initStoreStep(_ context.Context, state *appState) error {
	cfg := state.config.Store

	deps := chatstore.Dependencies{}
	if cfg.Type == chatstore.DriverSQLite {
		db, err := gorm.Open(sqlite.Open(cfg.SQLite.DSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return fmt.Errorf("打开sqlite失败: %w", err)
		}
		deps.SQLiteDB = db
	}

	st, err := chatstore.New(chatstore.Config{
		Driver: cfg.Type,
		Redis: &chatstore.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		},
		SQLite: &chatstore.SQLiteConfig{DSN: cfg.SQLite.DSN},
	}, deps)
	if err != nil {
		return err
	}
	state.store = st
	return nil
}

func initServicesStep(_ context.Context, state *appState) error {
	cfg := state.config
	logger := state.logger

	eventbus.SetupEventHandlers(logger)

	client := services.NewAIClient(cfg.AI.BaseURL, cfg.AI.Token, cfg.AI.Timeout, logger)
	streamer := answer.NewStreamer(cfg.AI.BaseURL, cfg.AI.Token, logger)

	state.session = services.NewSessionService(services.SessionDeps{
		Config:   cfg,
		Logger:   logger,
		AIClient: client,
		Opener:   streamer,
		Store:    state.store,
	})
	state.source = asr.NewStdinSource(cfg.ASR.FrameSamples)
	return nil
}
