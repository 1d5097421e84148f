package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/swaggo/swag"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"formula-ocr-server/internal/domain/eventbus"
	domainhistory "formula-ocr-server/internal/domain/history"
	historystore "formula-ocr-server/internal/domain/history/store"
	domainimage "formula-ocr-server/internal/domain/image"
	"formula-ocr-server/internal/domain/recognition"
	platformconfig "formula-ocr-server/internal/platform/config"
	platformerrors "formula-ocr-server/internal/platform/errors"
	platformlogging "formula-ocr-server/internal/platform/logging"
	platformobservability "formula-ocr-server/internal/platform/observability"
	platformstorage "formula-ocr-server/internal/platform/storage"
	httptransport "formula-ocr-server/internal/transport/http"
	"formula-ocr-server/internal/transport/http/docs"
	httphistory "formula-ocr-server/internal/transport/http/history"
	httprecognize "formula-ocr-server/internal/transport/http/recognize"
	httpstatus "formula-ocr-server/internal/transport/http/status"
)

const (
	eventWorkers    = 2
	shutdownTimeout = 10 * time.Second
)

// Options controls how Run locates its configuration.
type Options struct {
	// ConfigPath pins the YAML file; empty falls back to CONFIG_PATH and the defaults.
	ConfigPath string
	// Loader overrides the default configuration loader.
	Loader *platformconfig.Loader
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	options               Options
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	db                    *gorm.DB
	historyStore          historystore.Store
	bus                   *eventbus.AsyncEventBus
	recognizer            *recognition.Client
	preprocessor          *domainimage.Preprocessor
	startedAt             time.Time
}

// Run initialises every component, serves HTTP and blocks until ctx is
// cancelled or SIGINT/SIGTERM arrives.
func Run(ctx context.Context, opts Options) error {
	state := &appState{options: opts, startedAt: time.Now()}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return err
	}

	logger := state.logger
	logBootstrapGraph(steps, logger)
	defer state.close()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("启动 Http 服务失败: %w", err)
	}

	return waitForShutdown(signalCtx, cancel, logger, group)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("引导", "初始化依赖关系概览")

	stepNames := map[string]string{
		"config:load":               "加载配置",
		"logging:init-provider":     "初始化日志提供者",
		"observability:setup-hooks": "设置可观测性钩子",
		"history:init-store":        "初始化识别历史存储",
		"events:init-bus":           "初始化事件总线",
		"recognizer:init-client":    "初始化识别客户端",
		"image:init-preprocessor":   "初始化图像预处理",
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

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "history:init-store",
			Title:     "Initialise recognition history store",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initHistoryStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Initialise event bus",
			DependsOn: []string{"history:init-store"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "recognizer:init-client",
			Title:     "Initialise recognition client",
			DependsOn: []string{"observability:setup-hooks"},
			Kind:      platformerrors.KindConfig,
			Execute:   initRecognizerStep,
		},
		{
			ID:        "image:init-preprocessor",
			Title:     "Initialise image preprocessor",
			DependsOn: []string{"observability:setup-hooks"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initPreprocessorStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := state.options.Loader
	if loader == nil {
		loader = platformconfig.NewLoader()
	}
	if state.options.ConfigPath != "" {
		loader = loader.WithPath(state.options.ConfigPath)
	}

	result, err := loader.Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load config", err)
	}

	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	platformlogging.DefaultLogger = logger
	logger.InfoTag("引导", "日志模块就绪 [%s] %s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	cfg := platformobservability.Config{
		Enabled: state.config.Observability.Enabled,
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initHistoryStep(_ context.Context, state *appState) error {
	hc := state.config.History
	cfg := historystore.Config{
		Driver:   hc.Driver,
		Capacity: hc.Capacity,
		TTL:      hc.TTL,
	}
	deps := historystore.Dependencies{}

	switch hc.Driver {
	case historystore.DriverSQLite:
		db, err := platformstorage.OpenSQLite(hc.SQLite.DSN)
		if err != nil {
			return err
		}
		state.db = db
		deps.SQLiteDB = db
	case historystore.DriverRedis:
		cfg.Redis = &historystore.RedisConfig{
			Addr:     hc.Redis.Addr,
			Username: hc.Redis.Username,
			Password: hc.Redis.Password,
			DB:       hc.Redis.DB,
			Prefix:   hc.Redis.Prefix,
		}
	}

	store, err := historystore.New(cfg, deps)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "history:init-store", "failed to create history store", err)
	}
	state.historyStore = store
	state.logger.InfoTag("历史", "识别历史存储就绪: driver=%s", cfg.Driver)
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.NewAsyncEventBus(eventWorkers, state.logger)
	if err := domainhistory.NewRecorder(state.historyStore, state.logger).Attach(bus); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "events:init-bus", "failed to subscribe history recorder", err)
	}
	bus.Start()
	state.bus = bus
	return nil
}

func initRecognizerStep(_ context.Context, state *appState) error {
	rc := state.config.Recognizer
	state.recognizer = recognition.NewClient(recognition.Config{
		BaseURL:            rc.BaseURL,
		APIKey:             rc.APIKey,
		Temperature:        float32(rc.Temperature),
		Timeout:            rc.Timeout,
		MaxAttempts:        rc.MaxAttempts,
		RateLimitWait:      rc.RateLimitWait,
		TransportRetryWait: rc.TransportRetryWait,
		SystemPrompt:       rc.SystemPrompt,
		UserPrompt:         rc.UserPrompt,
	}, recognition.WithLogger(state.logger))
	state.logger.InfoTag("识别", "识别客户端就绪: %s (默认模型 %s)", rc.BaseURL, rc.DefaultModel)
	return nil
}

func initPreprocessorStep(_ context.Context, state *appState) error {
	ic := state.config.Image
	var debug *domainimage.DebugWriter
	if ic.SaveDebug {
		debug = domainimage.NewDebugWriter(ic.DebugDir, state.logger)
	}
	state.preprocessor = domainimage.NewPreprocessor(domainimage.Options{
		MaxFileSize:  ic.MaxFileSize,
		MaxWidth:     ic.MaxWidth,
		JPEGQuality:  ic.JPEGQuality,
		MaxPixels:    ic.MaxPixels,
		AllowedTypes: ic.AllowedTypes,
		Debug:        debug,
		Logger:       state.logger,
	})
	return nil
}

// buildHandler wires the HTTP services onto a fresh router.
func buildHandler(ctx context.Context, state *appState) (*gin.Engine, error) {
	router, err := httptransport.Build(httptransport.Options{
		Config: state.config,
		Logger: state.logger,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "http:build-router", "failed to build router", err)
	}

	recognizeService, err := httprecognize.NewService(httprecognize.Options{
		Preprocessor: state.preprocessor,
		Recognizer:   state.recognizer,
		Publisher:    state.bus,
		Logger:       state.logger,
		DefaultModel: state.config.Recognizer.DefaultModel,
		MaxBodyBytes: state.config.Server.MaxBodyBytes,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "recognize:new-service", "failed to create recognize service", err)
	}

	recognizeService.Register(ctx, router.API)
	httphistory.NewService(state.historyStore, state.logger).Register(ctx, router.API)
	httpstatus.NewService(httpstatus.Options{
		DefaultModel: state.config.Recognizer.DefaultModel,
		BaseURL:      state.config.Recognizer.BaseURL,
		History:      state.historyStore,
		Logger:       state.logger,
		StartedAt:    state.startedAt,
	}).Register(ctx, router.API)

	logger := state.logger
	router.Engine.GET("/openapi.json", func(c *gin.Context) {
		doc, err := swag.ReadDoc()
		if err != nil {
			logger.ErrorTag("HTTP", "生成 OpenAPI 文档失败: %v", err)
			httptransport.RespondError(c, http.StatusInternalServerError, "failed to generate openapi spec", gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
	})

	router.Engine.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(docs.ScalarHTML))
	})

	return router.Engine, nil
}

// startHTTPServer binds the listener and serves until groupCtx is done.
// Request contexts derive from groupCtx, so shutdown aborts in-flight retry
// waits, and the group only finishes once Shutdown has drained the handlers.
func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	handler, err := buildHandler(groupCtx, state)
	if err != nil {
		return nil, err
	}

	logger := state.logger
	addr := net.JoinHostPort(state.config.Server.IP, strconv.Itoa(state.config.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.ErrorTag("HTTP", "HTTP 端口监听失败: %v", err)
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              listener.Addr().String(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return groupCtx
		},
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "Gin 服务已启动，监听地址 http://%s", httpServer.Addr)
		logger.InfoTag("HTTP", "识别接口: http://%s/api/recognize", httpServer.Addr)
		logger.InfoTag("HTTP", "在线文档入口: http://%s/docs", httpServer.Addr)

		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP 服务运行失败: %v", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorTag("HTTP", "HTTP 服务关闭失败: %v", err)
			return err
		}
		logger.InfoTag("HTTP", "HTTP 服务已优雅关闭")
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		// 服务在收到信号前退出（例如端口被占用）
		return err
	case <-ctx.Done():
	}
	logger.InfoTag("引导", "收到系统信号 %v，正在进行资源清理", context.Cause(ctx))

	cancel()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("引导", "服务关闭过程中出现错误: %v", err)
			return err
		}
		logger.InfoTag("引导", "所有服务已成功关闭")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("引导", "服务关闭超时，已强制退出")
		return errors.New("服务关闭超时")
	}
	return nil
}

// close releases everything the init steps acquired, in reverse order.
func (s *appState) close() {
	if s.bus != nil {
		s.bus.Stop()
	}
	if s.historyStore != nil {
		if err := s.historyStore.Close(context.Background()); err != nil {
			s.logger.WarnTag("历史", "历史存储未正常关闭: %v", err)
		}
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if s.observabilityShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.observabilityShutdown(shutdownCtx); err != nil {
			s.logger.WarnTag("引导", "可观测性未正常关闭: %v", err)
		}
	}
	if s.logger != nil {
		s.logger.InfoTag("引导", "资源清理完成")
		_ = s.logger.Close()
	}
}
