package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/handler"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/middleware"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/ws"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/service"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/tools"
	"github.com/isaacrestrick/realtime-diabolical-computer/pkg/config"
)

type Server struct {
	router *gin.Engine
	srv    *http.Server
	ws     *ws.Manager
	tasks  *service.TaskService
	config *config.Config
	logger *slog.Logger

	mu sync.Mutex
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	taskService *service.TaskService,
	realtimeService *service.RealtimeService,
	computerService *service.ComputerService,
	registry *tools.Registry,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	// Set Gin mode
	if !cfg.IsDevMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	// WebSocket clients see the output of every task
	wsManager := ws.NewManager(taskService, cfg.CORSOrigins, logger.With("component", "ws"))
	taskService.Subscribe(wsManager)

	// Initialize handlers
	taskHandler := handler.NewTaskHandler(taskService)
	realtimeHandler := handler.NewRealtimeHandler(realtimeService)
	computerHandler := handler.NewComputerHandler(computerService)
	proxyHandler := handler.NewProxyHandler(cfg.ComputerDemoOrigin, logger.With("component", "proxy"))
	toolHandler := handler.NewToolHandler(registry)

	api := router.Group("/api")
	{
		api.POST("/realtime/ephemeral-key", realtimeHandler.CreateEphemeralKey)
		api.POST("/opus-computer/task", computerHandler.RunOpusTask)
	}

	// Coding assistant
	claude := api.Group("/claude-code")
	{
		claude.POST("/tasks", taskHandler.CreateTask)
		claude.GET("/status", taskHandler.Status)
		claude.POST("/stop", taskHandler.Stop)
		claude.POST("/kill", taskHandler.Kill)
	}

	// Task log
	tasks := api.Group("/tasks")
	{
		tasks.GET("", taskHandler.ListTasks)
		tasks.GET("/:command_id", taskHandler.GetTask)
	}

	// Realtime function tools
	toolRoutes := api.Group("/tools")
	{
		toolRoutes.GET("", toolHandler.ListTools)
		toolRoutes.POST("/:name", toolHandler.CallTool)
	}

	// Computer-use demo, served from our origin for iframe embedding
	for _, path := range []string{"/computer", "/computer/*path"} {
		router.GET(path, proxyHandler.Proxy)
		router.HEAD(path, proxyHandler.Proxy)
	}

	router.GET("/ws", gin.WrapH(wsManager))

	// Health check
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &Server{
		router: router,
		ws:     wsManager,
		tasks:  taskService,
		config: cfg,
		logger: logger,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	// No write timeout: SSE streams and computer-use tasks run for minutes.
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	// Start with or without SSL
	if s.config.SSLCert != "" && s.config.SSLKey != "" {
		s.logger.Info("starting HTTPS server", "addr", l.Addr().String())
		return srv.ServeTLS(l, s.config.SSLCert, s.config.SSLKey)
	}

	s.logger.Info("starting HTTP server", "addr", l.Addr().String())
	return srv.Serve(l)
}

// Shutdown gracefully shuts down the server. The running coding task is
// stopped first so that its SSE stream ends, and hijacked WebSocket
// connections, which http.Server does not track, are closed separately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.tasks.Stop(0)
	s.ws.Close()

	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}
