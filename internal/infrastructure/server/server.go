package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	handlers "github.com/mizuos/shell/internal/api/http"
	"github.com/mizuos/shell/internal/api/middleware"
	"github.com/mizuos/shell/internal/api/ws"
	"github.com/mizuos/shell/internal/infrastructure/config"
	"github.com/mizuos/shell/internal/infrastructure/logging"
	"github.com/mizuos/shell/internal/infrastructure/monitoring"
	"github.com/mizuos/shell/internal/shell"
)

// Server wraps the HTTP server and the shell it exposes
type Server struct {
	router  *gin.Engine
	http    *http.Server
	shell   *shell.Shell
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance. The shell is built but not
// booted; call Boot before or after Run.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewOrNop(logging.DevelopmentConfig())
	} else {
		lc := logging.DefaultConfig()
		lc.Level = cfg.Logging.Level
		logger = logging.NewOrNop(lc)
	}

	logger.Info("Initializing Mizu OS shell",
		zap.String("port", cfg.Server.Port),
		zap.String("config_dir", cfg.Shell.ConfigDir),
		zap.String("store", cfg.Store.Driver),
	)

	metrics := monitoring.NewMetrics()

	sh, err := shell.New(ctx, cfg, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build shell: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := NewRouter(sh, cfg, logger.Component("http"))

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		shell:   sh,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// NewRouter builds the gin engine with middleware and every route
func NewRouter(sh *shell.Shell, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestLog(logger))
	router.Use(middleware.Recovery(sh.Errors))
	router.Use(monitoring.Middleware(sh.Metrics))
	router.Use(middleware.CORS(middleware.CORSFromConfig(cfg.CORS)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitFromConfig(cfg.RateLimit)))
	}

	handlers.NewHandlers(sh, logger).Register(router)

	bridge := ws.NewBridge(ws.Options{
		Bus:            sh.Bus,
		Metrics:        sh.Metrics,
		Logger:         logger.Named("ws"),
		Errors:         sh.Errors,
		AllowedOrigins: cfg.CORS.AllowOrigins,
	})
	router.GET("/ws", bridge.HandleConnection)

	if sh.Metrics != nil {
		router.GET("/metrics", gin.WrapH(sh.Metrics.Handler()))
	}

	return router
}

// Router exposes the engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Boot runs the shell's boot sequence. A failed boot leaves the server
// running so /boot can report the error.
func (s *Server) Boot(ctx context.Context) error {
	return s.shell.Boot(ctx)
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP shutdown failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := s.shell.Close(ctx); err != nil {
		s.logger.Error("Shell shutdown failed", zap.Error(err))
		errs = append(errs, err)
	}

	s.logger.Sync()
	return errors.Join(errs...)
}
