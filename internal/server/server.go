// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/4ndersonLin/scamledger/internal/address"
	"github.com/4ndersonLin/scamledger/internal/cache"
	"github.com/4ndersonLin/scamledger/internal/config"
	"github.com/4ndersonLin/scamledger/internal/health"
	"github.com/4ndersonLin/scamledger/internal/logging"
	"github.com/4ndersonLin/scamledger/internal/lookup"
	"github.com/4ndersonLin/scamledger/internal/metrics"
	"github.com/4ndersonLin/scamledger/internal/ratelimit"
	"github.com/4ndersonLin/scamledger/internal/report"
	"github.com/4ndersonLin/scamledger/internal/security"
	"github.com/4ndersonLin/scamledger/internal/stats"
	"github.com/4ndersonLin/scamledger/internal/threatintel"
	"github.com/4ndersonLin/scamledger/internal/traces"
	"github.com/4ndersonLin/scamledger/internal/validation"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	db           *sql.DB // nil if using in-memory
	cache        cache.Cache
	reportSvc    *report.Service
	statsSvc     *stats.Service
	syncEngine   *threatintel.Engine
	syncWorker   *threatintel.Worker
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	shutdownOTel func(context.Context) error
	cancelRunCtx context.CancelFunc

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to init tracing: %w", err)
		}
		s.shutdownOTel = shutdown
	}

	// A non-default feed URL is operator input used for server-side
	// requests; refuse anything pointing at internal networks.
	if cfg.OFACBaseURL != config.DefaultOFACBaseURL {
		if err := security.ValidateEndpointURL(cfg.OFACBaseURL); err != nil {
			return nil, fmt.Errorf("unsafe OFAC_BASE_URL: %w", err)
		}
	}

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		addresses  address.Store
		reports    report.Store
		intelStore threatintel.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		s.db = db
		addresses = address.NewPostgresStore(db)
		reports = report.NewPostgresStore(db)
		intelStore = threatintel.NewPostgresStore(db)
		s.logger.Info("using postgres storage")
	} else {
		addresses = address.NewMemoryStore()
		reports = report.NewMemoryStore()
		intelStore = threatintel.NewMemoryStore()
		s.logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	// Cache (Redis if REDIS_ADDR set, otherwise in-memory)
	if cfg.RedisAddr != "" {
		c, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.cache = c
		s.logger.Info("using redis cache", "addr", cfg.RedisAddr)
	} else {
		s.cache = cache.NewMemory()
		s.logger.Info("using in-memory cache")
	}

	s.statsSvc = stats.NewService(reports, addresses, s.cache)
	s.reportSvc = report.NewService(reports, addresses, intelStore, s.statsSvc, s.logger)

	s.syncEngine = threatintel.NewEngine(intelStore, addresses, reports, s.statsSvc, s.logger)
	s.syncEngine.Register(threatintel.NewOFACFetcher(cfg.OFACBaseURL, s.logger))
	if cfg.ThreatIntelEnabled {
		s.syncWorker = threatintel.NewWorker(s.syncEngine, cfg.SyncInterval, s.logger)
	}

	s.checks = health.NewRegistry()
	if s.db != nil {
		db := s.db
		s.checks.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.checks.Register("database", func(ctx context.Context) health.Status {
			return health.Status{Name: "database", Healthy: true, Detail: "in-memory"}
		})
	}
	s.checks.Register("cache", func(ctx context.Context) health.Status {
		if err := s.cache.Set(ctx, "health:probe", "ok", time.Minute); err != nil {
			return health.Status{Name: "cache", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "cache", Healthy: true}
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes(addresses, reports, intelStore)

	s.healthy.Store(true)
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) setupRoutes(addresses address.Store, reports report.Store, intelStore threatintel.Store) {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/healthz", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	v1.Use(s.apiKeyMiddleware())

	report.NewHandler(s.reportSvc).RegisterRoutes(v1)
	lookup.NewHandler(addresses, reports, intelStore).RegisterRoutes(v1)
	stats.NewHandler(s.statsSvc).RegisterRoutes(v1)

	v1.POST("/sync/:source", s.triggerSyncHandler)
}

// apiKeyMiddleware resolves an X-API-Key header against the configured
// key set. A valid key marks the request as an API submission; requests
// without a key stay anonymous web traffic. An unknown key is rejected
// rather than silently downgraded.
func (s *Server) apiKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			c.Next()
			return
		}
		for _, known := range s.cfg.APIKeys {
			if subtle.ConstantTimeCompare([]byte(key), []byte(known)) == 1 {
				c.Set("apiKeyID", keyID(known))
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_api_key",
			"message": "Unknown API key",
		})
	}
}

// keyID derives a stable non-secret identifier for a configured key.
func keyID(key string) string {
	if len(key) <= 8 {
		return "key_" + key
	}
	return "key_" + key[:8]
}

// triggerSyncHandler handles POST /v1/sync/:source: kicks off one sync run
// for a registered feed source. The run is fire-and-forget; progress lands
// in the sync state, not the response.
func (s *Server) triggerSyncHandler(c *gin.Context) {
	if c.GetString("apiKeyID") == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "api_key_required",
			"message": "Manual sync requires an API key",
		})
		return
	}

	source := c.Param("source")
	registered := false
	for _, name := range s.syncEngine.Sources() {
		if name == source {
			registered = true
			break
		}
	}
	if !registered {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unknown_source",
			"message": "No such feed source",
		})
		return
	}

	go s.syncEngine.Run(context.WithoutCancel(c.Request.Context()), source)
	c.JSON(http.StatusAccepted, gin.H{"status": "sync started", "source": source})
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, subsystems := s.checks.CheckAll(c.Request.Context())

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":     overall,
		"time":       time.Now().UTC().Format(time.RFC3339),
		"subsystems": subsystems,
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if s.healthy.Load() {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if s.ready.Load() {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and the background sync worker, then blocks
// until a shutdown signal, a server error, or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	if s.syncWorker != nil {
		go s.syncWorker.Start(runCtx)
		s.logger.Info("threat intel sync worker started",
			"interval", s.cfg.SyncInterval,
			"sources", s.syncEngine.Sources(),
		)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown stops the worker, drains in-flight requests, and closes every
// connection pool.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.syncWorker != nil {
		s.syncWorker.Stop()
		s.logger.Info("sync worker stopped")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.shutdownOTel != nil {
		if err := s.shutdownOTel(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}
