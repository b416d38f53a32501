package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/pkg/metrics"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/usecase"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/types"
)

// Config configures the admin HTTP listener
type Config struct {
	Enabled         bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Address         string        `json:"address" yaml:"address" mapstructure:"address"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns the default listener settings
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Address:         ":8089",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// DualWriteStatus exposes the live dispatcher state
type DualWriteStatus interface {
	Enabled() bool
	Failures() map[string]int64
	ResetFailures()
	QueueDepth() int
}

// Reconciler checks and repairs drift in the dual-write target
type Reconciler interface {
	Verify(ctx context.Context, entityType entity.EntityType, filter *entity.CountFilter) (entity.DriftReport, error)
	VerifyAll(ctx context.Context) ([]entity.DriftReport, error)
	ReconcileFiltered(ctx context.Context, entityType entity.EntityType, filter bson.M) (usecase.ReconcileResult, error)
	ReconcileDeleted(ctx context.Context, entityType entity.EntityType, sourceIDs []string) (usecase.ReconcileResult, error)
}

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Server is the monitoring and admin surface of the replication service
type Server struct {
	config     Config
	schema     string
	version    string
	router     *gin.Engine
	httpServer *http.Server
	dualWrite  DualWriteStatus
	reconciler Reconciler
	checks     map[string]HealthCheck
	logger     *logging.Logger
	metrics    *metrics.Collector
	startedAt  time.Time
}

// NewServer creates a new Server. reconciler may be nil when no dual-write
// target is configured.
func NewServer(
	config Config,
	schema string,
	version string,
	dualWrite DualWriteStatus,
	reconciler Reconciler,
	checks map[string]HealthCheck,
	logger *logging.Logger,
	collector *metrics.Collector,
) *Server {
	s := &Server{
		config:     config,
		schema:     schema,
		version:    version,
		dualWrite:  dualWrite,
		reconciler: reconciler,
		checks:     checks,
		logger:     logger.WithComponent("http"),
		metrics:    collector,
		startedAt:  time.Now(),
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         config.Address,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(s.metrics.CreateHandler()))

	v1 := s.router.Group("/api/v1")
	{
		dualWrite := v1.Group("/dual-write")
		{
			dualWrite.GET("/failures", s.getFailures)
			dualWrite.POST("/failures/reset", s.resetFailures)
		}
		v1.GET("/drift", s.getDrift)
		v1.POST("/reconcile/:entityType", s.reconcile)
	}
}

// Router returns the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Admin HTTP server listening", logging.String("address", s.config.Address))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down admin HTTP server: %w", err)
	}
	s.logger.Info("Admin HTTP server stopped")
	return nil
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	health := types.HealthStatus{
		Status:       "healthy",
		Timestamp:    time.Now().UTC(),
		Version:      s.version,
		Uptime:       time.Since(s.startedAt).Round(time.Second).String(),
		Dependencies: make(map[string]string, len(s.checks)),
	}

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			health.Status = "unhealthy"
			health.Dependencies[name] = err.Error()
			continue
		}
		health.Dependencies[name] = "ok"
	}

	if health.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	c.JSON(http.StatusOK, health)
}

func (s *Server) getFailures(c *gin.Context) {
	failures := s.dualWrite.Failures()
	var total int64
	for _, n := range failures {
		total += n
	}

	s.respond(c, http.StatusOK, FailuresResponseDTO{
		Enabled:    s.dualWrite.Enabled(),
		QueueDepth: s.dualWrite.QueueDepth(),
		Total:      total,
		Failures:   failures,
	})
}

func (s *Server) resetFailures(c *gin.Context) {
	s.dualWrite.ResetFailures()
	s.logger.Info("Dual-write failure counters reset", logging.String("client_ip", c.ClientIP()))
	s.respond(c, http.StatusOK, gin.H{"message": "Failure counters reset"})
}

func (s *Server) getDrift(c *gin.Context) {
	if s.reconciler == nil {
		s.fail(c, http.StatusServiceUnavailable, "NO_TARGET", "no dual-write target configured", nil)
		return
	}
	ctx := c.Request.Context()

	var reports []entity.DriftReport
	if name := c.Query("entity_type"); name != "" {
		entityType, err := entity.ParseEntityType(name)
		if err != nil {
			s.fail(c, http.StatusBadRequest, "INVALID_ENTITY_TYPE", "Invalid entity type", err)
			return
		}
		report, err := s.reconciler.Verify(ctx, entityType, nil)
		if err != nil {
			s.fail(c, http.StatusInternalServerError, "VERIFY_FAILED", "Failed to verify entity type", err)
			return
		}
		reports = []entity.DriftReport{report}
	} else {
		var err error
		reports, err = s.reconciler.VerifyAll(ctx)
		if err != nil {
			s.fail(c, http.StatusInternalServerError, "VERIFY_FAILED", "Failed to verify target", err)
			return
		}
	}

	drifted := false
	for _, r := range reports {
		if !r.Match {
			drifted = true
		}
	}
	s.respond(c, http.StatusOK, DriftResponseDTO{Schema: s.schema, Drifted: drifted, Reports: reports})
}

func (s *Server) reconcile(c *gin.Context) {
	if s.reconciler == nil {
		s.fail(c, http.StatusServiceUnavailable, "NO_TARGET", "no dual-write target configured", nil)
		return
	}

	entityType, err := entity.ParseEntityType(c.Param("entityType"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, "INVALID_ENTITY_TYPE", "Invalid entity type", err)
		return
	}

	var req ReconcileRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err)
		return
	}
	if len(req.Filter) == 0 && len(req.DeletedIDs) == 0 {
		s.fail(c, http.StatusBadRequest, "INVALID_REQUEST", "filter or deleted_ids is required", nil)
		return
	}

	ctx := c.Request.Context()
	var results []usecase.ReconcileResult

	if len(req.Filter) > 0 {
		var filter bson.M
		if err := bson.UnmarshalExtJSON(req.Filter, false, &filter); err != nil {
			s.fail(c, http.StatusBadRequest, "INVALID_FILTER", "Filter must be extended JSON", err)
			return
		}
		result, err := s.reconciler.ReconcileFiltered(ctx, entityType, filter)
		if err != nil {
			s.fail(c, http.StatusInternalServerError, "RECONCILE_FAILED", "Failed to reconcile filtered records", err)
			return
		}
		results = append(results, result)
	}

	if len(req.DeletedIDs) > 0 {
		result, err := s.reconciler.ReconcileDeleted(ctx, entityType, req.DeletedIDs)
		if err != nil {
			s.fail(c, http.StatusInternalServerError, "RECONCILE_FAILED", "Failed to reconcile deleted records", err)
			return
		}
		results = append(results, result)
	}

	s.respond(c, http.StatusOK, results)
}

func (s *Server) respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, types.APIResponse{Success: true, Data: data})
}

func (s *Server) fail(c *gin.Context, status int, code, message string, err error) {
	apiErr := &types.APIError{Code: code, Message: message, Timestamp: time.Now().UTC()}
	if err != nil {
		apiErr.Details = err.Error()
		if appErr := common.GetAppError(err); appErr != nil && status == http.StatusInternalServerError {
			status = appErr.StatusCode
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error(message, logging.Err(err))
		}
	}
	c.JSON(status, types.APIResponse{Success: false, Error: apiErr})
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		// scrapes and probes are too chatty for info level
		if path == "/metrics" || strings.HasPrefix(path, "/health") {
			return
		}
		s.logger.Info("HTTP request",
			logging.String("client_ip", c.ClientIP()),
			logging.String("method", c.Request.Method),
			logging.String("path", path),
			logging.Int("status_code", c.Writer.Status()),
			logging.Duration("latency", time.Since(start)),
		)
	}
}
