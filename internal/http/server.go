// Package http provides the HTTP API for ledgerd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/decision"
	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
	"github.com/fyrsmithlabs/ledgerd/internal/registry"
)

const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 500
)

// MessageProcessor processes synchronous messages. *orchestrator.Pipeline
// satisfies it.
type MessageProcessor interface {
	ProcessSync(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)
}

// JobQueue enqueues inbound channel messages. *messaging.Publisher satisfies
// it.
type JobQueue interface {
	Enqueue(ctx context.Context, msg orchestrator.ChannelMessage) (orchestrator.Job, error)
}

// Deps are the server's collaborators. Jobs and Gatherer are optional; the
// routes that need them are not registered without them.
type Deps struct {
	Processor MessageProcessor
	Registry  *registry.Registry
	Decisions decision.Store
	Jobs      JobQueue
	Gatherer  prometheus.Gatherer
}

// Server provides HTTP endpoints for ledgerd.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config *Config
	now    func() time.Time
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Processor == nil {
		return nil, fmt.Errorf("message processor cannot be nil")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("function registry cannot be nil")
	}
	if deps.Decisions == nil {
		return nil, fmt.Errorf("decision store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
		now:    time.Now,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/messages", s.handleMessage)
	v1.GET("/functions", s.handleFunctions)
	v1.GET("/conversations/:id/decisions", s.handleDecisions)
	if s.deps.Jobs != nil {
		v1.POST("/channels/:channel/inbound", s.handleInbound)
	}
}

// Handler exposes the router, e.g. for tests or embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleMessage runs a message through the pipeline and waits for the reply.
func (s *Server) handleMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid message request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := s.deps.Processor.ProcessSync(c.Request().Context(), orchestrator.Request{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		ChannelID:      req.ChannelID,
		TenantID:       req.TenantID,
		Message: orchestrator.InboundMessage{
			Content:  req.Content,
			Metadata: req.Metadata,
		},
	})
	if err != nil {
		stage := string(orchestrator.StageOf(err))
		c.Set(stageKey, stage)
		return c.JSON(statusFor(err), ErrorResponse{
			Error: err.Error(),
			Stage: stage,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// handleFunctions lists the function catalog. With one or more permission
// query parameters only functions callable with those permissions are listed.
func (s *Server) handleFunctions(c echo.Context) error {
	fns := s.deps.Registry.All()
	if granted, ok := c.QueryParams()["permission"]; ok {
		fns = s.deps.Registry.ForPermissions(granted)
	}

	out := FunctionsResponse{Functions: make([]FunctionInfo, 0, len(fns))}
	for _, def := range registry.Definitions(fns) {
		out.Functions = append(out.Functions, FunctionInfo{
			Name:               def.Name,
			Description:        def.Description,
			RequiredPermission: def.RequiredPermission,
			Parameters:         def.Parameters,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// handleDecisions returns the audit trail of a conversation, newest first.
func (s *Server) handleDecisions(c echo.Context) error {
	convID := c.Param("id")
	limit := defaultDecisionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxDecisionLimit)
	}

	decisions, err := s.deps.Decisions.ListByConversation(c.Request().Context(), convID, limit)
	if err != nil {
		s.logger.Error("failed to list decisions", zap.String("conversation_id", convID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list decisions")
	}
	if decisions == nil {
		decisions = []*decision.AIDecision{}
	}
	return c.JSON(http.StatusOK, DecisionsResponse{ConversationID: convID, Decisions: decisions})
}

// handleInbound queues a message received by a channel gateway.
func (s *Server) handleInbound(c echo.Context) error {
	var req InboundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.From == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "from field is required")
	}

	job, err := s.deps.Jobs.Enqueue(c.Request().Context(), orchestrator.ChannelMessage{
		From:              req.From,
		To:                req.To,
		Body:              req.Body,
		Channel:           c.Param("channel"),
		ExternalMessageID: req.ExternalMessageID,
		ReceivedAt:        s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to enqueue inbound message", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to enqueue message")
	}
	return c.JSON(http.StatusAccepted, InboundResponse{JobID: job.ID})
}

// statusFor maps pipeline failures to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, orchestrator.ErrClassification),
		errors.Is(err, orchestrator.ErrDecision),
		errors.Is(err, orchestrator.ErrResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
