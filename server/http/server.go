// Package http exposes the retrieval pipeline and chat client over a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/samzhu/ragkit/chat"
	"github.com/samzhu/ragkit/llm"
	"github.com/samzhu/ragkit/memory"
	obs "github.com/samzhu/ragkit/observability"
	"github.com/samzhu/ragkit/rag"
	"github.com/samzhu/ragkit/tools"
)

// Server wraps the pipeline and chat client with HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	pipeline *rag.Pipeline
	chat     *chat.Client
	sessions memory.ConversationStore
	logger   *zap.Logger
	config   Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// SystemPrompt is the default system prompt for /chat.
	SystemPrompt string
	// TopK is the default number of chunks retrieved per query.
	TopK int
	// HistoryLimit caps the session messages replayed to the model.
	HistoryLimit int
	// BodyLimit caps request bodies, e.g. "4M".
	BodyLimit string
}

// Deps are the collaborators served by the API. Pipeline is required; Chat
// and Sessions enable /chat, Metrics enables /metrics.
type Deps struct {
	Pipeline *rag.Pipeline
	Chat     *chat.Client
	Sessions memory.ConversationStore
	Metrics  http.Handler
	Logger   *zap.Logger
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, cfg Config) (*Server, error) {
	if deps.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 120 * time.Second
	}
	if cfg.TopK <= 0 {
		cfg.TopK = rag.DefaultTopK
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "8M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	s := &Server{
		echo:     e,
		pipeline: deps.Pipeline,
		chat:     deps.Chat,
		sessions: deps.Sessions,
		logger:   deps.Logger,
		config:   cfg,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(s.requestContext)

	e.GET("/health", s.handleHealth)
	e.POST("/chat", s.handleChat)
	e.DELETE("/chat/:session", s.handleClearSession)
	e.POST("/documents", s.handleDocuments)
	e.POST("/search", s.handleSearch)
	e.GET("/functions", s.handleFunctions)
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}
	return s, nil
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// requestContext propagates the request id, opens a span and records
// request metrics.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := obs.ExtractHTTPContext(req.Context(), req)
		obs.InjectHTTPHeaders(c.Response().Writer, ctx)
		id, _ := obs.RequestIDFromContext(ctx)

		span, ctx := obs.StartSpan(ctx, "http.request")
		span.SetAttribute(obs.AttrHTTPMethod, req.Method)
		span.SetAttribute(obs.AttrHTTPRoute, c.Path())
		span.SetAttribute(obs.AttrRequestID, id)
		c.SetRequest(req.WithContext(ctx))

		start := time.Now()
		err := next(c)
		if err != nil {
			// let the error handler pick the status before it is recorded
			c.Error(err)
		}
		status := c.Response().Status
		span.SetAttribute(obs.AttrHTTPStatus, status)
		obs.EndSpan(span, err)

		labels := map[string]string{
			obs.LabelComponent: "http",
			obs.LabelOperation: req.Method + " " + c.Path(),
			obs.LabelStatus:    fmt.Sprintf("%d", status),
		}
		obs.MetricsImpl.IncrementRequests(labels)
		obs.MetricsImpl.RecordLatency(time.Since(start), labels)

		s.logger.Info("http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", id),
		)
		return nil
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := StatusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", code), zap.Error(err))
	}

	id, _ := obs.RequestIDFromContext(c.Request().Context())
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, ErrorResponse{Error: msg, RequestID: id})
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, rag.ErrInvalidParameter),
		errors.Is(err, memory.ErrDimensionMismatch),
		errors.Is(err, llm.ErrMissingVariable):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrBlocked), errors.Is(err, chat.ErrNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, tools.ErrUnknownFunction), errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrNoChat):
		return http.StatusServiceUnavailable
	case errors.Is(err, llm.ErrCollaboratorTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, llm.ErrCollaboratorFailure), errors.Is(err, chat.ErrToolRoundsExceeded):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe runs the server until ctx is cancelled, then shuts it down
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	errChan := make(chan error, 1)
	go func() { errChan <- s.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
