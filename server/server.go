// Package server exposes the agent over HTTP.
//
// Information Hiding:
// - Router and middleware setup hidden
// - Request validation and error-to-status mapping hidden
// - Graceful shutdown hidden

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/richinex/controlqa/model"
)

const (
	serviceName     = "controlqa"
	requestIDHeader = "X-Request-ID"
	statusHeader    = "X-Answer-Status"
	shutdownTimeout = 10 * time.Second

	// statusClientClosedRequest is nginx's code for a caller that hung up.
	statusClientClosedRequest = 499
)

// Error codes returned in failure bodies.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeModelUnavailable = "MODEL_UNAVAILABLE"
)

// Asker answers one question.
type Asker interface {
	Ask(ctx context.Context, question string) (model.Outcome[model.Result], error)
}

// AskRequest is the body of POST /v1/ask. ChatHistory is accepted for
// client compatibility and ignored.
type AskRequest struct {
	Question    string            `json:"question" binding:"required"`
	ChatHistory []json.RawMessage `json:"chat_history,omitempty"`
}

// ErrorResponse is the body of every failure response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Server serves the question-answering API.
type Server struct {
	asker  Asker
	logger *slog.Logger
	router *gin.Engine
}

// New creates a server. A nil logger means slog.Default().
func New(asker Asker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{asker: asker, logger: logger}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(s.requestID(), s.accessLog())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.POST("/ask", s.handleAsk)
	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAsk(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "question must not be blank", Code: CodeInvalidRequest})
		return
	}

	out, err := s.asker.Ask(c.Request.Context(), question)
	if model.KindOf(err) == model.KindCanceled {
		s.logger.Info("caller went away before the answer was ready",
			slog.String("request_id", c.GetString("request_id")),
		)
		c.AbortWithStatus(statusClientClosedRequest)
		return
	}
	if err != nil {
		s.logger.Error("ask failed",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("kind", model.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "service unavailable", Code: CodeModelUnavailable})
		return
	}

	if out.IsDegraded() {
		c.Header(statusHeader, "degraded")
		s.logger.Warn("degraded answer",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("reason", out.Reason.Error()),
		)
	}
	c.JSON(http.StatusOK, out.Value.Normalize())
}

// requestID reuses the caller's X-Request-ID or assigns a new one.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}
