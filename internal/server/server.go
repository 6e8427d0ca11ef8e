// Package server exposes the question answering engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/spetr/docchat/internal/config"
	"github.com/spetr/docchat/internal/rag"
	"github.com/spetr/docchat/pkg/types"
)

// Server is the HTTP front end. Every route requires basic auth against
// the user registry; admin routes additionally require the admin user.
type Server struct {
	engine *rag.Engine
	cfg    config.ServerConfig
	echo   *echo.Echo
}

// New creates the server and registers its routes.
func New(engine *rag.Engine, cfg config.ServerConfig) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler

	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:  rate.Limit(cfg.RateLimit),
				Burst: cfg.RateBurst,
			}),
		}))
	}

	s := &Server{engine: engine, cfg: cfg, echo: e}

	e.Use(middleware.BasicAuth(s.authenticate))

	e.POST("/query", s.handleQuery)

	admin := e.Group("/admin", s.requireAdmin)
	admin.POST("/users/add", s.handleAddUser)
	admin.POST("/users/remove", s.handleRemoveUser)
	admin.POST("/files/upload", s.handleUploadFile)
	admin.POST("/files/remove", s.handleRemoveFile)

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := s.echo.Shutdown(context.Background()); err != nil {
			slog.Warn("server shutdown failed", "error", err)
		}
	}()

	slog.Info("http server listening", "addr", s.cfg.Addr)
	if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request().Method, "path", c.Request().URL.Path, "error", err)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}

// authenticate validates basic auth credentials against the registry
// and stashes the user id on the request.
func (s *Server) authenticate(username, password string, c echo.Context) (bool, error) {
	if !s.engine.Registry().Authenticate(username, password) {
		return false, nil
	}
	c.Set("user_id", username)
	return true, nil
}

// requireAdmin limits a route group to the admin user.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Get("user_id") != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return next(c)
	}
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrUserExists),
		errors.Is(err, types.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrProviderUnavailable),
		errors.Is(err, types.ErrAllProvidersUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleQuery(c echo.Context) error {
	query := c.FormValue("query")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	userID := c.Get("user_id").(string)
	conversationID := c.FormValue("conversation_id")
	docFilter := c.FormValue("doc_filter")

	result, err := s.engine.Ask(c.Request().Context(), userID, query, conversationID, docFilter)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}

	sources := make([]map[string]any, 0, len(result.Retrieved))
	for _, r := range result.Retrieved {
		sources = append(sources, map[string]any{
			"content": r.Chunk.Content,
			"source":  r.Chunk.Source,
			"page":    r.Chunk.Page,
			"scope":   r.Scope,
			"score":   r.Score,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"answer":  result.Answer,
		"prompt":  result.Prompt,
		"sources": sources,
	})
}

func (s *Server) handleAddUser(c echo.Context) error {
	userID := c.FormValue("user_id")
	password := c.FormValue("password")
	if userID == "" || password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and password are required")
	}

	if err := s.engine.AddUser(userID, password); err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "user added", "user_id": userID})
}

func (s *Server) handleRemoveUser(c echo.Context) error {
	userID := c.FormValue("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	if err := s.engine.RemoveUser(c.Request().Context(), userID); err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "user removed", "user_id": userID})
}

// handleUploadFile ingests an uploaded document. Without a
// user_id_for_file parameter the document goes to the shared
// collection, otherwise to that user's private one.
func (s *Server) handleUploadFile(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}

	scope := types.SharedScope()
	if owner := c.FormValue("user_id_for_file"); owner != "" {
		if !s.engine.Registry().Exists(owner) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("user %q not found", owner))
		}
		scope = types.UserScope(owner)
	}

	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read upload")
	}
	defer src.Close()

	if err := s.engine.Upload(c.Request().Context(), scope, fh.Filename, src); err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "file ingested", "filename": fh.Filename, "scope": scope.String(),
	})
}

func (s *Server) handleRemoveFile(c echo.Context) error {
	filename := c.FormValue("filename")
	if filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "filename is required")
	}

	scope := types.SharedScope()
	if owner := c.FormValue("user_id_for_file"); owner != "" {
		scope = types.UserScope(owner)
	}

	if err := s.engine.RemoveFile(c.Request().Context(), scope, filename); err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "file removed", "filename": filename, "scope": scope.String(),
	})
}
