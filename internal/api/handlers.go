// Package api contains the HTTP handlers for the workflow scheme service
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"workflow-scheme/backend/internal/repository"
	"workflow-scheme/backend/internal/services"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the API server.
type Server struct {
	Schemes  *services.SchemeService
	Deploys  *services.DeployCoordinator
	Pipeline *services.Pipeline
	Codes    *services.ConfigCodeService
	Projects *services.ProjectConfigService
	Store    Pinger
	Logger   Logger
	Version  string
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Detail    string    `json:"detail,omitempty"`
}

// HandleHealth reports 200 when the store answers a ping and 503 otherwise.
func (s *Server) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "workflow-scheme",
		Version:   s.Version,
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		status.Status = "unavailable"
		status.Detail = err.Error()
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	return c.JSON(http.StatusOK, status)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problemKind names an error class of the service taxonomy.
type problemKind struct {
	status int
	kind   string
	title  string
}

var (
	kindValidation  = problemKind{http.StatusBadRequest, "validation", "Validation Failed"}
	kindNotFound    = problemKind{http.StatusNotFound, "not-found", "Not Found"}
	kindConflict    = problemKind{http.StatusConflict, "concurrent-modification", "Concurrent Modification"}
	kindNoStatus    = problemKind{http.StatusUnprocessableEntity, "missing-target-status", "Missing Target Status"}
	kindUpstream    = problemKind{http.StatusBadGateway, "upstream", "Collaborator Failure"}
	kindPersistence = problemKind{http.StatusInternalServerError, "persistence", "Persistence Failure"}
)

// classify maps a service error onto its taxonomy kind. ok is false for errors
// outside the taxonomy.
func classify(err error) (problemKind, bool) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return kindValidation, true
	case errors.Is(err, repository.ErrNotFound):
		return kindNotFound, true
	case errors.Is(err, repository.ErrConflict):
		return kindConflict, true
	case errors.Is(err, services.ErrMissingTargetStatus):
		return kindNoStatus, true
	case errors.Is(err, services.ErrUpstream), errors.Is(err, services.ErrRemoteEvaluation):
		return kindUpstream, true
	case errors.Is(err, repository.ErrPersistence):
		return kindPersistence, true
	}
	return problemKind{}, false
}

// statusFor maps a service error onto an HTTP status code.
func statusFor(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	if k, ok := classify(err); ok {
		return k.status
	}
	return http.StatusInternalServerError
}

const problemTypeBase = "urn:workflow-scheme:problem:"

// ProblemHandler is an echo.HTTPErrorHandler writing RFC 7807 responses.
func ProblemHandler(logger Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := statusFor(err)
		problem := ProblemDetails{
			Type:     "about:blank",
			Title:    http.StatusText(status),
			Status:   status,
			Detail:   err.Error(),
			Instance: c.Request().URL.Path,
		}
		var he *echo.HTTPError
		k, known := classify(err)
		switch {
		case errors.As(err, &he):
			if msg, ok := he.Message.(string); ok {
				problem.Detail = msg
			}
		case known:
			problem.Type = problemTypeBase + k.kind
			problem.Title = k.title
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "status", status, "error", err)
			if status == http.StatusInternalServerError && !known {
				problem.Detail = "internal error"
			}
		}

		c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
		c.Response().WriteHeader(status)
		if c.Request().Method == http.MethodHead {
			return
		}
		if err := c.Echo().JSONSerializer.Serialize(c, problem, ""); err != nil {
			logger.Error("failed to write problem response", "error", err)
		}
	}
}
