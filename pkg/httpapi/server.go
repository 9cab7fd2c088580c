// Package httpapi provides the optional side HTTP surface for operators
// running cogmemd behind a process supervisor: a plain /health endpoint
// reporting pool, fallback, and budget status, built on an echo handler
// (github.com/labstack/echo/v5) in the same shape as a typical ops
// health endpoint. This is ambient ops tooling, not part of the core
// tool/resource protocol — that stays stdio-only.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/tarsy-labs/cogmem/pkg/budget"
	"github.com/tarsy-labs/cogmem/pkg/database"
	"github.com/tarsy-labs/cogmem/pkg/fallback"
	"github.com/tarsy-labs/cogmem/pkg/version"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthCheck is one named component's status within the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the full /health payload.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// Server is the optional HTTP health surface.
type Server struct {
	echo        *echo.Echo
	httpServer  *http.Server
	pool        *database.Pool
	fallbackCtl *fallback.Controller
	monitor     *budget.Monitor
}

// New builds a Server. monitor may be nil to omit the budget check.
func New(pool *database.Pool, fallbackCtl *fallback.Controller, monitor *budget.Monitor) *Server {
	e := echo.New()
	s := &Server{echo: e, pool: pool, fallbackCtl: fallbackCtl, monitor: monitor}
	e.GET("/health", s.healthHandler)
	return s
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// StartWithListener starts the HTTP server on a pre-created listener,
// for test infrastructure serving on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	err := s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health. Only this system's own components
// (pool, fallback status, budget projection) are checked; the external
// embedding/judge APIs are excluded so an external outage never makes a
// process supervisor restart an otherwise-healthy cogmemd — the fallback
// controller already degrades gracefully for the judge path.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := map[string]HealthCheck{}
	status := statusHealthy

	if poolHealth, err := s.pool.Health(reqCtx); err != nil {
		status = statusUnhealthy
		checks["database"] = HealthCheck{Status: statusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: poolHealth.Status}
	}

	if s.fallbackCtl != nil && s.fallbackCtl.IsActive(fallback.JudgeComponent) {
		if status == statusHealthy {
			status = statusDegraded
		}
		checks["judge"] = HealthCheck{Status: statusDegraded, Message: "running on local fallback evaluator"}
	} else {
		checks["judge"] = HealthCheck{Status: statusHealthy}
	}

	if s.monitor != nil {
		if budgetStatus, _, err := s.monitor.Check(reqCtx); err != nil {
			checks["budget"] = HealthCheck{Status: statusUnhealthy, Message: err.Error()}
		} else if budgetStatus == budget.StatusExceeded {
			if status == statusHealthy {
				status = statusDegraded
			}
			checks["budget"] = HealthCheck{Status: statusDegraded, Message: "monthly projection exceeds limit"}
		} else {
			checks["budget"] = HealthCheck{Status: statusHealthy}
		}
	}

	httpStatus := http.StatusOK
	if status == statusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, &HealthResponse{Status: status, Version: version.Full(), Checks: checks})
}
