// Package health provides health check endpoints for the clover service.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const checkTimeout = 5 * time.Second

// CheckResult represents the result of a health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response represents a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// Pinger is anything that can report its own reachability: database.DB,
// the redis client and the graph client all qualify through a small func.
type Pinger func(ctx context.Context) error

type check struct {
	name     string
	ping     Pinger
	required bool
}

// Checker runs the registered dependency checks
type Checker struct {
	checks    []check
	startTime time.Time
	version   string
	mu        sync.RWMutex
	ready     bool
}

func NewChecker(version string) *Checker {
	return &Checker{
		startTime: time.Now(),
		version:   version,
	}
}

// Require registers a dependency whose failure makes the service unhealthy
func (c *Checker) Require(name string, ping Pinger) *Checker {
	c.checks = append(c.checks, check{name: name, ping: ping, required: true})
	return c
}

// Optional registers a dependency whose failure only degrades the service
func (c *Checker) Optional(name string, ping Pinger) *Checker {
	c.checks = append(c.checks, check{name: name, ping: ping})
	return c
}

// SetReady marks the service as ready to receive traffic
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns whether the service is ready
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// LivenessHandler reports that the process is up
func (c *Checker) LivenessHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, Response{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		ReportedAt: time.Now(),
	})
}

// ReadinessHandler reports whether the service should receive traffic
func (c *Checker) ReadinessHandler(ctx echo.Context) error {
	if !c.IsReady() {
		return ctx.JSON(http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			Version:    c.version,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
			},
		})
	}
	return c.HealthHandler(ctx)
}

// HealthHandler runs every check and reports the details
func (c *Checker) HealthHandler(ctx echo.Context) error {
	checks := c.RunChecks(ctx.Request().Context())
	overall := overallStatus(checks)

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return ctx.JSON(statusCode, Response{
		Status:     overall,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now(),
	})
}

// RunChecks pings every dependency concurrently
func (c *Checker) RunChecks(ctx context.Context) map[string]CheckResult {
	results := make(map[string]CheckResult, len(c.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, chk := range c.checks {
		wg.Add(1)
		go func(chk check) {
			defer wg.Done()
			result := runCheck(ctx, chk)
			mu.Lock()
			results[chk.name] = result
			mu.Unlock()
		}(chk)
	}
	wg.Wait()
	return results
}

func runCheck(ctx context.Context, chk check) CheckResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := chk.ping(ctx); err != nil {
		status := StatusDegraded
		if chk.required {
			status = StatusUnhealthy
		}
		return CheckResult{
			Status:  status,
			Message: err.Error(),
			Latency: time.Since(start).String(),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Latency: time.Since(start).String(),
	}
}

func overallStatus(checks map[string]CheckResult) Status {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := StatusHealthy
	for _, name := range names {
		switch checks[name].Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// RegisterRoutes registers health check routes under /api/v1
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	health := e.Group("/api/v1/health")

	health.GET("", c.HealthHandler)
	health.GET("/live", c.LivenessHandler)
	health.GET("/ready", c.ReadinessHandler)
}
