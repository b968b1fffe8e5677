// Package health serves liveness and readiness checks.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	checkTimeout = 3 * time.Second
)

type PingFunc func(ctx context.Context) error

// Check is one dependency check. A failing optional check degrades the service
// without taking it out of rotation.
type Check struct {
	Name     string
	Ping     PingFunc
	Optional bool
}

type Checker struct {
	checks    []Check
	version   string
	startTime time.Time
	ready     atomic.Bool
}

func NewChecker(version string, checks ...Check) *Checker {
	return &Checker{
		checks:    checks,
		version:   version,
		startTime: time.Now(),
	}
}

func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", c.Health)
	e.GET("/health/live", c.Live)
	e.GET("/health/ready", c.Ready)
}

type Report struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

type CheckResult struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency"`
}

// Run checks every dependency concurrently.
func (c *Checker) Run(ctx context.Context) *Report {
	report := &Report{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult, len(c.checks)),
		ReportedAt: time.Now().UTC(),
	}

	var mu sync.Mutex
	g := errgroup.Group{}
	for _, check := range c.checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := check.Ping(checkCtx)
			res := &CheckResult{
				Status:   StatusHealthy,
				Optional: check.Optional,
				Latency:  time.Since(start).String(),
			}
			if err != nil {
				res.Status, res.Message = StatusUnhealthy, err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			report.Checks[check.Name] = res
			switch {
			case err == nil:
			case check.Optional && report.Status == StatusHealthy:
				report.Status = StatusDegraded
			case !check.Optional:
				report.Status = StatusUnhealthy
			}
			return nil
		})
	}
	_ = g.Wait()

	return report
}

func (c *Checker) Health(ctx echo.Context) error {
	report := c.Run(ctx.Request().Context())
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, report)
}

func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready reports ready once startup finished and every required check passes.
func (c *Checker) Ready(ctx echo.Context) error {
	if !c.ready.Load() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "starting"})
	}
	if c.Run(ctx.Request().Context()).Status == StatusUnhealthy {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
