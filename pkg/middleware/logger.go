package middleware

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/labstack/echo/v4"
)

// Logger logs one line per request. Health and metrics checks log at debug.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			info := appctx.RequestFrom(req.Context())
			entry := logger.WithContext(req.Context()).WithFields(map[string]any{
				"request_id":    info.ID,
				"entity":        info.Entity,
				"method":        req.Method,
				"route":         c.Path(),
				"uri":           req.RequestURI,
				"status":        c.Response().Status,
				"remote_ip":     c.RealIP(),
				"response_time": time.Since(start).String(),
				"response_size": c.Response().Size,
			})

			switch {
			case isHealthRoute(c.Path()):
				entry.Debug("Request")
			case c.Response().Status >= http.StatusInternalServerError:
				entry.Warn("Request")
			default:
				entry.Info("Request")
			}
			return nil
		}
	}
}

func isHealthRoute(route string) bool {
	switch route {
	case "/health", "/health/live", "/health/ready", "/metrics":
		return true
	}
	return false
}
