package middleware

import (
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Context stores the request metadata in the request context and echoes the
// request id. It must run after routing so the :entity parameter is known.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			ctx := appctx.WithRequest(req.Context(), appctx.Request{
				ID:       id,
				Method:   req.Method,
				Route:    c.Path(),
				RemoteIP: c.RealIP(),
				Entity:   c.Param("entity"),
			})
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
