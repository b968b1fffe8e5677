package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(handler echo.HandlerFunc) *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Context())
	e.Use(Logger(logger))
	e.GET("/records/:entity", handler)
	return e
}

func TestContext(t *testing.T) {
	var got appctx.Request
	e := newServer(func(c echo.Context) error {
		got = appctx.RequestFrom(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/records/user", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "req-7", rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, "req-7", got.ID)
	assert.Equal(t, "user", got.Entity)
	assert.Equal(t, "/records/:entity", got.Route)
}

func TestError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
		meta    any
	}{
		{
			name:    "guard error",
			err:     ferrors.Newf(ferrors.CodeRelatedItemsExist, "user 1 still has orders"),
			code:    http.StatusConflict,
			message: "user 1 still has orders",
			meta:    string(ferrors.CodeRelatedItemsExist),
		},
		{
			name:    "http error",
			err:     httperror.NewHTTPError(http.StatusNotFound, "user 9 not found"),
			code:    http.StatusNotFound,
			message: "user 9 not found",
		},
		{
			name:    "echo error",
			err:     echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"),
			code:    http.StatusMethodNotAllowed,
			message: "nope",
		},
		{
			name:    "unexpected error hides its message",
			err:     errors.New("pq: connection reset"),
			code:    http.StatusInternalServerError,
			message: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newServer(func(c echo.Context) error { return tt.err })
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/records/user", nil))

			require.Equal(t, tt.code, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Message)
			assert.NotEmpty(t, body.RequestID)
			if tt.meta != nil {
				assert.Equal(t, tt.meta, body.Meta["code"])
			}
		})
	}
}
