package records

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/repositories/crud"
	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	read       crud.ReadRequest
	update     crud.UpdateRequest
	delete     crud.DeleteRequest
	created    map[string]any
	upserted   []map[string]any
	record     query.Record
	err        error
	listResult *pagination.Result
}

func (f *fakeService) Read(_ context.Context, req crud.ReadRequest) (query.Record, error) {
	f.read = req
	return f.record, f.err
}

func (f *fakeService) ReadList(_ context.Context, req crud.ReadRequest) (*pagination.Result, error) {
	f.read = req
	return f.listResult, f.err
}

func (f *fakeService) Create(_ context.Context, _ string, data map[string]any) (query.Record, error) {
	f.created = data
	return query.Record(data), f.err
}

func (f *fakeService) BulkUpsert(_ context.Context, _ string, rows []map[string]any) (*crud.UpsertResult, error) {
	f.upserted = rows
	if f.err != nil {
		return nil, f.err
	}
	return &crud.UpsertResult{Created: []query.Record{}, Updated: []any{}}, nil
}

func (f *fakeService) Update(_ context.Context, req crud.UpdateRequest) ([]any, error) {
	f.update = req
	return []any{req.ID}, f.err
}

func (f *fakeService) Delete(_ context.Context, req crud.DeleteRequest) ([]any, error) {
	f.delete = req
	return []any{req.ID}, f.err
}

// newServer serves the record routes with svc registered in a container of its own.
func newServer(t *testing.T, svc Service) *echo.Echo {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	cfg := ectoinject.DefaultContainerConfig
	cfg.ID = uuid.NewString()
	cfg.LoggerConfig = &ectocontainer.DIContainerLoggerConfig{Enabled: false}
	container, err := ectoinject.NewDIContainer(cfg)
	require.NoError(t, err)
	if svc != nil {
		require.NoError(t, ectoinject.RegisterInstance[Service](container, svc))
	}
	require.NoError(t, ectoinject.RegisterInstance[ectologger.Logger](container, logger))

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, err := ectoinject.SetActiveContainer(c.Request().Context(), cfg.ID)
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	Register(e.Group("/records"))
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestList(t *testing.T) {
	svc := &fakeService{listResult: &pagination.Result{Results: []query.Record{{"id": 1}}, Page: 1, PerPage: 10, TotalPages: 1}}
	e := newServer(t, svc)

	target := `/records/user?filters=` + `%7B%22name%22%3A%22ann%22%7D` +
		`&include=orders,%20type&exact_match=name&page=2&per_page=10&order_by=name&order_direction=desc&ids_only=true`
	rec := do(e, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, crud.ReadRequest{
		Entity:         "user",
		Filters:        map[string]any{"name": "ann"},
		ExactMatch:     []string{"name"},
		RelReadKeys:    []string{"orders", "type"},
		OrderBy:        "name",
		OrderDirection: "desc",
		Page:           2,
		PerPage:        10,
		IDsOnly:        true,
	}, svc.read)

	var res pagination.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.TotalPages)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestList_BadInput(t *testing.T) {
	tests := []struct {
		name   string
		target string
		code   int
	}{
		{name: "filters are not json", target: "/records/user?filters=nope", code: http.StatusBadRequest},
		{name: "negative page", target: "/records/user?page=-1", code: http.StatusBadRequest},
		{name: "bad direction", target: "/records/user?order_direction=up", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newServer(t, &fakeService{}), http.MethodGet, tt.target, "")
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestGet(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := &fakeService{record: query.Record{"id": float64(5)}}
		rec := do(newServer(t, svc), http.MethodGet, "/records/user/5?include=orders", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "5", svc.read.ID)
		assert.Equal(t, []string{"orders"}, svc.read.RelReadKeys)
	})

	t.Run("missing", func(t *testing.T) {
		rec := do(newServer(t, &fakeService{}), http.MethodGet, "/records/user/5", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{name: "guard", err: ferrors.New(ferrors.CodeRelatedItemsExist, "user 5 still has related orders"), code: http.StatusConflict, want: "RelatedItemsExist"},
		{name: "request", err: ferrors.New(ferrors.CodeInvalidFieldString, "user has no field \"x\""), code: http.StatusBadRequest, want: "InvalidFieldString"},
		{name: "unknown entity", err: ferrors.New(ferrors.CodeUnknownEntity, "unknown entity"), code: http.StatusNotFound, want: "UnknownEntity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newServer(t, &fakeService{err: tt.err}), http.MethodDelete, "/records/user/5?check_related=true", "")
			require.Equal(t, tt.code, rec.Code)

			var body middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Meta["code"])
		})
	}
}

func TestMutations(t *testing.T) {
	t.Run("create binds the body only", func(t *testing.T) {
		svc := &fakeService{}
		rec := do(newServer(t, svc), http.MethodPost, "/records/user", `{"name":"ann"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, map[string]any{"name": "ann"}, svc.created)
	})

	t.Run("bulk upsert", func(t *testing.T) {
		svc := &fakeService{}
		rec := do(newServer(t, svc), http.MethodPost, "/records/user/bulk", `[{"id":1,"name":"x"},{"name":"y"}]`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, svc.upserted, 2)
	})

	t.Run("bulk upsert needs an array", func(t *testing.T) {
		rec := do(newServer(t, &fakeService{}), http.MethodPost, "/records/user/bulk", `{"name":"y"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("update by id", func(t *testing.T) {
		svc := &fakeService{}
		rec := do(newServer(t, svc), http.MethodPut, "/records/user/3", `{"name":"x"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", svc.update.ID)
		assert.Equal(t, map[string]any{"name": "x"}, svc.update.Data)
	})

	t.Run("update by filters", func(t *testing.T) {
		svc := &fakeService{}
		rec := do(newServer(t, svc), http.MethodPatch, "/records/user", `{"filters":{"name":"ann"},"data":{"name":"x"}}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"name": "ann"}, svc.update.Filters)
	})

	t.Run("update by filters needs filters", func(t *testing.T) {
		rec := do(newServer(t, &fakeService{}), http.MethodPatch, "/records/user", `{"data":{"name":"x"}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete by filters", func(t *testing.T) {
		svc := &fakeService{}
		rec := do(newServer(t, svc), http.MethodDelete, `/records/order?filters=%7B%22status%22%3A%22void%22%7D`, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"status": "void"}, svc.delete.Filters)
		assert.False(t, svc.delete.CheckRelated)
	})
}

func TestServiceUnavailable(t *testing.T) {
	rec := do(newServer(t, nil), http.MethodGet, "/records/user", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestList_UnknownIncludeIsBadRequest(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	entities, err := schema.Load("../../../schema/example.yaml")
	require.NoError(t, err)
	registry, err := schema.NewRegistry(entities, logger)
	require.NoError(t, err)

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	db := database.NewDatabaseInstance(sqlx.NewDb(conn, "postgres"), logger)
	core := crud.NewCore(db, registry, pagination.NewEngine(logger, 20, 100), nil, events.Noop{}, logger)

	tests := []struct {
		name   string
		target string
	}{
		{name: "list", target: "/records/user?include=bogus"},
		{name: "nested list", target: "/records/user?include=orders.bogus"},
		{name: "get", target: "/records/user/1?include=bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newServer(t, core), http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			var body middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, string(ferrors.CodeUnknownRelationAlias), body.Meta["code"])
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
