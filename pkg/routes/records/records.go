// Package records exposes the CRUD core over HTTP under /records/:entity.
package records

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/repositories/crud"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service is the part of the CRUD core the handlers call. It is resolved from the
// active ectoinject container on every request.
type Service interface {
	Read(ctx context.Context, req crud.ReadRequest) (query.Record, error)
	ReadList(ctx context.Context, req crud.ReadRequest) (*pagination.Result, error)
	Create(ctx context.Context, entity string, data map[string]any) (query.Record, error)
	BulkUpsert(ctx context.Context, entity string, rows []map[string]any) (*crud.UpsertResult, error)
	Update(ctx context.Context, req crud.UpdateRequest) ([]any, error)
	Delete(ctx context.Context, req crud.DeleteRequest) ([]any, error)
}

// Register registers record routes
func Register(g *echo.Group) {
	g.GET("/:entity", List)
	g.GET("/:entity/:id", Get)
	g.POST("/:entity", Create)
	g.POST("/:entity/bulk", BulkUpsert)
	g.PUT("/:entity/:id", UpdateByID)
	g.PATCH("/:entity", UpdateByFilters)
	g.DELETE("/:entity/:id", DeleteByID)
	g.DELETE("/:entity", DeleteByFilters)
}

func service(ctx context.Context) (context.Context, Service, error) {
	ctx, svc, err := ectoinject.GetContext[Service](ctx)
	if err != nil {
		return ctx, nil, httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	return ctx, svc, nil
}

// ListQuery holds the query string of a list request.
type ListQuery struct {
	Filters        string `query:"filters"`
	Include        string `query:"include"`
	ExactMatch     string `query:"exact_match"`
	Page           int    `query:"page" validate:"gte=0"`
	PerPage        int    `query:"per_page" validate:"gte=0"`
	OrderBy        string `query:"order_by"`
	OrderDirection string `query:"order_direction" validate:"omitempty,oneof=asc desc ASC DESC"`
	ReadAll        bool   `query:"read_all"`
	IDsOnly        bool   `query:"ids_only"`
}

// UpdateBody is the body of an update by filters.
type UpdateBody struct {
	Filters    map[string]any `json:"filters" validate:"required"`
	ExactMatch []string       `json:"exact_match"`
	Data       map[string]any `json:"data" validate:"required"`
}

type idsResponse struct {
	IDs []any `json:"ids"`
}

func List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records.List")
	defer span.End()

	ctx, svc, err := service(ctx)
	if err != nil {
		return err
	}

	var q ListQuery
	if err := c.Bind(&q); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	if err := validate.Struct(q); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	filters, err := parseFilters(q.Filters)
	if err != nil {
		return err
	}

	res, err := svc.ReadList(ctx, crud.ReadRequest{
		Entity:         c.Param("entity"),
		Filters:        filters,
		ExactMatch:     splitList(q.ExactMatch),
		RelReadKeys:    splitList(q.Include),
		OrderBy:        q.OrderBy,
		OrderDirection: q.OrderDirection,
		Page:           q.Page,
		PerPage:        q.PerPage,
		ReadAll:        q.ReadAll,
		IDsOnly:        q.IDsOnly,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, res)
}

func Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records.Get")
	defer span.End()

	ctx, svc, err := service(ctx)
	if err != nil {
		return err
	}

	entity, id := c.Param("entity"), c.Param("id")
	rec, err := svc.Read(ctx, crud.ReadRequest{
		Entity:      entity,
		ID:          id,
		RelReadKeys: splitList(c.QueryParam("include")),
	})
	if err != nil {
		return err
	}
	if rec == nil {
		return httperror.NewHTTPError(http.StatusNotFound, entity+" "+id+" not found")
	}

	return c.JSON(http.StatusOK, rec)
}

func Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records.Create")
	defer span.End()

	ctx, svc, err := service(ctx)
	if err != nil {
		return err
	}

	data := map[string]any{}
	if err := bindBody(c, &data); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rec, err := svc.Create(ctx, c.Param("entity"), data)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, rec)
}

func BulkUpsert(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records.BulkUpsert")
	defer span.End()

	ctx, svc, err := service(ctx)
	if err != nil {
		return err
	}

	var rows []map[string]any
	if err := bindBody(c, &rows); err != nil {
		return ferrors.New(ferrors.CodeInvalidDbObjectsArray, "request body must be an array of objects")
	}

	res, err := svc.BulkUpsert(ctx, c.Param("entity"), rows)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, res)
}

func UpdateByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records.UpdateByID")
	defer span.End()

	ctx, svc, err := service(ctx)
	if err != nil {
		return err
	}

	data := map[string]any{}
	if err := bindBody(c, &data); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ids, err := svc.Update(ctx, crud.UpdateRequest{
		ReadRequest: crud.ReadRequest{Entity: c.Param("entity"), ID: c.Param("id")},
		Data:        data,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, idsResponse{IDs: ids})
}

func UpdateByFilters(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records.UpdateByFilters")
	defer span.End()

	ctx, svc, err := service(ctx)
	if err != nil {
		return err
	}

	var body UpdateBody
	if err := bindBody(c, &body); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(body); err != nil {
		return ferrors.New(ferrors.CodeCannotUpdateWithoutCriteria, err.Error())
	}

	ids, err := svc.Update(ctx, crud.UpdateRequest{
		ReadRequest: crud.ReadRequest{
			Entity:     c.Param("entity"),
			Filters:    body.Filters,
			ExactMatch: body.ExactMatch,
		},
		Data: body.Data,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, idsResponse{IDs: ids})
}

func DeleteByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records.DeleteByID")
	defer span.End()

	ctx, svc, err := service(ctx)
	if err != nil {
		return err
	}

	ids, err := svc.Delete(ctx, crud.DeleteRequest{
		ReadRequest:  crud.ReadRequest{Entity: c.Param("entity"), ID: c.Param("id")},
		CheckRelated: c.QueryParam("check_related") == "true",
	})
	if err != nil {
		return err
	}
	logDeleted(ctx, c.Param("entity"), ids)

	return c.JSON(http.StatusOK, idsResponse{IDs: ids})
}

func DeleteByFilters(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records.DeleteByFilters")
	defer span.End()

	ctx, svc, err := service(ctx)
	if err != nil {
		return err
	}

	filters, err := parseFilters(c.QueryParam("filters"))
	if err != nil {
		return err
	}

	ids, err := svc.Delete(ctx, crud.DeleteRequest{
		ReadRequest: crud.ReadRequest{
			Entity:     c.Param("entity"),
			Filters:    filters,
			ExactMatch: splitList(c.QueryParam("exact_match")),
		},
		CheckRelated: c.QueryParam("check_related") == "true",
	})
	if err != nil {
		return err
	}
	logDeleted(ctx, c.Param("entity"), ids)

	return c.JSON(http.StatusOK, idsResponse{IDs: ids})
}

func logDeleted(ctx context.Context, entity string, ids []any) {
	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"entity":  entity,
			"deleted": len(ids),
		}).Info("Deleted records")
	}
}

// bindBody binds the request body only. Path parameters must not leak into record
// payloads.
func bindBody(c echo.Context, v any) error {
	return (&echo.DefaultBinder{}).BindBody(c, v)
}

// parseFilters decodes the filters query parameter, a JSON object.
func parseFilters(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var filters map[string]any
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return nil, ferrors.New(ferrors.CodeInvalidFilterObject, "filters must be a JSON object").
			AddMeta("filters", raw)
	}
	return filters, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
