// Package dependencies exposes the compiled association dependency maps.
package dependencies

import (
	"net/http"

	"github.com/Ramsey-B/fern/pkg/association"
	"github.com/labstack/echo/v4"
)

// Source provides the compiled dependency maps.
type Source interface {
	DependencyMaps() map[string]association.DependencyMap
	SeedOrder() []string
}

type Response struct {
	Entities  map[string]association.DependencyMap `json:"entities"`
	SeedOrder []string                             `json:"seed_order"`
}

// Register registers GET /schema/dependencies on g.
func Register(g *echo.Group, src Source) {
	g.GET("/dependencies", func(c echo.Context) error {
		return c.JSON(http.StatusOK, Response{
			Entities:  src.DependencyMaps(),
			SeedOrder: src.SeedOrder(),
		})
	})
}
