package api

import (
	httpSwagger "github.com/swaggo/http-swagger"

	_ "regrid-pipeline/internal/api/docs"
	"regrid-pipeline/internal/api/handler"
	"regrid-pipeline/pkg/router"
)

// NewRouter builds the API router with all regrid routes and the swagger UI.
func NewRouter() *router.Router {
	r := router.New()
	RegisterRoutes(r)
	return r
}

// RegisterRoutes attaches the regrid API to the router.
func RegisterRoutes(r *router.Router) {
	r.POST("/api/v1/regrids", handler.CreateRegrid)
	r.GET("/api/v1/regrids", handler.ListRegrids)
	// More specific routes first
	r.GET("/api/v1/regrids/*/tiles", handler.GetRegridTiles)
	r.GET("/api/v1/regrids/*/progress", handler.GetRegridProgress)
	r.GET("/api/v1/regrids/*/errors", handler.GetRegridErrors)
	// Generic job route last
	r.GET("/api/v1/regrids/*", handler.GetRegrid)

	r.GET("/swagger/*", router.HandlerFunc(httpSwagger.WrapHandler))
}
