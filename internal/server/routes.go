package server

import (
	"github.com/ojpp/broadlistening/backend/internal/server/middleware"
	"github.com/ojpp/broadlistening/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Topic routes
	apiRoutes.POST("/topics", routes.CreateTopicHandler)
	apiRoutes.POST("/topics/:id/analyze", routes.AnalyzeTopicHandler)
	apiRoutes.GET("/topics/:id/ecosystem", routes.GetEcosystemHandler)
	apiRoutes.GET("/topics/:id/snapshots", routes.GetSnapshotsHandler)

	// Opinion routes
	apiRoutes.POST("/topics/:id/opinions", routes.CreateOpinionHandler)
	apiRoutes.POST("/topics/:id/opinions/:oid/support", routes.SupportOpinionHandler)
}
