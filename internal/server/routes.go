package server

import (
	"github.com/labstack/echo/v4"

	"github.com/graphmill/graphmill/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Content intake
	apiRoutes.POST("/contents", routes.PostContentsHandler)

	// Session progress
	apiRoutes.GET("/sessions/:id/progress", routes.GetSessionProgressHandler)

	// Job routes
	apiRoutes.GET("/jobs/:id/result", routes.GetJobResultHandler)
	apiRoutes.DELETE("/jobs/:id", routes.DeleteJobHandler)

	// Usage and budget
	apiRoutes.GET("/usage", routes.GetUsageHandler)
}
