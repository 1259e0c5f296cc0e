package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/graphmill/graphmill/internal/queue"
	"github.com/graphmill/graphmill/pkg/provider"
	"github.com/graphmill/graphmill/pkg/store"
)

// App bundles the shared components every handler needs.
type App struct {
	Queue    *queue.Queue
	Governor *provider.Governor
	Store    store.ResultStore
}

type AppContext struct {
	echo.Context
	App *App
}

// AppContextMiddleware wraps every request context with the shared App so
// handlers reach the queue, governor and store without globals.
func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{Context: c, App: app})
		}
	}
}
