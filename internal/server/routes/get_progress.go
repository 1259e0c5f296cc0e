package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/graphmill/graphmill/internal/server/middleware"
)

// GetSessionProgressHandler reports how far a session's jobs have come.
func GetSessionProgressHandler(c echo.Context) error {
	type getProgressParams struct {
		SessionID string `param:"id" validate:"required"`
	}

	params := new(getProgressParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	return c.JSON(http.StatusOK, app.Queue.Progress(params.SessionID))
}
