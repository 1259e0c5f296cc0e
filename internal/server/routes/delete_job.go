package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/graphmill/graphmill/internal/server/middleware"
)

// DeleteJobHandler cancels a pending job. Jobs that started processing or
// already finished cannot be cancelled.
func DeleteJobHandler(c echo.Context) error {
	type deleteJobParams struct {
		JobID string `param:"id" validate:"required"`
	}

	params := new(deleteJobParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	if _, ok := app.Queue.Job(params.JobID); !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Unknown job"})
	}
	if !app.Queue.Cancel(params.JobID) {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Job is no longer pending"})
	}

	return c.JSON(http.StatusOK, map[string]bool{"cancelled": true})
}
