package routes

import (
	"errors"
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/graphmill/graphmill/internal/queue"
	"github.com/graphmill/graphmill/internal/server/middleware"
	"github.com/graphmill/graphmill/pkg/store"
)

// GetJobResultHandler returns the stored extraction result for a finished
// job. While the job is still pending or processing the response is 202 with
// the job's current state.
func GetJobResultHandler(c echo.Context) error {
	type getJobResultParams struct {
		JobID string `param:"id" validate:"required"`
	}

	params := new(getJobResultParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	job, ok := app.Queue.Job(params.JobID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Unknown job"})
	}

	switch job.Status {
	case queue.JobPending, queue.JobProcessing:
		return c.JSON(http.StatusAccepted, job)
	case queue.JobCancelled:
		return c.JSON(http.StatusGone, job)
	}

	result, err := app.Store.GetResult(c.Request().Context(), params.JobID)
	if errors.Is(err, store.ErrNotFound) {
		// A failed job may have nothing stored, e.g. after a timeout.
		return c.JSON(http.StatusNotFound, map[string]any{
			"error": "No result for job",
			"job":   job,
		})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"job":    job,
		"result": result,
	})
}
