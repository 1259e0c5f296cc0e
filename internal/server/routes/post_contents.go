package routes

import (
	"errors"
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/graphmill/graphmill/internal/queue"
	"github.com/graphmill/graphmill/internal/server/middleware"
	"github.com/graphmill/graphmill/pkg/common"
)

// PostContentsHandler accepts one scraped content item and enqueues an
// extraction job for it. The response carries the job so the caller can poll
// its result later.
func PostContentsHandler(c echo.Context) error {
	type contentOptions struct {
		IncludeRelationships bool     `json:"include_relationships"`
		IncludeAnalysis      bool     `json:"include_analysis"`
		ConfidenceThreshold  *float64 `json:"confidence_threshold" validate:"omitempty,gte=0,lte=1"`
		MaxChunks            int      `json:"max_chunks" validate:"omitempty,gte=1,lte=50"`
		TimeoutMs            int64    `json:"timeout_ms" validate:"omitempty,gte=1000"`
	}
	type postContentsParams struct {
		SessionID   string         `json:"session_id" validate:"required"`
		ContentID   string         `json:"content_id" validate:"required"`
		Text        string         `json:"text" validate:"required"`
		Title       string         `json:"title"`
		Description string         `json:"description"`
		Options     contentOptions `json:"options"`
	}

	params := new(postContentsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	job, err := app.Queue.Submit(common.ContentInput{
		SessionID:   params.SessionID,
		ContentID:   params.ContentID,
		Text:        params.Text,
		Title:       params.Title,
		Description: params.Description,
		Options: common.ContentOptions{
			IncludeRelationships: params.Options.IncludeRelationships,
			IncludeAnalysis:      params.Options.IncludeAnalysis,
			ConfidenceThreshold:  params.Options.ConfidenceThreshold,
			MaxChunks:            params.Options.MaxChunks,
			TimeoutMs:            params.Options.TimeoutMs,
		},
	})
	if err != nil {
		if errors.Is(err, queue.ErrBudgetExceeded) {
			return c.JSON(http.StatusPaymentRequired, map[string]string{"error": err.Error()})
		}
		var ineligible *queue.IneligibleError
		if errors.As(err, &ineligible) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": ineligible.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusAccepted, job)
}
