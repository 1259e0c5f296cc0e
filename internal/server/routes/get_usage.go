package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphmill/graphmill/internal/server/middleware"
)

// GetUsageHandler exposes today's spend against the daily cost limit.
func GetUsageHandler(c echo.Context) error {
	governor := c.(*middleware.AppContext).App.Governor

	return c.JSON(http.StatusOK, map[string]float64{
		"todays_spend":     governor.TodaySpend(),
		"daily_limit":      governor.DailyLimit(),
		"remaining_budget": governor.RemainingBudget(),
	})
}
