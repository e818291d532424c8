package http

import (
	"net/http"
	"strconv"

	"github.com/coldmailer/coldmailer/internal/repository"
	echo "github.com/labstack/echo/v4"
)

func clickLimit(c echo.Context) int {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	return limit
}

func campaignClicksHandler(clicks repository.ClicksRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		}
		rows, err := clicks.ListByCampaign(c.Request().Context(), id, clickLimit(c))
		if err != nil {
			c.Logger().Errorf("list clicks failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(rows), "results": rows})
	}
}

func leadClicksHandler(clicks repository.ClicksRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		}
		rows, err := clicks.ListByLead(c.Request().Context(), id, clickLimit(c))
		if err != nil {
			c.Logger().Errorf("list clicks failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(rows), "results": rows})
	}
}
