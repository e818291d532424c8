package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/coldmailer/coldmailer/internal/repository"
	echo "github.com/labstack/echo/v4"
)

// listEventsHandler serves send/fail/click events from the ClickHouse
// read side, fed asynchronously from the events topic. It can lag the
// MySQL state by the pipeline's flush interval.
func listEventsHandler(chRepo repository.CHEventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		var campaignID int64
		if raw := c.QueryParam("campaign_id"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n <= 0 {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid campaign_id"})
			}
			campaignID = n
		}

		eventType := strings.TrimSpace(c.QueryParam("type"))
		switch eventType {
		case "", "sent", "failed", "click":
		default:
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid type"})
		}

		rows, err := chRepo.List(c.Request().Context(), campaignID, eventType, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
