package http

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/coldmailer/coldmailer/internal/metrics"
	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/coldmailer/coldmailer/internal/repository"
	echo "github.com/labstack/echo/v4"
)

// trackHandler records the click and bounces the visitor to the real
// destination. The redirect is the contract with the recipient: a
// malformed lead or campaign ID in the path degrades the analytics row
// to NULLs, it never breaks the link.
func trackHandler(clicks repository.ClicksRepository, publish func(echo.Context, model.SendEvent)) echo.HandlerFunc {
	return func(c echo.Context) error {
		target := c.QueryParam("url")
		if target == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing url"})
		}

		click := model.LinkClick{
			LeadID:     parseNullableID(c.Param("lead_id")),
			CampaignID: parseNullableID(c.Param("campaign_id")),
			URL:        target,
			ClickedAt:  time.Now().UTC(),
		}
		if eqid := c.QueryParam("eqid"); eqid != "" {
			click.QueueItemID = sql.NullString{String: eqid, Valid: true}
		}

		if err := clicks.Insert(c.Request().Context(), click); err != nil {
			c.Logger().Errorf("record click failed: %v", err)
		} else {
			metrics.ClicksTotal.Inc()
		}

		if publish != nil {
			publish(c, model.SendEvent{
				Type:        model.EventClick,
				QueueItemID: click.QueueItemID.String,
				CampaignID:  click.CampaignID.Int64,
				LeadID:      click.LeadID.Int64,
				URL:         target,
				At:          click.ClickedAt,
			})
		}

		return c.Redirect(http.StatusFound, target)
	}
}

func parseNullableID(raw string) sql.NullInt64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}
