package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/coldmailer/coldmailer/internal/repository"
	"github.com/coldmailer/coldmailer/internal/service/enqueue"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type followUpReq struct {
	Subject           string `json:"subject" validate:"required"`
	Body              string `json:"body" validate:"required"`
	DaysAfterPrevious int    `json:"days_after_previous" validate:"required,min=1"`
}

type createCampaignReq struct {
	Name            string        `json:"name" validate:"required"`
	Subject         string        `json:"subject" validate:"required"`
	Body            string        `json:"body" validate:"required"`
	ListName        string        `json:"list_name" validate:"required"`
	SendImmediately bool          `json:"send_immediately"`
	StartAt         *time.Time    `json:"start_at"`
	FollowUps       []followUpReq `json:"follow_ups" validate:"dive"`
}

func createCampaignHandler(enqueueSvc *enqueue.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createCampaignReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if err := c.Validate(&req); err != nil {
			return err
		}

		campaign := model.Campaign{
			Name:            req.Name,
			Subject:         req.Subject,
			Body:            req.Body,
			ListName:        req.ListName,
			SendImmediately: req.SendImmediately,
		}

		defs := make([]model.FollowUpDefinition, 0, len(req.FollowUps))
		for i, f := range req.FollowUps {
			defs = append(defs, model.FollowUpDefinition{
				Sequence:          i + 1,
				Subject:           f.Subject,
				Body:              f.Body,
				DaysAfterPrevious: f.DaysAfterPrevious,
			})
		}

		var startAt time.Time
		if req.StartAt != nil {
			startAt = *req.StartAt
		}

		id, queued, err := enqueueSvc.CreateCampaign(c.Request().Context(), campaign, defs, startAt)
		if err != nil {
			if errors.Is(err, enqueue.ErrEmptyList) {
				return c.JSON(http.StatusUnprocessableEntity, map[string]string{
					"error": "list has no sendable leads",
					"list":  req.ListName,
				})
			}
			log.Errorf("create campaign failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"id":         id,
			"queued":     queued,
			"follow_ups": len(defs),
		})
	}
}

func listCampaignsHandler(campaigns repository.CampaignsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		all, err := campaigns.List(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("list campaigns failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(all),
			"results": all,
		})
	}
}

func getCampaignHandler(campaigns repository.CampaignsRepository, followups repository.FollowUpsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		}

		ctx := c.Request().Context()
		campaign, err := campaigns.GetByID(ctx, id)
		if err != nil {
			c.Logger().Errorf("load campaign failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if campaign == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
		}

		defs, err := followups.ListByCampaign(ctx, id)
		if err != nil {
			c.Logger().Errorf("load follow-ups failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"campaign":   campaign,
			"follow_ups": defs,
		})
	}
}

// queueFollowUpHandler re-runs one drip step for the campaign's list.
func queueFollowUpHandler(enqueueSvc *enqueue.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		}
		seq, err := strconv.Atoi(c.Param("sequence"))
		if err != nil || seq < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid sequence"})
		}

		queued, err := enqueueSvc.QueueFollowUp(c.Request().Context(), id, seq)
		if err != nil {
			switch {
			case errors.Is(err, enqueue.ErrNoSuchCampaign):
				return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
			case errors.Is(err, enqueue.ErrNoSuchSequence):
				return c.JSON(http.StatusNotFound, map[string]string{"error": "follow-up sequence not defined"})
			case errors.Is(err, enqueue.ErrEmptyList):
				return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "list has no sendable leads"})
			}
			log.Errorf("queue follow-up failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"campaign_id": id,
			"sequence":    seq,
			"queued":      queued,
		})
	}
}
