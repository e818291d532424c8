package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/coldmailer/coldmailer/internal/repository"
	"github.com/coldmailer/coldmailer/internal/vault"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type createAccountReq struct {
	Email        string `json:"email" validate:"required,email"`
	DisplayName  string `json:"display_name" validate:"required"`
	SMTPHost     string `json:"smtp_host" validate:"required,hostname"`
	SMTPPort     int    `json:"smtp_port" validate:"required,min=1,max=65535"`
	SMTPUsername string `json:"smtp_username" validate:"required"`
	SMTPPassword string `json:"smtp_password" validate:"required"`
	IMAPHost     string `json:"imap_host" validate:"omitempty,hostname"`
	IMAPPort     int    `json:"imap_port" validate:"omitempty,min=1,max=65535"`
}

// relayVerifier checks SMTP credentials without sending.
type relayVerifier interface {
	Verify(ctx context.Context, account model.SendingAccount, password string) error
}

// createAccountHandler verifies the relay login, then seals the password
// before it ever touches MySQL. The plaintext exists only in this
// request's memory.
func createAccountHandler(accounts repository.AccountsRepository, v *vault.Vault, verifier relayVerifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createAccountReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if err := c.Validate(&req); err != nil {
			return err
		}

		probe := model.SendingAccount{
			Email:        req.Email,
			SMTPHost:     req.SMTPHost,
			SMTPPort:     req.SMTPPort,
			SMTPUsername: req.SMTPUsername,
		}
		if err := verifier.Verify(c.Request().Context(), probe, req.SMTPPassword); err != nil {
			log.Warnf("relay verification failed for %s: %v", req.Email, err)
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{
				"error": "relay login failed",
			})
		}

		sealed, err := v.Seal(req.SMTPPassword)
		if err != nil {
			log.Errorf("seal credentials: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "vault error"})
		}

		acc := model.SendingAccount{
			Email:              req.Email,
			DisplayName:        req.DisplayName,
			SMTPHost:           req.SMTPHost,
			SMTPPort:           req.SMTPPort,
			SMTPUsername:       req.SMTPUsername,
			SealedSMTPPassword: sealed,
		}
		if req.IMAPHost != "" && req.IMAPPort > 0 {
			acc.IMAPHost = sql.NullString{String: req.IMAPHost, Valid: true}
			acc.IMAPPort = sql.NullInt64{Int64: int64(req.IMAPPort), Valid: true}
		}

		id, err := accounts.Insert(c.Request().Context(), acc)
		if err != nil {
			log.Errorf("insert account: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"id":    id,
			"email": acc.Email,
		})
	}
}

type accountStatus struct {
	Email     string `json:"email"`
	SentToday int    `json:"sent_today"`
	Remaining int    `json:"remaining"`
	HasIMAP   bool   `json:"has_imap"`
}

// accountStatusHandler reports per-account quota consumption for the
// current UTC day.
func accountStatusHandler(accounts repository.AccountsRepository, quota repository.QuotaRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		all, err := accounts.All(ctx)
		if err != nil {
			c.Logger().Errorf("list accounts failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		today := time.Now().UTC().Format("2006-01-02")
		counts, err := quota.CountsForDate(ctx, today)
		if err != nil {
			c.Logger().Errorf("quota counts failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		statuses := make([]accountStatus, 0, len(all))
		for _, a := range all {
			sent := counts[a.Email]
			remaining := model.DailyQuotaCap - sent
			if remaining < 0 {
				remaining = 0
			}
			statuses = append(statuses, accountStatus{
				Email:     a.Email,
				SentToday: sent,
				Remaining: remaining,
				HasIMAP:   a.HasIMAP(),
			})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"date":     today,
			"cap":      model.DailyQuotaCap,
			"accounts": statuses,
		})
	}
}
