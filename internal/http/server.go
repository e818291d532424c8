package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/coldmailer/coldmailer/internal/config"
	"github.com/coldmailer/coldmailer/internal/events"
	"github.com/coldmailer/coldmailer/internal/http/middleware"
	"github.com/coldmailer/coldmailer/internal/metrics"
	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/coldmailer/coldmailer/internal/repository"
	"github.com/coldmailer/coldmailer/internal/service/enqueue"
	"github.com/coldmailer/coldmailer/internal/smtp"
	"github.com/coldmailer/coldmailer/internal/vault"
	"github.com/jmoiron/sqlx"
	echo "github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, v *vault.Vault, pub *events.Publisher) *Server {
	// repos (MySQL)
	accountsRepo := repository.NewAccountsRepository(mysqlDB)
	campaignsRepo := repository.NewCampaignsRepository(mysqlDB)
	followUpsRepo := repository.NewFollowUpsRepository(mysqlDB)
	leadsRepo := repository.NewLeadsRepository(mysqlDB)
	queueRepo := repository.NewQueueRepository(mysqlDB)
	quotaRepo := repository.NewQuotaRepository(mysqlDB)
	clicksRepo := repository.NewClicksRepository(mysqlDB)

	// repos (ClickHouse)
	chEventsRepo := repository.NewCHEventsRepository(clickhouseDB)

	// services
	enqueueSvc := enqueue.New(mysqlDB, campaignsRepo, followUpsRepo, leadsRepo, queueRepo)
	sender := smtp.NewSender(cfg.SMTP.Timeout)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Validator = newRequestValidator()
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// click redirect is the one public route: it is hit from recipients'
	// mail clients and must never require auth
	var publish func(echo.Context, model.SendEvent)
	if pub != nil {
		publish = func(c echo.Context, ev model.SendEvent) {
			pub.Publish(c.Request().Context(), ev)
		}
	}
	e.GET("/track/:lead_id/:campaign_id", trackHandler(clicksRepo, publish))

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.HTTP.APIKey)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:admin:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/accounts", createAccountHandler(accountsRepo, v, sender))
	v1.GET("/accounts/status", accountStatusHandler(accountsRepo, quotaRepo))
	v1.POST("/campaigns", createCampaignHandler(enqueueSvc))
	v1.GET("/campaigns", listCampaignsHandler(campaignsRepo))
	v1.GET("/campaigns/:id", getCampaignHandler(campaignsRepo, followUpsRepo))
	v1.GET("/campaigns/:id/clicks", campaignClicksHandler(clicksRepo))
	v1.POST("/campaigns/:id/followups/:sequence/queue", queueFollowUpHandler(enqueueSvc))
	v1.POST("/leads/import", importLeadsHandler(leadsRepo))
	v1.GET("/leads", listLeadsHandler(leadsRepo))
	v1.GET("/leads/lists", listLeadListsHandler(leadsRepo))
	v1.GET("/leads/:id/clicks", leadClicksHandler(clicksRepo))
	v1.GET("/reports/events", listEventsHandler(chEventsRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
