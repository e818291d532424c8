package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coldmailer/coldmailer/internal/config"
	"github.com/coldmailer/coldmailer/internal/db"
	"github.com/coldmailer/coldmailer/internal/engine"
	"github.com/coldmailer/coldmailer/internal/events"
	"github.com/coldmailer/coldmailer/internal/logger"
	"github.com/coldmailer/coldmailer/internal/metrics"
	"github.com/coldmailer/coldmailer/internal/repository"
	"github.com/coldmailer/coldmailer/internal/smtp"
	"github.com/coldmailer/coldmailer/internal/tracking"
	"github.com/coldmailer/coldmailer/internal/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// dispatchLockKey serializes passes across replicas; the TTL covers a
// crashed holder.
const dispatchLockKey = "coldmailer:dispatch:lock"

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run the batch dispatch loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.LogLevel)

		metrics.MustRegister(prometheus.DefaultRegisterer)

		// 2) DB connection (MySQL)
		dbx, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		rds, err := db.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = rds.Close() }()

		v, err := vault.New(cfg.Vault.KeyHex)
		if err != nil {
			return fmt.Errorf("vault init: %w", err)
		}

		pub := events.NewPublisher(cfg.Kafka)
		defer func() { _ = pub.Close() }()

		// 3) engine
		eng := &engine.Engine{
			Queue:       repository.NewQueueRepository(dbx),
			Quota:       repository.NewQuotaRepository(dbx),
			Assignments: repository.NewAssignmentsRepository(dbx),
			FollowUps:   repository.NewFollowUpsRepository(dbx),
			Leads:       repository.NewLeadsRepository(dbx),
			Accounts:    repository.NewAccountsRepository(dbx),
			Vault:       v,
			Sender:      smtp.NewSender(cfg.SMTP.Timeout),
			Events:      pub,
			Rewriter:    tracking.NewRewriter(cfg.Tracking.BaseURL),
			Log:         logger.L(),
			BatchSize:   cfg.Dispatch.BatchSize,
			MaxAttempts: cfg.Dispatch.MaxAttempts,
			ClaimTTL:    cfg.Dispatch.ClaimTTL,
		}

		// 4) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		interval := cfg.Dispatch.Interval
		if interval <= 0 {
			interval = time.Minute
		}

		log.Printf(">> dispatch loop started interval=%s batchSize=%d claimTTL=%s",
			interval, eng.BatchSize, eng.ClaimTTL)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			runLockedPass(ctx, eng, rds, cfg.Dispatch.LockTTL)

			select {
			case <-ctx.Done():
				log.Println(">> dispatch loop stopped")
				return nil
			case <-ticker.C:
			}
		}
	},
}

// runLockedPass runs one pass under the cross-replica redis lock. Losing
// the lock race just means another replica is dispatching this tick.
func runLockedPass(ctx context.Context, eng *engine.Engine, rds *redis.Client, lockTTL time.Duration) {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}

	ok, err := rds.SetNX(ctx, dispatchLockKey, "1", lockTTL).Result()
	if err != nil {
		log.Printf("dispatch lock: %v", err)
		return
	}
	if !ok {
		return
	}
	defer rds.Del(context.WithoutCancel(ctx), dispatchLockKey)

	rep, err := eng.RunPass(ctx)
	if err != nil {
		log.Printf("dispatch pass: %v", err)
		return
	}
	if rep.Fetched > 0 {
		log.Printf("dispatch pass: fetched=%d sent=%d failed=%d skipped=%d followups=%d halted=%t",
			rep.Fetched, rep.Sent, rep.Failed, rep.Skipped, rep.FollowUpsQueued, rep.Halted)
	}
}
