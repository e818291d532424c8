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
	"github.com/coldmailer/coldmailer/internal/imapwatch"
	"github.com/coldmailer/coldmailer/internal/logger"
	"github.com/coldmailer/coldmailer/internal/metrics"
	"github.com/coldmailer/coldmailer/internal/repository"
	"github.com/coldmailer/coldmailer/internal/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var repliesCmd = &cobra.Command{
	Use:   "replies",
	Short: "Run the IMAP reply watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.LogLevel)

		metrics.MustRegister(prometheus.DefaultRegisterer)

		dbx, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		v, err := vault.New(cfg.Vault.KeyHex)
		if err != nil {
			return fmt.Errorf("vault init: %w", err)
		}

		lookback := cfg.IMAP.Lookback
		if lookback <= 0 {
			lookback = 48 * time.Hour
		}

		w := &imapwatch.Watcher{
			DB:          dbx,
			Accounts:    repository.NewAccountsRepository(dbx),
			Leads:       repository.NewLeadsRepository(dbx),
			Queue:       repository.NewQueueRepository(dbx),
			Assignments: repository.NewAssignmentsRepository(dbx),
			Vault:       v,
			Log:         logger.L(),
			Lookback:    lookback,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		interval := cfg.IMAP.Interval
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		log.Printf(">> reply watcher started interval=%s lookback=%s", interval, lookback)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			w.RunPass(ctx)

			select {
			case <-ctx.Done():
				log.Println(">> reply watcher stopped")
				return nil
			case <-ticker.C:
			}
		}
	},
}
