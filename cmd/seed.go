package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/coldmailer/coldmailer/internal/config"
	"github.com/coldmailer/coldmailer/internal/db"
	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/coldmailer/coldmailer/internal/vault"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo sending accounts and leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		v, err := vault.New(cfg.Vault.KeyHex)
		if err != nil {
			return fmt.Errorf("vault init: %w", err)
		}

		log.Println(">> Seeding demo accounts and leads...")

		if err := seedAccounts(sqlDB, v); err != nil {
			return err
		}
		if err := seedLeads(sqlDB); err != nil {
			return err
		}
		if err := seedCampaign(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedAccounts inserts 3 deterministic demo sending accounts (idempotent).
// Passwords are sealed with the configured vault key, so seeds from one
// environment are unreadable in another.
func seedAccounts(dbx *sqlx.DB, v *vault.Vault) error {
	type demoAccount struct {
		email, name, host, username, password string
		port                                  int
		imapHost                              string
		imapPort                              int
	}
	accounts := []demoAccount{
		{
			email: "alice@demo.test", name: "Alice Demo",
			host: "smtp.demo.test", port: 587,
			username: "alice@demo.test", password: "alice-demo-password",
			imapHost: "imap.demo.test", imapPort: 993,
		},
		{
			email: "bob@demo.test", name: "Bob Demo",
			host: "smtp.demo.test", port: 587,
			username: "bob@demo.test", password: "bob-demo-password",
			imapHost: "imap.demo.test", imapPort: 993,
		},
		{
			email: "carol@demo.test", name: "Carol Demo",
			host: "smtp.demo.test", port: 587,
			username: "carol@demo.test", password: "carol-demo-password",
		},
	}

	// idempotent upsert based on email (UNIQUE)
	const q = `
INSERT INTO smtp_accounts
    (email, display_name, smtp_host, smtp_port, smtp_username, sealed_smtp_password,
     imap_host, imap_port, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, 0), ?, ?)
ON DUPLICATE KEY UPDATE
    display_name = VALUES(display_name),
    smtp_host    = VALUES(smtp_host),
    smtp_port    = VALUES(smtp_port),
    updated_at   = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, a := range accounts {
		sealed, err := v.Seal(a.password)
		if err != nil {
			return fmt.Errorf("seal password for %q: %w", a.email, err)
		}
		if _, err := tx.Exec(q, a.email, a.name, a.host, a.port, a.username, sealed,
			a.imapHost, a.imapPort, now, now); err != nil {
			return fmt.Errorf("insert account %q: %w", a.email, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit accounts: %w", err)
	}
	return nil
}

// seedLeads inserts a small demo list (idempotent by email).
func seedLeads(dbx *sqlx.DB) error {
	leads := []model.Lead{
		{Email: "lead1@demo.test", Name: "Dana", LastName: "Smith", City: "Austin", Brokerage: "Acme Realty", Service: "listings", ListName: "demo"},
		{Email: "lead2@demo.test", Name: "Evan", LastName: "Jones", City: "Denver", Brokerage: "Summit Homes", Service: "valuation", ListName: "demo"},
		{Email: "lead3@demo.test", Name: "Faye", LastName: "Chen", City: "Seattle", Brokerage: "Puget Group", Service: "listings", ListName: "demo"},
	}

	const q = `
INSERT INTO leads
    (email, name, last_name, city, brokerage, service, list_name, custom_fields, created_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?, '{}', ?)
ON DUPLICATE KEY UPDATE
    name      = VALUES(name),
    last_name = VALUES(last_name),
    city      = VALUES(city),
    list_name = VALUES(list_name)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, l := range leads {
		if _, err := tx.Exec(q, l.Email, l.Name, l.LastName, l.City, l.Brokerage, l.Service, l.ListName, now); err != nil {
			return fmt.Errorf("insert lead %q: %w", l.Email, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit leads: %w", err)
	}
	return nil
}

// seedCampaign inserts one demo campaign with a two-step drip chain.
// Queue rows are not seeded; create them through the API or the enqueue
// service so scheduling goes through the normal path.
func seedCampaign(dbx *sqlx.DB) error {
	const name = "demo-campaign"

	var n int
	if err := dbx.Get(&n, `SELECT COUNT(*) FROM campaigns WHERE name = ?`, name); err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	if n > 0 {
		return nil
	}

	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.Exec(`
		INSERT INTO campaigns (name, subject, body, list_name, send_immediately, created_at)
		VALUES (?, ?, ?, ?, FALSE, NOW())
	`, name,
		"Quick question, {name}",
		"Hi {name},\n\nSaw {brokerage} is active in {city}. Worth a chat?\n\nCheck out <a href=\"https://example.com/deck\">our deck</a>.",
		"demo")
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	campaignID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("campaign id: %w", err)
	}

	followups := []model.FollowUpDefinition{
		{CampaignID: campaignID, Sequence: 1, Subject: "Re: Quick question, {name}",
			Body: "Hi {name},\n\nBumping this up in case it got buried.", DaysAfterPrevious: 3},
		{CampaignID: campaignID, Sequence: 2, Subject: "Re: Quick question, {name}",
			Body: "Hi {name},\n\nLast note from me. Happy to reconnect whenever timing is better.", DaysAfterPrevious: 4},
	}
	for _, f := range followups {
		if _, err := tx.Exec(`
			INSERT INTO campaign_followups (campaign_id, sequence, subject, body, days_after_previous)
			VALUES (?, ?, ?, ?, ?)
		`, f.CampaignID, f.Sequence, f.Subject, f.Body, f.DaysAfterPrevious); err != nil {
			return fmt.Errorf("insert follow-up %d: %w", f.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit campaign: %w", err)
	}
	return nil
}
