package model

import (
	"database/sql"
	"time"
)

// SendingAccount is a configured SMTP identity the engine can send from.
// Relay credentials are stored vault-sealed; the engine only opens them
// transiently around a send.
type SendingAccount struct {
	ID                 int64          `db:"id"`
	Email              string         `db:"email"`
	DisplayName        string         `db:"display_name"`
	SMTPHost           string         `db:"smtp_host"`
	SMTPPort           int            `db:"smtp_port"`
	SMTPUsername       string         `db:"smtp_username"`
	SealedSMTPPassword string         `db:"sealed_smtp_password"`
	IMAPHost           sql.NullString `db:"imap_host"`
	IMAPPort           sql.NullInt64  `db:"imap_port"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

// HasIMAP reports whether the account can be polled for replies.
func (a SendingAccount) HasIMAP() bool {
	return a.IMAPHost.Valid && a.IMAPHost.String != "" && a.IMAPPort.Valid
}
