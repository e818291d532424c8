package model

import (
	"database/sql"
	"time"
)

type QueueStatus string

const (
	StatusQueued QueueStatus = "queued"
	StatusDead   QueueStatus = "dead"
)

func (s QueueStatus) String() string { return string(s) }

// QueueItem is one scheduled message in the email_queue table.
// scheduled_for is fixed at enqueue time; sent_at transitions NULL to
// non-NULL exactly once, stamped together with sent_from.
type QueueItem struct {
	ID           string         `db:"id"` // ULID
	CampaignID   int64          `db:"campaign_id"`
	LeadID       int64          `db:"lead_id"`
	LeadEmail    string         `db:"lead_email"`
	Subject      string         `db:"subject"`
	Body         string         `db:"body"`
	Sequence     int            `db:"sequence"` // 0 = initial send
	ScheduledFor time.Time      `db:"scheduled_for"`
	SentAt       sql.NullTime   `db:"sent_at"`
	SentFrom     sql.NullString `db:"sent_from"`
	ClaimedAt    sql.NullTime   `db:"claimed_at"`
	Attempts     int            `db:"attempts"`
	Status       QueueStatus    `db:"status"`
	CreatedAt    time.Time      `db:"created_at"`
}
