package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// EventRow is one analytics event from the ClickHouse read side. The table
// is fed from the email.events Kafka topic by an external pipeline.
type EventRow struct {
	Type        string    `db:"type"`
	QueueItemID string    `db:"queue_item_id"`
	CampaignID  int64     `db:"campaign_id"`
	LeadID      int64     `db:"lead_id"`
	Account     string    `db:"account"`
	Sequence    int       `db:"sequence"`
	URL         string    `db:"url"`
	At          time.Time `db:"at"`
}

// CHEventsRepository lists send/click events from ClickHouse.
type CHEventsRepository interface {
	List(ctx context.Context, campaignID int64, eventType string, limit, offset int) ([]EventRow, error)
}

type chEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHEventsRepository(ch *sqlx.DB) CHEventsRepository {
	return &chEventsRepository{ch: ch}
}

func (r *chEventsRepository) List(ctx context.Context, campaignID int64, eventType string, limit, offset int) ([]EventRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT type, queue_item_id, campaign_id, lead_id, account, sequence, url, at
		FROM coldmailer.email_events
		WHERE 1 = 1
	`
	args := []any{}

	if campaignID > 0 {
		q += " AND campaign_id = ?"
		args = append(args, campaignID)
	}
	if eventType != "" {
		q += " AND type = ?"
		args = append(args, eventType)
	}

	q += " ORDER BY at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []EventRow
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
