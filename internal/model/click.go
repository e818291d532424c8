package model

import (
	"database/sql"
	"time"
)

// LinkClick is a recorded click on a tracking-rewritten link. Lead and
// campaign IDs are nullable: the redirect must still work when identifiers
// in the tracking URL fail to parse.
type LinkClick struct {
	ID          int64          `db:"id"`
	LeadID      sql.NullInt64  `db:"lead_id"`
	CampaignID  sql.NullInt64  `db:"campaign_id"`
	URL         string         `db:"url"`
	QueueItemID sql.NullString `db:"queue_item_id"`
	ClickedAt   time.Time      `db:"clicked_at"`
}
