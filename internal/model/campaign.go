package model

import "time"

// Campaign is the top of a drip sequence: the initial subject/body plus
// zero or more follow-up definitions.
type Campaign struct {
	ID              int64     `db:"id"`
	Name            string    `db:"name"`
	Subject         string    `db:"subject"`
	Body            string    `db:"body"`
	ListName        string    `db:"list_name"`
	SendImmediately bool      `db:"send_immediately"`
	CreatedAt       time.Time `db:"created_at"`
}

// FollowUpDefinition is one step of a campaign's drip chain. Sequence 1 is
// the first follow-up; sequence 0 is always the campaign's own subject/body.
type FollowUpDefinition struct {
	ID                int64  `db:"id"`
	CampaignID        int64  `db:"campaign_id"`
	Sequence          int    `db:"sequence"`
	Subject           string `db:"subject"`
	Body              string `db:"body"`
	DaysAfterPrevious int    `db:"days_after_previous"`
}
