package model

import "time"

// LeadCampaignAssignment pins a lead's whole campaign sequence to one
// sending account. At most one row per (lead, campaign).
type LeadCampaignAssignment struct {
	LeadID       int64     `db:"lead_id"`
	CampaignID   int64     `db:"campaign_id"`
	AccountEmail string    `db:"account_email"`
	CreatedAt    time.Time `db:"created_at"`
}
