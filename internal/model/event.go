package model

import "time"

type EventType string

const (
	EventSent   EventType = "sent"
	EventFailed EventType = "failed"
	EventClick  EventType = "click"
)

// SendEvent is the payload published to the email.events Kafka topic for
// analytics. The ClickHouse events table is fed from this topic.
type SendEvent struct {
	Type        EventType `json:"type"`
	QueueItemID string    `json:"queue_item_id,omitempty"`
	CampaignID  int64     `json:"campaign_id,omitempty"`
	LeadID      int64     `json:"lead_id,omitempty"`
	Account     string    `json:"account,omitempty"`
	Sequence    int       `json:"sequence"`
	URL         string    `json:"url,omitempty"`
	At          time.Time `json:"at"`
}
