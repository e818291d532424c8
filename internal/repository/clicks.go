package repository

import (
	"context"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/jmoiron/sqlx"
)

type ClicksRepository interface {
	Insert(ctx context.Context, c model.LinkClick) error
	ListByCampaign(ctx context.Context, campaignID int64, limit int) ([]model.LinkClick, error)
	ListByLead(ctx context.Context, leadID int64, limit int) ([]model.LinkClick, error)
}

type ClicksRepositoryImpl struct {
	db *sqlx.DB
}

func NewClicksRepository(db *sqlx.DB) *ClicksRepositoryImpl {
	return &ClicksRepositoryImpl{db: db}
}

var _ ClicksRepository = (*ClicksRepositoryImpl)(nil)

func (r *ClicksRepositoryImpl) Insert(ctx context.Context, c model.LinkClick) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_clicks (lead_id, campaign_id, url, queue_item_id, clicked_at)
		VALUES (?, ?, ?, ?, NOW())
	`, c.LeadID, c.CampaignID, c.URL, c.QueueItemID)
	return err
}

func (r *ClicksRepositoryImpl) ListByCampaign(ctx context.Context, campaignID int64, limit int) ([]model.LinkClick, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []model.LinkClick
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, lead_id, campaign_id, url, queue_item_id, clicked_at
		  FROM link_clicks
		 WHERE campaign_id = ?
		 ORDER BY clicked_at DESC
		 LIMIT ?
	`, campaignID, limit)
	return out, err
}

func (r *ClicksRepositoryImpl) ListByLead(ctx context.Context, leadID int64, limit int) ([]model.LinkClick, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []model.LinkClick
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, lead_id, campaign_id, url, queue_item_id, clicked_at
		  FROM link_clicks
		 WHERE lead_id = ?
		 ORDER BY clicked_at DESC
		 LIMIT ?
	`, leadID, limit)
	return out, err
}
