package repository

import (
	"context"
	"database/sql"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/jmoiron/sqlx"
)

type FollowUpsRepository interface {
	// Get returns nil (not an error) when no definition exists for the
	// sequence: that is how a drip chain ends.
	Get(ctx context.Context, campaignID int64, sequence int) (*model.FollowUpDefinition, error)
	InsertBatch(ctx context.Context, tx *sqlx.Tx, defs []model.FollowUpDefinition) error
	ListByCampaign(ctx context.Context, campaignID int64) ([]model.FollowUpDefinition, error)
}

type FollowUpsRepositoryImpl struct {
	db *sqlx.DB
}

func NewFollowUpsRepository(db *sqlx.DB) *FollowUpsRepositoryImpl {
	return &FollowUpsRepositoryImpl{db: db}
}

var _ FollowUpsRepository = (*FollowUpsRepositoryImpl)(nil)

func (r *FollowUpsRepositoryImpl) Get(ctx context.Context, campaignID int64, sequence int) (*model.FollowUpDefinition, error) {
	var def model.FollowUpDefinition
	err := r.db.GetContext(ctx, &def, `
		SELECT id, campaign_id, sequence, subject, body, days_after_previous
		  FROM campaign_followups
		 WHERE campaign_id = ? AND sequence = ? LIMIT 1
	`, campaignID, sequence)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (r *FollowUpsRepositoryImpl) InsertBatch(ctx context.Context, tx *sqlx.Tx, defs []model.FollowUpDefinition) error {
	if len(defs) == 0 {
		return nil
	}
	const q = `
		INSERT INTO campaign_followups (campaign_id, sequence, subject, body, days_after_previous)
		VALUES (:campaign_id, :sequence, :subject, :body, :days_after_previous)
	`
	if tx != nil {
		_, err := tx.NamedExecContext(ctx, q, defs)
		return err
	}
	_, err := r.db.NamedExecContext(ctx, q, defs)
	return err
}

func (r *FollowUpsRepositoryImpl) ListByCampaign(ctx context.Context, campaignID int64) ([]model.FollowUpDefinition, error) {
	var out []model.FollowUpDefinition
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, campaign_id, sequence, subject, body, days_after_previous
		  FROM campaign_followups
		 WHERE campaign_id = ?
		 ORDER BY sequence
	`, campaignID)
	return out, err
}
