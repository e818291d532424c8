package repository

import (
	"context"
	"database/sql"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/jmoiron/sqlx"
)

type CampaignsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, c model.Campaign) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	List(ctx context.Context) ([]model.Campaign, error)
}

type CampaignsRepositoryImpl struct {
	db *sqlx.DB
}

func NewCampaignsRepository(db *sqlx.DB) *CampaignsRepositoryImpl {
	return &CampaignsRepositoryImpl{db: db}
}

var _ CampaignsRepository = (*CampaignsRepositoryImpl)(nil)

func (r *CampaignsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, c model.Campaign) (int64, error) {
	const q = `
		INSERT INTO campaigns (name, subject, body, list_name, send_immediately, created_at)
		VALUES (?, ?, ?, ?, ?, NOW())
	`
	var res sql.Result
	var err error
	if tx != nil {
		res, err = tx.ExecContext(ctx, q, c.Name, c.Subject, c.Body, c.ListName, c.SendImmediately)
	} else {
		res, err = r.db.ExecContext(ctx, q, c.Name, c.Subject, c.Body, c.ListName, c.SendImmediately)
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *CampaignsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var c model.Campaign
	err := r.db.GetContext(ctx, &c, `
		SELECT id, name, subject, body, list_name, send_immediately, created_at
		  FROM campaigns WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignsRepositoryImpl) List(ctx context.Context) ([]model.Campaign, error) {
	var out []model.Campaign
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, name, subject, body, list_name, send_immediately, created_at
		  FROM campaigns ORDER BY created_at DESC
	`)
	return out, err
}
