package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// AssignmentsRepository persists the lead↔campaign sending-account pinning.
// The UNIQUE(lead_id, campaign_id) key enforces at most one assignment per
// pair; Upsert keeps the first writer's choice.
type AssignmentsRepository interface {
	Get(ctx context.Context, leadID, campaignID int64) (string, error)
	Upsert(ctx context.Context, leadID, campaignID int64, accountEmail string) error
	All(ctx context.Context) (map[[2]int64]string, error)
	DeleteForLead(ctx context.Context, tx *sqlx.Tx, leadID int64) error
}

type AssignmentsRepositoryImpl struct {
	db *sqlx.DB
}

func NewAssignmentsRepository(db *sqlx.DB) *AssignmentsRepositoryImpl {
	return &AssignmentsRepositoryImpl{db: db}
}

var _ AssignmentsRepository = (*AssignmentsRepositoryImpl)(nil)

// Get returns the assigned account email, or "" when no assignment exists.
func (r *AssignmentsRepositoryImpl) Get(ctx context.Context, leadID, campaignID int64) (string, error) {
	var email string
	err := r.db.GetContext(ctx, &email, `
		SELECT account_email
		  FROM lead_campaign_accounts
		 WHERE lead_id = ? AND campaign_id = ? LIMIT 1
	`, leadID, campaignID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return email, err
}

// Upsert records an assignment. On a concurrent duplicate the existing
// account wins: account_email is left untouched so both writers converge.
func (r *AssignmentsRepositoryImpl) Upsert(ctx context.Context, leadID, campaignID int64, accountEmail string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lead_campaign_accounts (lead_id, campaign_id, account_email, created_at)
		VALUES (?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE account_email = account_email
	`, leadID, campaignID, accountEmail)
	return err
}

// All loads every assignment keyed by (lead, campaign); the dispatch pass
// snapshots this once instead of querying per item.
func (r *AssignmentsRepositoryImpl) All(ctx context.Context) (map[[2]int64]string, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT lead_id, campaign_id, account_email FROM lead_campaign_accounts
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[[2]int64]string)
	for rows.Next() {
		var lead, campaign int64
		var email string
		if err := rows.Scan(&lead, &campaign, &email); err != nil {
			return nil, err
		}
		out[[2]int64{lead, campaign}] = email
	}
	return out, rows.Err()
}

func (r *AssignmentsRepositoryImpl) DeleteForLead(ctx context.Context, tx *sqlx.Tx, leadID int64) error {
	exec := func(e sqlx.ExtContext) error {
		_, err := e.ExecContext(ctx, `
			DELETE FROM lead_campaign_accounts WHERE lead_id = ?
		`, leadID)
		return err
	}
	if tx != nil {
		return exec(tx)
	}
	return exec(r.db)
}
