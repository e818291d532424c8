package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/jmoiron/sqlx"
)

type ListSummary struct {
	ListName  string `db:"list_name"`
	LeadCount int    `db:"lead_count"`
}

type LeadsRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Lead, error)
	GetByEmail(ctx context.Context, email string) (*model.Lead, error)
	ListByList(ctx context.Context, listName string) ([]model.Lead, error)
	Lists(ctx context.Context) ([]ListSummary, error)
	UpsertBatch(ctx context.Context, leads []model.Lead) error
	MarkResponded(ctx context.Context, tx *sqlx.Tx, leadID int64, at time.Time) error
	CopyToResponded(ctx context.Context, tx *sqlx.Tx, lead model.Lead) error
}

type LeadsRepositoryImpl struct {
	db *sqlx.DB
}

func NewLeadsRepository(db *sqlx.DB) *LeadsRepositoryImpl {
	return &LeadsRepositoryImpl{db: db}
}

var _ LeadsRepository = (*LeadsRepositoryImpl)(nil)

const leadColumns = `id, email, name, last_name, city, brokerage, service,
	list_name, custom_fields, responded, responded_at, created_at`

func (r *LeadsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Lead, error) {
	var l model.Lead
	err := r.db.GetContext(ctx, &l, `
		SELECT `+leadColumns+` FROM leads WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LeadsRepositoryImpl) GetByEmail(ctx context.Context, email string) (*model.Lead, error) {
	var l model.Lead
	err := r.db.GetContext(ctx, &l, `
		SELECT `+leadColumns+` FROM leads WHERE email = ? LIMIT 1
	`, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LeadsRepositoryImpl) ListByList(ctx context.Context, listName string) ([]model.Lead, error) {
	var out []model.Lead
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+leadColumns+` FROM leads WHERE list_name = ? ORDER BY id
	`, listName)
	return out, err
}

func (r *LeadsRepositoryImpl) Lists(ctx context.Context) ([]ListSummary, error) {
	var out []ListSummary
	err := r.db.SelectContext(ctx, &out, `
		SELECT list_name, COUNT(*) AS lead_count
		  FROM leads
		 GROUP BY list_name
		 ORDER BY list_name
	`)
	return out, err
}

// UpsertBatch imports leads keyed by email: re-imports refresh the profile
// columns but never reset the responded flag.
func (r *LeadsRepositoryImpl) UpsertBatch(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	const q = `
		INSERT INTO leads
		    (email, name, last_name, city, brokerage, service, list_name, custom_fields, created_at)
		VALUES (:email, :name, :last_name, :city, :brokerage, :service, :list_name, :custom_fields, NOW())
		ON DUPLICATE KEY UPDATE
		    name          = VALUES(name),
		    last_name     = VALUES(last_name),
		    city          = VALUES(city),
		    brokerage     = VALUES(brokerage),
		    service       = VALUES(service),
		    list_name     = VALUES(list_name),
		    custom_fields = VALUES(custom_fields)
	`
	_, err := r.db.NamedExecContext(ctx, q, leads)
	return err
}

func (r *LeadsRepositoryImpl) MarkResponded(ctx context.Context, tx *sqlx.Tx, leadID int64, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE leads SET responded = TRUE, responded_at = ? WHERE id = ?
	`, at, leadID)
	return err
}

// CopyToResponded archives the lead into responded_leads for reporting.
func (r *LeadsRepositoryImpl) CopyToResponded(ctx context.Context, tx *sqlx.Tx, lead model.Lead) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO responded_leads
		    (original_lead_id, email, name, last_name, city, brokerage, service,
		     list_name, custom_fields, responded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())
	`, lead.ID, lead.Email, lead.Name, lead.LastName, lead.City, lead.Brokerage,
		lead.Service, lead.ListName, lead.CustomFields)
	return err
}
