package repository

import (
	"context"
	"database/sql"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/jmoiron/sqlx"
)

type AccountsRepository interface {
	All(ctx context.Context) ([]model.SendingAccount, error)
	GetByEmail(ctx context.Context, email string) (*model.SendingAccount, error)
	WithIMAP(ctx context.Context) ([]model.SendingAccount, error)
	Insert(ctx context.Context, a model.SendingAccount) (int64, error)
}

type AccountsRepositoryImpl struct {
	db *sqlx.DB
}

func NewAccountsRepository(db *sqlx.DB) *AccountsRepositoryImpl {
	return &AccountsRepositoryImpl{db: db}
}

var _ AccountsRepository = (*AccountsRepositoryImpl)(nil)

const accountColumns = `id, email, display_name, smtp_host, smtp_port, smtp_username,
	sealed_smtp_password, imap_host, imap_port, created_at, updated_at`

func (r *AccountsRepositoryImpl) All(ctx context.Context) ([]model.SendingAccount, error) {
	var out []model.SendingAccount
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+accountColumns+`
		  FROM smtp_accounts
		 ORDER BY email
	`)
	return out, err
}

func (r *AccountsRepositoryImpl) GetByEmail(ctx context.Context, email string) (*model.SendingAccount, error) {
	var a model.SendingAccount
	err := r.db.GetContext(ctx, &a, `
		SELECT `+accountColumns+`
		  FROM smtp_accounts
		 WHERE email = ? LIMIT 1
	`, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// WithIMAP lists accounts the reply watcher can poll.
func (r *AccountsRepositoryImpl) WithIMAP(ctx context.Context) ([]model.SendingAccount, error) {
	var out []model.SendingAccount
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+accountColumns+`
		  FROM smtp_accounts
		 WHERE imap_host IS NOT NULL AND imap_host <> ''
		 ORDER BY email
	`)
	return out, err
}

func (r *AccountsRepositoryImpl) Insert(ctx context.Context, a model.SendingAccount) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO smtp_accounts
		    (email, display_name, smtp_host, smtp_port, smtp_username,
		     sealed_smtp_password, imap_host, imap_port, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`, a.Email, a.DisplayName, a.SMTPHost, a.SMTPPort, a.SMTPUsername,
		a.SealedSMTPPassword, a.IMAPHost, a.IMAPPort)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
