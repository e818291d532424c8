package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// QuotaRepository persists per-account, per-day sent counts. Rows are
// created lazily on the first increment of a day.
type QuotaRepository interface {
	CountsForDate(ctx context.Context, date string) (map[string]int, error)
	Increment(ctx context.Context, accountEmail, date string) (int, error)
}

type QuotaRepositoryImpl struct {
	db *sqlx.DB
}

func NewQuotaRepository(db *sqlx.DB) *QuotaRepositoryImpl {
	return &QuotaRepositoryImpl{db: db}
}

var _ QuotaRepository = (*QuotaRepositoryImpl)(nil)

// CountsForDate returns sent counts keyed by account email. Accounts with
// no row yet are simply absent (count 0).
func (r *QuotaRepositoryImpl) CountsForDate(ctx context.Context, date string) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT account_email, count
		  FROM daily_email_counts
		 WHERE date = ?
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var email string
		var count int
		if err := rows.Scan(&email, &count); err != nil {
			return nil, err
		}
		counts[email] = count
	}
	return counts, rows.Err()
}

// Increment bumps the counter atomically (never a blind overwrite, so
// overlapping passes cannot lose updates) and returns the new count.
func (r *QuotaRepositoryImpl) Increment(ctx context.Context, accountEmail, date string) (int, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_email_counts (account_email, date, count)
		VALUES (?, ?, 1)
		ON DUPLICATE KEY UPDATE count = count + 1
	`, accountEmail, date)
	if err != nil {
		return 0, err
	}

	var count int
	err = r.db.GetContext(ctx, &count, `
		SELECT count FROM daily_email_counts
		 WHERE account_email = ? AND date = ?
	`, accountEmail, date)
	return count, err
}
