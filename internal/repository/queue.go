package repository

import (
	"context"
	"time"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/jmoiron/sqlx"
)

// QueueRepository persists the email_queue table. Claim/Release implement
// the per-item claim protocol that keeps overlapping dispatch passes from
// delivering the same item twice.
type QueueRepository interface {
	FetchDue(ctx context.Context, now time.Time, claimTTL time.Duration, limit int) ([]model.QueueItem, error)
	Claim(ctx context.Context, id string, now time.Time, claimTTL time.Duration) (bool, error)
	Release(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id string, sentAt time.Time, sentFrom string) error
	MarkFailed(ctx context.Context, id string, maxAttempts int) (dead bool, err error)
	Insert(ctx context.Context, tx *sqlx.Tx, item model.QueueItem) error
	InsertBatch(ctx context.Context, tx *sqlx.Tx, items []model.QueueItem) error
	DeleteForLead(ctx context.Context, tx *sqlx.Tx, leadID int64) error
}

type QueueRepositoryImpl struct {
	db *sqlx.DB
}

func NewQueueRepository(db *sqlx.DB) *QueueRepositoryImpl {
	return &QueueRepositoryImpl{db: db}
}

var _ QueueRepository = (*QueueRepositoryImpl)(nil)

func (r *QueueRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

// FetchDue selects unsent, unclaimed (or stale-claimed), non-dead items
// scheduled at or before now, excluding responded leads. Fetch order is
// scheduled_for then id, deterministic across passes.
func (r *QueueRepositoryImpl) FetchDue(ctx context.Context, now time.Time, claimTTL time.Duration, limit int) ([]model.QueueItem, error) {
	staleBefore := now.Add(-claimTTL)

	var out []model.QueueItem
	err := r.db.SelectContext(ctx, &out, `
		SELECT q.id, q.campaign_id, q.lead_id, q.lead_email, q.subject, q.body,
		       q.sequence, q.scheduled_for, q.sent_at, q.sent_from, q.claimed_at,
		       q.attempts, q.status, q.created_at
		  FROM email_queue q
		  JOIN leads l ON l.id = q.lead_id
		 WHERE q.sent_at IS NULL
		   AND q.status = 'queued'
		   AND q.scheduled_for <= ?
		   AND (q.claimed_at IS NULL OR q.claimed_at < ?)
		   AND l.responded = FALSE
		 ORDER BY q.scheduled_for, q.id
		 LIMIT ?
	`, now, staleBefore, limit)
	return out, err
}

// Claim stamps claimed_at when the item is still unsent and not held by a
// live claim. The rows-affected check is the atomic gate: exactly one of
// two overlapping passes wins.
func (r *QueueRepositoryImpl) Claim(ctx context.Context, id string, now time.Time, claimTTL time.Duration) (bool, error) {
	staleBefore := now.Add(-claimTTL)
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_queue
		   SET claimed_at = ?
		 WHERE id = ?
		   AND sent_at IS NULL
		   AND status = 'queued'
		   AND (claimed_at IS NULL OR claimed_at < ?)
	`, now, id, staleBefore)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release drops a claim so the item is immediately due again.
func (r *QueueRepositoryImpl) Release(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_queue SET claimed_at = NULL WHERE id = ? AND sent_at IS NULL
	`, id)
	return err
}

// MarkSent stamps sent_at and sent_from. sent_at transitions exactly once;
// the sent_at IS NULL guard keeps a late duplicate from restamping.
func (r *QueueRepositoryImpl) MarkSent(ctx context.Context, id string, sentAt time.Time, sentFrom string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_queue
		   SET sent_at = ?, sent_from = ?, claimed_at = NULL
		 WHERE id = ? AND sent_at IS NULL
	`, sentAt, sentFrom, id)
	return err
}

// MarkFailed releases the claim, bumps attempts, and dead-letters the item
// once attempts reach maxAttempts. Dead items are never fetched again.
func (r *QueueRepositoryImpl) MarkFailed(ctx context.Context, id string, maxAttempts int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_queue
		   SET claimed_at = NULL,
		       attempts   = attempts + 1,
		       status     = IF(attempts >= ?, 'dead', status)
		 WHERE id = ? AND sent_at IS NULL
	`, maxAttempts, id)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	var status string
	if err := r.db.GetContext(ctx, &status, `SELECT status FROM email_queue WHERE id = ?`, id); err != nil {
		return false, err
	}
	return status == model.StatusDead.String(), nil
}

func (r *QueueRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, item model.QueueItem) error {
	return r.InsertBatch(ctx, tx, []model.QueueItem{item})
}

// InsertBatch writes queue rows in a single statement. scheduled_for is set
// here and never mutated afterwards.
func (r *QueueRepositoryImpl) InsertBatch(ctx context.Context, tx *sqlx.Tx, items []model.QueueItem) error {
	if len(items) == 0 {
		return nil
	}

	const q = `
		INSERT INTO email_queue
		    (id, campaign_id, lead_id, lead_email, subject, body, sequence,
		     scheduled_for, status, created_at)
		VALUES (:id, :campaign_id, :lead_id, :lead_email, :subject, :body, :sequence,
		     :scheduled_for, 'queued', NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, q, items)
		return err
	})
}

// DeleteForLead removes all pending items for a lead; used when a reply is
// detected so the drip chain stops.
func (r *QueueRepositoryImpl) DeleteForLead(ctx context.Context, tx *sqlx.Tx, leadID int64) error {
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM email_queue WHERE lead_id = ? AND sent_at IS NULL
		`, leadID)
		return err
	})
}
