package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/coldmailer/coldmailer/internal/metrics"
	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/coldmailer/coldmailer/internal/tracking"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Storage contracts the engine needs, satisfied by internal/repository.
// Kept narrow so passes are testable with in-memory fakes.

type QueueStore interface {
	FetchDue(ctx context.Context, now time.Time, claimTTL time.Duration, limit int) ([]model.QueueItem, error)
	Claim(ctx context.Context, id string, now time.Time, claimTTL time.Duration) (bool, error)
	Release(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id string, sentAt time.Time, sentFrom string) error
	MarkFailed(ctx context.Context, id string, maxAttempts int) (bool, error)
	Insert(ctx context.Context, tx *sqlx.Tx, item model.QueueItem) error
}

type QuotaStore interface {
	CountsForDate(ctx context.Context, date string) (map[string]int, error)
	Increment(ctx context.Context, accountEmail, date string) (int, error)
}

type AssignmentStore interface {
	All(ctx context.Context) (map[[2]int64]string, error)
	Upsert(ctx context.Context, leadID, campaignID int64, accountEmail string) error
}

type FollowUpStore interface {
	Get(ctx context.Context, campaignID int64, sequence int) (*model.FollowUpDefinition, error)
}

type LeadStore interface {
	GetByID(ctx context.Context, id int64) (*model.Lead, error)
}

type AccountStore interface {
	All(ctx context.Context) ([]model.SendingAccount, error)
}

// SecretOpener opens vault-sealed relay credentials.
type SecretOpener interface {
	Open(sealed string) (string, error)
}

// RelaySender performs one authenticated, TLS-upgraded send. A timeout is
// reported as an ordinary send error.
type RelaySender interface {
	Send(ctx context.Context, account model.SendingAccount, password, to, subject, htmlBody string) error
}

// EventPublisher emits advisory analytics events; failures never affect
// the pass outcome.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.SendEvent)
}

// Report aggregates one pass. Failures surface here, not per item.
type Report struct {
	Fetched         int
	Sent            int
	Failed          int
	Skipped         int
	Dead            int
	FollowUpsQueued int
	Halted          bool
}

// Engine runs dispatch passes: fetch due items, allocate accounts under
// daily quotas, rewrite links, send, and chain follow-ups.
type Engine struct {
	Queue       QueueStore
	Quota       QuotaStore
	Assignments AssignmentStore
	FollowUps   FollowUpStore
	Leads       LeadStore
	Accounts    AccountStore
	Vault       SecretOpener
	Sender      RelaySender
	Events      EventPublisher
	Rewriter    *tracking.Rewriter
	Log         *zap.Logger

	BatchSize   int
	MaxAttempts int
	ClaimTTL    time.Duration

	// Now is a clock hook for tests; defaults to time.Now.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// RunPass executes one batch pass. Items are processed strictly
// sequentially: quota and assignment state mutated by one send must be
// visible to the next item's allocation decision.
func (e *Engine) RunPass(ctx context.Context) (Report, error) {
	var rep Report
	now := e.now()
	today := now.Format("2006-01-02")

	items, err := e.Queue.FetchDue(ctx, now, e.ClaimTTL, e.BatchSize)
	if err != nil {
		return rep, fmt.Errorf("fetch due: %w", err)
	}
	rep.Fetched = len(items)
	if len(items) == 0 {
		return rep, nil
	}

	accounts, err := e.Accounts.All(ctx)
	if err != nil {
		return rep, fmt.Errorf("load accounts: %w", err)
	}
	counts, err := e.Quota.CountsForDate(ctx, today)
	if err != nil {
		return rep, fmt.Errorf("load quota counts: %w", err)
	}
	alloc := NewAllocator(accounts, counts)
	if !alloc.HasCapacity() {
		e.Log.Warn("all accounts at daily cap, halting pass")
		rep.Halted = true
		return rep, nil
	}

	assignments, err := e.Assignments.All(ctx)
	if err != nil {
		return rep, fmt.Errorf("load assignments: %w", err)
	}

	// relay passwords opened at most once per account per pass
	passwords := make(map[string]string, len(accounts))

	for _, item := range items {
		claimed, err := e.Queue.Claim(ctx, item.ID, e.now(), e.ClaimTTL)
		if err != nil {
			return rep, fmt.Errorf("claim %s: %w", item.ID, err)
		}
		if !claimed {
			// another pass holds it
			rep.Skipped++
			continue
		}

		key := [2]int64{item.LeadID, item.CampaignID}
		account, outcome := alloc.Resolve(assignments[key])

		switch outcome {
		case OutcomeExhausted:
			e.release(ctx, item.ID)
			e.Log.Info("capacity exhausted, halting pass",
				zap.Int("sent", rep.Sent), zap.Int("failed", rep.Failed))
			rep.Halted = true
			return rep, nil
		case OutcomeSkip:
			e.release(ctx, item.ID)
			e.Log.Debug("assigned account exhausted, item deferred",
				zap.String("item", item.ID), zap.String("account", assignments[key]))
			rep.Skipped++
			metrics.EmailsTotal.WithLabelValues("skipped").Inc()
			continue
		case OutcomeNew:
			if err := e.Assignments.Upsert(ctx, item.LeadID, item.CampaignID, account.Email); err != nil {
				e.release(ctx, item.ID)
				e.Log.Error("record assignment", zap.Error(err), zap.String("item", item.ID))
				rep.Skipped++
				continue
			}
			assignments[key] = account.Email
		}

		password, ok := passwords[account.Email]
		if !ok {
			password, err = e.Vault.Open(account.SealedSMTPPassword)
			if err != nil {
				// bad ciphertext or wrong key: this account cannot send
				// this pass, others continue
				alloc.MarkVaultBad(account.Email)
				e.release(ctx, item.ID)
				e.Log.Error("vault open failed, account disabled for pass",
					zap.Error(err), zap.String("account", account.Email))
				rep.Skipped++
				continue
			}
			passwords[account.Email] = password
		}

		body := e.Rewriter.Rewrite(item.Body, item.LeadID, item.CampaignID, item.ID)

		if err := e.Sender.Send(ctx, account, password, item.LeadEmail, item.Subject, body); err != nil {
			dead, ferr := e.Queue.MarkFailed(ctx, item.ID, e.MaxAttempts)
			if ferr != nil {
				e.Log.Error("mark failed", zap.Error(ferr), zap.String("item", item.ID))
			}
			if dead {
				rep.Dead++
				metrics.EmailsTotal.WithLabelValues("dead").Inc()
			}
			rep.Failed++
			metrics.EmailsTotal.WithLabelValues("failed").Inc()
			e.publish(ctx, model.SendEvent{
				Type: model.EventFailed, QueueItemID: item.ID,
				CampaignID: item.CampaignID, LeadID: item.LeadID,
				Account: account.Email, Sequence: item.Sequence, At: e.now(),
			})
			e.Log.Warn("send failed", zap.Error(err),
				zap.String("item", item.ID), zap.String("to", item.LeadEmail))
			continue
		}

		sentAt := e.now()
		if err := e.Queue.MarkSent(ctx, item.ID, sentAt, account.Email); err != nil {
			// the message left the relay; losing the stamp risks a duplicate
			// on a later pass, so shout about it
			e.Log.Error("mark sent", zap.Error(err), zap.String("item", item.ID))
		}

		if _, err := e.Quota.Increment(ctx, account.Email, today); err != nil {
			// the send is irreversible: keep the item sent, surface the
			// undercount instead of hiding it
			metrics.QuotaPersistFailures.Inc()
			e.Log.Error("quota increment failed, daily count undercounts",
				zap.Error(err), zap.String("account", account.Email))
		}
		alloc.Consume(account.Email)

		queued, err := e.scheduleFollowUp(ctx, item, sentAt)
		if err != nil {
			e.Log.Error("schedule follow-up", zap.Error(err), zap.String("item", item.ID))
		} else if queued {
			rep.FollowUpsQueued++
		}

		rep.Sent++
		metrics.EmailsTotal.WithLabelValues("sent").Inc()
		e.publish(ctx, model.SendEvent{
			Type: model.EventSent, QueueItemID: item.ID,
			CampaignID: item.CampaignID, LeadID: item.LeadID,
			Account: account.Email, Sequence: item.Sequence, At: sentAt,
		})
	}

	e.Log.Info("pass complete",
		zap.Int("fetched", rep.Fetched), zap.Int("sent", rep.Sent),
		zap.Int("failed", rep.Failed), zap.Int("skipped", rep.Skipped),
		zap.Int("followups", rep.FollowUpsQueued))

	return rep, nil
}

func (e *Engine) release(ctx context.Context, id string) {
	if err := e.Queue.Release(ctx, id); err != nil {
		e.Log.Error("release claim", zap.Error(err), zap.String("item", id))
	}
}

func (e *Engine) publish(ctx context.Context, ev model.SendEvent) {
	if e.Events != nil {
		e.Events.Publish(ctx, ev)
	}
}
