package imapwatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coldmailer/coldmailer/internal/metrics"
	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/coldmailer/coldmailer/internal/repository"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SecretOpener opens vault-sealed mailbox credentials.
type SecretOpener interface {
	Open(sealed string) (string, error)
}

// Watcher polls the inboxes of accounts that have IMAP configured and
// marks leads as responded when a reply to an outreach message shows up.
// A responded lead is pulled out of the pipeline entirely: pending queue
// items and the sticky assignment go away in the same transaction that
// flips the flag.
type Watcher struct {
	DB          *sqlx.DB
	Accounts    repository.AccountsRepository
	Leads       repository.LeadsRepository
	Queue       repository.QueueRepository
	Assignments repository.AssignmentsRepository
	Vault       SecretOpener
	Log         *zap.Logger

	// Lookback bounds the IMAP SINCE search. Unseen messages older than
	// this are handled on the first pass after a long outage anyway,
	// since SINCE has day granularity.
	Lookback time.Duration
}

// RunPass checks every IMAP-enabled account once. Account failures are
// isolated: one unreachable mailbox does not stop the others.
func (w *Watcher) RunPass(ctx context.Context) {
	accounts, err := w.Accounts.WithIMAP(ctx)
	if err != nil {
		w.Log.Error("load imap accounts", zap.Error(err))
		return
	}

	for _, acc := range accounts {
		if err := w.checkAccount(ctx, acc); err != nil {
			w.Log.Error("check inbox", zap.Error(err), zap.String("account", acc.Email))
		}
	}
}

func (w *Watcher) checkAccount(ctx context.Context, acc model.SendingAccount) error {
	password, err := w.Vault.Open(acc.SealedSMTPPassword)
	if err != nil {
		return fmt.Errorf("open credentials: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", acc.IMAPHost.String, acc.IMAPPort.Int64)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer c.Logout()

	if err := c.Login(acc.SMTPUsername, password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if _, err := c.Select("INBOX", false); err != nil {
		return fmt.Errorf("select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = time.Now().Add(-w.Lookback)

	ids, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		w.handleMessage(ctx, acc, msg.Envelope)
	}
	if err := <-done; err != nil {
		return fmt.Errorf("fetch envelopes: %w", err)
	}
	return nil
}

func (w *Watcher) handleMessage(ctx context.Context, acc model.SendingAccount, env *imap.Envelope) {
	if !strings.HasPrefix(strings.ToLower(env.Subject), "re:") {
		return
	}

	for _, from := range env.From {
		sender := strings.ToLower(from.Address())
		lead, err := w.Leads.GetByEmail(ctx, sender)
		if err != nil {
			w.Log.Error("look up sender", zap.Error(err), zap.String("from", sender))
			continue
		}
		if lead == nil || lead.Responded {
			continue
		}

		if err := w.recordReply(ctx, *lead, env.Date); err != nil {
			w.Log.Error("record reply", zap.Error(err), zap.Int64("lead", lead.ID))
			continue
		}
		metrics.RepliesDetected.Inc()
		w.Log.Info("reply detected, lead retired",
			zap.Int64("lead", lead.ID), zap.String("email", lead.Email),
			zap.String("account", acc.Email))
	}
}

// recordReply flips the responded flag and removes the lead's pending
// work atomically, so a dispatch pass can never pick up a follow-up for
// a lead that already answered.
func (w *Watcher) recordReply(ctx context.Context, lead model.Lead, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := w.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := w.Leads.MarkResponded(ctx, tx, lead.ID, at); err != nil {
		return fmt.Errorf("mark responded: %w", err)
	}
	if err := w.Leads.CopyToResponded(ctx, tx, lead); err != nil {
		return fmt.Errorf("copy to responded: %w", err)
	}
	if err := w.Queue.DeleteForLead(ctx, tx, lead.ID); err != nil {
		return fmt.Errorf("drop queued items: %w", err)
	}
	if err := w.Assignments.DeleteForLead(ctx, tx, lead.ID); err != nil {
		return fmt.Errorf("drop assignment: %w", err)
	}
	return tx.Commit()
}
