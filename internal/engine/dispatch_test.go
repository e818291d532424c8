package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/coldmailer/coldmailer/internal/tracking"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---- in-memory fakes ----

type fakeQueue struct {
	due       []model.QueueItem
	claimDeny map[string]bool
	released  []string
	sentFrom  map[string]string
	attempts  map[string]int
	dead      map[string]bool
	inserted  []model.QueueItem
}

func newFakeQueue(items ...model.QueueItem) *fakeQueue {
	return &fakeQueue{
		due:       items,
		claimDeny: map[string]bool{},
		sentFrom:  map[string]string{},
		attempts:  map[string]int{},
		dead:      map[string]bool{},
	}
}

func (q *fakeQueue) FetchDue(_ context.Context, _ time.Time, _ time.Duration, limit int) ([]model.QueueItem, error) {
	if len(q.due) > limit {
		return q.due[:limit], nil
	}
	return q.due, nil
}

func (q *fakeQueue) Claim(_ context.Context, id string, _ time.Time, _ time.Duration) (bool, error) {
	return !q.claimDeny[id], nil
}

func (q *fakeQueue) Release(_ context.Context, id string) error {
	q.released = append(q.released, id)
	return nil
}

func (q *fakeQueue) MarkSent(_ context.Context, id string, _ time.Time, from string) error {
	q.sentFrom[id] = from
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id string, maxAttempts int) (bool, error) {
	q.attempts[id]++
	if q.attempts[id] >= maxAttempts {
		q.dead[id] = true
		return true, nil
	}
	return false, nil
}

func (q *fakeQueue) Insert(_ context.Context, _ *sqlx.Tx, item model.QueueItem) error {
	q.inserted = append(q.inserted, item)
	return nil
}

type fakeQuota struct {
	counts      map[string]int
	incremented map[string]int
	incErr      error
}

func (f *fakeQuota) CountsForDate(context.Context, string) (map[string]int, error) {
	out := map[string]int{}
	for k, v := range f.counts {
		out[k] = v
	}
	return out, nil
}

func (f *fakeQuota) Increment(_ context.Context, email, _ string) (int, error) {
	if f.incErr != nil {
		return 0, f.incErr
	}
	if f.incremented == nil {
		f.incremented = map[string]int{}
	}
	f.incremented[email]++
	return f.counts[email] + f.incremented[email], nil
}

type fakeAssignments struct {
	m map[[2]int64]string
}

func (f *fakeAssignments) All(context.Context) (map[[2]int64]string, error) {
	out := map[[2]int64]string{}
	for k, v := range f.m {
		out[k] = v
	}
	return out, nil
}

func (f *fakeAssignments) Upsert(_ context.Context, lead, campaign int64, email string) error {
	if f.m == nil {
		f.m = map[[2]int64]string{}
	}
	if _, ok := f.m[[2]int64{lead, campaign}]; !ok {
		f.m[[2]int64{lead, campaign}] = email
	}
	return nil
}

type fakeFollowUps struct {
	defs map[[2]int64]*model.FollowUpDefinition // (campaign, sequence)
}

func (f *fakeFollowUps) Get(_ context.Context, campaign int64, seq int) (*model.FollowUpDefinition, error) {
	return f.defs[[2]int64{campaign, int64(seq)}], nil
}

type fakeLeads struct {
	leads map[int64]*model.Lead
}

func (f *fakeLeads) GetByID(_ context.Context, id int64) (*model.Lead, error) {
	return f.leads[id], nil
}

type fakeAccounts struct {
	accounts []model.SendingAccount
}

func (f *fakeAccounts) All(context.Context) ([]model.SendingAccount, error) {
	return f.accounts, nil
}

type fakeVault struct {
	badFor map[string]bool
}

func (f *fakeVault) Open(sealed string) (string, error) {
	if f.badFor[sealed] {
		return "", errors.New("cipher: message authentication failed")
	}
	return "opened-" + sealed, nil
}

type sendCall struct {
	account, to, subject, body string
}

type fakeSender struct {
	failFor map[string]error // keyed by recipient
	calls   []sendCall
}

func (f *fakeSender) Send(_ context.Context, account model.SendingAccount, _, to, subject, body string) error {
	if err := f.failFor[to]; err != nil {
		return err
	}
	f.calls = append(f.calls, sendCall{account: account.Email, to: to, subject: subject, body: body})
	return nil
}

// ---- helpers ----

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func sealedAcct(email string) model.SendingAccount {
	a := acct(email)
	a.SealedSMTPPassword = "sealed-" + email
	return a
}

func dueItem(id string, lead, campaign int64, to string) model.QueueItem {
	return model.QueueItem{
		ID: id, CampaignID: campaign, LeadID: lead, LeadEmail: to,
		Subject: "hello", Body: `<a href="https://example.com/x">x</a>`,
		Sequence: 0, ScheduledFor: testNow.Add(-time.Hour), Status: model.StatusQueued,
	}
}

func newTestEngine(q *fakeQueue, quota *fakeQuota, asn *fakeAssignments, fu *fakeFollowUps, leads *fakeLeads, accts *fakeAccounts, sender *fakeSender) *Engine {
	if fu == nil {
		fu = &fakeFollowUps{}
	}
	if leads == nil {
		leads = &fakeLeads{}
	}
	return &Engine{
		Queue:       q,
		Quota:       quota,
		Assignments: asn,
		FollowUps:   fu,
		Leads:       leads,
		Accounts:    accts,
		Vault:       &fakeVault{},
		Sender:      sender,
		Rewriter:    tracking.NewRewriter("https://mail.example.com"),
		Log:         zap.NewNop(),
		BatchSize:   200,
		MaxAttempts: 3,
		ClaimTTL:    10 * time.Minute,
		Now:         func() time.Time { return testNow },
	}
}

// ---- tests ----

func TestRunPassSendsDueItems(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 1, 10, "l1@test"), dueItem("i2", 2, 10, "l2@test"))
	quota := &fakeQuota{counts: map[string]int{}}
	asn := &fakeAssignments{}
	sender := &fakeSender{}
	accts := &fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test"), sealedAcct("b@test")}}

	e := newTestEngine(q, quota, asn, nil, nil, accts, sender)
	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Fetched)
	assert.Equal(t, 2, rep.Sent)
	assert.Zero(t, rep.Failed)
	assert.False(t, rep.Halted)

	// round-robin across the pool, one assignment each
	assert.Equal(t, "a@test", q.sentFrom["i1"])
	assert.Equal(t, "b@test", q.sentFrom["i2"])
	assert.Equal(t, "a@test", asn.m[[2]int64{1, 10}])
	assert.Equal(t, "b@test", asn.m[[2]int64{2, 10}])
	assert.Equal(t, 1, quota.incremented["a@test"])
	assert.Equal(t, 1, quota.incremented["b@test"])
}

func TestRunPassRewritesLinksBeforeSend(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 7, 3, "l@test"))
	sender := &fakeSender{}
	e := newTestEngine(q, &fakeQuota{counts: map[string]int{}}, &fakeAssignments{}, nil, nil,
		&fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test")}}, sender)

	_, err := e.RunPass(context.Background())
	require.NoError(t, err)

	require.Len(t, sender.calls, 1)
	assert.Contains(t, sender.calls[0].body, "https://mail.example.com/track/7/3?url=")
	assert.Contains(t, sender.calls[0].body, "eqid=i1")
}

func TestRunPassStickyAssignment(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 1, 10, "l1@test"))
	asn := &fakeAssignments{m: map[[2]int64]string{{1, 10}: "b@test"}}
	sender := &fakeSender{}
	accts := &fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test"), sealedAcct("b@test")}}

	e := newTestEngine(q, &fakeQuota{counts: map[string]int{}}, asn, nil, nil, accts, sender)
	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, "b@test", q.sentFrom["i1"])
}

func TestRunPassDefersStickyExhausted(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 1, 10, "l1@test"), dueItem("i2", 2, 10, "l2@test"))
	asn := &fakeAssignments{m: map[[2]int64]string{{1, 10}: "a@test"}}
	quota := &fakeQuota{counts: map[string]int{"a@test": model.DailyQuotaCap}}
	sender := &fakeSender{}
	accts := &fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test"), sealedAcct("b@test")}}

	e := newTestEngine(q, quota, asn, nil, nil, accts, sender)
	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	// i1 stays queued for a later pass, never reassigned; i2 still goes out
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Sent)
	assert.Contains(t, q.released, "i1")
	assert.Empty(t, q.sentFrom["i1"])
	assert.Equal(t, "b@test", q.sentFrom["i2"])
	assert.Equal(t, "a@test", asn.m[[2]int64{1, 10}], "assignment must survive the skip")
}

func TestRunPassHaltsWhenAllAccountsAtCap(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 1, 10, "l1@test"))
	quota := &fakeQuota{counts: map[string]int{"a@test": model.DailyQuotaCap}}
	sender := &fakeSender{}

	e := newTestEngine(q, quota, &fakeAssignments{}, nil, nil,
		&fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test")}}, sender)
	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.Halted)
	assert.Zero(t, rep.Sent)
	assert.Empty(t, sender.calls)
}

func TestRunPassHaltsMidBatchOnExhaustion(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 1, 10, "l1@test"), dueItem("i2", 2, 10, "l2@test"))
	quota := &fakeQuota{counts: map[string]int{"a@test": model.DailyQuotaCap - 1}}
	sender := &fakeSender{}

	e := newTestEngine(q, quota, &fakeAssignments{}, nil, nil,
		&fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test")}}, sender)
	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Sent)
	assert.True(t, rep.Halted)
	// the unsendable item's claim is handed back
	assert.Contains(t, q.released, "i2")
}

func TestRunPassSendFailureDoesNotAbortBatch(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 1, 10, "bad@test"), dueItem("i2", 2, 10, "ok@test"))
	sender := &fakeSender{failFor: map[string]error{"bad@test": errors.New("relay timeout")}}
	quota := &fakeQuota{counts: map[string]int{}}

	e := newTestEngine(q, quota, &fakeAssignments{}, nil, nil,
		&fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test")}}, sender)
	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 1, q.attempts["i1"])
	assert.Empty(t, q.sentFrom["i1"], "failed item must not be stamped sent")
	assert.Equal(t, 1, quota.incremented["a@test"], "only the delivered item consumes quota")
}

func TestRunPassDeadLettersAfterMaxAttempts(t *testing.T) {
	item := dueItem("i1", 1, 10, "bad@test")
	item.Attempts = 2 // one more failure reaches MaxAttempts=3
	q := newFakeQueue(item)
	q.attempts["i1"] = 2
	sender := &fakeSender{failFor: map[string]error{"bad@test": errors.New("550 rejected")}}

	e := newTestEngine(q, &fakeQuota{counts: map[string]int{}}, &fakeAssignments{}, nil, nil,
		&fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test")}}, sender)
	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Dead)
	assert.True(t, q.dead["i1"])
}

func TestRunPassSkipsItemsClaimedElsewhere(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 1, 10, "l1@test"))
	q.claimDeny["i1"] = true
	sender := &fakeSender{}

	e := newTestEngine(q, &fakeQuota{counts: map[string]int{}}, &fakeAssignments{}, nil, nil,
		&fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test")}}, sender)
	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Skipped)
	assert.Empty(t, sender.calls)
}

func TestRunPassVaultFailureSkipsAccountNotPass(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 1, 10, "l1@test"), dueItem("i2", 2, 10, "l2@test"))
	sender := &fakeSender{}
	accts := &fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test"), sealedAcct("b@test")}}

	e := newTestEngine(q, &fakeQuota{counts: map[string]int{}}, &fakeAssignments{}, nil, nil, accts, sender)
	e.Vault = &fakeVault{badFor: map[string]bool{"sealed-a@test": true}}

	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	// i1 drew a@test, hit the vault error and was deferred; i2 went via b
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, "b@test", q.sentFrom["i2"])
}

func TestRunPassQuotaPersistFailureStillMarksSent(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 1, 10, "l1@test"))
	quota := &fakeQuota{counts: map[string]int{}, incErr: errors.New("mysql gone away")}
	sender := &fakeSender{}

	e := newTestEngine(q, quota, &fakeAssignments{}, nil, nil,
		&fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test")}}, sender)
	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, "a@test", q.sentFrom["i1"], "send already happened, item must stay sent")
}

func TestRunPassSchedulesFollowUp(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 1, 10, "l1@test"))
	fu := &fakeFollowUps{defs: map[[2]int64]*model.FollowUpDefinition{
		{10, 1}: {CampaignID: 10, Sequence: 1, Subject: "ping {name}", Body: "hey {name}\nstill there?", DaysAfterPrevious: 3},
	}}
	leads := &fakeLeads{leads: map[int64]*model.Lead{
		1: {ID: 1, Email: "l1@test", Name: "Ada"},
	}}
	sender := &fakeSender{}

	e := newTestEngine(q, &fakeQuota{counts: map[string]int{}}, &fakeAssignments{}, fu, leads,
		&fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test")}}, sender)
	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 1, rep.FollowUpsQueued)
	require.Len(t, q.inserted, 1)

	next := q.inserted[0]
	assert.Equal(t, 1, next.Sequence)
	assert.Equal(t, int64(1), next.LeadID)
	assert.Equal(t, int64(10), next.CampaignID)
	assert.Equal(t, "ping Ada", next.Subject)
	assert.Equal(t, "hey Ada<br>still there?", next.Body)
	assert.Equal(t, testNow.Add(3*24*time.Hour), next.ScheduledFor)
	assert.NotEmpty(t, next.ID)
}

func TestRunPassSequenceEndsWithoutDefinition(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 1, 10, "l1@test"))
	leads := &fakeLeads{leads: map[int64]*model.Lead{1: {ID: 1, Email: "l1@test"}}}
	sender := &fakeSender{}

	e := newTestEngine(q, &fakeQuota{counts: map[string]int{}}, &fakeAssignments{},
		&fakeFollowUps{}, leads,
		&fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test")}}, sender)
	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Sent)
	assert.Zero(t, rep.FollowUpsQueued)
	assert.Empty(t, q.inserted)
}

func TestRunPassNoFollowUpForRespondedLead(t *testing.T) {
	q := newFakeQueue(dueItem("i1", 1, 10, "l1@test"))
	fu := &fakeFollowUps{defs: map[[2]int64]*model.FollowUpDefinition{
		{10, 1}: {CampaignID: 10, Sequence: 1, Subject: "s", Body: "b", DaysAfterPrevious: 1},
	}}
	leads := &fakeLeads{leads: map[int64]*model.Lead{
		1: {ID: 1, Email: "l1@test", Responded: true},
	}}
	sender := &fakeSender{}

	e := newTestEngine(q, &fakeQuota{counts: map[string]int{}}, &fakeAssignments{}, fu, leads,
		&fakeAccounts{accounts: []model.SendingAccount{sealedAcct("a@test")}}, sender)
	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)

	assert.Zero(t, rep.FollowUpsQueued)
	assert.Empty(t, q.inserted)
}

func TestRunPassEmptyQueue(t *testing.T) {
	q := newFakeQueue()
	e := newTestEngine(q, &fakeQuota{counts: map[string]int{}}, &fakeAssignments{}, nil, nil,
		&fakeAccounts{}, &fakeSender{})

	rep, err := e.RunPass(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Fetched)
}
