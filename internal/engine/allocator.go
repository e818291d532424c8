package engine

import (
	"sort"

	"github.com/coldmailer/coldmailer/internal/model"
)

// Outcome of one allocation decision.
type Outcome int

const (
	// OutcomeSticky reuses the lead's existing assignment.
	OutcomeSticky Outcome = iota
	// OutcomeNew picked a fresh account round-robin; the caller must record
	// the assignment.
	OutcomeNew
	// OutcomeSkip leaves the item queued for a later pass (assigned account
	// exhausted or unusable this pass).
	OutcomeSkip
	// OutcomeExhausted means no account has remaining capacity; the pass
	// must halt.
	OutcomeExhausted
)

type accountState struct {
	account   model.SendingAccount
	remaining int
	vaultBad  bool
}

// Allocator is the pass-local view of account capacity. It is built once
// at pass start from persisted counts and mutated in memory as sends
// succeed, so each item's decision sees the sends before it.
//
// Rotation order is remaining capacity descending, ties broken by account
// email ascending; a cursor walks it round-robin for unassigned leads.
type Allocator struct {
	rotation []*accountState
	byEmail  map[string]*accountState
	cursor   int
}

// NewAllocator derives remaining capacity from sent counts. Accounts
// already at the daily cap are excluded from rotation up front.
func NewAllocator(accounts []model.SendingAccount, sentToday map[string]int) *Allocator {
	a := &Allocator{byEmail: make(map[string]*accountState, len(accounts))}

	for _, acc := range accounts {
		remaining := model.DailyQuotaCap - sentToday[acc.Email]
		if remaining <= 0 {
			continue
		}
		st := &accountState{account: acc, remaining: remaining}
		a.byEmail[acc.Email] = st
		a.rotation = append(a.rotation, st)
	}

	sort.Slice(a.rotation, func(i, j int) bool {
		if a.rotation[i].remaining != a.rotation[j].remaining {
			return a.rotation[i].remaining > a.rotation[j].remaining
		}
		return a.rotation[i].account.Email < a.rotation[j].account.Email
	})

	return a
}

// HasCapacity reports whether any usable account can still send.
func (a *Allocator) HasCapacity() bool {
	for _, st := range a.rotation {
		if st.remaining > 0 && !st.vaultBad {
			return true
		}
	}
	return false
}

// Remaining returns the in-memory remaining capacity for an account.
func (a *Allocator) Remaining(email string) int {
	if st, ok := a.byEmail[email]; ok {
		return st.remaining
	}
	return 0
}

// Resolve picks the sending account for an item. assigned is the existing
// (lead, campaign) assignment, or "" when none exists.
//
// Sticky first: an assigned account is reused while it has capacity, and
// the item is skipped (never reassigned) while it does not. Unassigned
// items take the next account in rotation.
func (a *Allocator) Resolve(assigned string) (model.SendingAccount, Outcome) {
	if assigned != "" {
		st, ok := a.byEmail[assigned]
		if !ok || st.remaining <= 0 || st.vaultBad {
			if !a.HasCapacity() {
				return model.SendingAccount{}, OutcomeExhausted
			}
			return model.SendingAccount{}, OutcomeSkip
		}
		return st.account, OutcomeSticky
	}

	n := len(a.rotation)
	for i := 0; i < n; i++ {
		st := a.rotation[(a.cursor+i)%n]
		if st.remaining <= 0 || st.vaultBad {
			continue
		}
		a.cursor = (a.cursor + i + 1) % n
		return st.account, OutcomeNew
	}
	return model.SendingAccount{}, OutcomeExhausted
}

// Consume records a successful send in the in-memory snapshot.
func (a *Allocator) Consume(email string) {
	if st, ok := a.byEmail[email]; ok && st.remaining > 0 {
		st.remaining--
	}
}

// MarkVaultBad removes an account from this pass after a credential
// failure. Its persisted quota is untouched.
func (a *Allocator) MarkVaultBad(email string) {
	if st, ok := a.byEmail[email]; ok {
		st.vaultBad = true
	}
}
