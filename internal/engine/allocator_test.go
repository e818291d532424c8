package engine

import (
	"testing"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acct(email string) model.SendingAccount {
	return model.SendingAccount{Email: email, DisplayName: email, SMTPHost: "smtp.test", SMTPPort: 587}
}

func TestAllocatorRotationOrder(t *testing.T) {
	// X has 1 remaining, Y has 10: rotation starts at Y (more capacity),
	// then alternates round-robin.
	a := NewAllocator(
		[]model.SendingAccount{acct("x@test"), acct("y@test")},
		map[string]int{"x@test": model.DailyQuotaCap - 1, "y@test": model.DailyQuotaCap - 10},
	)

	first, outcome := a.Resolve("")
	require.Equal(t, OutcomeNew, outcome)
	assert.Equal(t, "y@test", first.Email)
	a.Consume(first.Email)

	second, outcome := a.Resolve("")
	require.Equal(t, OutcomeNew, outcome)
	assert.Equal(t, "x@test", second.Email)
	a.Consume(second.Email)

	// X is now exhausted; rotation wraps back to Y only
	third, outcome := a.Resolve("")
	require.Equal(t, OutcomeNew, outcome)
	assert.Equal(t, "y@test", third.Email)
}

func TestAllocatorTieBreakIsEmailAscending(t *testing.T) {
	a := NewAllocator(
		[]model.SendingAccount{acct("b@test"), acct("a@test"), acct("c@test")},
		map[string]int{}, // equal remaining everywhere
	)

	got, _ := a.Resolve("")
	assert.Equal(t, "a@test", got.Email)
	got, _ = a.Resolve("")
	assert.Equal(t, "b@test", got.Email)
	got, _ = a.Resolve("")
	assert.Equal(t, "c@test", got.Email)
	got, _ = a.Resolve("")
	assert.Equal(t, "a@test", got.Email)
}

func TestAllocatorStickyReuse(t *testing.T) {
	a := NewAllocator(
		[]model.SendingAccount{acct("a@test"), acct("b@test")},
		map[string]int{},
	)

	got, outcome := a.Resolve("b@test")
	assert.Equal(t, OutcomeSticky, outcome)
	assert.Equal(t, "b@test", got.Email)

	// sticky does not advance the cursor
	got, outcome = a.Resolve("")
	assert.Equal(t, OutcomeNew, outcome)
	assert.Equal(t, "a@test", got.Email)
}

func TestAllocatorStickyExhaustedSkips(t *testing.T) {
	a := NewAllocator(
		[]model.SendingAccount{acct("a@test"), acct("b@test")},
		map[string]int{"a@test": model.DailyQuotaCap}, // a is at cap
	)

	_, outcome := a.Resolve("a@test")
	assert.Equal(t, OutcomeSkip, outcome)

	// unassigned items still go out via b
	got, outcome := a.Resolve("")
	assert.Equal(t, OutcomeNew, outcome)
	assert.Equal(t, "b@test", got.Email)
}

func TestAllocatorExhaustion(t *testing.T) {
	a := NewAllocator(
		[]model.SendingAccount{acct("a@test")},
		map[string]int{"a@test": model.DailyQuotaCap - 1},
	)
	require.True(t, a.HasCapacity())

	got, outcome := a.Resolve("")
	require.Equal(t, OutcomeNew, outcome)
	a.Consume(got.Email)

	assert.False(t, a.HasCapacity())
	_, outcome = a.Resolve("")
	assert.Equal(t, OutcomeExhausted, outcome)
	_, outcome = a.Resolve("a@test")
	assert.Equal(t, OutcomeExhausted, outcome)
}

func TestAllocatorVaultBadAccountUnusable(t *testing.T) {
	a := NewAllocator(
		[]model.SendingAccount{acct("a@test"), acct("b@test")},
		map[string]int{},
	)
	a.MarkVaultBad("a@test")

	got, outcome := a.Resolve("")
	assert.Equal(t, OutcomeNew, outcome)
	assert.Equal(t, "b@test", got.Email)

	_, outcome = a.Resolve("a@test")
	assert.Equal(t, OutcomeSkip, outcome)
}

func TestAllocatorNeverExceedsCap(t *testing.T) {
	a := NewAllocator(
		[]model.SendingAccount{acct("a@test"), acct("b@test")},
		map[string]int{"a@test": model.DailyQuotaCap - 2, "b@test": model.DailyQuotaCap - 2},
	)

	sends := 0
	for {
		got, outcome := a.Resolve("")
		if outcome == OutcomeExhausted {
			break
		}
		require.Equal(t, OutcomeNew, outcome)
		a.Consume(got.Email)
		sends++
	}
	assert.Equal(t, 4, sends)
}
