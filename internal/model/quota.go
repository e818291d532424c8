package model

// DailyQuotaCap is the fixed maximum messages any sending account may
// dispatch per calendar day. Shared by all accounts.
const DailyQuotaCap = 50

// DailyQuotaRecord tracks per-account, per-day sent counts. Rows are
// created lazily on the first send of the day and only ever increase
// within a date.
type DailyQuotaRecord struct {
	ID           int64  `db:"id"`
	AccountEmail string `db:"account_email"`
	Date         string `db:"date"` // YYYY-MM-DD, UTC
	Count        int    `db:"count"`
}
