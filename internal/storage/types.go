package storage

import "time"

// UsageEvent is one entry of a user's usage ledger: a start
// (Active=true) or stop (Active=false) of internet usage.
type UsageEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Active    bool      `json:"active"`
}

// BonusRecord is a persisted bonus time grant. Only a grant made on
// the current calendar day counts toward the daily quota.
type BonusRecord struct {
	GrantedAt time.Time `json:"granted_at"`
	Minutes   int       `json:"minutes"`
}
