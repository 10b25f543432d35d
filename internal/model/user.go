package model

import "time"

// User is a chat participant, identified by an externally supplied opaque ID.
// Profile fields are filled in lazily as the conversation collects them.
type User struct {
	UserID            string    `db:"user_id" json:"userId"`
	FullName          *string   `db:"full_name" json:"fullName,omitempty"`
	Email             *string   `db:"email" json:"email,omitempty"`
	Phone             *string   `db:"phone" json:"phone,omitempty"`
	IsBlocked         bool      `db:"is_blocked" json:"isBlocked"`
	BlockedReason     *string   `db:"blocked_reason" json:"blockedReason,omitempty"`
	IsAdmin           bool      `db:"is_admin" json:"isAdmin"`
	NoShowCount       int       `db:"no_show_count" json:"noShowCount"`
	DailyRequestCount int       `db:"daily_request_count" json:"dailyRequestCount"`
	LastRequestDate   *string   `db:"last_request_date" json:"lastRequestDate,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// Profile carries the optional contact fields collected during a
// conversation. Empty fields never overwrite existing values.
type Profile struct {
	FullName string
	Email    string
	Phone    string
}

// QuotaDecision is the outcome of consuming one unit of a user's daily
// request quota.
type QuotaDecision struct {
	Allowed   bool `json:"allowed"`
	Count     int  `json:"count"`
	Remaining int  `json:"remaining"`
	Limit     int  `json:"limit"`
}

// ConsumeDailyRequest applies one chat request against the user's per-day
// quota for the given calendar date (YYYY-MM-DD). It returns the decision and
// whether the user record was mutated and needs persisting.
//
// A lastRequestDate other than today (including any past date) is stale:
// the counter resets to 1 with no carry-over of unused quota.
func (u *User) ConsumeDailyRequest(date string, limit int) (QuotaDecision, bool) {
	if u.LastRequestDate == nil || *u.LastRequestDate != date {
		u.DailyRequestCount = 1
		u.LastRequestDate = &date
		return QuotaDecision{Allowed: true, Count: 1, Remaining: limit - 1, Limit: limit}, true
	}
	if u.DailyRequestCount >= limit {
		return QuotaDecision{Allowed: false, Count: u.DailyRequestCount, Remaining: 0, Limit: limit}, false
	}
	u.DailyRequestCount++
	return QuotaDecision{
		Allowed:   true,
		Count:     u.DailyRequestCount,
		Remaining: limit - u.DailyRequestCount,
		Limit:     limit,
	}, true
}

// RequestsOn reports how many requests the user has made on the given date.
// Counters carried over from a previous day do not count.
func (u *User) RequestsOn(date string) int {
	if u.LastRequestDate == nil || *u.LastRequestDate != date {
		return 0
	}
	return u.DailyRequestCount
}
