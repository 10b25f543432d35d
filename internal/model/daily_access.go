package model

import "time"

// DailyAccessRecord tracks which distinct users were admitted system-wide on
// one calendar date. Invariant: UniqueUsers == len(UserIDs) and
// len(UserIDs) never exceeds the configured cap.
type DailyAccessRecord struct {
	Date        string    `db:"date" json:"date"`
	UniqueUsers int       `db:"unique_users" json:"uniqueUsers"`
	UserIDs     []string  `db:"user_ids" json:"userIds"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// AccessDecision is the outcome of a daily-access admission check.
type AccessDecision struct {
	Admitted     bool `json:"admitted"`
	IsNewUser    bool `json:"isNewUser"`
	CurrentCount int  `json:"currentCount"`
	Limit        int  `json:"limit"`
}

// Admit decides whether userID may access the system on this record's date.
// A user already in the admitted set is re-admitted without consuming a
// slot; a new user is admitted only while the set is under the cap. The
// second return value reports whether the record was mutated and needs
// persisting. Callers must serialize Admit per date.
func (r *DailyAccessRecord) Admit(userID string, limit int) (AccessDecision, bool) {
	for _, id := range r.UserIDs {
		if id == userID {
			return AccessDecision{Admitted: true, IsNewUser: false, CurrentCount: len(r.UserIDs), Limit: limit}, false
		}
	}
	if len(r.UserIDs) >= limit {
		return AccessDecision{Admitted: false, IsNewUser: true, CurrentCount: len(r.UserIDs), Limit: limit}, false
	}
	r.UserIDs = append(r.UserIDs, userID)
	r.UniqueUsers = len(r.UserIDs)
	return AccessDecision{Admitted: true, IsNewUser: true, CurrentCount: len(r.UserIDs), Limit: limit}, true
}

// DailyStats is the admin view of one date's access ledger.
type DailyStats struct {
	Date           string   `json:"date"`
	UniqueUsers    int      `json:"uniqueUsers"`
	RemainingSlots int      `json:"remainingSlots"`
	UserIDs        []string `json:"userIds"`
}
