package model

import (
	"encoding/json"
	"time"
)

// Chat turn roles, mirroring the conversation protocol: the system prompt,
// the end user, the assistant's structured replies, and tool observations
// recorded under the developer role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleDeveloper = "developer"
)

// ChatTurn is one entry in a user's append-only conversation log. Content is
// the JSON-encoded Turn payload.
type ChatTurn struct {
	ID        int64           `db:"id" json:"-"`
	UserID    string          `db:"user_id" json:"userId"`
	Role      string          `db:"role" json:"role"`
	Content   json.RawMessage `db:"content" json:"content"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}
