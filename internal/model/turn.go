package model

import (
	"encoding/json"
	"fmt"
)

// TurnKind is the closed set of structured turn types the assistant emits.
type TurnKind string

const (
	TurnPlan        TurnKind = "plan"
	TurnAction      TurnKind = "action"
	TurnObservation TurnKind = "observation"
	TurnOutput      TurnKind = "output"
)

// Tool is the closed set of operations an action turn may invoke. The
// conversation loop switches on this tag; there is no string-keyed function
// table.
type Tool string

const (
	ToolSearchBuses   Tool = "getAvailableBuses"
	ToolCreateBooking Tool = "createBusBooking"
)

// Turn is one structured step of the plan/action/observation/output
// protocol. Exactly the fields for its kind are set.
type Turn struct {
	Kind        TurnKind        `json:"type"`
	Plan        string          `json:"plan,omitempty"`
	Function    string          `json:"function,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	Observation json.RawMessage `json:"observation,omitempty"`
	Output      string          `json:"output,omitempty"`
}

// ToolCall returns the typed tool named by an action turn, or an error for
// anything outside the closed set.
func (t *Turn) ToolCall() (Tool, error) {
	switch Tool(t.Function) {
	case ToolSearchBuses:
		return ToolSearchBuses, nil
	case ToolCreateBooking:
		return ToolCreateBooking, nil
	}
	return "", fmt.Errorf("unknown tool %q", t.Function)
}

// ParseTurn decodes an assistant payload into a Turn and validates its kind.
func ParseTurn(data []byte) (*Turn, error) {
	var t Turn
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding turn: %w", err)
	}
	switch t.Kind {
	case TurnPlan, TurnAction, TurnObservation, TurnOutput:
		return &t, nil
	}
	return nil, fmt.Errorf("unknown turn type %q", t.Kind)
}

// UserTurn wraps a raw user message in the turn protocol envelope.
type UserTurn struct {
	Kind TurnKind `json:"type"`
	User string   `json:"user"`
}

// NewUserTurn builds the JSON envelope persisted for a user message.
func NewUserTurn(message string) UserTurn {
	return UserTurn{Kind: "user", User: message}
}
