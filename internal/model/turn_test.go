package model

import "testing"

func TestParseTurn(t *testing.T) {
	turn, err := ParseTurn([]byte(`{"type":"action","function":"getAvailableBuses","input":{"from":"Delhi","to":"Mumbai","date":"2025-12-10"}}`))
	if err != nil {
		t.Fatalf("ParseTurn: %v", err)
	}
	if turn.Kind != TurnAction {
		t.Fatalf("kind = %q", turn.Kind)
	}
	tool, err := turn.ToolCall()
	if err != nil || tool != ToolSearchBuses {
		t.Fatalf("tool = %q, err = %v", tool, err)
	}
}

func TestParseTurnRejectsUnknownKind(t *testing.T) {
	if _, err := ParseTurn([]byte(`{"type":"thought","thought":"hmm"}`)); err == nil {
		t.Fatal("expected error for unknown turn type")
	}
}

func TestToolCallRejectsUnknownFunction(t *testing.T) {
	turn := &Turn{Kind: TurnAction, Function: "dropTables"}
	if _, err := turn.ToolCall(); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}
