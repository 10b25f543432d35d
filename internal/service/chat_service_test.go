package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"busmate/internal/model"

	"github.com/rs/zerolog"
)

type chatFixture struct {
	svc      ChatService
	chats    *fakeChatRepo
	users    *fakeUserRepo
	travel   *fakeTravel
	bookings *fakeBookingRepo
}

func newChatFixture(provider TurnProvider) *chatFixture {
	f := &chatFixture{
		chats:    newFakeChatRepo(),
		users:    newFakeUserRepo(),
		travel:   &fakeTravel{},
		bookings: newFakeBookingRepo(),
	}
	bookingSvc := NewBookingService(f.bookings, f.users, &fakePublisher{}, "booking-events", &fakeQueue{}, "eticket_queue", zerolog.Nop())
	f.svc = NewChatService(f.chats, f.users, provider, f.travel, bookingSvc, 10, zerolog.Nop())
	return f
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestHandleMessageSeedsSystemPromptOnce(t *testing.T) {
	provider := &scriptedProvider{turns: []model.Turn{
		{Kind: model.TurnOutput, Output: "Hello!"},
		{Kind: model.TurnOutput, Output: "Hello again!"},
	}}
	f := newChatFixture(provider)

	if _, err := f.svc.HandleMessage(context.Background(), "u1", "hi"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if _, err := f.svc.HandleMessage(context.Background(), "u1", "hi again"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	turns := f.chats.turns["u1"]
	var systemTurns int
	for _, turn := range turns {
		if turn.Role == model.RoleSystem {
			systemTurns++
		}
	}
	if systemTurns != 1 {
		t.Fatalf("system turns = %d, want exactly 1", systemTurns)
	}
	if turns[0].Role != model.RoleSystem {
		t.Errorf("first turn role = %s, want system", turns[0].Role)
	}
}

func TestHandleMessageRunsSearchTool(t *testing.T) {
	provider := &scriptedProvider{turns: []model.Turn{
		{Kind: model.TurnPlan, Plan: "Search buses for the user."},
		{Kind: model.TurnAction, Function: string(model.ToolSearchBuses)},
		{Kind: model.TurnOutput, Output: "Here are your buses."},
	}}
	f := newChatFixture(provider)
	provider.turns[1].Input = mustJSON(t, SearchQuery{From: "Delhi", To: "Mumbai", Date: "2025-12-15"})

	reply, err := f.svc.HandleMessage(context.Background(), "u1", "Delhi to Mumbai on 15th")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply != "Here are your buses." {
		t.Fatalf("reply = %q", reply)
	}
	if len(f.travel.searches) != 1 || f.travel.searches[0].From != "Delhi" {
		t.Fatalf("searches = %+v, want one Delhi query", f.travel.searches)
	}

	// The observation is persisted under the developer role between the
	// action and the final output.
	turns := f.chats.turns["u1"]
	var sawObservation bool
	for _, turn := range turns {
		if turn.Role != model.RoleDeveloper {
			continue
		}
		parsed, err := model.ParseTurn(turn.Content)
		if err != nil {
			t.Fatalf("parsing developer turn: %v", err)
		}
		if parsed.Kind == model.TurnObservation {
			sawObservation = true
		}
	}
	if !sawObservation {
		t.Error("no observation turn persisted for the tool call")
	}
}

func TestHandleMessageBookingToolPersistsBooking(t *testing.T) {
	req := BookingRequest{
		BusID: "BUS002", FullName: "Asha Rao", Email: "asha@example.com",
		Phone: "9876543210", Seats: 2, From: "Delhi", To: "Mumbai", Date: "2025-12-15",
	}
	provider := &scriptedProvider{turns: []model.Turn{
		{Kind: model.TurnAction, Function: string(model.ToolCreateBooking)},
		{Kind: model.TurnOutput, Output: "Booked!"},
	}}
	f := newChatFixture(provider)
	provider.turns[0].Input = mustJSON(t, req)

	reply, err := f.svc.HandleMessage(context.Background(), "u1", "book it")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply != "Booked!" {
		t.Fatalf("reply = %q", reply)
	}

	all, _ := f.bookings.ListAll(context.Background())
	if len(all) != 1 {
		t.Fatalf("bookings = %d, want 1", len(all))
	}
	b := all[0]
	if b.UserID != "u1" || b.BusID != "BUS002" || b.Status != model.BookingStatusPending {
		t.Errorf("booking = %+v", b)
	}
}

func TestHandleMessageUnknownToolYieldsErrorObservation(t *testing.T) {
	provider := &scriptedProvider{turns: []model.Turn{
		{Kind: model.TurnAction, Function: "deleteAllBookings", Input: json.RawMessage(`{}`)},
		{Kind: model.TurnOutput, Output: "Sorry, I can't do that."},
	}}
	f := newChatFixture(provider)

	reply, err := f.svc.HandleMessage(context.Background(), "u1", "do something weird")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply != "Sorry, I can't do that." {
		t.Fatalf("reply = %q", reply)
	}

	var sawError bool
	for _, turn := range f.chats.turns["u1"] {
		if turn.Role == model.RoleDeveloper && strings.Contains(string(turn.Content), "unknown tool") {
			sawError = true
		}
	}
	if !sawError {
		t.Error("unknown tool did not produce an error observation")
	}
}

func TestHandleMessageBoundedLoop(t *testing.T) {
	// A provider that only ever plans must not spin forever.
	turns := make([]model.Turn, 50)
	for i := range turns {
		turns[i] = model.Turn{Kind: model.TurnPlan, Plan: "still thinking"}
	}
	f := newChatFixture(&scriptedProvider{turns: turns})

	reply, err := f.svc.HandleMessage(context.Background(), "u1", "hi")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply != apologyReply {
		t.Fatalf("reply = %q, want the apology", reply)
	}
}

func TestHandleMessageProviderFailure(t *testing.T) {
	f := newChatFixture(&scriptedProvider{}) // empty script errors immediately

	reply, err := f.svc.HandleMessage(context.Background(), "u1", "hi")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply != apologyReply {
		t.Fatalf("reply = %q, want the apology", reply)
	}
}

func TestHistoryFiltersInternalTurns(t *testing.T) {
	provider := &scriptedProvider{turns: []model.Turn{
		{Kind: model.TurnPlan, Plan: "Search buses."},
		{Kind: model.TurnAction, Function: string(model.ToolSearchBuses), Input: json.RawMessage(`{"from":"Delhi","to":"Mumbai","date":"2025-12-15"}`)},
		{Kind: model.TurnOutput, Output: "Found 3 buses."},
	}}
	f := newChatFixture(provider)

	if _, err := f.svc.HandleMessage(context.Background(), "u1", "Delhi to Mumbai"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	history, err := f.svc.History(context.Background(), "u1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d messages, want 2 (user + output)", len(history))
	}
	if history[0].Role != model.RoleUser || history[0].Content != "Delhi to Mumbai" {
		t.Errorf("first message = %+v", history[0])
	}
	if history[1].Role != model.RoleAssistant || history[1].Content != "Found 3 buses." {
		t.Errorf("second message = %+v", history[1])
	}
}
