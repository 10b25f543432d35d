package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"busmate/internal/model"
)

// demoProvider is the scripted fallback used when no Gemini API key is
// configured. It walks each user through a fixed booking flow and issues a
// real createBusBooking action so bookings are persisted like in live mode.
type demoProvider struct {
	mu     sync.Mutex
	states map[string]*demoState
}

type demoState struct {
	step  string
	from  string
	to    string
	date  string
	busID string
	name  string
	email string
	phone string
	seats int
	price int
}

// NewDemoProvider creates the scripted TurnProvider.
func NewDemoProvider() TurnProvider {
	return &demoProvider{states: make(map[string]*demoState)}
}

var digitsRe = regexp.MustCompile(`\d+`)

func (p *demoProvider) NextTurn(ctx context.Context, userID string, history []model.ChatTurn) (*model.Turn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.states[userID]
	if !ok {
		state = &demoState{step: "greeting"}
		p.states[userID] = state
	}

	message, observation := lastUserAndObservation(history)
	msg := strings.ToLower(message)

	switch state.step {
	case "greeting":
		state.step = "waiting_route"
		return output("Welcome! I'm your assistant for booking bus tickets across India.\n\nI can help you:\n- Search buses between any two cities\n- Check seat availability and prices\n- Book tickets instantly\n\nWhere would you like to travel? (Example: 'Delhi to Mumbai on 15th December')"), nil

	case "waiting_route":
		if containsAny(msg, "from", "to", "bus", "delhi", "mumbai", "bangalore", "chennai") {
			state.step = "showing_buses"
			state.from, state.to, state.date = "Delhi", "Mumbai", "2025-12-15"
			return output("I found these buses from Delhi to Mumbai on 15th December:\n\n1. Volvo AC Multi-Axle (VRL Travels)\n   - Departure: 06:00 AM, Arrival: 04:00 PM\n   - Price: 1200 INR per seat, 25 seats available\n   - Bus ID: BUS001\n\n2. Mercedes AC Sleeper (SRS Travels)\n   - Departure: 09:30 PM, Arrival: 06:30 AM\n   - Price: 1500 INR per seat, 18 seats available\n   - Bus ID: BUS002\n\nWhich bus would you like to book? (Reply with 'BUS001' or 'BUS002')"), nil
		}

	case "showing_buses":
		if containsAny(msg, "bus001", "bus002", "book", "1", "2") {
			state.step = "asking_seats"
			if strings.Contains(msg, "bus002") || strings.Contains(msg, "2") {
				state.busID, state.price = "BUS002", 1500
			} else {
				state.busID, state.price = "BUS001", 1200
			}
			return output("Great choice! How many seats would you like to book? (Example: '2 seats' or just '2')"), nil
		}

	case "asking_seats":
		state.seats = 1
		if m := digitsRe.FindString(msg); m != "" {
			if n, err := strconv.Atoi(m); err == nil && n > 0 {
				state.seats = n
			}
		}
		state.step = "asking_name"
		return output(fmt.Sprintf("Perfect! For %d seat(s), the total will be %d INR.\n\nMay I have your full name please?", state.seats, state.price*state.seats)), nil

	case "asking_name":
		state.name = message
		state.step = "asking_email"
		return output(fmt.Sprintf("Thank you, %s! Now I need your email address.", state.name)), nil

	case "asking_email":
		state.email = message
		state.step = "asking_phone"
		return output("Great! Lastly, please provide your 10-digit phone number."), nil

	case "asking_phone":
		state.phone = strings.Map(keepDigits, message)
		state.step = "confirming"
		input, err := json.Marshal(BookingRequest{
			BusID:    state.busID,
			FullName: state.name,
			Email:    state.email,
			Phone:    state.phone,
			Seats:    state.seats,
			From:     state.from,
			To:       state.to,
			Date:     state.date,
		})
		if err != nil {
			return nil, fmt.Errorf("marshaling demo booking input: %w", err)
		}
		return &model.Turn{
			Kind:     model.TurnAction,
			Function: string(model.ToolCreateBooking),
			Input:    input,
		}, nil

	case "confirming":
		state.step = "completed"
		// Error observations ({"error": ...}) decode into a zero confirmation,
		// so an empty booking ID means the booking did not go through.
		var conf BookingConfirmation
		if observation == nil || json.Unmarshal(observation, &conf) != nil || conf.BookingID == "" {
			return output("Sorry, something went wrong while confirming your booking. Please try again."), nil
		}
		return output(fmt.Sprintf(
			"Booking Confirmed!\n\nPNR: %s\nBooking ID: %s\nBus: %s\nRoute: %s to %s\nDate: %s\nPassenger: %s\nSeats: %s (%d)\nTotal: %d INR\n\nYour e-ticket has been sent to %s. Have a safe journey!\n\nWould you like to book another bus? (say 'yes' to start over)",
			conf.PNR, conf.BookingID, conf.BusName, conf.From, conf.To, conf.Date,
			conf.FullName, strings.Join(conf.SeatNumbers, ", "), conf.Seats, conf.TotalPrice, conf.Email,
		)), nil

	case "completed":
		if containsAny(msg, "yes", "another", "book") {
			state.step = "waiting_route"
			return output("Great! Where would you like to travel next? (Example: 'Bangalore to Chennai on 20th December')"), nil
		}
	}

	return output("I'm here to help you book bus tickets! You can:\n- Search for buses (e.g., 'Delhi to Mumbai')\n- Book tickets\n- Get travel information\n\nWhat would you like to do?"), nil
}

func output(text string) *model.Turn {
	return &model.Turn{Kind: model.TurnOutput, Output: text}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func keepDigits(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

// lastUserAndObservation pulls the most recent user message and the most
// recent tool observation (if any) from the transcript tail.
func lastUserAndObservation(history []model.ChatTurn) (string, json.RawMessage) {
	var message string
	var observation json.RawMessage
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if message == "" && t.Role == model.RoleUser {
			var ut model.UserTurn
			if json.Unmarshal(t.Content, &ut) == nil {
				message = ut.User
			}
		}
		if observation == nil && t.Role == model.RoleDeveloper {
			var turn model.Turn
			if json.Unmarshal(t.Content, &turn) == nil && turn.Kind == model.TurnObservation {
				observation = turn.Observation
			}
		}
		if message != "" && observation != nil {
			break
		}
	}
	return message, observation
}
