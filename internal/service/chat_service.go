package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"busmate/internal/model"
	"busmate/internal/repository"

	"github.com/rs/zerolog"
)

const apologyReply = "Sorry, something went wrong on my end. Please try again in a moment."

// ChatMessage is one displayable entry of a conversation: the user's own
// messages and the assistant's final outputs. Plans, actions and observations
// are internal reasoning steps and stay out of the history view.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatService runs the plan/action/observation/output conversation loop.
type ChatService interface {
	// HandleMessage appends the user's message to the transcript, drives the
	// assistant until it produces an output turn, and returns that output.
	HandleMessage(ctx context.Context, userID, message string) (string, error)
	History(ctx context.Context, userID string) ([]ChatMessage, error)
}

type chatService struct {
	chats    repository.ChatRepository
	users    repository.UserRepository
	provider TurnProvider
	travel   TravelClient
	bookings BookingService
	maxTurns int
	logger   zerolog.Logger
}

func NewChatService(
	chats repository.ChatRepository,
	users repository.UserRepository,
	provider TurnProvider,
	travel TravelClient,
	bookings BookingService,
	maxTurns int,
	logger zerolog.Logger,
) ChatService {
	return &chatService{
		chats:    chats,
		users:    users,
		provider: provider,
		travel:   travel,
		bookings: bookings,
		maxTurns: maxTurns,
		logger:   logger.With().Str("service", "ChatService").Logger(),
	}
}

func (s *chatService) HandleMessage(ctx context.Context, userID, message string) (string, error) {
	if _, err := s.users.Upsert(ctx, userID, model.Profile{}); err != nil {
		return "", fmt.Errorf("ensuring user record: %w", err)
	}

	history, err := s.chats.ListTurns(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("loading transcript: %w", err)
	}
	if len(history) == 0 {
		if history, err = s.appendTurn(ctx, userID, model.RoleSystem, jsonString(systemPrompt), history); err != nil {
			return "", err
		}
	}

	userTurn, err := json.Marshal(model.NewUserTurn(message))
	if err != nil {
		return "", fmt.Errorf("marshaling user turn: %w", err)
	}
	if history, err = s.appendTurn(ctx, userID, model.RoleUser, userTurn, history); err != nil {
		return "", err
	}

	// The loop is bounded: a conversation that never reaches an output turn
	// ends with an apology instead of spinning on the provider.
	for i := 0; i < s.maxTurns; i++ {
		turn, err := s.provider.NextTurn(ctx, userID, history)
		if err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Turn provider failed")
			return s.apologize(ctx, userID, history)
		}

		turnJSON, err := json.Marshal(turn)
		if err != nil {
			return "", fmt.Errorf("marshaling assistant turn: %w", err)
		}
		if history, err = s.appendTurn(ctx, userID, model.RoleAssistant, turnJSON, history); err != nil {
			return "", err
		}

		switch turn.Kind {
		case model.TurnOutput:
			return turn.Output, nil
		case model.TurnAction:
			observation := s.execute(ctx, userID, turn)
			obsJSON, err := json.Marshal(model.Turn{Kind: model.TurnObservation, Observation: observation})
			if err != nil {
				return "", fmt.Errorf("marshaling observation: %w", err)
			}
			if history, err = s.appendTurn(ctx, userID, model.RoleDeveloper, obsJSON, history); err != nil {
				return "", err
			}
		default:
			// Plan turns (and stray observations) just feed the next iteration.
		}
	}

	s.logger.Warn().Str("user_id", userID).Int("max_turns", s.maxTurns).Msg("Conversation loop hit its iteration cap")
	return s.apologize(ctx, userID, history)
}

// execute dispatches an action turn to its tool and returns the observation
// payload. Failures become error observations so the assistant can recover.
func (s *chatService) execute(ctx context.Context, userID string, turn *model.Turn) json.RawMessage {
	tool, err := turn.ToolCall()
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Assistant requested an unknown tool")
		return errorObservation(err)
	}

	switch tool {
	case model.ToolSearchBuses:
		var q SearchQuery
		if err := json.Unmarshal(turn.Input, &q); err != nil {
			return errorObservation(fmt.Errorf("invalid search input: %w", err))
		}
		buses, err := s.travel.SearchBuses(ctx, q)
		if err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Bus search failed")
			return errorObservation(err)
		}
		data, err := json.Marshal(buses)
		if err != nil {
			return errorObservation(err)
		}
		return data

	case model.ToolCreateBooking:
		var req BookingRequest
		if err := json.Unmarshal(turn.Input, &req); err != nil {
			return errorObservation(fmt.Errorf("invalid booking input: %w", err))
		}
		conf, err := s.travel.CreateBooking(ctx, req)
		if err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Upstream booking failed")
			return errorObservation(err)
		}
		if _, err := s.bookings.Record(ctx, userID, conf); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Persisting booking failed")
			return errorObservation(err)
		}
		data, err := json.Marshal(conf)
		if err != nil {
			return errorObservation(err)
		}
		return data
	}
	return errorObservation(fmt.Errorf("tool %q not implemented", tool))
}

func (s *chatService) History(ctx context.Context, userID string) ([]ChatMessage, error) {
	turns, err := s.chats.ListTurns(ctx, userID)
	if err != nil {
		return nil, err
	}

	messages := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case model.RoleUser:
			var ut model.UserTurn
			if err := json.Unmarshal(t.Content, &ut); err != nil {
				continue
			}
			messages = append(messages, ChatMessage{Role: model.RoleUser, Content: ut.User, CreatedAt: t.CreatedAt})
		case model.RoleAssistant:
			var turn model.Turn
			if err := json.Unmarshal(t.Content, &turn); err != nil || turn.Kind != model.TurnOutput {
				continue
			}
			messages = append(messages, ChatMessage{Role: model.RoleAssistant, Content: turn.Output, CreatedAt: t.CreatedAt})
		}
	}
	return messages, nil
}

// apologize records a generic assistant output so the transcript stays
// coherent, then returns it.
func (s *chatService) apologize(ctx context.Context, userID string, history []model.ChatTurn) (string, error) {
	turnJSON, err := json.Marshal(model.Turn{Kind: model.TurnOutput, Output: apologyReply})
	if err != nil {
		return "", fmt.Errorf("marshaling apology turn: %w", err)
	}
	if _, err := s.appendTurn(ctx, userID, model.RoleAssistant, turnJSON, history); err != nil {
		return "", err
	}
	return apologyReply, nil
}

func (s *chatService) appendTurn(ctx context.Context, userID, role string, content []byte, history []model.ChatTurn) ([]model.ChatTurn, error) {
	if err := s.chats.AppendTurn(ctx, userID, role, content); err != nil {
		return nil, fmt.Errorf("appending %s turn: %w", role, err)
	}
	return append(history, model.ChatTurn{UserID: userID, Role: role, Content: content, CreatedAt: time.Now()}), nil
}

func errorObservation(err error) json.RawMessage {
	data, merr := json.Marshal(map[string]string{"error": err.Error()})
	if merr != nil {
		return json.RawMessage(`{"error":"internal error"}`)
	}
	return data
}

func jsonString(s string) []byte {
	data, err := json.Marshal(s)
	if err != nil {
		return []byte(`""`)
	}
	return data
}
