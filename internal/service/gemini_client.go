package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"busmate/internal/model"

	"github.com/rs/zerolog"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// TurnProvider produces the assistant's next structured turn from the
// conversation so far. It is the single suspending external call per loop
// iteration.
type TurnProvider interface {
	NextTurn(ctx context.Context, userID string, history []model.ChatTurn) (*model.Turn, error)
}

type geminiProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	logger  zerolog.Logger
}

// NewGeminiProvider creates a TurnProvider backed by the Gemini
// generateContent API.
func NewGeminiProvider(apiKey, modelName string, logger zerolog.Logger) TurnProvider {
	return &geminiProvider{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: geminiBaseURL,
		apiKey:  apiKey,
		model:   modelName,
		logger:  logger.With().Str("service", "GeminiProvider").Logger(),
	}
}

type geminiMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (p *geminiProvider) NextTurn(ctx context.Context, userID string, history []model.ChatTurn) (*model.Turn, error) {
	// The whole structured transcript is sent as a single text part; the
	// system prompt inside it instructs the model to answer with one JSON
	// turn object.
	messages := make([]geminiMessage, len(history))
	for i, t := range history {
		messages[i] = geminiMessage{Role: t.Role, Content: t.Content}
	}
	transcript, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("marshaling transcript: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": string(transcript)}}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Gemini: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading Gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Error struct {
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error.Message != "" {
			return nil, fmt.Errorf("gemini error: %s", errorResp.Error.Message)
		}
		return nil, fmt.Errorf("gemini returned HTTP %d", resp.StatusCode)
	}

	var genResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, fmt.Errorf("decoding Gemini response: %w", err)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	raw := stripCodeFences(genResp.Candidates[0].Content.Parts[0].Text)
	turn, err := model.ParseTurn([]byte(raw))
	if err != nil {
		// An unparseable reply is not fatal; ask the user to rephrase.
		p.logger.Warn().Err(err).Str("user_id", userID).Msg("Gemini reply was not a valid turn")
		return &model.Turn{
			Kind:   model.TurnOutput,
			Output: "Sorry, I didn't understand that. Please try again with a clear and concise statement.",
		}, nil
	}
	return turn, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
