package handler

import (
	"encoding/json"
	"net/http"

	"busmate/internal/api/v1/dto"
	"busmate/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type ChatHandler struct {
	chatService      service.ChatService
	admissionService service.AdmissionService
	validate         *validator.Validate
	logger           zerolog.Logger
}

func NewChatHandler(
	chatService service.ChatService,
	admissionService service.AdmissionService,
	validate *validator.Validate,
	logger zerolog.Logger,
) *ChatHandler {
	return &ChatHandler{
		chatService:      chatService,
		admissionService: admissionService,
		validate:         validate,
		logger:           logger,
	}
}

func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat", h.handleChat)
	mux.HandleFunc("/chat/history", h.handleHistory)
}

// handleChat godoc
// @Summary Send a chat message
// @Description Runs the message through the admission gates (block check, daily unique-user cap, per-user request quota) and, if admitted, through the booking assistant. Admins bypass the limits.
// @Tags chat
// @Accept json
// @Produce json
// @Param request body dto.ChatRequestDTO true "Chat request"
// @Success 200 {object} dto.ChatResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 403 {object} dto.AccessDeniedDTO
// @Failure 429 {object} dto.DailyLimitDTO
// @Failure 500 {string} string "Failed to process message"
// @Router /chat [post]
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dto.ChatRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	admission, err := h.admissionService.Admit(r.Context(), req.UserID)
	if err != nil {
		http.Error(w, "Failed to check access: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !h.writeAdmission(w, admission) {
		return
	}

	reply, err := h.chatService.HandleMessage(r.Context(), req.UserID, req.Message)
	if err != nil {
		http.Error(w, "Failed to process message: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, dto.ChatResponseDTO{Response: reply}, h.logger)
}

// writeAdmission writes the rejection response for a non-admitted result and
// reports whether the request may proceed.
func (h *ChatHandler) writeAdmission(w http.ResponseWriter, res service.AdmissionResult) bool {
	switch res.Status {
	case service.AdmissionAdmitted:
		return true
	case service.AdmissionBlocked:
		writeJSON(w, http.StatusForbidden, dto.AccessDeniedDTO{
			Error:     "Access Denied",
			Message:   res.Reason,
			IsBlocked: true,
		}, h.logger)
	case service.AdmissionDailyLimit:
		writeJSON(w, http.StatusTooManyRequests, dto.DailyLimitDTO{
			Error:        "Daily Limit Reached",
			Message:      "The system has reached its daily user limit. Please try again tomorrow.",
			CurrentCount: res.Access.CurrentCount,
			Limit:        res.Access.Limit,
			RateLimited:  true,
		}, h.logger)
	case service.AdmissionRequestLimit:
		writeJSON(w, http.StatusTooManyRequests, dto.RequestLimitDTO{
			Error:       "Request Limit Exceeded",
			Message:     "You have used all your requests for today. Please come back tomorrow.",
			Count:       res.Quota.Count,
			Limit:       res.Quota.Limit,
			RateLimited: true,
		}, h.logger)
	default:
		http.Error(w, "Access check produced an unknown result", http.StatusInternalServerError)
	}
	return false
}

// handleHistory godoc
// @Summary Get chat history
// @Description Returns the user's displayable conversation: their own messages and the assistant's final replies.
// @Tags chat
// @Accept json
// @Produce json
// @Param request body dto.ChatHistoryRequestDTO true "History request"
// @Success 200 {object} dto.ChatHistoryResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 500 {string} string "Failed to load history"
// @Router /chat/history [post]
func (h *ChatHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dto.ChatHistoryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	messages, err := h.chatService.History(r.Context(), req.UserID)
	if err != nil {
		http.Error(w, "Failed to load history: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, dto.ChatHistoryResponseDTO{ChatHistory: historyDTO(messages)}, h.logger)
}

func historyDTO(messages []service.ChatMessage) []dto.ChatHistoryMessageDTO {
	resp := make([]dto.ChatHistoryMessageDTO, len(messages))
	for i, m := range messages {
		resp[i] = dto.ChatHistoryMessageDTO{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}
