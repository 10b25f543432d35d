package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"busmate/internal/api/v1/dto"
	"busmate/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type AdminHandler struct {
	userService    service.UserService
	bookingService service.BookingService
	chatService    service.ChatService
	validate       *validator.Validate
	logger         zerolog.Logger
}

func NewAdminHandler(
	userService service.UserService,
	bookingService service.BookingService,
	chatService service.ChatService,
	validate *validator.Validate,
	logger zerolog.Logger,
) *AdminHandler {
	return &AdminHandler{
		userService:    userService,
		bookingService: bookingService,
		chatService:    chatService,
		validate:       validate,
		logger:         logger,
	}
}

func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/users", h.handleListUsers)
	mux.HandleFunc("/admin/users/info", h.handleUserInfo)
	mux.HandleFunc("/admin/users/block", h.handleBlockUser)
	mux.HandleFunc("/admin/users/unblock", h.handleUnblockUser)
	mux.HandleFunc("/admin/users/make-admin", h.handleMakeAdmin)
	mux.HandleFunc("/admin/stats/daily", h.handleDailyStats)
	mux.HandleFunc("/admin/limits/reset-user", h.handleResetUserLimit)
	mux.HandleFunc("/admin/limits/reset-system", h.handleResetSystemAccess)
	mux.HandleFunc("/admin/limits/reset-all-users", h.handleResetAllUserLimits)
	mux.HandleFunc("/admin/limits/reset-everything", h.handleResetEverything)
	mux.HandleFunc("/admin/bookings", h.handleListBookings)
	mux.HandleFunc("/admin/bookings/user", h.handleUserBookings)
	mux.HandleFunc("/admin/bookings/status", h.handleBookingStatus)
	mux.HandleFunc("/admin/chat/history", h.handleUserChatHistory)
}

// decodeAdminRequest decodes and validates the body into req, then verifies
// the caller identified by adminID is an admin. It writes the error response
// itself and reports whether the handler may proceed.
func (h *AdminHandler) decodeAdminRequest(w http.ResponseWriter, r *http.Request, req any, adminID func() string) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return false
	}

	admin, err := h.userService.Get(r.Context(), adminID())
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			http.Error(w, "Unauthorized: admin user not found", http.StatusForbidden)
			return false
		}
		http.Error(w, "Failed to verify admin: "+err.Error(), http.StatusInternalServerError)
		return false
	}
	if !admin.IsAdmin {
		http.Error(w, "Unauthorized: admin access required", http.StatusForbidden)
		return false
	}
	return true
}

// handleListUsers godoc
// @Summary List all users
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminRequestDTO true "Admin request"
// @Success 200 {array} model.User
// @Failure 403 {string} string "Unauthorized: admin access required"
// @Router /admin/users [post]
func (h *AdminHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	users, err := h.userService.List(r.Context())
	if err != nil {
		http.Error(w, "Failed to list users: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, users, h.logger)
}

// handleUserInfo godoc
// @Summary Get one user's profile, bookings, and quota usage
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminUserRequestDTO true "Admin request"
// @Success 200 {object} dto.AdminUserInfoResponseDTO
// @Failure 404 {string} string "User not found"
// @Router /admin/users/info [post]
func (h *AdminHandler) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminUserRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	user, err := h.userService.Get(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get user: "+err.Error(), http.StatusInternalServerError)
		return
	}

	bookings, err := h.bookingService.ListByUser(r.Context(), req.UserID)
	if err != nil {
		http.Error(w, "Failed to list bookings: "+err.Error(), http.StatusInternalServerError)
		return
	}

	today := time.Now().UTC().Format("2006-01-02")
	writeJSON(w, http.StatusOK, dto.AdminUserInfoResponseDTO{
		User:          user,
		Bookings:      bookings,
		RequestsToday: user.RequestsOn(today),
	}, h.logger)
}

// handleBlockUser godoc
// @Summary Block a user
// @Description Blocks a user from chatting. Admins cannot be blocked.
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminBlockRequestDTO true "Block request"
// @Success 200 {object} model.User
// @Failure 403 {string} string "Cannot block an admin user"
// @Failure 404 {string} string "User not found"
// @Router /admin/users/block [post]
func (h *AdminHandler) handleBlockUser(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminBlockRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	user, err := h.userService.Block(r.Context(), req.UserID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			http.Error(w, "User not found", http.StatusNotFound)
		case errors.Is(err, service.ErrCannotBlockAdmin):
			http.Error(w, "Cannot block an admin user", http.StatusForbidden)
		default:
			http.Error(w, "Failed to block user: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, user, h.logger)
}

// handleUnblockUser godoc
// @Summary Unblock a user
// @Description Lifts a block and resets the user's no-show counter.
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminUserRequestDTO true "Unblock request"
// @Success 200 {object} model.User
// @Failure 404 {string} string "User not found"
// @Router /admin/users/unblock [post]
func (h *AdminHandler) handleUnblockUser(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminUserRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	user, err := h.userService.Unblock(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to unblock user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user, h.logger)
}

// handleMakeAdmin godoc
// @Summary Promote a user to admin
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminUserRequestDTO true "Promote request"
// @Success 200 {object} model.User
// @Router /admin/users/make-admin [post]
func (h *AdminHandler) handleMakeAdmin(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminUserRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	user, err := h.userService.Promote(r.Context(), req.UserID)
	if err != nil {
		http.Error(w, "Failed to promote user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user, h.logger)
}

// handleDailyStats godoc
// @Summary Get today's access stats
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminRequestDTO true "Admin request"
// @Success 200 {object} model.DailyStats
// @Router /admin/stats/daily [post]
func (h *AdminHandler) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	stats, err := h.userService.DailyStats(r.Context())
	if err != nil {
		http.Error(w, "Failed to load daily stats: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats, h.logger)
}

// handleResetSystemAccess godoc
// @Summary Reset the system-wide daily access ledger
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminRequestDTO true "Admin request"
// @Success 200 {object} dto.MessageResponseDTO
// @Router /admin/limits/reset-system [post]
func (h *AdminHandler) handleResetSystemAccess(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	if err := h.userService.ResetDailyAccess(r.Context()); err != nil {
		http.Error(w, "Failed to reset daily access: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponseDTO{Message: "Daily access ledger reset"}, h.logger)
}

// handleResetUserLimit godoc
// @Summary Reset one user's daily request quota
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminUserRequestDTO true "Reset request"
// @Success 200 {object} dto.MessageResponseDTO
// @Failure 404 {string} string "User not found"
// @Router /admin/limits/reset-user [post]
func (h *AdminHandler) handleResetUserLimit(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminUserRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	if err := h.userService.ResetUserDailyLimit(r.Context(), req.UserID); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to reset user limit: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponseDTO{Message: "Daily request limit reset for " + req.UserID}, h.logger)
}

// handleResetAllUserLimits godoc
// @Summary Reset every user's daily request quota
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminRequestDTO true "Admin request"
// @Success 200 {object} dto.MessageResponseDTO
// @Router /admin/limits/reset-all-users [post]
func (h *AdminHandler) handleResetAllUserLimits(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	n, err := h.userService.ResetAllDailyLimits(r.Context())
	if err != nil {
		http.Error(w, "Failed to reset limits: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponseDTO{Message: fmt.Sprintf("Daily request limits reset for %d users", n)}, h.logger)
}

// handleResetEverything godoc
// @Summary Reset the access ledger and every user's quota in one call
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminRequestDTO true "Admin request"
// @Success 200 {object} dto.MessageResponseDTO
// @Router /admin/limits/reset-everything [post]
func (h *AdminHandler) handleResetEverything(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	if err := h.userService.ResetDailyAccess(r.Context()); err != nil {
		http.Error(w, "Failed to reset daily access: "+err.Error(), http.StatusInternalServerError)
		return
	}
	n, err := h.userService.ResetAllDailyLimits(r.Context())
	if err != nil {
		http.Error(w, "Failed to reset limits: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponseDTO{Message: fmt.Sprintf("Access ledger cleared and limits reset for %d users", n)}, h.logger)
}

// handleListBookings godoc
// @Summary List all bookings
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminRequestDTO true "Admin request"
// @Success 200 {array} model.Booking
// @Router /admin/bookings [post]
func (h *AdminHandler) handleListBookings(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	bookings, err := h.bookingService.ListAll(r.Context())
	if err != nil {
		http.Error(w, "Failed to list bookings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bookings, h.logger)
}

// handleUserBookings godoc
// @Summary List one user's bookings
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminUserRequestDTO true "Admin request"
// @Success 200 {array} model.Booking
// @Router /admin/bookings/user [post]
func (h *AdminHandler) handleUserBookings(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminUserRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	bookings, err := h.bookingService.ListByUser(r.Context(), req.UserID)
	if err != nil {
		http.Error(w, "Failed to list bookings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bookings, h.logger)
}

// handleBookingStatus godoc
// @Summary Update a booking's status
// @Description Sets the booking's status. Marking a booking no-show escalates the user's no-show counter and may auto-block them.
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminBookingStatusRequestDTO true "Status update request"
// @Success 200 {object} service.StatusUpdateResult
// @Failure 400 {string} string "Invalid booking status"
// @Failure 404 {string} string "Booking not found"
// @Router /admin/bookings/status [post]
func (h *AdminHandler) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminBookingStatusRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	result, err := h.bookingService.UpdateStatus(r.Context(), req.BookingID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBookingNotFound):
			http.Error(w, "Booking not found", http.StatusNotFound)
		case errors.Is(err, service.ErrInvalidStatus):
			http.Error(w, "Invalid booking status: "+err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "Failed to update booking status: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, result, h.logger)
}

// handleUserChatHistory godoc
// @Summary Get one user's chat history
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminUserRequestDTO true "Admin request"
// @Success 200 {object} dto.ChatHistoryResponseDTO
// @Router /admin/chat/history [post]
func (h *AdminHandler) handleUserChatHistory(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminUserRequestDTO
	if !h.decodeAdminRequest(w, r, &req, func() string { return req.AdminID }) {
		return
	}

	messages, err := h.chatService.History(r.Context(), req.UserID)
	if err != nil {
		http.Error(w, "Failed to load chat history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto.ChatHistoryResponseDTO{ChatHistory: historyDTO(messages)}, h.logger)
}
