package dto

import "busmate/internal/model"

// Admin requests carry the caller's own user ID; the handler verifies the
// referenced user is an admin before acting.

type AdminRequestDTO struct {
	AdminID string `json:"adminId" validate:"required,min=1,max=128"`
}

type AdminUserRequestDTO struct {
	AdminID string `json:"adminId" validate:"required,min=1,max=128"`
	UserID  string `json:"userId" validate:"required,min=1,max=128"`
}

type AdminBlockRequestDTO struct {
	AdminID string `json:"adminId" validate:"required,min=1,max=128"`
	UserID  string `json:"userId" validate:"required,min=1,max=128"`
	Reason  string `json:"reason" validate:"omitempty,max=500"`
}

type AdminBookingStatusRequestDTO struct {
	AdminID   string `json:"adminId" validate:"required,min=1,max=128"`
	BookingID string `json:"bookingId" validate:"required,min=1,max=64"`
	Status    string `json:"status" validate:"required,oneof=pending completed no-show cancelled"`
}

type MessageResponseDTO struct {
	Message string `json:"message"`
}

// AdminUserInfoResponseDTO combines a user's profile with their bookings and
// today's quota usage.
type AdminUserInfoResponseDTO struct {
	User          *model.User     `json:"user"`
	Bookings      []model.Booking `json:"bookings"`
	RequestsToday int             `json:"requestsToday"`
}
