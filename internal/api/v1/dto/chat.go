package dto

import "time"

type ChatRequestDTO struct {
	UserID  string `json:"userId" validate:"required,min=1,max=128"`
	Message string `json:"message" validate:"required,min=1,max=4000"`
}

type ChatResponseDTO struct {
	Response string `json:"response"`
}

type ChatHistoryRequestDTO struct {
	UserID string `json:"userId" validate:"required,min=1,max=128"`
}

type ChatHistoryMessageDTO struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChatHistoryResponseDTO struct {
	ChatHistory []ChatHistoryMessageDTO `json:"chatHistory"`
}

// AccessDeniedDTO is returned when a blocked user tries to chat.
type AccessDeniedDTO struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	IsBlocked bool   `json:"isBlocked"`
}

// DailyLimitDTO is returned when the system-wide daily unique-user cap is hit.
type DailyLimitDTO struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	CurrentCount int    `json:"currentCount"`
	Limit        int    `json:"limit"`
	RateLimited  bool   `json:"rateLimited"`
}

// RequestLimitDTO is returned when a user exhausts their own daily quota.
type RequestLimitDTO struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Count       int    `json:"count"`
	Limit       int    `json:"limit"`
	RateLimited bool   `json:"rateLimited"`
}
