package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"busmate/internal/model"
	"busmate/internal/pubsub"
	"busmate/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrInvalidStatus   = errors.New("invalid booking status")
)

// Users reaching this many no-shows are blocked automatically.
const noShowBlockThreshold = 3

// ETicketQueue enqueues e-ticket delivery jobs. Satisfied by *pgmq.Client.
type ETicketQueue interface {
	Send(ctx context.Context, queue string, payload []byte) error
}

// StatusUpdateResult reports a status change and any no-show escalation it
// triggered.
type StatusUpdateResult struct {
	Booking     *model.Booking `json:"booking"`
	NoShowCount int            `json:"noShowCount,omitempty"`
	AutoBlocked bool           `json:"autoBlocked,omitempty"`
}

// BookingService persists bookings, drives status transitions and the
// no-show escalation, and emits lifecycle events.
type BookingService interface {
	// Record persists an upstream booking confirmation as a pending booking
	// and backfills the passenger's profile.
	Record(ctx context.Context, userID string, conf *BookingConfirmation) (*model.Booking, error)
	Get(ctx context.Context, bookingID string) (*model.Booking, error)
	ListAll(ctx context.Context) ([]model.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]model.Booking, error)
	UpdateStatus(ctx context.Context, bookingID, status string) (*StatusUpdateResult, error)
}

type bookingService struct {
	bookings    repository.BookingRepository
	users       repository.UserRepository
	publisher   pubsub.Publisher
	eventsTopic string
	queue       ETicketQueue
	queueName   string
	logger      zerolog.Logger
}

func NewBookingService(
	bookings repository.BookingRepository,
	users repository.UserRepository,
	publisher pubsub.Publisher,
	eventsTopic string,
	queue ETicketQueue,
	queueName string,
	logger zerolog.Logger,
) BookingService {
	return &bookingService{
		bookings:    bookings,
		users:       users,
		publisher:   publisher,
		eventsTopic: eventsTopic,
		queue:       queue,
		queueName:   queueName,
		logger:      logger.With().Str("service", "BookingService").Logger(),
	}
}

func (s *bookingService) Record(ctx context.Context, userID string, conf *BookingConfirmation) (*model.Booking, error) {
	booking := &model.Booking{
		BookingID:      conf.BookingID,
		UserID:         userID,
		PNR:            conf.PNR,
		BusID:          conf.BusID,
		BusName:        conf.BusName,
		From:           conf.From,
		To:             conf.To,
		Date:           conf.Date,
		Seats:          conf.Seats,
		TotalPrice:     conf.TotalPrice,
		Status:         model.BookingStatusPending,
		PassengerName:  conf.FullName,
		PassengerEmail: conf.Email,
		PassengerPhone: conf.Phone,
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("recording booking: %w", err)
	}

	if _, err := s.users.Upsert(ctx, userID, model.Profile{
		FullName: conf.FullName,
		Email:    conf.Email,
		Phone:    conf.Phone,
	}); err != nil {
		// The booking itself is durable; a profile backfill failure is not
		// worth failing the conversation over.
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Profile backfill after booking failed")
	}

	s.enqueueETicket(ctx, booking)
	s.publishEvent(ctx, "booking.created", booking, nil)

	s.logger.Info().
		Str("booking_id", booking.BookingID).
		Str("user_id", userID).
		Int("seats", booking.Seats).
		Msg("Booking recorded")
	return booking, nil
}

func (s *bookingService) Get(ctx context.Context, bookingID string) (*model.Booking, error) {
	b, err := s.bookings.GetByBookingID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *bookingService) ListAll(ctx context.Context) ([]model.Booking, error) {
	return s.bookings.ListAll(ctx)
}

func (s *bookingService) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	return s.bookings.ListByUser(ctx, userID)
}

func (s *bookingService) UpdateStatus(ctx context.Context, bookingID, status string) (*StatusUpdateResult, error) {
	if !model.ValidBookingStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	booking, err := s.bookings.GetByBookingID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if !canTransition(booking.Status, status) {
		return nil, fmt.Errorf("%w: cannot move %s from %s to %s", ErrInvalidStatus, bookingID, booking.Status, status)
	}

	if err := s.bookings.UpdateStatus(ctx, bookingID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	previous := booking.Status
	booking.Status = status

	result := &StatusUpdateResult{Booking: booking}
	if status == model.BookingStatusNoShow {
		s.escalateNoShow(ctx, booking.UserID, result)
	}

	s.publishEvent(ctx, "booking.status_changed", booking, map[string]string{"previousStatus": previous})
	return result, nil
}

// canTransition is the single place a booking status transition graph would
// live. Every transition between known statuses is currently allowed so
// operators can correct mistakes freely.
func canTransition(from, to string) bool {
	return true
}

// escalateNoShow bumps the user's no-show counter and blocks them at the
// threshold. Admins are exempt from no-show tracking entirely.
func (s *bookingService) escalateNoShow(ctx context.Context, userID string, result *StatusUpdateResult) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("User lookup for no-show escalation failed")
		return
	}
	if user == nil {
		return
	}
	if user.IsAdmin {
		return
	}

	count, err := s.users.IncrementNoShow(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Incrementing no-show count failed")
		return
	}
	result.NoShowCount = count

	if count < noShowBlockThreshold {
		return
	}
	// Re-applied past the threshold so the reason reflects the latest count.
	reason := fmt.Sprintf("Blocked due to %d no-shows", count)
	if err := s.users.Block(ctx, userID, reason); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Auto-blocking after no-shows failed")
		return
	}
	result.AutoBlocked = true
	s.logger.Warn().Str("user_id", userID).Int("no_show_count", count).Msg("User auto-blocked for repeated no-shows")
}

func (s *bookingService) enqueueETicket(ctx context.Context, b *model.Booking) {
	if s.queue == nil || s.queueName == "" {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"bookingId": b.BookingID,
		"pnr":       b.PNR,
		"userId":    b.UserID,
		"busName":   b.BusName,
		"from":      b.From,
		"to":        b.To,
		"date":      b.Date,
		"seats":     b.Seats,
		"email":     b.PassengerEmail,
		"phone":     b.PassengerPhone,
		"fullName":  b.PassengerName,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.BookingID).Msg("Marshaling e-ticket job failed")
		return
	}
	if err := s.queue.Send(ctx, s.queueName, payload); err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.BookingID).Msg("Enqueuing e-ticket job failed")
	}
}

func (s *bookingService) publishEvent(ctx context.Context, event string, b *model.Booking, extra map[string]string) {
	payload := map[string]any{
		"event":     event,
		"bookingId": b.BookingID,
		"userId":    b.UserID,
		"status":    b.Status,
	}
	for k, v := range extra {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("Marshaling booking event failed")
		return
	}
	if _, err := s.publisher.Publish(ctx, s.eventsTopic, data); err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("Publishing booking event failed")
	}
}
