package service

import (
	"context"
	"fmt"
	"time"

	"busmate/internal/model"
	"busmate/internal/repository"

	"github.com/rs/zerolog"
)

// AdmissionStatus is the outcome of running a request through the gate chain.
type AdmissionStatus string

const (
	AdmissionAdmitted     AdmissionStatus = "admitted"
	AdmissionBlocked      AdmissionStatus = "blocked"
	AdmissionDailyLimit   AdmissionStatus = "daily_limit"
	AdmissionRequestLimit AdmissionStatus = "request_limit"
)

// AdmissionResult carries the gate decision plus whichever counters the
// rejecting gate produced, so handlers can echo them to the client.
type AdmissionResult struct {
	Status AdmissionStatus
	Reason string
	Access model.AccessDecision
	Quota  model.QuotaDecision
}

// AdmissionService decides whether a chat request may proceed. Gates run in a
// fixed order: block check, admin bypass, daily unique-user cap, per-user
// request quota. Storage failures in the two counting gates fail open so a
// database hiccup degrades limits rather than availability; a failed user
// read fails the request, since block state cannot be evaluated without it.
type AdmissionService interface {
	Admit(ctx context.Context, userID string) (AdmissionResult, error)
}

type admissionService struct {
	users            repository.UserRepository
	access           repository.AccessRepository
	dailyUserLimit   int
	userRequestLimit int
	now              func() time.Time
	logger           zerolog.Logger
}

func NewAdmissionService(
	users repository.UserRepository,
	access repository.AccessRepository,
	dailyUserLimit, userRequestLimit int,
	logger zerolog.Logger,
) AdmissionService {
	return &admissionService{
		users:            users,
		access:           access,
		dailyUserLimit:   dailyUserLimit,
		userRequestLimit: userRequestLimit,
		now:              time.Now,
		logger:           logger.With().Str("service", "AdmissionService").Logger(),
	}
}

func (s *admissionService) Admit(ctx context.Context, userID string) (AdmissionResult, error) {
	date := s.today()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("User lookup failed")
		return AdmissionResult{}, fmt.Errorf("loading user %s: %w", userID, err)
	}

	if user != nil && user.IsBlocked {
		reason := "You have been blocked by the administrator."
		if user.BlockedReason != nil && *user.BlockedReason != "" {
			reason = *user.BlockedReason
		}
		return AdmissionResult{Status: AdmissionBlocked, Reason: reason}, nil
	}

	if user != nil && user.IsAdmin {
		return AdmissionResult{Status: AdmissionAdmitted}, nil
	}

	access, err := s.access.CheckAndAdmit(ctx, date, userID, s.dailyUserLimit)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Daily access check failed, failing open")
		access = model.AccessDecision{Admitted: true, Limit: s.dailyUserLimit}
	}
	if !access.Admitted {
		return AdmissionResult{Status: AdmissionDailyLimit, Access: access}, nil
	}

	quota, err := s.users.ConsumeDailyRequest(ctx, userID, date, s.userRequestLimit)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Request quota check failed, failing open")
		quota = model.QuotaDecision{Allowed: true, Limit: s.userRequestLimit}
	}
	if !quota.Allowed {
		return AdmissionResult{Status: AdmissionRequestLimit, Access: access, Quota: quota}, nil
	}

	return AdmissionResult{Status: AdmissionAdmitted, Access: access, Quota: quota}, nil
}

func (s *admissionService) today() string {
	return s.now().UTC().Format("2006-01-02")
}
