package service

import (
	"context"
	"errors"
	"time"

	"busmate/internal/model"
	"busmate/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrCannotBlockAdmin = errors.New("cannot block an admin user")
)

// UserService covers the admin-facing user and ledger operations.
type UserService interface {
	List(ctx context.Context) ([]model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	Block(ctx context.Context, id, reason string) (*model.User, error)
	Unblock(ctx context.Context, id string) (*model.User, error)
	Promote(ctx context.Context, id string) (*model.User, error)
	DailyStats(ctx context.Context) (model.DailyStats, error)
	ResetDailyAccess(ctx context.Context) error
	ResetUserDailyLimit(ctx context.Context, id string) error
	ResetAllDailyLimits(ctx context.Context) (int64, error)
}

type userService struct {
	users          repository.UserRepository
	access         repository.AccessRepository
	dailyUserLimit int
	now            func() time.Time
	logger         zerolog.Logger
}

func NewUserService(
	users repository.UserRepository,
	access repository.AccessRepository,
	dailyUserLimit int,
	logger zerolog.Logger,
) UserService {
	return &userService{
		users:          users,
		access:         access,
		dailyUserLimit: dailyUserLimit,
		now:            time.Now,
		logger:         logger.With().Str("service", "UserService").Logger(),
	}
}

func (s *userService) List(ctx context.Context) ([]model.User, error) {
	return s.users.List(ctx)
}

func (s *userService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *userService) Block(ctx context.Context, id, reason string) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.IsAdmin {
		return nil, ErrCannotBlockAdmin
	}
	if reason == "" {
		reason = "Blocked by administrator"
	}
	if err := s.users.Block(ctx, id, reason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	s.logger.Info().Str("user_id", id).Str("reason", reason).Msg("User blocked")
	return s.Get(ctx, id)
}

func (s *userService) Unblock(ctx context.Context, id string) (*model.User, error) {
	if err := s.users.Unblock(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	s.logger.Info().Str("user_id", id).Msg("User unblocked")
	return s.Get(ctx, id)
}

func (s *userService) Promote(ctx context.Context, id string) (*model.User, error) {
	// Promotion targets may not have chatted yet, so create the record first.
	if _, err := s.users.Upsert(ctx, id, model.Profile{}); err != nil {
		return nil, err
	}
	if err := s.users.SetAdmin(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	s.logger.Info().Str("user_id", id).Msg("User promoted to admin")
	return s.Get(ctx, id)
}

func (s *userService) DailyStats(ctx context.Context) (model.DailyStats, error) {
	date := s.now().UTC().Format("2006-01-02")
	return s.access.GetDailyStats(ctx, date, s.dailyUserLimit)
}

func (s *userService) ResetDailyAccess(ctx context.Context) error {
	if err := s.access.Reset(ctx); err != nil {
		return err
	}
	s.logger.Info().Msg("Daily access ledger reset")
	return nil
}

func (s *userService) ResetUserDailyLimit(ctx context.Context, id string) error {
	if err := s.users.ResetDailyLimit(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.logger.Info().Str("user_id", id).Msg("User daily request limit reset")
	return nil
}

func (s *userService) ResetAllDailyLimits(ctx context.Context) (int64, error) {
	n, err := s.users.ResetAllDailyLimits(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("users", n).Msg("All daily request limits reset")
	return n, nil
}
