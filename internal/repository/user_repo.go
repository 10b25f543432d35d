package repository

import (
	"context"
	"errors"
	"fmt"

	"busmate/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a referenced user or booking does not exist.
var ErrNotFound = errors.New("not found")

const userColumns = `user_id, full_name, email, phone, is_blocked, blocked_reason,
	is_admin, no_show_count, daily_request_count, last_request_date, created_at, updated_at`

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	// Upsert creates the user with defaults if absent and merges any
	// non-empty profile fields. Empty fields never overwrite stored values.
	Upsert(ctx context.Context, id string, p model.Profile) (*model.User, error)
	Block(ctx context.Context, id, reason string) error
	// Unblock lifts the block and resets the no-show counter to zero.
	Unblock(ctx context.Context, id string) error
	SetAdmin(ctx context.Context, id string) error
	// IncrementNoShow bumps the user's no-show counter and returns the new value.
	IncrementNoShow(ctx context.Context, id string) (int, error)
	// ConsumeDailyRequest atomically applies one request against the user's
	// per-day quota. An absent user is allowed with count zero.
	ConsumeDailyRequest(ctx context.Context, id, date string, limit int) (model.QuotaDecision, error)
	ResetDailyLimit(ctx context.Context, id string) error
	ResetAllDailyLimits(ctx context.Context) (int64, error)
}

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.UserID, &u.FullName, &u.Email, &u.Phone, &u.IsBlocked, &u.BlockedReason,
		&u.IsAdmin, &u.NoShowCount, &u.DailyRequestCount, &u.LastRequestDate,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return u, nil
}

func (r *userRepo) List(ctx context.Context) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

func (r *userRepo) Upsert(ctx context.Context, id string, p model.Profile) (*model.User, error) {
	query := `
		INSERT INTO users (user_id, full_name, email, phone)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (user_id) DO UPDATE SET
			full_name  = COALESCE(NULLIF(EXCLUDED.full_name, ''), users.full_name),
			email      = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
			phone      = COALESCE(NULLIF(EXCLUDED.phone, ''), users.phone),
			updated_at = NOW()
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, query, id, p.FullName, p.Email, p.Phone))
	if err != nil {
		return nil, fmt.Errorf("upserting user %s: %w", id, err)
	}
	return u, nil
}

func (r *userRepo) Block(ctx context.Context, id, reason string) error {
	query := `UPDATE users SET is_blocked = TRUE, blocked_reason = $1, updated_at = NOW() WHERE user_id = $2`
	tag, err := r.pool.Exec(ctx, query, reason, id)
	if err != nil {
		return fmt.Errorf("blocking user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) Unblock(ctx context.Context, id string) error {
	// A clean slate: lifting the block also zeroes the no-show counter so the
	// next no-show does not immediately re-block the user.
	query := `
		UPDATE users
		SET is_blocked = FALSE, blocked_reason = NULL, no_show_count = 0, updated_at = NOW()
		WHERE user_id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("unblocking user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) SetAdmin(ctx context.Context, id string) error {
	query := `UPDATE users SET is_admin = TRUE, updated_at = NOW() WHERE user_id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("promoting user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) IncrementNoShow(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE users SET no_show_count = no_show_count + 1, updated_at = NOW()
		WHERE user_id = $1
		RETURNING no_show_count`
	var count int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("incrementing no-show count for %s: %w", id, err)
	}
	return count, nil
}

func (r *userRepo) ConsumeDailyRequest(ctx context.Context, id, date string, limit int) (model.QuotaDecision, error) {
	var dec model.QuotaDecision
	err := withSerializableRetry(ctx, r.pool, func(tx pgx.Tx) error {
		query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
		u, err := scanUser(tx.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// First-ever contact: the upsert elsewhere creates the record.
				dec = model.QuotaDecision{Allowed: true, Count: 0, Remaining: limit, Limit: limit}
				return nil
			}
			return fmt.Errorf("loading user %s for quota check: %w", id, err)
		}

		var changed bool
		dec, changed = u.ConsumeDailyRequest(date, limit)
		if !changed {
			return nil
		}

		update := `
			UPDATE users SET daily_request_count = $1, last_request_date = $2, updated_at = NOW()
			WHERE user_id = $3`
		if _, err := tx.Exec(ctx, update, u.DailyRequestCount, u.LastRequestDate, id); err != nil {
			return fmt.Errorf("persisting quota for user %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return model.QuotaDecision{}, err
	}
	return dec, nil
}

func (r *userRepo) ResetDailyLimit(ctx context.Context, id string) error {
	query := `UPDATE users SET daily_request_count = 0, last_request_date = NULL, updated_at = NOW() WHERE user_id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("resetting daily limit for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) ResetAllDailyLimits(ctx context.Context) (int64, error) {
	query := `UPDATE users SET daily_request_count = 0, last_request_date = NULL, updated_at = NOW()`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("resetting all daily limits: %w", err)
	}
	return tag.RowsAffected(), nil
}

// withSerializableRetry runs fn inside a serializable transaction, retrying
// on serialization failures so concurrent check-and-mutate sequences on the
// same key cannot overshoot a quota.
func withSerializableRetry(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := runInTx(ctx, pool, fn)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		// 40001 serialization_failure, 40P01 deadlock_detected
		if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("serializable transaction did not commit after retries: %w", lastErr)
}

func runInTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
