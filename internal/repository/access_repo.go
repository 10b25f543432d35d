package repository

import (
	"context"
	"errors"
	"fmt"

	"busmate/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccessRepository is the daily access ledger: at most N distinct users per
// calendar date, system-wide.
type AccessRepository interface {
	// CheckAndAdmit atomically decides whether userID may access the system
	// on the given date and records the admission when a slot is consumed.
	CheckAndAdmit(ctx context.Context, date, userID string, limit int) (model.AccessDecision, error)
	GetDailyStats(ctx context.Context, date string, limit int) (model.DailyStats, error)
	// Reset clears the entire ledger (admin action).
	Reset(ctx context.Context) error
	// DeleteOlderThan prunes ledger rows with a date before the cutoff.
	DeleteOlderThan(ctx context.Context, cutoff string) (int64, error)
}

type accessRepo struct {
	pool *pgxpool.Pool
}

func NewAccessRepo(pool *pgxpool.Pool) AccessRepository {
	return &accessRepo{pool: pool}
}

func (r *accessRepo) CheckAndAdmit(ctx context.Context, date, userID string, limit int) (model.AccessDecision, error) {
	var dec model.AccessDecision
	err := withSerializableRetry(ctx, r.pool, func(tx pgx.Tx) error {
		// Create the date's row lazily so the select below always finds one.
		insert := `INSERT INTO daily_access (date) VALUES ($1) ON CONFLICT (date) DO NOTHING`
		if _, err := tx.Exec(ctx, insert, date); err != nil {
			return fmt.Errorf("creating access record for %s: %w", date, err)
		}

		rec := model.DailyAccessRecord{Date: date}
		query := `SELECT unique_users, user_ids FROM daily_access WHERE date = $1`
		if err := tx.QueryRow(ctx, query, date).Scan(&rec.UniqueUsers, &rec.UserIDs); err != nil {
			return fmt.Errorf("loading access record for %s: %w", date, err)
		}

		var changed bool
		dec, changed = rec.Admit(userID, limit)
		if !changed {
			return nil
		}

		update := `UPDATE daily_access SET unique_users = $1, user_ids = $2, updated_at = NOW() WHERE date = $3`
		if _, err := tx.Exec(ctx, update, rec.UniqueUsers, rec.UserIDs, date); err != nil {
			return fmt.Errorf("persisting access record for %s: %w", date, err)
		}
		return nil
	})
	if err != nil {
		return model.AccessDecision{}, err
	}
	return dec, nil
}

func (r *accessRepo) GetDailyStats(ctx context.Context, date string, limit int) (model.DailyStats, error) {
	rec := model.DailyAccessRecord{Date: date}
	query := `SELECT unique_users, user_ids FROM daily_access WHERE date = $1`
	err := r.pool.QueryRow(ctx, query, date).Scan(&rec.UniqueUsers, &rec.UserIDs)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.DailyStats{}, fmt.Errorf("loading daily stats for %s: %w", date, err)
	}

	remaining := limit - len(rec.UserIDs)
	if remaining < 0 {
		remaining = 0
	}
	userIDs := rec.UserIDs
	if userIDs == nil {
		userIDs = []string{}
	}
	return model.DailyStats{
		Date:           date,
		UniqueUsers:    len(userIDs),
		RemainingSlots: remaining,
		UserIDs:        userIDs,
	}, nil
}

func (r *accessRepo) Reset(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM daily_access`); err != nil {
		return fmt.Errorf("resetting daily access ledger: %w", err)
	}
	return nil
}

func (r *accessRepo) DeleteOlderThan(ctx context.Context, cutoff string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM daily_access WHERE date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning access ledger before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}
