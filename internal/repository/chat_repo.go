package repository

import (
	"context"
	"fmt"

	"busmate/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ChatRepository is the append-only conversation log, ordered per user by
// creation time.
type ChatRepository interface {
	AppendTurn(ctx context.Context, userID, role string, content []byte) error
	ListTurns(ctx context.Context, userID string) ([]model.ChatTurn, error)
}

type chatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) ChatRepository {
	return &chatRepo{pool: pool}
}

func (r *chatRepo) AppendTurn(ctx context.Context, userID, role string, content []byte) error {
	query := `INSERT INTO chat_turns (user_id, role, content) VALUES ($1, $2, $3::jsonb)`
	if _, err := r.pool.Exec(ctx, query, userID, role, content); err != nil {
		return fmt.Errorf("appending chat turn for %s: %w", userID, err)
	}
	return nil
}

func (r *chatRepo) ListTurns(ctx context.Context, userID string) ([]model.ChatTurn, error) {
	query := `
		SELECT id, user_id, role, content, created_at
		FROM chat_turns
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying chat turns: %w", err)
	}
	defer rows.Close()

	var turns []model.ChatTurn
	for rows.Next() {
		var t model.ChatTurn
		if err := rows.Scan(&t.ID, &t.UserID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat turn row: %w", err)
		}
		turns = append(turns, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat turn rows: %w", err)
	}
	return turns, nil
}
