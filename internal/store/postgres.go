package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const (
	queryActiveParticipations = `
		SELECT conversation_id
		FROM conversation_participants
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY conversation_id`

	queryParticipants = `
		SELECT user_id
		FROM conversation_participants
		WHERE conversation_id = $1 AND is_active = TRUE
		ORDER BY joined_at, user_id`

	queryIsActiveParticipant = `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE user_id = $1 AND conversation_id = $2 AND is_active = TRUE
		)`

	queryDisplayName = `
		SELECT COALESCE(NULLIF(TRIM(CONCAT_WS(' ', first_name, last_name)), ''), email)
		FROM users
		WHERE id = $1`
)

// Postgres reads participants and users from the marketplace database
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool and verifies it with a ping.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) FindActiveParticipations(ctx context.Context, userID string) ([]string, error) {
	ids, err := p.strings(ctx, queryActiveParticipations, userID)
	return ids, errors.Wrapf(err, "active participations of %s", userID)
}

func (p *Postgres) FindParticipants(ctx context.Context, conversationID string) ([]string, error) {
	ids, err := p.strings(ctx, queryParticipants, conversationID)
	return ids, errors.Wrapf(err, "participants of %s", conversationID)
}

func (p *Postgres) IsActiveParticipant(ctx context.Context, userID, conversationID string) (bool, error) {
	var ok bool
	if err := p.pool.QueryRow(ctx, queryIsActiveParticipant, userID, conversationID).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "check participant")
	}
	return ok, nil
}

func (p *Postgres) GetDisplayName(ctx context.Context, userID string) (string, error) {
	var name *string
	err := p.pool.QueryRow(ctx, queryDisplayName, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && name == nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "display name")
	}
	return *name, nil
}

func (p *Postgres) strings(ctx context.Context, query string, arg string) ([]string, error) {
	rows, err := p.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
