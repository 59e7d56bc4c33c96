package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/retention"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, user_id, session_name, messages, retention_period, expires_at, version, created_at, updated_at`

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	pool  *pgxpool.Pool
	clock func() time.Time
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool, clock: time.Now}
}

// WithClock replaces the time source
func (r *SessionRepository) WithClock(clock func() time.Time) *SessionRepository {
	r.clock = clock
	return r
}

// timestamptz keeps microseconds
func (r *SessionRepository) now() time.Time {
	return r.clock().UTC().Truncate(time.Microsecond)
}

func (r *SessionRepository) Create(ctx context.Context, ownerUserID, displayName string, period domain.RetentionPeriod) (*domain.ChatSession, error) {
	now := r.now()
	s := &domain.ChatSession{
		ID:              uuid.New(),
		OwnerUserID:     ownerUserID,
		DisplayName:     displayName,
		Messages:        []domain.ChatMessage{},
		RetentionPeriod: period,
		ExpiresAt:       retention.ExpiryFrom(now, period),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	query := `
		INSERT INTO chat_sessions (id, user_id, session_name, messages, retention_period, expires_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, '[]'::jsonb, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.OwnerUserID,
		s.DisplayName,
		string(s.RetentionPeriod),
		s.ExpiresAt,
		s.Version,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return nil, domain.StorageError("create session", err)
	}
	return s, nil
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = $1 AND expires_at >= $2`
	return getOne(r.pool.QueryRow(ctx, query, id, r.now()))
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID, ownerUserID string) (*domain.ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = $1 AND user_id = $2 AND expires_at >= $3`
	return getOne(r.pool.QueryRow(ctx, query, id, ownerUserID, r.now()))
}

func getOne(row pgx.Row) (*domain.ChatSession, error) {
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.StorageError("get session", err)
	}
	return s, nil
}

// AppendAndSave locks the row for the duration of the transaction so appends
// to the same session are applied one after another.
func (r *SessionRepository) AppendAndSave(ctx context.Context, id uuid.UUID, messages []domain.ChatMessage) (*domain.ChatSession, error) {
	var updated *domain.ChatSession

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		now := r.now()

		query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = $1 AND expires_at >= $2 FOR UPDATE`
		s, err := scanSession(tx.QueryRow(ctx, query, id, now))
		if err != nil {
			return err
		}

		if now.Before(s.UpdatedAt) {
			now = s.UpdatedAt
		}
		s.Messages = append(s.Messages, messages...)
		s.UpdatedAt = now
		s.ExpiresAt = retention.ExpiresAt(s)
		s.Version++

		payload, err := json.Marshal(s.Messages)
		if err != nil {
			return fmt.Errorf("failed to marshal messages: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE chat_sessions
			SET messages = $1, updated_at = $2, expires_at = $3, version = $4
			WHERE id = $5
		`, payload, s.UpdatedAt, s.ExpiresAt, s.Version, s.ID)
		if err != nil {
			return err
		}

		updated = s
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.StorageError("append messages", err)
	}
	return updated, nil
}

func (r *SessionRepository) ListByOwner(ctx context.Context, ownerUserID string) iter.Seq2[domain.SessionSummary, error] {
	return func(yield func(domain.SessionSummary, error) bool) {
		query := `
			SELECT id, session_name, created_at, updated_at, expires_at,
			       COALESCE(messages->-1->>'content', ''), jsonb_array_length(messages)
			FROM chat_sessions
			WHERE user_id = $1 AND expires_at >= $2
			ORDER BY updated_at DESC
		`
		rows, err := r.pool.Query(ctx, query, ownerUserID, r.now())
		if err != nil {
			yield(domain.SessionSummary{}, domain.StorageError("list sessions", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var s domain.SessionSummary
			if err := rows.Scan(
				&s.ID,
				&s.DisplayName,
				&s.CreatedAt,
				&s.UpdatedAt,
				&s.ExpiresAt,
				&s.LastMessage,
				&s.MessageCount,
			); err != nil {
				yield(domain.SessionSummary{}, domain.StorageError("scan session summary", err))
				return
			}
			s.LastMessage = domain.Preview(s.LastMessage)
			if !yield(s, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.SessionSummary{}, domain.StorageError("list sessions", err))
		}
	}
}

func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM chat_sessions WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return domain.StorageError("delete session", err)
	}
	return nil
}

func (r *SessionRepository) DeleteAllExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM chat_sessions WHERE expires_at < $1`
	tag, err := r.pool.Exec(ctx, query, now.UTC())
	if err != nil {
		return 0, domain.StorageError("delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanSession(row pgx.Row) (*domain.ChatSession, error) {
	var (
		s      domain.ChatSession
		raw    []byte
		period string
	)
	if err := row.Scan(
		&s.ID,
		&s.OwnerUserID,
		&s.DisplayName,
		&raw,
		&period,
		&s.ExpiresAt,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.RetentionPeriod = domain.RetentionPeriod(period)
	if err := json.Unmarshal(raw, &s.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	if s.Messages == nil {
		s.Messages = []domain.ChatMessage{}
	}
	return &s, nil
}
