package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/retention"
	"github.com/google/uuid"
)

const (
	sessionColumns    = `id, user_id, session_name, messages, retention_period, expires_at, version, created_at, updated_at`
	maxAppendAttempts = 25
)

// SessionRepository implements domain.SessionRepository. Appends use the
// version column as an optimistic lock and retry on conflict.
type SessionRepository struct {
	db    *DB
	clock func() time.Time
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db, clock: time.Now}
}

// WithClock replaces the time source
func (r *SessionRepository) WithClock(clock func() time.Time) *SessionRepository {
	r.clock = clock
	return r
}

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

	_, err := r.db.SQL.ExecContext(ctx, `
		INSERT INTO chat_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, '[]', ?, ?, ?, ?, ?)`,
		s.ID.String(),
		s.OwnerUserID,
		s.DisplayName,
		string(s.RetentionPeriod),
		s.ExpiresAt.UnixMicro(),
		s.Version,
		s.CreatedAt.UnixMicro(),
		s.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		return nil, domain.StorageError("create session", err)
	}
	return s, nil
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ? AND expires_at >= ?`,
		id.String(), r.now().UnixMicro())
	return getOne(row)
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID, ownerUserID string) (*domain.ChatSession, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ? AND user_id = ? AND expires_at >= ?`,
		id.String(), ownerUserID, r.now().UnixMicro())
	return getOne(row)
}

func getOne(row *sql.Row) (*domain.ChatSession, error) {
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.StorageError("get session", err)
	}
	return s, nil
}

func (r *SessionRepository) AppendAndSave(ctx context.Context, id uuid.UUID, messages []domain.ChatMessage) (*domain.ChatSession, error) {
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		s, err := r.Get(ctx, id)
		if err != nil {
			if isRetryable(err) {
				if err := backoff(ctx, attempt); err != nil {
					return nil, domain.StorageError("append messages", err)
				}
				continue
			}
			return nil, err
		}

		now := r.now()
		if now.Before(s.UpdatedAt) {
			now = s.UpdatedAt
		}
		expected := s.Version
		s.Messages = append(s.Messages, messages...)
		s.UpdatedAt = now
		s.ExpiresAt = retention.ExpiresAt(s)
		s.Version++

		payload, err := json.Marshal(s.Messages)
		if err != nil {
			return nil, domain.StorageError("append messages", err)
		}

		res, err := r.db.SQL.ExecContext(ctx, `
			UPDATE chat_sessions
			SET messages = ?, updated_at = ?, expires_at = ?, version = ?
			WHERE id = ? AND version = ?`,
			string(payload), s.UpdatedAt.UnixMicro(), s.ExpiresAt.UnixMicro(), s.Version,
			s.ID.String(), expected,
		)
		if err != nil {
			if isRetryable(err) {
				if err := backoff(ctx, attempt); err != nil {
					return nil, domain.StorageError("append messages", err)
				}
				continue
			}
			return nil, domain.StorageError("append messages", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return nil, domain.StorageError("append messages", err)
		}
		if n == 1 {
			return s, nil
		}
		// another writer moved the version or the row was deleted; reload
	}
	return nil, domain.StorageError("append messages", errTooManyConflicts)
}

func backoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(attempt+1) * 5 * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ListByOwner holds a connection until iteration ends. With the SQLite
// backend callers must not use the store from inside the loop.
func (r *SessionRepository) ListByOwner(ctx context.Context, ownerUserID string) iter.Seq2[domain.SessionSummary, error] {
	return func(yield func(domain.SessionSummary, error) bool) {
		rows, err := r.db.SQL.QueryContext(ctx, `
			SELECT id, session_name, messages, expires_at, created_at, updated_at
			FROM chat_sessions
			WHERE user_id = ? AND expires_at >= ?
			ORDER BY updated_at DESC`,
			ownerUserID, r.now().UnixMicro())
		if err != nil {
			yield(domain.SessionSummary{}, domain.StorageError("list sessions", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				s                         domain.SessionSummary
				id, raw                   string
				expires, created, updated int64
				msgs                      []domain.ChatMessage
			)
			if err := rows.Scan(&id, &s.DisplayName, &raw, &expires, &created, &updated); err != nil {
				yield(domain.SessionSummary{}, domain.StorageError("scan session summary", err))
				return
			}
			if s.ID, err = uuid.Parse(id); err != nil {
				yield(domain.SessionSummary{}, domain.StorageError("scan session summary", err))
				return
			}
			if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
				yield(domain.SessionSummary{}, domain.StorageError("decode messages", err))
				return
			}
			s.MessageCount = len(msgs)
			if len(msgs) > 0 {
				s.LastMessage = domain.Preview(msgs[len(msgs)-1].Content)
			}
			s.ExpiresAt = fromMicros(expires)
			s.CreatedAt = fromMicros(created)
			s.UpdatedAt = fromMicros(updated)

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
	if _, err := r.db.SQL.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id.String()); err != nil {
		return domain.StorageError("delete session", err)
	}
	return nil
}

func (r *SessionRepository) DeleteAllExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.SQL.ExecContext(ctx, `DELETE FROM chat_sessions WHERE expires_at < ?`, now.UnixMicro())
	if err != nil {
		return 0, domain.StorageError("delete expired sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.StorageError("delete expired sessions", err)
	}
	return n, nil
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanSession(row *sql.Row) (*domain.ChatSession, error) {
	var (
		s                         domain.ChatSession
		id, raw, period           string
		expires, created, updated int64
	)
	if err := row.Scan(&id, &s.OwnerUserID, &s.DisplayName, &raw, &period, &expires, &s.Version, &created, &updated); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", id, err)
	}
	s.ID = parsed
	s.RetentionPeriod = domain.RetentionPeriod(period)
	s.ExpiresAt = fromMicros(expires)
	s.CreatedAt = fromMicros(created)
	s.UpdatedAt = fromMicros(updated)

	if err := json.Unmarshal([]byte(raw), &s.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	if s.Messages == nil {
		s.Messages = []domain.ChatMessage{}
	}
	return &s, nil
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
