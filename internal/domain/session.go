package domain

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionName is used when no display name can be derived from the first message
const DefaultSessionName = "New Chat"

// ChatSession represents a conversation thread owned by a single user
type ChatSession struct {
	ID              uuid.UUID       `json:"id"`
	OwnerUserID     string          `json:"user_id"`
	DisplayName     string          `json:"session_name"`
	Messages        []ChatMessage   `json:"messages"`
	RetentionPeriod RetentionPeriod `json:"retention_period"`
	ExpiresAt       time.Time       `json:"expires_at"`
	Version         int64           `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SessionSummary is the history view of a session
type SessionSummary struct {
	ID           uuid.UUID `json:"id"`
	DisplayName  string    `json:"session_name"`
	LastMessage  string    `json:"last_message"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionRepository defines the interface for session storage.
// Read paths treat expired sessions as absent and report ErrNotFound.
type SessionRepository interface {
	Create(ctx context.Context, ownerUserID, displayName string, period RetentionPeriod) (*ChatSession, error)
	Get(ctx context.Context, id uuid.UUID) (*ChatSession, error)
	GetByID(ctx context.Context, id uuid.UUID, ownerUserID string) (*ChatSession, error)
	AppendAndSave(ctx context.Context, id uuid.UUID, messages []ChatMessage) (*ChatSession, error)
	ListByOwner(ctx context.Context, ownerUserID string) iter.Seq2[SessionSummary, error]
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllExpired(ctx context.Context, now time.Time) (int64, error)
	Ping(ctx context.Context) error
}
