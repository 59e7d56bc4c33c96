package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Rrens/practice-chat/internal/config"
	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/llm"
	"github.com/Rrens/practice-chat/internal/metrics"
	"github.com/Rrens/practice-chat/internal/retention"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	fallbackReply     = "Sorry, I could not process your request."
	displayNameLength = 50
	defaultSaveWindow = 10 * time.Second
)

// Completer runs chat completions. *llm.Router implements it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
	ConfiguredModels() []string
}

// ChatInput is one chat turn submitted by a user
type ChatInput struct {
	OwnerUserID string
	// SessionID is uuid.Nil for a new conversation
	SessionID   uuid.UUID
	DisplayName string
	Model       string
	Messages    []domain.ChatMessage
}

// ChatResult is the outcome of a chat turn
type ChatResult struct {
	Reply       string    `json:"reply"`
	ModelUsed   string    `json:"model_used"`
	SessionID   uuid.UUID `json:"session_id"`
	DisplayName string    `json:"session_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ChatService orchestrates chat turns over the session store and the
// completion providers
type ChatService struct {
	sessions  domain.SessionRepository
	prefs     domain.PreferenceRepository
	completer Completer
	cfg       config.ChatConfig
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewChatService creates a new chat service. m may be nil.
func NewChatService(
	sessions domain.SessionRepository,
	prefs domain.PreferenceRepository,
	completer Completer,
	cfg config.ChatConfig,
	m *metrics.Metrics,
) *ChatService {
	return &ChatService{
		sessions:  sessions,
		prefs:     prefs,
		completer: completer,
		cfg:       cfg,
		metrics:   m,
		now:       time.Now,
	}
}

// Chat runs one turn: resolve or create the session, call the completion
// provider with the submitted batch, then persist batch and reply together.
// The session is only written after the provider answered.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (*ChatResult, error) {
	if err := validateChatInput(in); err != nil {
		return nil, err
	}
	model, err := s.SelectModel(in.Model, in.Messages[0].Content)
	if err != nil {
		return nil, err
	}

	submitted := s.stamp(in.Messages)

	// 1. Resolve session
	var session *domain.ChatSession
	if in.SessionID != uuid.Nil {
		session, err = s.sessions.GetByID(ctx, in.SessionID, in.OwnerUserID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			session = nil
			log.Debug().
				Str("session_id", in.SessionID.String()).
				Str("user_id", in.OwnerUserID).
				Msg("Requested session missing or expired, starting a new one")
		case err != nil:
			return nil, err
		}
	}

	// 2. Completion
	reply, err := s.complete(ctx, model, submitted)
	if err != nil {
		s.metrics.ChatTurn(model, "upstream_error")
		return nil, err
	}

	// 3. Persist the batch and the reply
	batch := append(slices.Clone(submitted), domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   reply,
		Timestamp: s.now().UTC(),
	})

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout())
	defer cancel()

	saved, err := s.persist(saveCtx, session, in, batch)
	if err != nil {
		s.metrics.ChatTurn(model, "storage_error")
		return nil, err
	}

	s.metrics.ChatTurn(model, "ok")

	return &ChatResult{
		Reply:       reply,
		ModelUsed:   model,
		SessionID:   saved.ID,
		DisplayName: saved.DisplayName,
		ExpiresAt:   retention.ExpiresAt(saved),
	}, nil
}

func validateChatInput(in ChatInput) error {
	if strings.TrimSpace(in.OwnerUserID) == "" {
		return domain.ValidationError("user id is required")
	}
	if len(in.Messages) == 0 {
		return domain.ValidationError("at least one message is required")
	}
	for i, m := range in.Messages {
		if !m.Role.Valid() {
			return domain.ValidationError("message %d has invalid role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return domain.ValidationError("message %d has empty content", i)
		}
	}
	return nil
}

func (s *ChatService) stamp(messages []domain.ChatMessage) []domain.ChatMessage {
	now := s.now().UTC()
	out := make([]domain.ChatMessage, len(messages))
	for i, m := range messages {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		out[i] = m
	}
	return out
}

// complete sends the system instruction plus the submitted batch
func (s *ChatService) complete(ctx context.Context, model string, submitted []domain.ChatMessage) (string, error) {
	outbound := make([]llm.Message, 0, len(submitted))
	for _, m := range submitted {
		outbound = append(outbound, llm.Message{Role: string(m.Role), Content: m.Content})
	}

	if s.cfg.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CompletionTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.completer.Complete(ctx, llm.Request{
		Model:       model,
		Messages:    llm.WithSystem(s.cfg.SystemPrompt, outbound),
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	s.metrics.CompletionLatency(model, time.Since(start))
	if err != nil {
		log.Error().Err(err).Str("model", model).Msg("Completion failed")
		return "", domain.UpstreamError(err)
	}

	if strings.TrimSpace(resp.Content) == "" {
		return fallbackReply, nil
	}
	return resp.Content, nil
}

// persist appends batch to session, creating a session when there is none.
// A session reclaimed between resolve and append is replaced by a new one.
func (s *ChatService) persist(ctx context.Context, session *domain.ChatSession, in ChatInput, batch []domain.ChatMessage) (*domain.ChatSession, error) {
	if session != nil {
		saved, err := s.sessions.AppendAndSave(ctx, session.ID, batch)
		if !errors.Is(err, domain.ErrNotFound) {
			return saved, err
		}
		log.Warn().
			Str("session_id", session.ID.String()).
			Str("user_id", in.OwnerUserID).
			Msg("Session reclaimed during turn, moving turn to a new session")
		s.metrics.SessionRecreated()
	}

	created, err := s.createSession(ctx, in)
	if err != nil {
		return nil, err
	}

	saved, err := s.sessions.AppendAndSave(ctx, created.ID, batch)
	if err != nil {
		if delErr := s.sessions.Delete(ctx, created.ID); delErr != nil {
			log.Error().Err(delErr).Str("session_id", created.ID.String()).Msg("Failed to remove empty session")
		}
		return nil, err
	}
	return saved, nil
}

func (s *ChatService) createSession(ctx context.Context, in ChatInput) (*domain.ChatSession, error) {
	period := domain.DefaultRetentionPeriod
	pref, err := s.prefs.Get(ctx, in.OwnerUserID)
	if err != nil {
		return nil, err
	}
	if retention.Valid(pref.RetentionPeriod) {
		period = pref.RetentionPeriod
	}

	session, err := s.sessions.Create(ctx, in.OwnerUserID, DisplayNameFor(in.DisplayName, in.Messages[0].Content), period)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("user_id", in.OwnerUserID).
		Str("retention", string(period)).
		Msg("Chat session created")

	return session, nil
}

// DisplayNameFor returns requested when set, otherwise the first 50
// characters of the first message, otherwise the default name
func DisplayNameFor(requested, firstMessage string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	runes := []rune(firstMessage)
	if len(runes) > displayNameLength {
		runes = runes[:displayNameLength]
	}
	if name := strings.TrimSpace(string(runes)); name != "" {
		return name
	}
	return domain.DefaultSessionName
}

func (s *ChatService) saveTimeout() time.Duration {
	if s.cfg.SaveTimeout > 0 {
		return s.cfg.SaveTimeout
	}
	return defaultSaveWindow
}

// GetSession returns a live session by id
func (s *ChatService) GetSession(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	return s.sessions.Get(ctx, id)
}

// ListSessions returns the owner's live sessions, most recently updated first
func (s *ChatService) ListSessions(ctx context.Context, userID string) ([]domain.SessionSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ValidationError("user id is required")
	}

	// collected before returning so no store connection outlives the call
	summaries := []domain.SessionSummary{}
	for summary, err := range s.sessions.ListByOwner(ctx, userID) {
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// DeleteSession removes a session owned by userID. Deleting a session that
// is already gone succeeds.
func (s *ChatService) DeleteSession(ctx context.Context, id uuid.UUID, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ValidationError("user id is required")
	}

	if _, err := s.sessions.GetByID(ctx, id, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.sessions.Delete(ctx, id)
}

// CleanupExpired deletes every expired session and reports how many went
func (s *ChatService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteAllExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired sessions: %w", err)
	}
	return n, nil
}

// Ping checks the session store
func (s *ChatService) Ping(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}
