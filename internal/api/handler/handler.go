package handler

import (
	"context"
	"net/http"

	"github.com/Rrens/practice-chat/internal/api/middleware"
	"github.com/Rrens/practice-chat/internal/api/response"
	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// ChatService is the part of *service.ChatService used by the handlers
type ChatService interface {
	Chat(ctx context.Context, in service.ChatInput) (*service.ChatResult, error)
	ListModels() []service.ModelOption
	GetPreferences(ctx context.Context, userID string) (*domain.UserPreference, error)
	UpdatePreferences(ctx context.Context, userID, period string) (*domain.UserPreference, error)
	ListSessions(ctx context.Context, userID string) ([]domain.SessionSummary, error)
	GetSession(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error)
	DeleteSession(ctx context.Context, id uuid.UUID, userID string) error
	CleanupExpired(ctx context.Context) (int64, error)
}

// resolveUser reconciles the requested user id with the authenticated one.
// An empty request falls back to the token subject. It writes the error
// response and returns false when the two disagree.
func resolveUser(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	authenticated, ok := middleware.GetUserID(r.Context())
	if !ok {
		return requested, true
	}
	if requested == "" {
		return authenticated, true
	}
	if requested != authenticated {
		response.Forbidden(w, "access denied")
		return "", false
	}
	return requested, true
}

func parseSessionID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		response.BadRequest(w, "invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}
