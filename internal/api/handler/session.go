package handler

import (
	"errors"
	"net/http"

	"github.com/Rrens/practice-chat/internal/api/middleware"
	"github.com/Rrens/practice-chat/internal/api/response"
	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/go-chi/chi/v5"
)

// History handles GET /chat/history/{userID}
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := resolveUser(w, r, chi.URLParam(r, "userID"))
	if !ok {
		return
	}

	sessions, err := h.chatService.ListSessions(r.Context(), userID)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.OK(w, sessions)
}

// GetSession handles GET /chat/session/{sessionID}. Authenticated callers
// only see their own sessions.
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}

	session, err := h.chatService.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(w, "session not found or expired")
			return
		}
		response.FromError(w, err)
		return
	}

	if userID, ok := middleware.GetUserID(r.Context()); ok && session.OwnerUserID != userID {
		response.NotFound(w, "session not found or expired")
		return
	}

	response.OK(w, session)
}

// DeleteSession handles DELETE /chat/session/{sessionID}?userId=
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}

	userID, ok := resolveUser(w, r, r.URL.Query().Get("userId"))
	if !ok {
		return
	}

	if err := h.chatService.DeleteSession(r.Context(), id, userID); err != nil {
		response.FromError(w, err)
		return
	}

	response.NoContent(w)
}

// Cleanup handles POST /chat/cleanup
func (h *ChatHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.chatService.CleanupExpired(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.OK(w, map[string]any{
		"message": "cleanup completed successfully",
		"deleted": deleted,
	})
}
