package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Rrens/practice-chat/internal/api/response"
	"github.com/go-chi/chi/v5"
)

// UpdatePreferencesRequest sets the retention for new sessions
type UpdatePreferencesRequest struct {
	UserID              string `json:"userId"`
	ChatRetentionPeriod string `json:"chatRetentionPeriod" validate:"omitempty,oneof=1_day 1_week 1_month"`
}

// GetPreferences handles GET /chat/preferences/{userID}
func (h *ChatHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := resolveUser(w, r, chi.URLParam(r, "userID"))
	if !ok {
		return
	}

	prefs, err := h.chatService.GetPreferences(r.Context(), userID)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.OK(w, prefs)
}

// UpdatePreferences handles POST /chat/preferences
func (h *ChatHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	userID, ok := resolveUser(w, r, strings.TrimSpace(req.UserID))
	if !ok {
		return
	}

	prefs, err := h.chatService.UpdatePreferences(r.Context(), userID, req.ChatRetentionPeriod)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.OK(w, prefs)
}
