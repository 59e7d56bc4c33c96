package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Rrens/practice-chat/internal/api/response"
	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/service"
	"github.com/google/uuid"
)

// ChatHandler handles chat endpoints
type ChatHandler struct {
	chatService ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// MessageRequest is one submitted message
type MessageRequest struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required"`
}

// ChatRequest represents a chat turn
type ChatRequest struct {
	UserID      string           `json:"userId"`
	SessionID   string           `json:"sessionId" validate:"omitempty,uuid"`
	SessionName string           `json:"sessionName" validate:"max=255"`
	Model       string           `json:"model"`
	Messages    []MessageRequest `json:"messages" validate:"required,min=1,dive"`
}

// ChatResponse is returned for a completed turn
type ChatResponse struct {
	Response    string    `json:"response"`
	ModelUsed   string    `json:"model_used"`
	SessionID   uuid.UUID `json:"sessionId"`
	SessionName string    `json:"sessionName"`
	ExpiresAt   string    `json:"expiresAt"`
}

// Chat handles POST /chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	userID, ok := resolveUser(w, r, strings.TrimSpace(req.UserID))
	if !ok {
		return
	}
	if userID == "" {
		response.BadRequest(w, "userId is required")
		return
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	var sessionID uuid.UUID
	if req.SessionID != "" {
		if sessionID, ok = parseSessionID(w, req.SessionID); !ok {
			return
		}
	}

	messages := make([]domain.ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, domain.ChatMessage{
			Role:    domain.MessageRole(m.Role),
			Content: m.Content,
		})
	}

	result, err := h.chatService.Chat(r.Context(), service.ChatInput{
		OwnerUserID: userID,
		SessionID:   sessionID,
		DisplayName: req.SessionName,
		Model:       req.Model,
		Messages:    messages,
	})
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.OK(w, ChatResponse{
		Response:    result.Reply,
		ModelUsed:   result.ModelUsed,
		SessionID:   result.SessionID,
		SessionName: result.DisplayName,
		ExpiresAt:   result.ExpiresAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// ListModels handles GET /chat/models
func (h *ChatHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]any{
		"models": h.chatService.ListModels(),
	})
}
