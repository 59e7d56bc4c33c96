package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Rrens/practice-chat/internal/api/handler"
	"github.com/Rrens/practice-chat/internal/api/middleware"
	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/security"
	"github.com/Rrens/practice-chat/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Chat(ctx context.Context, in service.ChatInput) (*service.ChatResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChatResult), args.Error(1)
}

func (m *MockChatService) ListModels() []service.ModelOption {
	args := m.Called()
	return args.Get(0).([]service.ModelOption)
}

func (m *MockChatService) GetPreferences(ctx context.Context, userID string) (*domain.UserPreference, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserPreference), args.Error(1)
}

func (m *MockChatService) UpdatePreferences(ctx context.Context, userID, period string) (*domain.UserPreference, error) {
	args := m.Called(ctx, userID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserPreference), args.Error(1)
}

func (m *MockChatService) ListSessions(ctx context.Context, userID string) ([]domain.SessionSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SessionSummary), args.Error(1)
}

func (m *MockChatService) GetSession(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatSession), args.Error(1)
}

func (m *MockChatService) DeleteSession(ctx context.Context, id uuid.UUID, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *MockChatService) CleanupExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

const testSecret = "test-secret-key-with-32-chars!!"

func newTestRouter(svc handler.ChatService, authRequired bool) http.Handler {
	h := handler.NewChatHandler(svc)
	auth := middleware.NewAuthMiddleware(security.NewJWTManager(testSecret, time.Hour), authRequired)

	r := chi.NewRouter()
	r.Get("/health", handler.HealthCheck)
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Get("/chat/models", h.ListModels)
		r.Post("/chat", h.Chat)
		r.Get("/chat/preferences/{userID}", h.GetPreferences)
		r.Post("/chat/preferences", h.UpdatePreferences)
		r.Get("/chat/history/{userID}", h.History)
		r.Get("/chat/session/{sessionID}", h.GetSession)
		r.Delete("/chat/session/{sessionID}", h.DeleteSession)
		r.Post("/chat/cleanup", h.Cleanup)
	})
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "expected data to be an object")
	return data
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()

	token, err := security.NewJWTManager(testSecret, time.Hour).GenerateAccessToken(userID)
	require.NoError(t, err)
	return token
}

func TestHealthCheck(t *testing.T) {
	rec := doRequest(t, newTestRouter(new(MockChatService), false), http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeData(t, rec)["status"])
}

func TestChatHandler_Chat(t *testing.T) {
	svc := new(MockChatService)
	sessionID := uuid.New()
	expires := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	svc.On("Chat", mock.Anything, mock.MatchedBy(func(in service.ChatInput) bool {
		return in.OwnerUserID == "user-1" &&
			in.SessionID == uuid.Nil &&
			in.Model == "select for me" &&
			len(in.Messages) == 1 &&
			in.Messages[0].Role == domain.RoleUser &&
			in.Messages[0].Content == "ping"
	})).Return(&service.ChatResult{
		Reply:       "pong",
		ModelUsed:   "gpt-3.5-turbo",
		SessionID:   sessionID,
		DisplayName: "ping",
		ExpiresAt:   expires,
	}, nil)

	rec := doRequest(t, newTestRouter(svc, false), http.MethodPost, "/chat", map[string]any{
		"userId":   "user-1",
		"model":    "select for me",
		"messages": []map[string]string{{"role": "user", "content": "ping"}},
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "pong", data["response"])
	assert.Equal(t, "gpt-3.5-turbo", data["model_used"])
	assert.Equal(t, sessionID.String(), data["sessionId"])
	assert.Equal(t, "ping", data["sessionName"])
	assert.Equal(t, "2024-06-01T09:00:00.000Z", data["expiresAt"])
	svc.AssertExpectations(t)
}

func TestChatHandler_Chat_Validation(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"missing user", map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}}},
		{"no messages", map[string]any{"userId": "user-1"}},
		{"bad role", map[string]any{"userId": "user-1", "messages": []map[string]string{{"role": "bot", "content": "hi"}}}},
		{"bad session id", map[string]any{"userId": "user-1", "sessionId": "nope", "messages": []map[string]string{{"role": "user", "content": "hi"}}}},
		{"truncated session id", map[string]any{"userId": "user-1", "sessionId": "6ba7b810-9dad-11d1-80b4", "messages": []map[string]string{{"role": "user", "content": "hi"}}}},
		{"braced session id", map[string]any{"userId": "user-1", "sessionId": "{6ba7b810-9dad-11d1-80b4-00c04fd430c8}", "messages": []map[string]string{{"role": "user", "content": "hi"}}}},
		{"malformed", "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockChatService)
			rec := doRequest(t, newTestRouter(svc, false), http.MethodPost, "/chat", tt.body, "")

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			svc.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
		})
	}
}

func TestChatHandler_Chat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"disallowed model", domain.ValidationError("model %q is not allowed", "claude-3"), http.StatusBadRequest},
		{"upstream", domain.UpstreamError(errors.New("timeout")), http.StatusBadGateway},
		{"storage", domain.StorageError("append messages", errors.New("conn reset")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockChatService)
			svc.On("Chat", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := doRequest(t, newTestRouter(svc, false), http.MethodPost, "/chat", map[string]any{
				"userId":   "user-1",
				"messages": []map[string]string{{"role": "user", "content": "hi"}},
			}, "")

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestChatHandler_Identity(t *testing.T) {
	body := map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}}

	t.Run("token supplies user", func(t *testing.T) {
		svc := new(MockChatService)
		svc.On("Chat", mock.Anything, mock.MatchedBy(func(in service.ChatInput) bool {
			return in.OwnerUserID == "user-7"
		})).Return(&service.ChatResult{Reply: "ok", SessionID: uuid.New()}, nil)

		rec := doRequest(t, newTestRouter(svc, false), http.MethodPost, "/chat", body, tokenFor(t, "user-7"))
		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("mismatched user is forbidden", func(t *testing.T) {
		svc := new(MockChatService)
		rec := doRequest(t, newTestRouter(svc, false), http.MethodGet, "/chat/history/user-1", nil, tokenFor(t, "user-2"))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		svc.AssertNotCalled(t, "ListSessions", mock.Anything, mock.Anything)
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := doRequest(t, newTestRouter(new(MockChatService), false), http.MethodGet, "/chat/models", nil, "garbage")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing token when required", func(t *testing.T) {
		rec := doRequest(t, newTestRouter(new(MockChatService), true), http.MethodGet, "/chat/models", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestChatHandler_ListModels(t *testing.T) {
	svc := new(MockChatService)
	svc.On("ListModels").Return([]service.ModelOption{
		{ID: "select for me", Name: "Select For Me (Auto)"},
		{ID: "gpt-4", Name: "GPT 4"},
	})

	rec := doRequest(t, newTestRouter(svc, false), http.MethodGet, "/chat/models", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	models := decodeData(t, rec)["models"].([]any)
	require.Len(t, models, 2)
	assert.Equal(t, "select for me", models[0].(map[string]any)["id"])
}

func TestChatHandler_Preferences(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		svc := new(MockChatService)
		svc.On("GetPreferences", mock.Anything, "user-1").Return(&domain.UserPreference{UserID: "user-1", RetentionPeriod: domain.RetentionOneMonth}, nil)

		rec := doRequest(t, newTestRouter(svc, false), http.MethodGet, "/chat/preferences/user-1", nil, "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1_month", decodeData(t, rec)["chat_retention_period"])
	})

	t.Run("update", func(t *testing.T) {
		svc := new(MockChatService)
		svc.On("UpdatePreferences", mock.Anything, "user-1", "1_week").Return(&domain.UserPreference{UserID: "user-1", RetentionPeriod: domain.RetentionOneWeek}, nil)

		rec := doRequest(t, newTestRouter(svc, false), http.MethodPost, "/chat/preferences", map[string]string{
			"userId":              "user-1",
			"chatRetentionPeriod": "1_week",
		}, "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1_week", decodeData(t, rec)["chat_retention_period"])
	})

	t.Run("invalid period", func(t *testing.T) {
		svc := new(MockChatService)
		rec := doRequest(t, newTestRouter(svc, false), http.MethodPost, "/chat/preferences", map[string]string{
			"userId":              "user-1",
			"chatRetentionPeriod": "1_year",
		}, "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "UpdatePreferences", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestChatHandler_Sessions(t *testing.T) {
	id := uuid.New()

	t.Run("history", func(t *testing.T) {
		svc := new(MockChatService)
		svc.On("ListSessions", mock.Anything, "user-1").Return([]domain.SessionSummary{{ID: id, DisplayName: "ping", MessageCount: 2}}, nil)

		rec := doRequest(t, newTestRouter(svc, false), http.MethodGet, "/chat/history/user-1", nil, "")

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Len(t, resp["data"], 1)
	})

	t.Run("get", func(t *testing.T) {
		svc := new(MockChatService)
		svc.On("GetSession", mock.Anything, id).Return(&domain.ChatSession{ID: id, OwnerUserID: "user-1", DisplayName: "ping"}, nil)

		rec := doRequest(t, newTestRouter(svc, false), http.MethodGet, "/chat/session/"+id.String(), nil, "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ping", decodeData(t, rec)["session_name"])
	})

	t.Run("get other owner with token", func(t *testing.T) {
		svc := new(MockChatService)
		svc.On("GetSession", mock.Anything, id).Return(&domain.ChatSession{ID: id, OwnerUserID: "user-1"}, nil)

		rec := doRequest(t, newTestRouter(svc, false), http.MethodGet, "/chat/session/"+id.String(), nil, tokenFor(t, "user-2"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("get expired", func(t *testing.T) {
		svc := new(MockChatService)
		svc.On("GetSession", mock.Anything, id).Return(nil, domain.ErrNotFound)

		rec := doRequest(t, newTestRouter(svc, false), http.MethodGet, "/chat/session/"+id.String(), nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("get bad id", func(t *testing.T) {
		rec := doRequest(t, newTestRouter(new(MockChatService), false), http.MethodGet, "/chat/session/abc", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		svc := new(MockChatService)
		svc.On("DeleteSession", mock.Anything, id, "user-1").Return(nil)

		rec := doRequest(t, newTestRouter(svc, false), http.MethodDelete, "/chat/session/"+id.String()+"?userId=user-1", nil, "")

		assert.Equal(t, http.StatusNoContent, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("cleanup", func(t *testing.T) {
		svc := new(MockChatService)
		svc.On("CleanupExpired", mock.Anything).Return(int64(3), nil)

		rec := doRequest(t, newTestRouter(svc, false), http.MethodPost, "/chat/cleanup", nil, "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(3), decodeData(t, rec)["deleted"])
	})
}
