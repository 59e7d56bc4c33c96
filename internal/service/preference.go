package service

import (
	"context"
	"strings"

	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/retention"
)

// GetPreferences returns the user's preferences, creating the default on first read
func (s *ChatService) GetPreferences(ctx context.Context, userID string) (*domain.UserPreference, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ValidationError("user id is required")
	}
	return s.prefs.Get(ctx, userID)
}

// UpdatePreferences sets the retention period for sessions created from now on.
// An empty period leaves the stored value unchanged.
func (s *ChatService) UpdatePreferences(ctx context.Context, userID, period string) (*domain.UserPreference, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ValidationError("user id is required")
	}
	if period == "" {
		return s.prefs.Get(ctx, userID)
	}

	p, err := retention.Parse(period)
	if err != nil {
		return nil, err
	}
	return s.prefs.Upsert(ctx, userID, p)
}
