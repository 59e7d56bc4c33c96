package domain

import (
	"context"
	"time"
)

// RetentionPeriod is how long an untouched session is kept
type RetentionPeriod string

const (
	RetentionOneDay   RetentionPeriod = "1_day"
	RetentionOneWeek  RetentionPeriod = "1_week"
	RetentionOneMonth RetentionPeriod = "1_month"

	DefaultRetentionPeriod = RetentionOneMonth
)

// UserPreference holds per-user chat settings
type UserPreference struct {
	UserID          string          `json:"user_id"`
	RetentionPeriod RetentionPeriod `json:"chat_retention_period"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PreferenceRepository stores user preferences. Get creates the row with the
// default period when it does not exist yet.
type PreferenceRepository interface {
	Get(ctx context.Context, userID string) (*UserPreference, error)
	Upsert(ctx context.Context, userID string, period RetentionPeriod) (*UserPreference, error)
}
