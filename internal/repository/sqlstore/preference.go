package sqlstore

import (
	"context"
	"time"

	"github.com/Rrens/practice-chat/internal/domain"
)

// PreferenceRepository implements domain.PreferenceRepository
type PreferenceRepository struct {
	db *DB
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(db *DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

func (r *PreferenceRepository) Get(ctx context.Context, userID string) (*domain.UserPreference, error) {
	now := time.Now().UTC().UnixMicro()
	_, err := r.db.SQL.ExecContext(ctx,
		r.db.Dialect.insertIgnore+` INTO user_preferences (user_id, chat_retention_period, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, string(domain.DefaultRetentionPeriod), now, now)
	if err != nil {
		return nil, domain.StorageError("create default preference", err)
	}
	return r.load(ctx, userID)
}

func (r *PreferenceRepository) Upsert(ctx context.Context, userID string, period domain.RetentionPeriod) (*domain.UserPreference, error) {
	now := time.Now().UTC().UnixMicro()
	if _, err := r.db.SQL.ExecContext(ctx, r.db.Dialect.upsertPreference, userID, string(period), now, now); err != nil {
		return nil, domain.StorageError("update preference", err)
	}
	return r.load(ctx, userID)
}

func (r *PreferenceRepository) load(ctx context.Context, userID string) (*domain.UserPreference, error) {
	var (
		p       domain.UserPreference
		period  string
		updated int64
	)
	err := r.db.SQL.QueryRowContext(ctx,
		`SELECT user_id, chat_retention_period, updated_at FROM user_preferences WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &period, &updated)
	if err != nil {
		return nil, domain.StorageError("get preference", err)
	}
	p.RetentionPeriod = domain.RetentionPeriod(period)
	p.UpdatedAt = fromMicros(updated)
	return &p, nil
}
