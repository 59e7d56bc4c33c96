package postgres

import (
	"context"
	"time"

	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PreferenceRepository implements domain.PreferenceRepository
type PreferenceRepository struct {
	pool *pgxpool.Pool
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(pool *pgxpool.Pool) *PreferenceRepository {
	return &PreferenceRepository{pool: pool}
}

func (r *PreferenceRepository) Get(ctx context.Context, userID string) (*domain.UserPreference, error) {
	insert := `
		INSERT INTO user_preferences (user_id, chat_retention_period, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insert, userID, string(domain.DefaultRetentionPeriod), time.Now().UTC()); err != nil {
		return nil, domain.StorageError("create default preference", err)
	}

	query := `SELECT user_id, chat_retention_period, updated_at FROM user_preferences WHERE user_id = $1`
	var (
		p      domain.UserPreference
		period string
	)
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&p.UserID, &period, &p.UpdatedAt); err != nil {
		return nil, domain.StorageError("get preference", err)
	}
	p.RetentionPeriod = domain.RetentionPeriod(period)
	return &p, nil
}

func (r *PreferenceRepository) Upsert(ctx context.Context, userID string, period domain.RetentionPeriod) (*domain.UserPreference, error) {
	query := `
		INSERT INTO user_preferences (user_id, chat_retention_period, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET chat_retention_period = EXCLUDED.chat_retention_period, updated_at = EXCLUDED.updated_at
		RETURNING user_id, chat_retention_period, updated_at
	`
	var (
		p   domain.UserPreference
		raw string
	)
	err := r.pool.QueryRow(ctx, query, userID, string(period), time.Now().UTC()).Scan(&p.UserID, &raw, &p.UpdatedAt)
	if err != nil {
		return nil, domain.StorageError("update preference", err)
	}
	p.RetentionPeriod = domain.RetentionPeriod(raw)
	return &p, nil
}
