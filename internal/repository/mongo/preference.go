package mongo

import (
	"context"
	"time"

	"github.com/Rrens/practice-chat/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type preferenceDocument struct {
	UserID          string    `bson:"_id"`
	RetentionPeriod string    `bson:"chat_retention_period"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func (d preferenceDocument) toDomain() *domain.UserPreference {
	return &domain.UserPreference{
		UserID:          d.UserID,
		RetentionPeriod: domain.RetentionPeriod(d.RetentionPeriod),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}

// PreferenceRepository implements domain.PreferenceRepository
type PreferenceRepository struct {
	coll *mongo.Collection
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(db *DB) *PreferenceRepository {
	return &PreferenceRepository{coll: db.Database.Collection(preferencesCollection)}
}

func (r *PreferenceRepository) Get(ctx context.Context, userID string) (*domain.UserPreference, error) {
	now := time.Now().UTC()
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "chat_retention_period", Value: string(domain.DefaultRetentionPeriod)},
		{Key: "created_at", Value: now},
		{Key: "updated_at", Value: now},
	}}}
	return r.findAndModify(ctx, userID, update, "get preference")
}

func (r *PreferenceRepository) Upsert(ctx context.Context, userID string, period domain.RetentionPeriod) (*domain.UserPreference, error) {
	now := time.Now().UTC()
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "chat_retention_period", Value: string(period)},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: now}}},
	}
	return r.findAndModify(ctx, userID, update, "update preference")
}

func (r *PreferenceRepository) findAndModify(ctx context.Context, userID string, update bson.D, op string) (*domain.UserPreference, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc preferenceDocument
	if err := r.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: userID}}, update, opts).Decode(&doc); err != nil {
		return nil, domain.StorageError(op, err)
	}
	return doc.toDomain(), nil
}
