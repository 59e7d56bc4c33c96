package mongo

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/retention"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type sessionDocument struct {
	ID              string               `bson:"_id"`
	UserID          string               `bson:"user_id"`
	SessionName     string               `bson:"session_name"`
	Messages        []domain.ChatMessage `bson:"messages"`
	RetentionPeriod string               `bson:"retention_period"`
	RetentionMillis int64                `bson:"retention_ms"`
	ExpiresAt       time.Time            `bson:"expires_at"`
	Version         int64                `bson:"version"`
	CreatedAt       time.Time            `bson:"created_at"`
	UpdatedAt       time.Time            `bson:"updated_at"`
}

func (d *sessionDocument) toDomain() (*domain.ChatSession, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	msgs := d.Messages
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	for i := range msgs {
		msgs[i].Timestamp = msgs[i].Timestamp.UTC()
	}
	return &domain.ChatSession{
		ID:              id,
		OwnerUserID:     d.UserID,
		DisplayName:     d.SessionName,
		Messages:        msgs,
		RetentionPeriod: domain.RetentionPeriod(d.RetentionPeriod),
		ExpiresAt:       d.ExpiresAt.UTC(),
		Version:         d.Version,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}, nil
}

type summaryDocument struct {
	ID           string    `bson:"_id"`
	SessionName  string    `bson:"session_name"`
	LastMessage  string    `bson:"last_message"`
	MessageCount int       `bson:"message_count"`
	ExpiresAt    time.Time `bson:"expires_at"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// SessionRepository implements domain.SessionRepository. Each session is a
// single document, so appends are atomic server-side updates.
type SessionRepository struct {
	db    *DB
	coll  *mongo.Collection
	clock func() time.Time
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{
		db:    db,
		coll:  db.Database.Collection(sessionsCollection),
		clock: time.Now,
	}
}

// WithClock replaces the time source
func (r *SessionRepository) WithClock(clock func() time.Time) *SessionRepository {
	r.clock = clock
	return r
}

// BSON dates keep milliseconds
func (r *SessionRepository) now() time.Time {
	return r.clock().UTC().Truncate(time.Millisecond)
}

func (r *SessionRepository) Create(ctx context.Context, ownerUserID, displayName string, period domain.RetentionPeriod) (*domain.ChatSession, error) {
	now := r.now()
	doc := sessionDocument{
		ID:              uuid.NewString(),
		UserID:          ownerUserID,
		SessionName:     displayName,
		Messages:        []domain.ChatMessage{},
		RetentionPeriod: string(period),
		RetentionMillis: retention.DurationFor(period).Milliseconds(),
		ExpiresAt:       retention.ExpiryFrom(now, period),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return nil, domain.StorageError("create session", err)
	}
	return doc.toDomain()
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	return r.findOne(ctx, bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "expires_at", Value: bson.D{{Key: "$gte", Value: r.now()}}},
	})
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID, ownerUserID string) (*domain.ChatSession, error) {
	return r.findOne(ctx, bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "user_id", Value: ownerUserID},
		{Key: "expires_at", Value: bson.D{{Key: "$gte", Value: r.now()}}},
	})
}

func (r *SessionRepository) findOne(ctx context.Context, filter bson.D) (*domain.ChatSession, error) {
	var doc sessionDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.StorageError("get session", err)
	}
	s, err := doc.toDomain()
	if err != nil {
		return nil, domain.StorageError("decode session", err)
	}
	return s, nil
}

// AppendAndSave concatenates the new messages inside a single pipeline update
func (r *SessionRepository) AppendAndSave(ctx context.Context, id uuid.UUID, messages []domain.ChatMessage) (*domain.ChatSession, error) {
	now := r.now()
	filter := bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "expires_at", Value: bson.D{{Key: "$gte", Value: now}}},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "messages", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				"$messages",
				bson.D{{Key: "$literal", Value: messages}},
			}}}},
			{Key: "updated_at", Value: bson.D{{Key: "$max", Value: bson.A{"$updated_at", now}}}},
			{Key: "version", Value: bson.D{{Key: "$add", Value: bson.A{"$version", 1}}}},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "expires_at", Value: bson.D{{Key: "$add", Value: bson.A{"$updated_at", "$retention_ms"}}}},
		}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc sessionDocument
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.StorageError("append messages", err)
	}
	s, err := doc.toDomain()
	if err != nil {
		return nil, domain.StorageError("decode session", err)
	}
	return s, nil
}

func (r *SessionRepository) ListByOwner(ctx context.Context, ownerUserID string) iter.Seq2[domain.SessionSummary, error] {
	return func(yield func(domain.SessionSummary, error) bool) {
		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.D{
				{Key: "user_id", Value: ownerUserID},
				{Key: "expires_at", Value: bson.D{{Key: "$gte", Value: r.now()}}},
			}}},
			{{Key: "$sort", Value: bson.D{{Key: "updated_at", Value: -1}}}},
			{{Key: "$project", Value: bson.D{
				{Key: "session_name", Value: 1},
				{Key: "created_at", Value: 1},
				{Key: "updated_at", Value: 1},
				{Key: "expires_at", Value: 1},
				{Key: "message_count", Value: bson.D{{Key: "$size", Value: "$messages"}}},
				{Key: "last_message", Value: bson.D{{Key: "$ifNull", Value: bson.A{
					bson.D{{Key: "$arrayElemAt", Value: bson.A{"$messages.content", -1}}},
					"",
				}}}},
			}}},
		}

		cur, err := r.coll.Aggregate(ctx, pipeline)
		if err != nil {
			yield(domain.SessionSummary{}, domain.StorageError("list sessions", err))
			return
		}
		defer cur.Close(context.Background())

		for cur.Next(ctx) {
			var doc summaryDocument
			if err := cur.Decode(&doc); err != nil {
				yield(domain.SessionSummary{}, domain.StorageError("decode session summary", err))
				return
			}
			id, err := uuid.Parse(doc.ID)
			if err != nil {
				yield(domain.SessionSummary{}, domain.StorageError("decode session summary", err))
				return
			}
			s := domain.SessionSummary{
				ID:           id,
				DisplayName:  doc.SessionName,
				LastMessage:  domain.Preview(doc.LastMessage),
				MessageCount: doc.MessageCount,
				ExpiresAt:    doc.ExpiresAt.UTC(),
				CreatedAt:    doc.CreatedAt.UTC(),
				UpdatedAt:    doc.UpdatedAt.UTC(),
			}
			if !yield(s, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(domain.SessionSummary{}, domain.StorageError("list sessions", err))
		}
	}
}

func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id.String()}}); err != nil {
		return domain.StorageError("delete session", err)
	}
	return nil
}

func (r *SessionRepository) DeleteAllExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.D{
		{Key: "expires_at", Value: bson.D{{Key: "$lt", Value: now.UTC()}}},
	})
	if err != nil {
		return 0, domain.StorageError("delete expired sessions", err)
	}
	return res.DeletedCount, nil
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
