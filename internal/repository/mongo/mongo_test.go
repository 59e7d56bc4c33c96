package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/repository/storetest"
	"github.com/stretchr/testify/require"
)

// Integration tests run when TEST_MONGO_URI is set, e.g. mongodb://localhost:27017
func openTestDB(t *testing.T) *DB {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set - run as integration test")
	}

	ctx := context.Background()
	db, err := Connect(ctx, uri, "practice_chat_test")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })

	_, err = db.Database.Collection(sessionsCollection).DeleteMany(ctx, map[string]any{})
	require.NoError(t, err)
	_, err = db.Database.Collection(preferencesCollection).DeleteMany(ctx, map[string]any{})
	require.NoError(t, err)
	return db
}

func TestSessionRepository_Contract(t *testing.T) {
	storetest.RunSessionRepository(t, func(t *testing.T, clock func() time.Time) domain.SessionRepository {
		return NewSessionRepository(openTestDB(t)).WithClock(clock)
	})
}

func TestPreferenceRepository_Contract(t *testing.T) {
	storetest.RunPreferenceRepository(t, func(t *testing.T) domain.PreferenceRepository {
		return NewPreferenceRepository(openTestDB(t))
	})
}
