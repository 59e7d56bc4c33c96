package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/repository/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteSessionRepository_Contract(t *testing.T) {
	storetest.RunSessionRepository(t, func(t *testing.T, clock func() time.Time) domain.SessionRepository {
		return NewSessionRepository(openMemory(t)).WithClock(clock)
	})
}

func TestSQLitePreferenceRepository_Contract(t *testing.T) {
	storetest.RunPreferenceRepository(t, func(t *testing.T) domain.PreferenceRepository {
		return NewPreferenceRepository(openMemory(t))
	})
}

func TestOpenSQLite_FileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "chat.db")

	db, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	repo := NewSessionRepository(db)
	s, err := repo.Create(ctx, "u1", "persisted", domain.RetentionOneWeek)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	db, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	got, err := NewSessionRepository(db).GetByID(ctx, s.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.DisplayName)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(assert.AnError))
	assert.True(t, isRetryable(domain.StorageError("get session", errString("database is locked (5) (SQLITE_BUSY)"))))
}

type errString string

func (e errString) Error() string { return string(e) }

// MySQL runs only when TEST_MYSQL_DSN is set,
// e.g. practice:practice@tcp(localhost:3306)/practice_test
func openMySQL(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set - run as integration test")
	}
	db, err := OpenMySQL(context.Background(), dsn, 8)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.SQL.Exec(`DELETE FROM chat_sessions`)
	require.NoError(t, err)
	_, err = db.SQL.Exec(`DELETE FROM user_preferences`)
	require.NoError(t, err)
	return db
}

func TestMySQLSessionRepository_Contract(t *testing.T) {
	storetest.RunSessionRepository(t, func(t *testing.T, clock func() time.Time) domain.SessionRepository {
		return NewSessionRepository(openMySQL(t)).WithClock(clock)
	})
}

func TestMySQLPreferenceRepository_Contract(t *testing.T) {
	storetest.RunPreferenceRepository(t, func(t *testing.T) domain.PreferenceRepository {
		return NewPreferenceRepository(openMySQL(t))
	})
}
