// Package storetest holds behaviour checks shared by every session store
// backend. Backends call RunSessionRepository and RunPreferenceRepository
// from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/retention"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Clock is a manually advanced time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed, whole-second instant
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SessionFactory returns an empty store driven by clock
type SessionFactory func(t *testing.T, clock func() time.Time) domain.SessionRepository

// PreferenceFactory returns an empty preference store
type PreferenceFactory func(t *testing.T) domain.PreferenceRepository

func msg(role domain.MessageRole, content string, at time.Time) domain.ChatMessage {
	return domain.ChatMessage{Role: role, Content: content, Timestamp: at}
}

func collect(t *testing.T, repo domain.SessionRepository, owner string) []domain.SessionSummary {
	t.Helper()
	var out []domain.SessionSummary
	for s, err := range repo.ListByOwner(context.Background(), owner) {
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

// RunSessionRepository exercises the SessionRepository contract
func RunSessionRepository(t *testing.T, newRepo SessionFactory) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		clock := NewClock()
		repo := newRepo(t, clock.Now)
		owner := uuid.NewString()

		created, err := repo.Create(ctx, owner, "ping", domain.RetentionOneWeek)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.Empty(t, created.Messages)
		assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))
		assert.True(t, created.ExpiresAt.Equal(clock.Now().Add(7*24*time.Hour)))

		got, err := repo.GetByID(ctx, created.ID, owner)
		require.NoError(t, err)
		assert.Equal(t, "ping", got.DisplayName)
		assert.Equal(t, domain.RetentionOneWeek, got.RetentionPeriod)
		assert.Equal(t, owner, got.OwnerUserID)

		_, err = repo.Get(ctx, created.ID)
		assert.NoError(t, err)
	})

	t.Run("get reports not found for other owner or unknown id", func(t *testing.T) {
		clock := NewClock()
		repo := newRepo(t, clock.Now)

		created, err := repo.Create(ctx, "alice", "", domain.RetentionOneDay)
		require.NoError(t, err)

		_, err = repo.GetByID(ctx, created.ID, "mallory")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = repo.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("append preserves order across batches", func(t *testing.T) {
		clock := NewClock()
		repo := newRepo(t, clock.Now)
		owner := uuid.NewString()

		s, err := repo.Create(ctx, owner, "order", domain.RetentionOneMonth)
		require.NoError(t, err)

		clock.Advance(time.Minute)
		first := []domain.ChatMessage{
			msg(domain.RoleUser, "one", clock.Now()),
			msg(domain.RoleAssistant, "two", clock.Now()),
			msg(domain.RoleUser, "three", clock.Now()),
		}
		_, err = repo.AppendAndSave(ctx, s.ID, first)
		require.NoError(t, err)

		clock.Advance(time.Minute)
		second := []domain.ChatMessage{
			msg(domain.RoleAssistant, "four", clock.Now()),
			msg(domain.RoleUser, "five", clock.Now()),
		}
		updated, err := repo.AppendAndSave(ctx, s.ID, second)
		require.NoError(t, err)

		assert.True(t, updated.UpdatedAt.Equal(clock.Now()))
		assert.True(t, updated.ExpiresAt.Equal(retention.ExpiresAt(updated)))

		got, err := repo.GetByID(ctx, s.ID, owner)
		require.NoError(t, err)
		require.Len(t, got.Messages, 5)
		for i, want := range []string{"one", "two", "three", "four", "five"} {
			assert.Equal(t, want, got.Messages[i].Content)
		}
		assert.Equal(t, domain.RoleAssistant, got.Messages[3].Role)
		assert.True(t, got.UpdatedAt.Equal(clock.Now()))
	})

	t.Run("concurrent appends do not lose messages", func(t *testing.T) {
		clock := NewClock()
		repo := newRepo(t, clock.Now)
		owner := uuid.NewString()

		s, err := repo.Create(ctx, owner, "race", domain.RetentionOneMonth)
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				batch := []domain.ChatMessage{
					msg(domain.RoleUser, fmt.Sprintf("q%d", i), clock.Now()),
					msg(domain.RoleAssistant, fmt.Sprintf("a%d", i), clock.Now()),
				}
				_, err := repo.AppendAndSave(ctx, s.ID, batch)
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := repo.GetByID(ctx, s.ID, owner)
		require.NoError(t, err)
		require.Len(t, got.Messages, writers*2)

		seen := map[string]bool{}
		for i := 0; i < len(got.Messages); i += 2 {
			q, a := got.Messages[i].Content, got.Messages[i+1].Content
			assert.Equal(t, "q", q[:1])
			assert.Equal(t, "a"+q[1:], a, "batch was interleaved")
			seen[q] = true
		}
		assert.Len(t, seen, writers)
	})

	t.Run("expired sessions are hidden from readers and writers", func(t *testing.T) {
		clock := NewClock()
		repo := newRepo(t, clock.Now)
		owner := uuid.NewString()

		s, err := repo.Create(ctx, owner, "old", domain.RetentionOneDay)
		require.NoError(t, err)

		clock.Advance(24*time.Hour + time.Second)

		_, err = repo.GetByID(ctx, s.ID, owner)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = repo.AppendAndSave(ctx, s.ID, []domain.ChatMessage{msg(domain.RoleUser, "late", clock.Now())})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		assert.Empty(t, collect(t, repo, owner))
	})

	t.Run("append to deleted session reports not found", func(t *testing.T) {
		clock := NewClock()
		repo := newRepo(t, clock.Now)
		owner := uuid.NewString()

		s, err := repo.Create(ctx, owner, "gone", domain.RetentionOneDay)
		require.NoError(t, err)
		require.NoError(t, repo.Delete(ctx, s.ID))

		_, err = repo.AppendAndSave(ctx, s.ID, []domain.ChatMessage{msg(domain.RoleUser, "hi", clock.Now())})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = repo.Get(ctx, s.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list by owner is ordered by last update", func(t *testing.T) {
		clock := NewClock()
		repo := newRepo(t, clock.Now)
		owner := uuid.NewString()

		older, err := repo.Create(ctx, owner, "older", domain.RetentionOneMonth)
		require.NoError(t, err)
		clock.Advance(time.Minute)
		newer, err := repo.Create(ctx, owner, "newer", domain.RetentionOneMonth)
		require.NoError(t, err)
		_, err = repo.Create(ctx, "someone-else", "other", domain.RetentionOneMonth)
		require.NoError(t, err)

		clock.Advance(time.Minute)
		_, err = repo.AppendAndSave(ctx, older.ID, []domain.ChatMessage{
			msg(domain.RoleUser, "hello", clock.Now()),
			msg(domain.RoleAssistant, "hi there", clock.Now()),
		})
		require.NoError(t, err)

		list := collect(t, repo, owner)
		require.Len(t, list, 2)
		assert.Equal(t, older.ID, list[0].ID)
		assert.Equal(t, "hi there", list[0].LastMessage)
		assert.Equal(t, 2, list[0].MessageCount)
		assert.Equal(t, newer.ID, list[1].ID)
		assert.Equal(t, "", list[1].LastMessage)
		assert.Equal(t, 0, list[1].MessageCount)
	})

	t.Run("list stops when consumer breaks", func(t *testing.T) {
		clock := NewClock()
		repo := newRepo(t, clock.Now)
		owner := uuid.NewString()
		for i := 0; i < 3; i++ {
			_, err := repo.Create(ctx, owner, fmt.Sprintf("s%d", i), domain.RetentionOneMonth)
			require.NoError(t, err)
			clock.Advance(time.Second)
		}

		n := 0
		for _, err := range repo.ListByOwner(ctx, owner) {
			require.NoError(t, err)
			n++
			break
		}
		assert.Equal(t, 1, n)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		clock := NewClock()
		repo := newRepo(t, clock.Now)

		s, err := repo.Create(ctx, uuid.NewString(), "x", domain.RetentionOneDay)
		require.NoError(t, err)

		assert.NoError(t, repo.Delete(ctx, s.ID))
		assert.NoError(t, repo.Delete(ctx, s.ID))
		assert.NoError(t, repo.Delete(ctx, uuid.New()))
	})

	t.Run("delete all expired removes exactly the expired sessions", func(t *testing.T) {
		clock := NewClock()
		repo := newRepo(t, clock.Now)
		owner := uuid.NewString()

		daily, err := repo.Create(ctx, owner, "daily", domain.RetentionOneDay)
		require.NoError(t, err)
		weekly, err := repo.Create(ctx, owner, "weekly", domain.RetentionOneWeek)
		require.NoError(t, err)
		monthly, err := repo.Create(ctx, owner, "monthly", domain.RetentionOneMonth)
		require.NoError(t, err)

		clock.Advance(2 * 24 * time.Hour)

		n, err := repo.DeleteAllExpired(ctx, clock.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.DeleteAllExpired(ctx, clock.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		_, err = repo.Get(ctx, daily.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = repo.Get(ctx, weekly.ID)
		assert.NoError(t, err)
		_, err = repo.Get(ctx, monthly.ID)
		assert.NoError(t, err)

		// an append pushes expiry forward
		_, err = repo.AppendAndSave(ctx, weekly.ID, []domain.ChatMessage{msg(domain.RoleUser, "keep", clock.Now())})
		require.NoError(t, err)
		clock.Advance(6 * 24 * time.Hour)

		n, err = repo.DeleteAllExpired(ctx, clock.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		clock.Advance(24*time.Hour + time.Second)
		n, err = repo.DeleteAllExpired(ctx, clock.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

// RunPreferenceRepository exercises the PreferenceRepository contract
func RunPreferenceRepository(t *testing.T, newRepo PreferenceFactory) {
	ctx := context.Background()

	t.Run("lazy default", func(t *testing.T) {
		repo := newRepo(t)
		user := uuid.NewString()

		p, err := repo.Get(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, user, p.UserID)
		assert.Equal(t, domain.DefaultRetentionPeriod, p.RetentionPeriod)

		again, err := repo.Get(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, p.RetentionPeriod, again.RetentionPeriod)
	})

	t.Run("upsert then get", func(t *testing.T) {
		repo := newRepo(t)
		user := uuid.NewString()

		p, err := repo.Upsert(ctx, user, domain.RetentionOneDay)
		require.NoError(t, err)
		assert.Equal(t, domain.RetentionOneDay, p.RetentionPeriod)

		p, err = repo.Upsert(ctx, user, domain.RetentionOneWeek)
		require.NoError(t, err)
		assert.Equal(t, domain.RetentionOneWeek, p.RetentionPeriod)

		got, err := repo.Get(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, domain.RetentionOneWeek, got.RetentionPeriod)
	})
}
