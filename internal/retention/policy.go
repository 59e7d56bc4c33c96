// Package retention decides when chat sessions expire.
package retention

import (
	"time"

	"github.com/Rrens/practice-chat/internal/domain"
)

const day = 24 * time.Hour

// DurationFor maps a retention period to its lifetime. A month is a fixed
// 30 days. Unknown periods get the month duration.
func DurationFor(period domain.RetentionPeriod) time.Duration {
	switch period {
	case domain.RetentionOneDay:
		return day
	case domain.RetentionOneWeek:
		return 7 * day
	default:
		return 30 * day
	}
}

// ExpiresAt returns updatedAt + DurationFor(period)
func ExpiresAt(session *domain.ChatSession) time.Time {
	return ExpiryFrom(session.UpdatedAt, session.RetentionPeriod)
}

// ExpiryFrom computes the expiry instant for a session last touched at updatedAt
func ExpiryFrom(updatedAt time.Time, period domain.RetentionPeriod) time.Time {
	return updatedAt.Add(DurationFor(period))
}

// IsExpired reports whether now is strictly past the session's expiry
func IsExpired(session *domain.ChatSession, now time.Time) bool {
	return now.After(ExpiresAt(session))
}

// Valid reports whether period is one of the known values
func Valid(period domain.RetentionPeriod) bool {
	switch period {
	case domain.RetentionOneDay, domain.RetentionOneWeek, domain.RetentionOneMonth:
		return true
	}
	return false
}

// Parse validates a raw retention period
func Parse(raw string) (domain.RetentionPeriod, error) {
	p := domain.RetentionPeriod(raw)
	if !Valid(p) {
		return "", domain.ValidationError("invalid retention period %q", raw)
	}
	return p, nil
}
