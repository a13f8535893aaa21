package session

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
)

// DefaultMaxSessions bounds how many sessions a user may accumulate before
// pruning kicks in.
const DefaultMaxSessions = 50

// staleAfter is how long a revoked session lingers before cleanup drops it.
const staleAfter = 30 * 24 * time.Hour

// revokeEpsilon is subtracted from invalidation timestamps. JWT issue times
// are second-truncated, so an exact cutoff would also kill the token minted
// by the very re-login (or password reset) that triggered it.
const revokeEpsilon = time.Second

// InvalidationCutoff returns the timestamp to record when all tokens issued
// up to now must die: lastLogout on global logout, passwordChangedAt on a
// password change.
func InvalidationCutoff(now time.Time) time.Time {
	return now.Add(-revokeEpsilon)
}

// ErrNotFound is returned when no session matches the given jti for the user.
var ErrNotFound = errors.New("session not found")

// Ledger manages the sessions table for individual users.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a Ledger.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Create appends a fresh session for the user and returns it. The generated
// jti is what login embeds into the issued token.
func (l *Ledger) Create(userID uuid.UUID, userAgent, ip string) (*models.Session, error) {
	now := time.Now()
	s := &models.Session{
		UserID:     userID,
		JTI:        uuid.NewString(),
		UserAgent:  userAgent,
		IP:         ip,
		LastUsedAt: now,
		Revoked:    false,
	}
	if err := l.db.Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// Find looks up one session by jti.
func (l *Ledger) Find(userID uuid.UUID, jti string) (*models.Session, error) {
	var s models.Session
	err := l.db.Where("user_id = ? AND jti = ?", userID, jti).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// List returns all sessions for the user, most recently used first.
func (l *Ledger) List(userID uuid.UUID) ([]models.Session, error) {
	var sessions []models.Session
	err := l.db.Where("user_id = ?", userID).
		Order("last_used_at desc").
		Find(&sessions).Error
	return sessions, err
}

// Revoke marks exactly one session revoked. Revoking an already-revoked
// session is a no-op success so repeated logouts stay idempotent; an unknown
// jti is ErrNotFound.
func (l *Ledger) Revoke(userID uuid.UUID, jti string) error {
	result := l.db.Model(&models.Session{}).
		Where("user_id = ? AND jti = ?", userID, jti).
		Update("revoked", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish "never existed" from "already revoked".
		if _, err := l.Find(userID, jti); err != nil {
			return err
		}
	}
	return nil
}

// RevokeAll marks every session revoked and moves the user's global-logout
// marker, invalidating all previously issued tokens.
func (l *Ledger) RevokeAll(userID uuid.UUID) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Session{}).
			Where("user_id = ? AND revoked = ?", userID, false).
			Update("revoked", true).Error; err != nil {
			return err
		}

		cutoff := InvalidationCutoff(time.Now())
		return tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("last_logout", cutoff).Error
	})
}

// Touch updates a session's last_used_at. Best-effort: session tracking is
// advisory, so failures are swallowed.
func (l *Ledger) Touch(userID uuid.UUID, jti string) {
	_ = l.db.Model(&models.Session{}).
		Where("user_id = ? AND jti = ?", userID, jti).
		Update("last_used_at", time.Now()).Error
}

// Prune bounds the user's session list to max entries, dropping the least
// recently used first.
func (l *Ledger) Prune(userID uuid.UUID, max int) error {
	if max <= 0 {
		max = DefaultMaxSessions
	}

	var sessions []models.Session
	if err := l.db.Where("user_id = ?", userID).Find(&sessions).Error; err != nil {
		return err
	}

	victims := pruneVictims(sessions, max)
	if len(victims) == 0 {
		return nil
	}

	return l.db.Where("id IN ?", victims).Delete(&models.Session{}).Error
}

// Cleanup drops sessions that are both revoked and unused for 30+ days.
// Revoked-but-recent sessions are kept for auditing; active sessions are
// never touched regardless of age.
func (l *Ledger) Cleanup(userID uuid.UUID) error {
	cutoff := time.Now().Add(-staleAfter)
	return l.db.Where("user_id = ? AND revoked = ? AND last_used_at < ?", userID, true, cutoff).
		Delete(&models.Session{}).Error
}

// pruneVictims picks the sessions to drop so that at most max remain,
// ordered by last_used_at (created_at when last_used_at is unset).
func pruneVictims(sessions []models.Session, max int) []uuid.UUID {
	if len(sessions) <= max {
		return nil
	}

	sorted := make([]models.Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return recency(sorted[i]).After(recency(sorted[j]))
	})

	victims := make([]uuid.UUID, 0, len(sorted)-max)
	for _, s := range sorted[max:] {
		victims = append(victims, s.ID)
	}
	return victims
}

func recency(s models.Session) time.Time {
	if !s.LastUsedAt.IsZero() {
		return s.LastUsedAt
	}
	return s.CreatedAt
}
