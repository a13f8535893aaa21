package session

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/verdant/internal/models"
)

func sessionUsedAt(t time.Time) models.Session {
	s := models.Session{LastUsedAt: t}
	s.ID = uuid.New()
	return s
}

func TestPruneVictimsKeepsMostRecentlyUsed(t *testing.T) {
	base := time.Now()
	sessions := make([]models.Session, 60)
	for i := range sessions {
		sessions[i] = sessionUsedAt(base.Add(time.Duration(i) * time.Minute))
	}

	victims := pruneVictims(sessions, 50)
	if len(victims) != 10 {
		t.Fatalf("victims = %d, want 10", len(victims))
	}

	// The 10 least recently used are indexes 0..9.
	victimSet := make(map[uuid.UUID]bool, len(victims))
	for _, id := range victims {
		victimSet[id] = true
	}
	for i := 0; i < 10; i++ {
		if !victimSet[sessions[i].ID] {
			t.Errorf("expected session %d (oldest) among victims", i)
		}
	}
	for i := 10; i < 60; i++ {
		if victimSet[sessions[i].ID] {
			t.Errorf("session %d pruned but is among the 50 most recent", i)
		}
	}
}

func TestPruneVictimsUnderCap(t *testing.T) {
	sessions := []models.Session{
		sessionUsedAt(time.Now()),
		sessionUsedAt(time.Now().Add(-time.Hour)),
	}
	if victims := pruneVictims(sessions, 50); victims != nil {
		t.Errorf("victims = %v, want nil when under the cap", victims)
	}
}

func TestPruneVictimsFallsBackToCreatedAt(t *testing.T) {
	now := time.Now()

	old := models.Session{}
	old.ID = uuid.New()
	old.CreatedAt = now.Add(-48 * time.Hour)

	recent := models.Session{}
	recent.ID = uuid.New()
	recent.CreatedAt = now.Add(-time.Hour)

	used := sessionUsedAt(now)

	victims := pruneVictims([]models.Session{old, recent, used}, 2)
	if len(victims) != 1 {
		t.Fatalf("victims = %d, want 1", len(victims))
	}
	if victims[0] != old.ID {
		t.Errorf("pruned %v, want the session with the oldest created_at", victims[0])
	}
}

func TestInvalidationCutoffBacksOffOneSecond(t *testing.T) {
	now := time.Now()
	cutoff := InvalidationCutoff(now)

	if got := now.Sub(cutoff); got != time.Second {
		t.Errorf("cutoff backs off %v, want 1s", got)
	}

	// A second-truncated issue time from the same instant must survive a
	// strictly-after comparison against the cutoff.
	iat := now.Truncate(time.Second)
	if !iat.After(cutoff) {
		t.Errorf("iat %v not after cutoff %v", iat, cutoff)
	}
}

func TestRecency(t *testing.T) {
	now := time.Now()

	s := models.Session{LastUsedAt: now}
	s.CreatedAt = now.Add(-time.Hour)
	if got := recency(s); !got.Equal(now) {
		t.Errorf("recency = %v, want last_used_at", got)
	}

	s = models.Session{}
	s.CreatedAt = now.Add(-time.Hour)
	if got := recency(s); !got.Equal(s.CreatedAt) {
		t.Errorf("recency = %v, want created_at fallback", got)
	}
}
