package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"attendance-backend/internal/models"
)

const maxActiveSessionCacheTTL = 30 * time.Second

// ActiveSession never carries the secret; issuance is a separate call.
type ActiveSession struct {
	Active    bool
	SessionID uuid.UUID
	Start     time.Time
	End       time.Time
}

type activeSessionFinder interface {
	FindActiveByClass(ctx context.Context, classID string, now time.Time) (*models.Session, error)
}

type activeSessionCache interface {
	Get(ctx context.Context, classID string) (*ActiveSession, bool)
	Set(ctx context.Context, classID string, session *ActiveSession, ttl time.Duration)
	Delete(ctx context.Context, classID string)
}

type SessionLocator struct {
	sessions activeSessionFinder
	rotator  rotationArmer
	cache    activeSessionCache
	now      func() time.Time
}

func NewSessionLocator(sessions activeSessionFinder, rotator rotationArmer, cache activeSessionCache) *SessionLocator {
	return &SessionLocator{sessions: sessions, rotator: rotator, cache: cache, now: time.Now}
}

// FindActive returns the most recently started session of the class whose
// window contains now, re-arming its rotation as the restart recovery path.
func (l *SessionLocator) FindActive(ctx context.Context, classID string) (*ActiveSession, error) {
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return nil, &ValidationError{Fields: map[string]string{"class_id": "Class ID is required"}}
	}

	now := l.now()

	if l.cache != nil {
		if cached, ok := l.cache.Get(ctx, classID); ok && cached.Active && withinWindow(cached, now) {
			l.rotator.Arm(cached.SessionID)
			return cached, nil
		}
	}

	session, err := l.sessions.FindActiveByClass(ctx, classID, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &ActiveSession{Active: false}, nil
		}
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}

	found := &ActiveSession{
		Active:    true,
		SessionID: session.ID,
		Start:     session.StartAt,
		End:       session.EndAt,
	}

	if l.cache != nil {
		ttl := session.EndAt.Sub(now)
		if ttl > maxActiveSessionCacheTTL {
			ttl = maxActiveSessionCacheTTL
		}
		if ttl > 0 {
			l.cache.Set(ctx, classID, found, ttl)
		}
	}

	l.rotator.Arm(session.ID)
	return found, nil
}

func withinWindow(s *ActiveSession, now time.Time) bool {
	return !now.Before(s.Start) && !now.After(s.End)
}
