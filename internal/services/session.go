package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"attendance-backend/internal/models"
)

type sessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

type classRepository interface {
	GetByID(ctx context.Context, id string) (*models.Class, error)
}

// rotationArmer is satisfied by worker.Rotator.
type rotationArmer interface {
	Arm(sessionID uuid.UUID) bool
}

type SessionService struct {
	sessions sessionRepository
	classes  classRepository
	rotator  rotationArmer
	cache    activeSessionCache
	duration time.Duration
	now      func() time.Time
}

func NewSessionService(sessions sessionRepository, classes classRepository, rotator rotationArmer, cache activeSessionCache, duration time.Duration) *SessionService {
	return &SessionService{
		sessions: sessions,
		classes:  classes,
		rotator:  rotator,
		cache:    cache,
		duration: duration,
		now:      time.Now,
	}
}

// Start opens a new session for the class with a fixed duration and arms
// its rotation.
func (s *SessionService) Start(ctx context.Context, classID string) (*models.Session, error) {
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return nil, &ValidationError{Fields: map[string]string{"class_id": "Class ID is required"}}
	}

	if _, err := s.classes.GetByID(ctx, classID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Class not found"}
		}
		return nil, fmt.Errorf("failed to load class: %w", err)
	}

	now := models.TruncateMillis(s.now())
	session := &models.Session{
		ID:              uuid.New(),
		ClassID:         classID,
		StartAt:         now,
		EndAt:           now.Add(s.duration),
		CurrentSecret:   newSecret(),
		CurrentSecretAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.cache != nil {
		s.cache.Delete(ctx, classID)
	}
	s.rotator.Arm(session.ID)

	log.Printf("session: started %s for class %s (ends %s)", session.ID, classID, session.EndAt.Format(time.RFC3339))
	return session, nil
}

// GetForClass loads a session and checks it belongs to classID.
func (s *SessionService) GetForClass(ctx context.Context, sessionID uuid.UUID, classID string) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session.ClassID != classID {
		return nil, &ForbiddenError{Message: "Session belongs to another class"}
	}
	return session, nil
}

func newSecret() string {
	return uuid.New().String()
}
