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

const keySyncAttempts = 3

type secretShifter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ShiftSecret(ctx context.Context, shift models.SecretShift) (bool, error)
}

type rotationNotifier interface {
	PublishRotation(ctx context.Context, sessionID uuid.UUID, source string, rotatedAt time.Time)
}

type SyncResult struct {
	Applied bool
}

// KeySyncService lets an instructor client push the authoritative current
// secret when the server's own rotation clock may have been lost.
type KeySyncService struct {
	sessions secretShifter
	notifier rotationNotifier
	maxSkew  time.Duration
	now      func() time.Time
}

func NewKeySyncService(sessions secretShifter, notifier rotationNotifier, maxSkew time.Duration) *KeySyncService {
	return &KeySyncService{sessions: sessions, notifier: notifier, maxSkew: maxSkew, now: time.Now}
}

func (s *KeySyncService) Sync(ctx context.Context, sessionID uuid.UUID, observedSecret string, observedAt time.Time) (*SyncResult, error) {
	fieldErrors := make(map[string]string)
	if strings.TrimSpace(observedSecret) == "" {
		fieldErrors["current_key"] = "Current key is required"
	}
	if observedAt.UnixMilli() <= 0 {
		fieldErrors["current_key_ts"] = "Current key timestamp is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	observedAt = models.TruncateMillis(observedAt)
	now := models.TruncateMillis(s.now())
	if observedAt.Sub(now) > s.maxSkew {
		return nil, &ValidationError{Fields: map[string]string{"current_key_ts": "Timestamp is in the future"}}
	}
	// A generation may never start after the server's now, otherwise the next
	// tick would stamp its successor earlier and the history would run backwards.
	if observedAt.After(now) {
		observedAt = now
	}

	for attempt := 0; attempt < keySyncAttempts; attempt++ {
		session, err := s.sessions.GetByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &NotFoundError{Message: "Session not found"}
			}
			return nil, fmt.Errorf("failed to load session: %w", err)
		}

		if session.EndedAt(now) {
			return nil, &SessionEndedError{SessionID: sessionID}
		}

		if !observedAt.After(session.CurrentSecretAt) || observedSecret == session.CurrentSecret {
			return &SyncResult{Applied: false}, nil
		}

		applied, err := s.sessions.ShiftSecret(ctx, models.SecretShift{
			SessionID:         sessionID,
			ExpectedCurrentAt: session.CurrentSecretAt,
			NewSecret:         observedSecret,
			NewSecretAt:       observedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to apply key-sync: %w", err)
		}
		if applied {
			log.Printf("key-sync: session %s current secret replaced (observed at %d)", sessionID, observedAt.UnixMilli())
			if s.notifier != nil {
				s.notifier.PublishRotation(ctx, sessionID, "key-sync", observedAt)
			}
			return &SyncResult{Applied: true}, nil
		}
	}

	return nil, &ConflictError{Message: "Session secret changed concurrently, please retry"}
}
