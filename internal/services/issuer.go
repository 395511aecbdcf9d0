package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"attendance-backend/internal/models"
)

type sessionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// IssuedCode is what the instructor display renders. Payload is the exact
// text to encode into the scannable image.
type IssuedCode struct {
	SessionID     uuid.UUID `json:"session_id"`
	Token         string    `json:"token"`
	Payload       string    `json:"payload"`
	IssuedAt      int64     `json:"issued_at"`
	SecretPreview string    `json:"secret_preview"`
	RotatedAt     int64     `json:"rotated_at"`
	PayloadExpSec int       `json:"payload_exp_sec"`
	CurrentKey    string    `json:"current_key"`
	CurrentKeyTS  int64     `json:"current_key_ts"`
}

type CodeIssuer struct {
	sessions sessionReader
	codec    *CodeCodec
	ttl      time.Duration
	now      func() time.Time
}

func NewCodeIssuer(sessions sessionReader, codec *CodeCodec, ttl time.Duration) *CodeIssuer {
	return &CodeIssuer{sessions: sessions, codec: codec, ttl: ttl, now: time.Now}
}

// Issue packages the session's current secret. Reading never advances it.
func (i *CodeIssuer) Issue(ctx context.Context, sessionID uuid.UUID) (*IssuedCode, error) {
	session, err := i.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	now := models.TruncateMillis(i.now())
	if session.EndedAt(now) {
		return nil, &SessionEndedError{SessionID: sessionID}
	}

	payload := models.CodePayload{
		SessionID: session.ID.String(),
		Secret:    session.CurrentSecret,
		IssuedAt:  now.UnixMilli(),
	}

	token, err := i.codec.Sign(payload, i.ttl)
	if err != nil {
		return nil, err
	}

	display, err := json.Marshal(map[string]string{"t": token})
	if err != nil {
		return nil, fmt.Errorf("failed to encode display payload: %w", err)
	}

	return &IssuedCode{
		SessionID:     session.ID,
		Token:         token,
		Payload:       string(display),
		IssuedAt:      payload.IssuedAt,
		SecretPreview: preview(session.CurrentSecret),
		RotatedAt:     session.CurrentSecretAt.UnixMilli(),
		PayloadExpSec: int(i.ttl / time.Second),
		CurrentKey:    session.CurrentSecret,
		CurrentKeyTS:  session.CurrentSecretAt.UnixMilli(),
	}, nil
}

func preview(secret string) string {
	if len(secret) <= 8 {
		return secret
	}
	return secret[:8]
}
