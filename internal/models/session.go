package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Session is one attendance window for one class together with its
// two-generation secret history.
type Session struct {
	ID               uuid.UUID  `json:"id"`
	ClassID          string     `json:"class_id"`
	StartAt          time.Time  `json:"start_at"`
	EndAt            time.Time  `json:"end_at"`
	CurrentSecret    string     `json:"-"`
	CurrentSecretAt  time.Time  `json:"-"`
	PreviousSecret   *string    `json:"-"`
	PreviousSecretAt *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ActiveAt reports whether t falls inside the inclusive session window.
func (s *Session) ActiveAt(t time.Time) bool {
	return !t.Before(s.StartAt) && !t.After(s.EndAt)
}

// EndedAt reports whether the session is over at t.
func (s *Session) EndedAt(t time.Time) bool {
	return t.After(s.EndAt)
}

// SecretShift describes a current -> previous shift guarded by the
// current secret time the writer observed.
type SecretShift struct {
	SessionID         uuid.UUID
	ExpectedCurrentAt time.Time
	NewSecret         string
	NewSecretAt       time.Time
}

type StartSessionRequest struct {
	ClassID string `json:"class_id"`
}

type KeySyncRequest struct {
	CurrentKey   string      `json:"current_key"`
	CurrentKeyTS EpochMillis `json:"current_key_ts"`
}

// EpochMillis decodes either epoch milliseconds (number or numeric string)
// or an ISO-8601 timestamp, as instructor clients send both.
type EpochMillis int64

func (m *EpochMillis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			*m = EpochMillis(t.UnixMilli())
			return nil
		}
		raw = s
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*m = EpochMillis(n)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*m = EpochMillis(int64(f))
		return nil
	}
	return fmt.Errorf("invalid timestamp %s", data)
}

func (m EpochMillis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

// CodePayload is the structured value carried by a displayed code.
type CodePayload struct {
	SessionID string `json:"sessionId"`
	Secret    string `json:"secret"`
	IssuedAt  int64  `json:"issuedAt"`
}

// TruncateMillis drops sub-millisecond precision so stored instants round
// trip exactly through TIMESTAMPTZ and epoch-ms wire values.
func TruncateMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}

// SessionUpdatesChannel is the pub/sub channel carrying a session's rotation events.
func SessionUpdatesChannel(sessionID uuid.UUID) string {
	return "session_updates:" + sessionID.String()
}
