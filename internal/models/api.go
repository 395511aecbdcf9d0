package models

import "github.com/google/uuid"

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// RotationEvent is published whenever a session's current secret changes.
type RotationEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Source    string    `json:"source"` // "scheduler" | "key-sync"
	RotatedAt int64     `json:"rotated_at"`
}

type SessionEndedEvent struct {
	SessionID uuid.UUID `json:"session_id"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
