package services

import (
	"fmt"

	"github.com/google/uuid"
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// SessionEndedError is returned by issuance and key-sync once now > end.
type SessionEndedError struct{ SessionID uuid.UUID }

func (e *SessionEndedError) Error() string {
	return fmt.Sprintf("session %s has ended", e.SessionID)
}
