package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"attendance-backend/internal/models"
	"attendance-backend/internal/repository"
)

type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "rejected"
	}
}

// RejectReason is a protocol outcome the caller branches on, not a fault.
type RejectReason string

const (
	ReasonNone             RejectReason = ""
	ReasonInvalidToken     RejectReason = "INVALID_TOKEN"
	ReasonStudentNotFound  RejectReason = "STUDENT_NOT_FOUND"
	ReasonSessionNotSynced RejectReason = "SESSION_NOT_SYNCED"
	ReasonStaleToken       RejectReason = "STALE_TOKEN"
	ReasonOutsideWindow    RejectReason = "OUTSIDE_WINDOW"
)

type SubmitResult struct {
	Outcome   Outcome
	Reason    RejectReason
	Format    TokenFormat
	SessionID uuid.UUID
}

func rejected(reason RejectReason, format TokenFormat) *SubmitResult {
	return &SubmitResult{Outcome: OutcomeRejected, Reason: reason, Format: format}
}

type studentReader interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
}

type attendanceRecorder interface {
	Record(ctx context.Context, a *models.Attendance) error
}

type SubmissionValidator struct {
	sessions   sessionReader
	students   studentReader
	attendance attendanceRecorder
	codec      *CodeCodec
	grace      time.Duration
	now        func() time.Time
}

func NewSubmissionValidator(sessions sessionReader, students studentReader, attendance attendanceRecorder, codec *CodeCodec, grace time.Duration) *SubmissionValidator {
	return &SubmissionValidator{
		sessions:   sessions,
		students:   students,
		attendance: attendance,
		codec:      codec,
		grace:      grace,
		now:        time.Now,
	}
}

// Submit decides whether a capture report proves presence. Only malformed
// input and storage faults come back as errors.
func (v *SubmissionValidator) Submit(ctx context.Context, studentID, token string, scanAt time.Time) (*SubmitResult, error) {
	fieldErrors := make(map[string]string)
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		fieldErrors["student_id"] = "Student ID is required"
	}
	if strings.TrimSpace(token) == "" {
		fieldErrors["token"] = "Token is required"
	}
	if scanAt.UnixMilli() <= 0 {
		fieldErrors["scan_ts"] = "Scan timestamp is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	payload, format, err := v.codec.Decode(token)
	if err != nil {
		return rejected(ReasonInvalidToken, TokenFormatUnknown), nil
	}
	if format == TokenFormatPlainFallback {
		log.Printf("submit: student %s presented an unsigned payload for session %s", studentID, payload.SessionID)
	}

	if _, err := v.students.GetByID(ctx, studentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rejected(ReasonStudentNotFound, format), nil
		}
		return nil, fmt.Errorf("failed to load student: %w", err)
	}

	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		return rejected(ReasonSessionNotSynced, format), nil
	}
	session, err := v.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rejected(ReasonSessionNotSynced, format), nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	result := v.check(session, payload.Secret, scanAt, v.now())
	result.Format = format
	result.SessionID = sessionID
	if result.Outcome == OutcomeRejected {
		return result, nil
	}

	err = v.attendance.Record(ctx, &models.Attendance{
		SessionID: sessionID,
		StudentID: studentID,
		ScanAt:    models.TruncateMillis(scanAt),
	})
	if errors.Is(err, repository.ErrDuplicateAttendance) {
		result.Outcome = OutcomeDuplicate
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record attendance: %w", err)
	}

	result.Outcome = OutcomeAccepted
	return result, nil
}

// check applies the generation match, both freshness bounds and the session
// window. Outcome is Accepted when all pass.
func (v *SubmissionValidator) check(session *models.Session, secret string, scanAt, now time.Time) *SubmitResult {
	candidateAt, ok := candidateTime(session, secret)
	if !ok {
		return rejected(ReasonStaleToken, TokenFormatUnknown)
	}

	if scanAt.Sub(candidateAt) > v.grace {
		return rejected(ReasonStaleToken, TokenFormatUnknown)
	}
	if now.Sub(candidateAt) > v.grace {
		return rejected(ReasonStaleToken, TokenFormatUnknown)
	}

	if !session.ActiveAt(scanAt) {
		return rejected(ReasonOutsideWindow, TokenFormatUnknown)
	}

	return &SubmitResult{Outcome: OutcomeAccepted}
}

// candidateTime returns when the presented secret became current, if it is
// one of the two live generations.
func candidateTime(session *models.Session, secret string) (time.Time, bool) {
	if secretsEqual(secret, session.CurrentSecret) {
		return session.CurrentSecretAt, true
	}
	if session.PreviousSecret != nil && session.PreviousSecretAt != nil && secretsEqual(secret, *session.PreviousSecret) {
		return *session.PreviousSecretAt, true
	}
	return time.Time{}, false
}

func secretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
