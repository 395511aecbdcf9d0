package models

import (
	"time"

	"github.com/google/uuid"
)

type Attendance struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	StudentID string    `json:"student_id"`
	ScanAt    time.Time `json:"scan_at"`
	CreatedAt time.Time `json:"created_at"`
}

// AttendanceRow is an attendance fact joined with the student's name.
type AttendanceRow struct {
	StudentID string    `json:"student_id"`
	Name      string    `json:"name"`
	ScanAt    time.Time `json:"-"`
	ScanTS    int64     `json:"scan_ts"`
}

type SubmitAttendanceRequest struct {
	StudentID string `json:"student_id"`
	Token     string `json:"token"`
	ScanTS    int64  `json:"scan_ts"`
}
