package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"attendance-backend/internal/database"
	"attendance-backend/internal/models"
)

// ErrDuplicateAttendance is returned when (session, student) already has a fact.
var ErrDuplicateAttendance = errors.New("attendance already recorded")

type AttendanceRepo struct {
	pool *pgxpool.Pool
}

func NewAttendanceRepo(pool *pgxpool.Pool) *AttendanceRepo {
	return &AttendanceRepo{pool: pool}
}

// Record inserts the fact. The unique (session_id, student_id) constraint is
// the only guard against concurrent submissions.
func (r *AttendanceRepo) Record(ctx context.Context, a *models.Attendance) error {
	a.ID = uuid.New()

	query := `INSERT INTO attendance (id, session_id, student_id, scan_at)
		VALUES ($1, $2, $3, $4) RETURNING created_at`

	err := r.pool.QueryRow(ctx, query, a.ID, a.SessionID, a.StudentID, a.ScanAt).Scan(&a.CreatedAt)
	if database.IsUniqueViolation(err) {
		return ErrDuplicateAttendance
	}
	return err
}

func (r *AttendanceRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.AttendanceRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.student_id, s.name, a.scan_at
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE a.session_id = $1
		ORDER BY a.scan_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*models.AttendanceRow{}
	for rows.Next() {
		row := &models.AttendanceRow{}
		if err := rows.Scan(&row.StudentID, &row.Name, &row.ScanAt); err != nil {
			return nil, err
		}
		row.ScanTS = row.ScanAt.UnixMilli()
		result = append(result, row)
	}
	return result, rows.Err()
}
