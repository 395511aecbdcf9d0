package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"attendance-backend/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, class_id, start_at, end_at, current_secret, current_secret_at,
	previous_secret, previous_secret_at, created_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	s := &models.Session{}
	err := row.Scan(
		&s.ID, &s.ClassID, &s.StartAt, &s.EndAt, &s.CurrentSecret, &s.CurrentSecretAt,
		&s.PreviousSecret, &s.PreviousSecretAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) Create(ctx context.Context, s *models.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	query := `INSERT INTO sessions (id, class_id, start_at, end_at, current_secret, current_secret_at, previous_secret, previous_secret_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, NULL) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.ClassID, s.StartAt, s.EndAt, s.CurrentSecret, s.CurrentSecretAt,
	).Scan(&s.CreatedAt)
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

// FindActiveByClass returns the most recently started session of the class
// whose window contains now, or pgx.ErrNoRows.
func (r *SessionRepo) FindActiveByClass(ctx context.Context, classID string, now time.Time) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE class_id = $1 AND start_at <= $2 AND end_at >= $2
		ORDER BY start_at DESC
		LIMIT 1`
	return scanSession(r.pool.QueryRow(ctx, query, classID, now))
}

// ListActive returns every session whose window contains now.
func (r *SessionRepo) ListActive(ctx context.Context, now time.Time) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE start_at <= $1 AND end_at >= $1
		ORDER BY start_at`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ShiftSecret moves current into previous and installs the new secret, but
// only while the stored current secret time still equals the one the caller
// read. It reports false when another writer got there first.
func (r *SessionRepo) ShiftSecret(ctx context.Context, shift models.SecretShift) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET previous_secret = current_secret,
			previous_secret_at = current_secret_at,
			current_secret = $3,
			current_secret_at = $4
		WHERE id = $1
		  AND current_secret_at = $2
	`, shift.SessionID, shift.ExpectedCurrentAt, shift.NewSecret, shift.NewSecretAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
