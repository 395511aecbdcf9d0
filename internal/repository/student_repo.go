package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"attendance-backend/internal/models"
)

// ErrStudentInOtherClass is returned when an upsert targets an id enrolled
// in a different class.
var ErrStudentInOtherClass = errors.New("student belongs to another class")

type StudentRepo struct {
	pool *pgxpool.Pool
}

func NewStudentRepo(pool *pgxpool.Pool) *StudentRepo {
	return &StudentRepo{pool: pool}
}

func (r *StudentRepo) GetByID(ctx context.Context, id string) (*models.Student, error) {
	s := &models.Student{}
	query := `SELECT id, name, class_id, created_at FROM students WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.ClassID, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Upsert creates the student or renames it. An id already enrolled in
// another class is left untouched.
func (r *StudentRepo) Upsert(ctx context.Context, s *models.Student) error {
	query := `INSERT INTO students (id, name, class_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		WHERE students.class_id = EXCLUDED.class_id
		RETURNING created_at`

	err := r.pool.QueryRow(ctx, query, s.ID, s.Name, s.ClassID).Scan(&s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStudentInOtherClass
	}
	return err
}
