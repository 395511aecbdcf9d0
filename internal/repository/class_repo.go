package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"attendance-backend/internal/models"
)

type ClassRepo struct {
	pool *pgxpool.Pool
}

func NewClassRepo(pool *pgxpool.Pool) *ClassRepo {
	return &ClassRepo{pool: pool}
}

func (r *ClassRepo) Create(ctx context.Context, c *models.Class) error {
	query := `INSERT INTO classes (id, name, instructor_code_hash)
		VALUES ($1, $2, $3) RETURNING created_at`

	return r.pool.QueryRow(ctx, query, c.ID, c.Name, c.InstructorCodeHash).Scan(&c.CreatedAt)
}

func (r *ClassRepo) GetByID(ctx context.Context, id string) (*models.Class, error) {
	c := &models.Class{}
	query := `SELECT id, name, instructor_code_hash, created_at FROM classes WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.InstructorCodeHash, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}
