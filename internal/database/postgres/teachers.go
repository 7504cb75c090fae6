package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// TeacherRepository provides PostgreSQL-backed teacher account storage
type TeacherRepository struct {
	pool *Pool
}

// NewTeacherRepository creates a new PostgreSQL teacher repository
func NewTeacherRepository(pool *Pool) *TeacherRepository {
	return &TeacherRepository{pool: pool}
}

// CreateTeacher stores a teacher, returns ErrDuplicate if the email is taken
func (r *TeacherRepository) CreateTeacher(ctx context.Context, t database.StoredTeacher) (*database.StoredTeacher, error) {
	query := `
		INSERT INTO teachers (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query, t.Name, t.Email, t.PasswordHash).Scan(&t.ID, &t.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("teacher %s: %w", t.Email, database.ErrDuplicate)
	}
	if err != nil {
		return nil, database.Unavailable("insert teacher", err)
	}
	return &t, nil
}

// GetTeacherByEmail retrieves a teacher by email, returns nil if not found
func (r *TeacherRepository) GetTeacherByEmail(ctx context.Context, email string) (*database.StoredTeacher, error) {
	query := `
		SELECT id, name, email, password_hash, created_at
		FROM teachers
		WHERE email = $1
	`

	var t database.StoredTeacher
	err := r.pool.QueryRow(ctx, query, email).Scan(&t.ID, &t.Name, &t.Email, &t.PasswordHash, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Unavailable("get teacher", err)
	}
	return &t, nil
}
