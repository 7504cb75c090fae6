package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// TeacherRepository provides MariaDB-backed teacher account storage
type TeacherRepository struct {
	pool *Pool
}

// NewTeacherRepository creates a new MariaDB teacher repository
func NewTeacherRepository(pool *Pool) *TeacherRepository {
	return &TeacherRepository{pool: pool}
}

// CreateTeacher stores a teacher, returns ErrDuplicate if the email is taken
func (r *TeacherRepository) CreateTeacher(ctx context.Context, t database.StoredTeacher) (*database.StoredTeacher, error) {
	t.CreatedAt = time.Now().UTC()
	res, err := r.pool.db.ExecContext(ctx,
		`INSERT INTO teachers (name, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		t.Name, t.Email, t.PasswordHash, t.CreatedAt)
	if isDuplicateEntry(err) {
		return nil, fmt.Errorf("teacher %s: %w", t.Email, database.ErrDuplicate)
	}
	if err != nil {
		return nil, database.Unavailable("insert teacher", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return nil, database.Unavailable("teacher id", err)
	}
	return &t, nil
}

// GetTeacherByEmail retrieves a teacher by email, returns nil if not found
func (r *TeacherRepository) GetTeacherByEmail(ctx context.Context, email string) (*database.StoredTeacher, error) {
	var t database.StoredTeacher
	err := r.pool.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM teachers WHERE email = ?`, email,
	).Scan(&t.ID, &t.Name, &t.Email, &t.PasswordHash, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Unavailable("get teacher", err)
	}
	return &t, nil
}
