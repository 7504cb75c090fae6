package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

// StudentRepository provides PostgreSQL-backed storage for students and their face samples.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetStudent retrieves a student by roll number, returns nil if not found.
func (r *StudentRepository) GetStudent(ctx context.Context, rollNo string) (*database.StoredStudent, error) {
	query := `
		SELECT roll_no, name, class, department, created_at
		FROM students
		WHERE roll_no = $1
	`

	var s database.StoredStudent
	err := r.pool.QueryRow(ctx, query, rollNo).Scan(&s.RollNo, &s.Name, &s.Class, &s.Department, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Unavailable("get student", err)
	}
	return &s, nil
}

// StudentExists checks if a student with the roll number is enrolled.
func (r *StudentRepository) StudentExists(ctx context.Context, rollNo string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM students WHERE roll_no = $1)", rollNo).Scan(&exists)
	if err != nil {
		return false, database.Unavailable("check student exists", err)
	}
	return exists, nil
}

// CountStudents returns the number of enrolled students.
func (r *StudentRepository) CountStudents(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM students").Scan(&count); err != nil {
		return 0, database.Unavailable("count students", err)
	}
	return count, nil
}

// CreateStudent stores a student and its face samples in one transaction.
func (r *StudentRepository) CreateStudent(
	ctx context.Context, student database.StoredStudent, samples []database.StoredFaceSample,
) ([]database.StoredFaceSample, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, database.Unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO students (roll_no, name, class, department)
		VALUES ($1, $2, $3, $4)
	`, student.RollNo, student.Name, student.Class, student.Department)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("student %s: %w", student.RollNo, database.ErrDuplicate)
	}
	if err != nil {
		return nil, database.Unavailable("insert student", err)
	}

	inserted := make([]database.StoredFaceSample, 0, len(samples))
	for _, s := range samples {
		s.RollNo = student.RollNo
		err := tx.QueryRowContext(ctx, `
			INSERT INTO face_samples (roll_no, image_path, embedding, embedded_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, s.RollNo, s.ImagePath, nullableVector(s.Embedding), s.EmbeddedAt).Scan(&s.ID, &s.CreatedAt)
		if err != nil {
			return nil, database.Unavailable("insert face sample", err)
		}
		inserted = append(inserted, s)
	}

	if err := tx.Commit(); err != nil {
		return nil, database.Unavailable("commit transaction", err)
	}
	return inserted, nil
}

// ListFaceSamples returns every sample ordered by roll number, then ID.
func (r *StudentRepository) ListFaceSamples(ctx context.Context) ([]database.StoredFaceSample, error) {
	query := `
		SELECT id, roll_no, image_path, embedding, embedded_at, created_at
		FROM face_samples
		ORDER BY roll_no, id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, database.Unavailable("query face samples", err)
	}
	defer rows.Close()

	var samples []database.StoredFaceSample
	for rows.Next() {
		var (
			s          database.StoredFaceSample
			vec        *pgvector.Vector
			embeddedAt sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.RollNo, &s.ImagePath, &vec, &embeddedAt, &s.CreatedAt); err != nil {
			return nil, database.Unavailable("scan face sample", err)
		}
		if vec != nil {
			s.Embedding = vec.Slice()
		}
		if embeddedAt.Valid {
			t := embeddedAt.Time
			s.EmbeddedAt = &t
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("iterate face samples", err)
	}
	return samples, nil
}

// UpdateFaceEmbedding caches the embedding of a sample and marks it processed.
func (r *StudentRepository) UpdateFaceEmbedding(ctx context.Context, id int64, embedding []float32) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE face_samples SET embedding = $2, embedded_at = $3 WHERE id = $1
	`, id, nullableVector(embedding), time.Now())
	if err != nil {
		return database.Unavailable("update face embedding", err)
	}
	return nil
}

func nullableVector(embedding []float32) any {
	if embedding == nil {
		return nil
	}
	return pgvector.NewVector(embedding)
}
