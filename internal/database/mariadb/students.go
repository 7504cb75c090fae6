package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// StudentRepository provides MariaDB-backed storage for students and their face samples.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new MariaDB student repository.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetStudent retrieves a student by roll number, returns nil if not found.
func (r *StudentRepository) GetStudent(ctx context.Context, rollNo string) (*database.StoredStudent, error) {
	var s database.StoredStudent
	err := r.pool.db.QueryRowContext(ctx,
		`SELECT roll_no, name, class, department, created_at FROM students WHERE roll_no = ?`, rollNo,
	).Scan(&s.RollNo, &s.Name, &s.Class, &s.Department, &s.CreatedAt)
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
	err := r.pool.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM students WHERE roll_no = ?)", rollNo).Scan(&exists)
	if err != nil {
		return false, database.Unavailable("check student exists", err)
	}
	return exists, nil
}

// CountStudents returns the number of enrolled students.
func (r *StudentRepository) CountStudents(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&count); err != nil {
		return 0, database.Unavailable("count students", err)
	}
	return count, nil
}

// CreateStudent stores a student and its face samples in one transaction.
func (r *StudentRepository) CreateStudent(
	ctx context.Context, student database.StoredStudent, samples []database.StoredFaceSample,
) ([]database.StoredFaceSample, error) {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, database.Unavailable("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO students (roll_no, name, class, department) VALUES (?, ?, ?, ?)`,
		student.RollNo, student.Name, student.Class, student.Department)
	if isDuplicateEntry(err) {
		return nil, fmt.Errorf("student %s: %w", student.RollNo, database.ErrDuplicate)
	}
	if err != nil {
		return nil, database.Unavailable("insert student", err)
	}

	now := time.Now().UTC()
	inserted := make([]database.StoredFaceSample, 0, len(samples))
	for _, s := range samples {
		s.RollNo = student.RollNo
		data, err := marshalEmbedding(s.Embedding)
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO face_samples (roll_no, image_path, embedding_json, embedded_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			s.RollNo, s.ImagePath, data, s.EmbeddedAt, now)
		if err != nil {
			return nil, database.Unavailable("insert face sample", err)
		}
		if s.ID, err = res.LastInsertId(); err != nil {
			return nil, database.Unavailable("face sample id", err)
		}
		s.CreatedAt = now
		inserted = append(inserted, s)
	}

	if err := tx.Commit(); err != nil {
		return nil, database.Unavailable("commit transaction", err)
	}
	return inserted, nil
}

// ListFaceSamples returns every sample ordered by roll number, then ID.
func (r *StudentRepository) ListFaceSamples(ctx context.Context) ([]database.StoredFaceSample, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, roll_no, image_path, embedding_json, embedded_at, created_at
		FROM face_samples
		ORDER BY roll_no, id
	`)
	if err != nil {
		return nil, database.Unavailable("query face samples", err)
	}
	defer rows.Close()

	var samples []database.StoredFaceSample
	for rows.Next() {
		var (
			s          database.StoredFaceSample
			data       sql.NullString
			embeddedAt sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.RollNo, &s.ImagePath, &data, &embeddedAt, &s.CreatedAt); err != nil {
			return nil, database.Unavailable("scan face sample", err)
		}
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &s.Embedding); err != nil {
				return nil, fmt.Errorf("decode embedding of face sample %d: %w", s.ID, err)
			}
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
	data, err := marshalEmbedding(embedding)
	if err != nil {
		return err
	}
	_, err = r.pool.db.ExecContext(ctx,
		`UPDATE face_samples SET embedding_json = ?, embedded_at = ? WHERE id = ?`,
		data, time.Now().UTC(), id)
	if err != nil {
		return database.Unavailable("update face embedding", err)
	}
	return nil
}

// marshalEmbedding encodes an embedding as a JSON array, or NULL for nil.
func marshalEmbedding(embedding []float32) (any, error) {
	if embedding == nil {
		return nil, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	return string(data), nil
}
