package database

import (
	"context"
)

// StudentStore provides access to enrolled students
type StudentStore interface {
	// GetStudent retrieves a student by roll number, returns nil if not found
	GetStudent(ctx context.Context, rollNo string) (*StoredStudent, error)
	// StudentExists checks if a student with the roll number is enrolled
	StudentExists(ctx context.Context, rollNo string) (bool, error)
	// CreateStudent stores a student and its face samples in one transaction.
	// Returns the samples with assigned IDs, or ErrDuplicate if the roll number is taken.
	CreateStudent(ctx context.Context, student StoredStudent, samples []StoredFaceSample) ([]StoredFaceSample, error)
	// CountStudents returns the number of enrolled students
	CountStudents(ctx context.Context) (int, error)
}

// FaceSampleStore provides access to enrollment photos and their cached embeddings
type FaceSampleStore interface {
	// ListFaceSamples returns every sample ordered by roll number, then ID
	ListFaceSamples(ctx context.Context) ([]StoredFaceSample, error)
	// UpdateFaceEmbedding caches the embedding of a sample and marks it processed.
	// A nil embedding records that no usable face was found.
	UpdateFaceEmbedding(ctx context.Context, id int64, embedding []float32) error
}

// TeacherStore provides access to teacher accounts
type TeacherStore interface {
	// CreateTeacher stores a teacher, returns ErrDuplicate if the email is taken
	CreateTeacher(ctx context.Context, teacher StoredTeacher) (*StoredTeacher, error)
	// GetTeacherByEmail retrieves a teacher by email, returns nil if not found
	GetTeacherByEmail(ctx context.Context, email string) (*StoredTeacher, error)
}
