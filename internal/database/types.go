package database

import (
	"time"
)

// StoredStudent represents an enrolled student
type StoredStudent struct {
	RollNo     string
	Name       string
	Class      string
	Department string
	CreatedAt  time.Time
}

// StoredFaceSample represents one enrollment photo of a student.
// Embedding caches the first-face embedding computed at the last rebuild;
// EmbeddedAt is nil until the sample has been processed at all.
type StoredFaceSample struct {
	ID         int64
	RollNo     string
	ImagePath  string // relative to the image store root
	Embedding  []float32
	EmbeddedAt *time.Time
	CreatedAt  time.Time
}

// Processed reports whether a rebuild has looked at this sample,
// regardless of whether a face was found.
func (s StoredFaceSample) Processed() bool {
	return s.EmbeddedAt != nil
}

// StoredTeacher represents a teacher account
type StoredTeacher struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
