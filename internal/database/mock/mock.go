// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MockStudentStore is a mock implementation of database.StudentStore and database.FaceSampleStore
type MockStudentStore struct {
	mu       sync.RWMutex
	students map[string]database.StoredStudent
	samples  map[int64]database.StoredFaceSample
	nextID   int64

	// Error injection
	GetStudentError    error
	ExistsError        error
	CreateStudentError error
	CountError         error
	ListSamplesError   error
	UpdateSampleError  error

	// UpdateCalls counts UpdateFaceEmbedding calls
	UpdateCalls int
}

// NewMockStudentStore creates a new mock student store
func NewMockStudentStore() *MockStudentStore {
	return &MockStudentStore{
		students: make(map[string]database.StoredStudent),
		samples:  make(map[int64]database.StoredFaceSample),
	}
}

// AddStudent adds a student and its samples directly, bypassing duplicate checks
func (m *MockStudentStore) AddStudent(student database.StoredStudent, samples ...database.StoredFaceSample) []database.StoredFaceSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[student.RollNo] = student
	return m.addSamplesLocked(student.RollNo, samples)
}

func (m *MockStudentStore) addSamplesLocked(rollNo string, samples []database.StoredFaceSample) []database.StoredFaceSample {
	out := make([]database.StoredFaceSample, 0, len(samples))
	for _, s := range samples {
		m.nextID++
		s.ID = m.nextID
		s.RollNo = rollNo
		if s.CreatedAt.IsZero() {
			s.CreatedAt = time.Now()
		}
		m.samples[s.ID] = s
		out = append(out, s)
	}
	return out
}

// GetStudent retrieves a student by roll number
func (m *MockStudentStore) GetStudent(ctx context.Context, rollNo string) (*database.StoredStudent, error) {
	if m.GetStudentError != nil {
		return nil, m.GetStudentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[rollNo]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// StudentExists checks if a student is enrolled
func (m *MockStudentStore) StudentExists(ctx context.Context, rollNo string) (bool, error) {
	if m.ExistsError != nil {
		return false, m.ExistsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.students[rollNo]
	return ok, nil
}

// CreateStudent stores a student and its samples
func (m *MockStudentStore) CreateStudent(
	ctx context.Context, student database.StoredStudent, samples []database.StoredFaceSample,
) ([]database.StoredFaceSample, error) {
	if m.CreateStudentError != nil {
		return nil, m.CreateStudentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[student.RollNo]; ok {
		return nil, fmt.Errorf("student %s: %w", student.RollNo, database.ErrDuplicate)
	}
	student.CreatedAt = time.Now()
	m.students[student.RollNo] = student
	return m.addSamplesLocked(student.RollNo, samples), nil
}

// CountStudents returns the number of students
func (m *MockStudentStore) CountStudents(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.students), nil
}

// ListFaceSamples returns every sample ordered by roll number, then ID
func (m *MockStudentStore) ListFaceSamples(ctx context.Context) ([]database.StoredFaceSample, error) {
	if m.ListSamplesError != nil {
		return nil, m.ListSamplesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.StoredFaceSample, 0, len(m.samples))
	for _, s := range m.samples {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RollNo != out[j].RollNo {
			return out[i].RollNo < out[j].RollNo
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateFaceEmbedding caches an embedding on a sample
func (m *MockStudentStore) UpdateFaceEmbedding(ctx context.Context, id int64, embedding []float32) error {
	if m.UpdateSampleError != nil {
		return m.UpdateSampleError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	s, ok := m.samples[id]
	if !ok {
		return fmt.Errorf("face sample %d not found", id)
	}
	now := time.Now()
	s.Embedding = embedding
	s.EmbeddedAt = &now
	m.samples[id] = s
	return nil
}

// Samples returns a copy of all stored samples
func (m *MockStudentStore) Samples() []database.StoredFaceSample {
	out, _ := m.ListFaceSamples(context.Background())
	return out
}

// MockTeacherStore is a mock implementation of database.TeacherStore
type MockTeacherStore struct {
	mu       sync.RWMutex
	teachers map[string]database.StoredTeacher
	nextID   int64

	// Error injection
	CreateError error
	GetError    error
}

// NewMockTeacherStore creates a new mock teacher store
func NewMockTeacherStore() *MockTeacherStore {
	return &MockTeacherStore{teachers: make(map[string]database.StoredTeacher)}
}

// CreateTeacher stores a teacher
func (m *MockTeacherStore) CreateTeacher(ctx context.Context, t database.StoredTeacher) (*database.StoredTeacher, error) {
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teachers[t.Email]; ok {
		return nil, fmt.Errorf("teacher %s: %w", t.Email, database.ErrDuplicate)
	}
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = time.Now()
	m.teachers[t.Email] = t
	return &t, nil
}

// GetTeacherByEmail retrieves a teacher by email
func (m *MockTeacherStore) GetTeacherByEmail(ctx context.Context, email string) (*database.StoredTeacher, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teachers[email]
	if !ok {
		return nil, nil
	}
	return &t, nil
}
