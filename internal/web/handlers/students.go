package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
)

// Enroller registers students with their face images.
type Enroller interface {
	Enroll(ctx context.Context, req enrollment.Enrollment) (int, error)
}

// AttendanceHistory lists the attendance records of a student.
type AttendanceHistory interface {
	History(ctx context.Context, identity string) ([]attendance.Record, error)
}

// StudentsHandler handles student registration, login and attendance views
type StudentsHandler struct {
	enroller Enroller
	students database.StudentStore
	history  AttendanceHistory
}

// NewStudentsHandler creates a new students handler
func NewStudentsHandler(enroller Enroller, students database.StudentStore, history AttendanceHistory) *StudentsHandler {
	return &StudentsHandler{
		enroller: enroller,
		students: students,
		history:  history,
	}
}

type registerStudentRequest struct {
	RollNo     string   `json:"rollNo"`
	Name       string   `json:"name"`
	Class      string   `json:"class"`
	Department string   `json:"department"`
	Images     []string `json:"images"`
}

// RegisterStudentResponse is returned after a successful enrollment
type RegisterStudentResponse struct {
	RollNo string `json:"rollNo"`
	Faces  int    `json:"faces"`
}

// StudentResponse is the public profile of a student
type StudentResponse struct {
	RollNo     string    `json:"rollNo"`
	Name       string    `json:"name"`
	Class      string    `json:"class"`
	Department string    `json:"department"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AttendanceResponse is one attendance record as shown to a student
type AttendanceResponse struct {
	ID         int64     `json:"id"`
	ClassCode  string    `json:"classCode"`
	Subject    string    `json:"subject"`
	Date       string    `json:"date"`
	Time       time.Time `json:"time"`
	Confidence int       `json:"confidence"`
}

// Register enrolls a new student from a set of face images
func (h *StudentsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerStudentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if strings.TrimSpace(req.RollNo) == "" || strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "rollNo and name are required")
		return
	}

	images := make([][]byte, 0, len(req.Images))
	for i, s := range req.Images {
		data, err := decodeImage(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("image %d: %v", i, err))
			return
		}
		images = append(images, data)
	}

	faces, err := h.enroller.Enroll(r.Context(), enrollment.Enrollment{
		Identity:   req.RollNo,
		Name:       req.Name,
		Class:      req.Class,
		Department: req.Department,
		Images:     images,
	})
	switch {
	case err == nil:
	case errors.Is(err, enrollment.ErrInvalidEnrollment):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, enrollment.ErrDuplicateIdentity):
		respondError(w, http.StatusConflict, "student already registered")
		return
	case errors.Is(err, enrollment.ErrNoValidFaces):
		respondError(w, http.StatusUnprocessableEntity, "no face detected in any image")
		return
	case faces > 0:
		// Stored, but the gallery refresh failed. The next rebuild picks it up.
		slog.Warn("student stored but gallery not refreshed",
			"roll_no", sanitizeForLog(req.RollNo), "error", err)
	default:
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, RegisterStudentResponse{
		RollNo: strings.TrimSpace(req.RollNo),
		Faces:  faces,
	})
}

type studentLoginRequest struct {
	RollNo string `json:"rollNo"`
}

// Login returns the profile of a registered student
func (h *StudentsHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req studentLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	rollNo := strings.TrimSpace(req.RollNo)
	if rollNo == "" {
		respondError(w, http.StatusBadRequest, "rollNo is required")
		return
	}

	student, err := h.students.GetStudent(r.Context(), rollNo)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if student == nil {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}

	respondJSON(w, http.StatusOK, StudentResponse{
		RollNo:     student.RollNo,
		Name:       student.Name,
		Class:      student.Class,
		Department: student.Department,
		CreatedAt:  student.CreatedAt,
	})
}

// Attendance lists the attendance records of a student, newest first
func (h *StudentsHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	rollNo := strings.TrimSpace(chi.URLParam(r, "rollNo"))
	if rollNo == "" {
		respondError(w, http.StatusBadRequest, "rollNo is required")
		return
	}

	exists, err := h.students.StudentExists(r.Context(), rollNo)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !exists {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}

	records, err := h.history.History(r.Context(), rollNo)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	out := make([]AttendanceResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, AttendanceResponse{
			ID:         rec.ID,
			ClassCode:  rec.Key.ClassCode,
			Subject:    rec.Key.Subject,
			Date:       rec.Key.Day,
			Time:       rec.Time,
			Confidence: rec.Confidence,
		})
	}
	respondJSON(w, http.StatusOK, out)
}
