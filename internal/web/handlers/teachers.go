package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/auth"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(subject, email, role string) (string, time.Time, error)
}

// TeachersHandler handles teacher accounts
type TeachersHandler struct {
	teachers database.TeacherStore
	tokens   TokenIssuer
}

// NewTeachersHandler creates a new teachers handler
func NewTeachersHandler(teachers database.TeacherStore, tokens TokenIssuer) *TeachersHandler {
	return &TeachersHandler{
		teachers: teachers,
		tokens:   tokens,
	}
}

type registerTeacherRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TeacherResponse is the public view of a teacher account
type TeacherResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LoginResponse is returned after a successful teacher login
type LoginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Teacher   TeacherResponse `json:"teacher"`
}

// Register creates a teacher account
func (h *TeachersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerTeacherRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusBadRequest, "password cannot be used")
		return
	}

	teacher, err := h.teachers.CreateTeacher(r.Context(), database.StoredTeacher{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if errors.Is(err, database.ErrDuplicate) {
		respondError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	slog.Info("teacher registered", "teacher_id", teacher.ID)
	respondJSON(w, http.StatusCreated, teacherResponse(teacher))
}

type teacherLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login checks teacher credentials and issues a bearer token
func (h *TeachersHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req teacherLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	teacher, err := h.teachers.GetTeacherByEmail(r.Context(), email)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if teacher == nil || auth.CheckPassword(teacher.PasswordHash, req.Password) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expires, err := h.tokens.Issue(strconv.FormatInt(teacher.ID, 10), teacher.Email, constants.RoleTeacher)
	if err != nil {
		slog.Error("failed to issue token", "teacher_id", teacher.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expires,
		Teacher:   teacherResponse(teacher),
	})
}

func teacherResponse(t *database.StoredTeacher) TeacherResponse {
	return TeacherResponse{ID: t.ID, Name: t.Name, Email: t.Email}
}
