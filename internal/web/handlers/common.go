package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedder"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// errInvalidImage is returned by decodeImage for payloads that are not base64.
var errInvalidImage = errors.New("image must be a data URL or base64 string")

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	return json.NewDecoder(r.Body).Decode(v)
}

// decodeImage accepts "data:image/jpeg;base64,..." or bare standard base64.
func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		meta, payload, ok := strings.Cut(s, ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, errInvalidImage
		}
		s = payload
	}
	if s == "" {
		return nil, errInvalidImage
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidImage, err)
	}
	return data, nil
}

// respondServiceError maps errors shared by every endpoint to a status code.
// Retryable dependency failures are 503.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, database.ErrStorageUnavailable), errors.Is(err, embedder.ErrUnavailable):
		slog.Warn("dependency unavailable", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusServiceUnavailable, "service temporarily unavailable, retry later")
	case errors.Is(err, embedder.ErrInvalidImage):
		respondError(w, http.StatusBadRequest, "image could not be decoded")
	case errors.Is(err, attendance.ErrInvalidKey):
		respondError(w, http.StatusBadRequest, "class code and subject are required")
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
