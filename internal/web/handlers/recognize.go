package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// Recognizer turns a frame into an attendance decision.
type Recognizer interface {
	Recognize(ctx context.Context, req recognition.Request) (recognition.Result, error)
}

// RecognizeHandler handles attendance capture from classroom frames
type RecognizeHandler struct {
	recognizer Recognizer
}

// NewRecognizeHandler creates a new recognize handler
func NewRecognizeHandler(recognizer Recognizer) *RecognizeHandler {
	return &RecognizeHandler{recognizer: recognizer}
}

type recognizeRequest struct {
	Image     string `json:"image"`
	ClassCode string `json:"classCode"`
	Subject   string `json:"subject"`
}

// RecognizeResponse reports the outcome of one frame
type RecognizeResponse struct {
	Status     string `json:"status"`
	RollNo     string `json:"rollNo,omitempty"`
	Confidence int    `json:"confidence,omitempty"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Recognize matches the face in the frame and records attendance
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req recognizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	image, err := decodeImage(req.Image)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.recognizer.Recognize(r.Context(), recognition.Request{
		Image:     image,
		ClassCode: req.ClassCode,
		Subject:   req.Subject,
	})
	if errors.Is(err, recognition.ErrInvalidRequest) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	switch res.Status {
	case recognition.StatusWritten:
		respondJSON(w, http.StatusOK, RecognizeResponse{
			Status:     string(res.Status),
			RollNo:     res.Identity,
			Confidence: res.Confidence,
		})
	case recognition.StatusDuplicate:
		respondJSON(w, http.StatusOK, RecognizeResponse{
			Status:    string(res.Status),
			RollNo:    res.Identity,
			Duplicate: true,
			Message:   "Attendance already recorded today",
		})
	default:
		respondJSON(w, http.StatusOK, RecognizeResponse{
			Status:  string(recognition.StatusNoMatch),
			Message: "No face matched",
		})
	}
}
