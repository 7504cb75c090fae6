// Package recognition turns a classroom frame into an attendance decision.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// ErrInvalidRequest is returned for requests missing the image, class or subject.
var ErrInvalidRequest = errors.New("invalid recognition request")

// Status is the outcome of one recognition.
type Status string

const (
	StatusWritten   Status = "written"
	StatusDuplicate Status = "duplicate"
	StatusNoMatch   Status = "no_match"
)

// Request is one frame to recognise for a class and subject.
type Request struct {
	Image     []byte
	ClassCode string
	Subject   string
}

// Result describes what happened. Identity and Confidence are set for Written
// and Duplicate, Record only for Written.
type Result struct {
	Status     Status
	Identity   string
	Confidence int
	Distance   float64
	Record     attendance.Record
}

// Service wires the embedder, matcher and attendance ledger together.
type Service struct {
	embedder gallery.Embedder
	matcher  *matcher.Matcher
	ledger   *attendance.Ledger
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// New creates a Service.
func New(emb gallery.Embedder, m *matcher.Matcher, ledger *attendance.Ledger, met *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: emb,
		matcher:  m,
		ledger:   ledger,
		metrics:  met,
		log:      logger.With("component", "recognition"),
	}
}

// Recognize embeds the image, matches it against the gallery and records
// attendance for the matched identity. Images without a face and an empty
// gallery both yield StatusNoMatch. Undecodable images return
// embedder.ErrInvalidImage.
func (s *Service) Recognize(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := s.recognize(ctx, req)
	outcome := string(res.Status)
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveRecognition(outcome, time.Since(start))
	return res, err
}

func (s *Service) recognize(ctx context.Context, req Request) (Result, error) {
	if len(req.Image) == 0 {
		return Result{}, fmt.Errorf("%w: image is required", ErrInvalidRequest)
	}
	if attendance.NormalizeLabel(req.ClassCode) == "" || attendance.NormalizeLabel(req.Subject) == "" {
		return Result{}, fmt.Errorf("%w: class code and subject are required", ErrInvalidRequest)
	}

	faces, err := s.embedder.ExtractEmbeddings(ctx, req.Image)
	switch {
	case errors.Is(err, embedder.ErrInvalidImage):
		return Result{}, err
	case errors.Is(err, gallery.ErrNoFaceDetected):
		faces = nil
	case err != nil:
		return Result{}, fmt.Errorf("extract embeddings: %w", err)
	}

	match := s.matcher.MatchFaces(faces)
	if !match.Matched {
		s.log.Debug("no match", "faces", len(faces))
		return Result{Status: StatusNoMatch}, nil
	}

	key, err := s.ledger.Key(match.Identity, req.ClassCode, req.Subject)
	if err != nil {
		return Result{}, err
	}
	outcome, err := s.ledger.RecordIfAbsent(ctx, key, match.Confidence)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Identity:   match.Identity,
		Confidence: match.Confidence,
		Distance:   match.Distance,
	}
	if outcome.Status == attendance.Duplicate {
		res.Status = StatusDuplicate
		return res, nil
	}
	res.Status = StatusWritten
	res.Record = outcome.Record
	return res, nil
}
