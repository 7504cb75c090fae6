// Package enrollment registers students with their face photos and keeps the
// published gallery in sync with storage.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/imagestore"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

var (
	// ErrInvalidEnrollment is returned for requests without an identity or images.
	ErrInvalidEnrollment = errors.New("invalid enrollment")

	// ErrDuplicateIdentity is returned when the identity is already enrolled.
	ErrDuplicateIdentity = errors.New("identity already enrolled")

	// ErrNoValidFaces is returned when none of the images yielded an embedding.
	ErrNoValidFaces = errors.New("no valid faces in enrollment images")
)

// Storage is the persistence the pipeline needs.
type Storage interface {
	database.StudentStore
	database.FaceSampleStore
}

// Enrollment is a request to register one identity.
type Enrollment struct {
	Identity   string
	Name       string
	Class      string
	Department string
	Images     [][]byte
}

// Deps holds the collaborators of a Pipeline.
type Deps struct {
	Storage  Storage
	Images   *imagestore.Store
	Gallery  *gallery.Store
	Embedder gallery.Embedder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Pipeline enrolls identities and rebuilds the gallery from storage.
type Pipeline struct {
	storage  Storage
	images   *imagestore.Store
	gallery  *gallery.Store
	embedder gallery.Embedder
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time

	// serialises list-then-publish so a rebuild never publishes an older listing
	mu sync.Mutex
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		storage:  deps.Storage,
		images:   deps.Images,
		gallery:  deps.Gallery,
		embedder: deps.Embedder,
		metrics:  deps.Metrics,
		log:      logger.With("component", "enrollment"),
		now:      time.Now,
	}
}

// Enroll registers one identity and then rebuilds the gallery.
// It returns the number of images that yielded a valid embedding.
//
// If the final rebuild fails the enrollment stays persisted and the error is
// returned; the next rebuild picks it up.
func (p *Pipeline) Enroll(ctx context.Context, req Enrollment) (int, error) {
	count, err := p.Register(ctx, req)
	if err != nil {
		return count, err
	}
	if _, err := p.Rebuild(ctx); err != nil {
		return count, err
	}
	return count, nil
}

// Register validates, embeds and persists one identity without touching the
// published gallery. Nothing is persisted when no image yields a face.
func (p *Pipeline) Register(ctx context.Context, req Enrollment) (int, error) {
	count, err := p.register(ctx, req)
	p.metrics.ObserveEnrollment(enrollOutcome(err), count)
	return count, err
}

func (p *Pipeline) register(ctx context.Context, req Enrollment) (int, error) {
	req.Identity = strings.TrimSpace(req.Identity)
	if err := validate(req); err != nil {
		return 0, err
	}

	exists, err := p.storage.StudentExists(ctx, req.Identity)
	if err != nil {
		return 0, fmt.Errorf("check student %s: %w", req.Identity, err)
	}
	if exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateIdentity, req.Identity)
	}

	embeddings, err := p.embedAll(ctx, req.Images)
	if err != nil {
		return 0, err
	}

	now := p.now()
	var samples []database.StoredFaceSample
	var written []string
	for i, emb := range embeddings {
		if emb == nil {
			continue
		}
		path, err := p.images.Save(req.Identity, req.Images[i])
		if err != nil {
			p.removeImages(written)
			return 0, fmt.Errorf("save image %d of %s: %w", i, req.Identity, err)
		}
		written = append(written, path)
		samples = append(samples, database.StoredFaceSample{
			RollNo:     req.Identity,
			ImagePath:  path,
			Embedding:  emb,
			EmbeddedAt: &now,
		})
	}
	if len(samples) == 0 {
		p.log.Info("enrollment rejected, no valid faces", "identity", req.Identity, "images", len(req.Images))
		return 0, fmt.Errorf("%w: %s", ErrNoValidFaces, req.Identity)
	}

	student := database.StoredStudent{
		RollNo:     req.Identity,
		Name:       strings.TrimSpace(req.Name),
		Class:      strings.TrimSpace(req.Class),
		Department: strings.TrimSpace(req.Department),
	}
	if _, err := p.storage.CreateStudent(ctx, student, samples); err != nil {
		p.removeImages(written)
		if errors.Is(err, database.ErrDuplicate) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateIdentity, req.Identity)
		}
		return 0, fmt.Errorf("store student %s: %w", req.Identity, err)
	}

	p.log.Info("student enrolled",
		"identity", req.Identity,
		"images", len(req.Images),
		"faces", len(samples))
	return len(samples), nil
}

func validate(req Enrollment) error {
	if req.Identity == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidEnrollment)
	}
	if err := imagestore.CheckIdentity(req.Identity); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEnrollment, err)
	}
	if len(req.Images) == 0 {
		return fmt.Errorf("%w: at least one image is required", ErrInvalidEnrollment)
	}
	if len(req.Images) > constants.MaxEnrollmentImages {
		return fmt.Errorf("%w: at most %d images are allowed", ErrInvalidEnrollment, constants.MaxEnrollmentImages)
	}
	return nil
}

// embedAll returns the first-face embedding of each image, nil where no usable
// face was found. Transport failures abort the whole enrollment.
func (p *Pipeline) embedAll(ctx context.Context, images [][]byte) ([][]float32, error) {
	dim := p.gallery.Dim()
	out := make([][]float32, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.WorkerPoolSize)
	for i, img := range images {
		g.Go(func() error {
			if len(img) == 0 {
				return nil
			}
			faces, err := p.embedder.ExtractEmbeddings(gctx, img)
			if errors.Is(err, gallery.ErrNoFaceDetected) {
				p.log.Debug("enrollment image rejected", "index", i, "error", err)
				return nil
			}
			if err != nil {
				return fmt.Errorf("embed image %d: %w", i, err)
			}
			if len(faces) == 0 {
				return nil
			}
			if len(faces[0]) != dim {
				p.log.Warn("skipping enrollment embedding with wrong dimension",
					"index", i, "got", len(faces[0]), "want", dim)
				return nil
			}
			emb := make([]float32, dim)
			copy(emb, faces[0])
			out[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) removeImages(paths []string) {
	if len(paths) == 0 {
		return
	}
	if err := p.images.Remove(paths...); err != nil {
		p.log.Warn("failed to remove enrollment images", "error", err)
	}
}

func enrollOutcome(err error) string {
	switch {
	case err == nil:
		return "enrolled"
	case errors.Is(err, ErrInvalidEnrollment):
		return "invalid"
	case errors.Is(err, ErrDuplicateIdentity):
		return "duplicate"
	case errors.Is(err, ErrNoValidFaces):
		return "no_valid_faces"
	default:
		return "error"
	}
}
