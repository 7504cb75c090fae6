package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Options configures a Store.
type Options struct {
	Dim     int // required embedding length; entries of any other length are dropped
	Workers int // concurrent embedder calls during a rebuild
	Logger  *slog.Logger
	Now     func() time.Time
}

// Store owns the published gallery snapshot.
//
// Readers call Snapshot or Nearest without locking. Rebuild and Load are
// serialised so two concurrent rebuilds cannot publish out of order.
type Store struct {
	embedder Embedder
	opts     Options
	log      *slog.Logger

	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// New creates a Store with an empty snapshot.
func New(embedder Embedder, opts Options) *Store {
	if opts.Dim <= 0 {
		opts.Dim = constants.DefaultEmbeddingDim
	}
	if opts.Workers <= 0 {
		opts.Workers = constants.WorkerPoolSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		embedder: embedder,
		opts:     opts,
		log:      opts.Logger.With("component", "gallery"),
	}
	s.current.Store(newSnapshot(nil, opts.Dim, time.Time{}))
	return s
}

// Dim returns the configured embedding dimensionality.
func (s *Store) Dim() int { return s.opts.Dim }

// Snapshot returns the currently published snapshot. It is never nil.
func (s *Store) Snapshot() *Snapshot { return s.current.Load() }

// Nearest queries the current snapshot.
func (s *Store) Nearest(query Embedding) (Entry, float64, error) {
	return s.Snapshot().Nearest(query)
}

// Stats returns the summary of the current snapshot.
func (s *Store) Stats() Stats { return s.Snapshot().Stats() }

type rebuildJob struct {
	identity string
	image    SourceImage
}

// Rebuild embeds every source image and publishes the result as a new snapshot.
//
// Only the first face of each image is kept. Images without a face and
// embeddings of the wrong length are skipped. Any other error leaves the
// previous snapshot in place.
func (s *Store) Rebuild(ctx context.Context, sources []Source) (*Snapshot, error) {
	if s.embedder == nil {
		return nil, errors.New("gallery rebuild: no embedder configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.opts.Now()

	var jobs []rebuildJob
	for _, src := range sources {
		for _, img := range src.Images {
			jobs = append(jobs, rebuildJob{identity: src.Identity, image: img})
		}
	}

	results := make([]*Entry, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for i, job := range jobs {
		g.Go(func() error {
			entry, err := s.embedJob(gctx, job)
			if err != nil {
				return err
			}
			results[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error("gallery rebuild failed, keeping previous snapshot", "error", err)
		return nil, fmt.Errorf("gallery rebuild: %w", err)
	}

	entries := make([]Entry, 0, len(jobs))
	for _, e := range results {
		if e != nil {
			entries = append(entries, *e)
		}
	}

	snap := newSnapshot(entries, s.opts.Dim, s.opts.Now())
	s.current.Store(snap)

	s.log.Info("gallery rebuilt",
		"identities", snap.stats.Identities,
		"entries", snap.stats.Entries,
		"images", len(jobs),
		"duration", s.opts.Now().Sub(start))
	return snap, nil
}

func (s *Store) embedJob(ctx context.Context, job rebuildJob) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := job.image.Read()
	if err != nil {
		return nil, fmt.Errorf("read image %d of %q: %w", job.image.SampleID, job.identity, err)
	}

	faces, err := s.embedder.ExtractEmbeddings(ctx, data)
	if errors.Is(err, ErrNoFaceDetected) {
		faces, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embed image %d of %q: %w", job.image.SampleID, job.identity, err)
	}
	if len(faces) == 0 {
		s.log.Debug("no face in enrollment image", "identity", job.identity, "sample_id", job.image.SampleID)
		return nil, nil
	}

	emb := faces[0]
	if len(emb) != s.opts.Dim {
		s.log.Warn("skipping embedding with wrong dimension",
			"identity", job.identity, "sample_id", job.image.SampleID,
			"got", len(emb), "want", s.opts.Dim)
		return nil, nil
	}
	if !finite(emb) {
		s.log.Warn("skipping non-finite embedding", "identity", job.identity, "sample_id", job.image.SampleID)
		return nil, nil
	}
	return &Entry{Identity: job.identity, SampleID: job.image.SampleID, Embedding: emb.clone()}, nil
}

// Load publishes a snapshot built from precomputed entries, e.g. cached
// embeddings read back from storage. Entries with the wrong length, NaN or
// Inf components, or no identity are dropped.
func (s *Store) Load(entries []Entry) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Identity == "" || len(e.Embedding) != s.opts.Dim || !finite(e.Embedding) {
			s.log.Warn("skipping cached embedding",
				"identity", e.Identity, "sample_id", e.SampleID,
				"got", len(e.Embedding), "want", s.opts.Dim)
			continue
		}
		kept = append(kept, Entry{Identity: e.Identity, SampleID: e.SampleID, Embedding: e.Embedding.clone()})
	}

	snap := newSnapshot(kept, s.opts.Dim, s.opts.Now())
	s.current.Store(snap)
	s.log.Info("gallery loaded", "identities", snap.stats.Identities, "entries", snap.stats.Entries)
	return snap
}
