package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// Rebuild re-embeds every stored face sample and publishes a new gallery.
// On failure the previous gallery stays published.
func (p *Pipeline) Rebuild(ctx context.Context) (*gallery.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rebuildLocked(ctx)
}

// RebuildGallery is Rebuild without the snapshot, for periodic refreshes.
func (p *Pipeline) RebuildGallery(ctx context.Context) error {
	_, err := p.Rebuild(ctx)
	return err
}

func (p *Pipeline) rebuildLocked(ctx context.Context) (*gallery.Snapshot, error) {
	start := time.Now()
	snap, err := p.embedAndPublish(ctx)
	p.metrics.ObserveRebuild("rebuild", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	stats := snap.Stats()
	p.metrics.SetGallerySize(stats.Entries, stats.Identities)
	return snap, nil
}

func (p *Pipeline) embedAndPublish(ctx context.Context) (*gallery.Snapshot, error) {
	samples, err := p.storage.ListFaceSamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("list face samples: %w", err)
	}

	snap, err := p.gallery.Rebuild(ctx, p.sources(samples))
	if err != nil {
		return nil, err
	}

	p.cacheEmbeddings(ctx, samples, snap)
	return snap, nil
}

// sources groups samples by identity. Samples arrive ordered by identity, then
// ID, which fixes the load order of the gallery.
func (p *Pipeline) sources(samples []database.StoredFaceSample) []gallery.Source {
	var out []gallery.Source
	for _, s := range samples {
		if len(out) == 0 || out[len(out)-1].Identity != s.RollNo {
			out = append(out, gallery.Source{Identity: s.RollNo})
		}
		path := s.ImagePath
		src := &out[len(out)-1]
		src.Images = append(src.Images, gallery.SourceImage{
			SampleID: s.ID,
			Read:     func() ([]byte, error) { return p.images.Read(path) },
		})
	}
	return out
}

// cacheEmbeddings writes the result of a rebuild back to samples that had not
// been processed before. Failures only cost a slower warm start.
func (p *Pipeline) cacheEmbeddings(ctx context.Context, samples []database.StoredFaceSample, snap *gallery.Snapshot) {
	bySample := make(map[int64]gallery.Embedding, snap.Len())
	for _, e := range snap.Entries() {
		bySample[e.SampleID] = e.Embedding
	}

	updated := 0
	for _, s := range samples {
		if s.Processed() {
			continue
		}
		if err := p.storage.UpdateFaceEmbedding(ctx, s.ID, bySample[s.ID]); err != nil {
			p.log.Warn("failed to cache embedding", "sample_id", s.ID, "identity", s.RollNo, "error", err)
			continue
		}
		updated++
	}
	if updated > 0 {
		p.log.Debug("cached embeddings", "count", updated)
	}
}

// WarmStart publishes the gallery from cached embeddings when every sample has
// been processed, and falls back to a full rebuild otherwise.
func (p *Pipeline) WarmStart(ctx context.Context) (*gallery.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	samples, err := p.storage.ListFaceSamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("list face samples: %w", err)
	}

	entries := make([]gallery.Entry, 0, len(samples))
	for _, s := range samples {
		if !s.Processed() {
			p.log.Info("embedding cache incomplete, rebuilding gallery", "sample_id", s.ID)
			return p.rebuildLocked(ctx)
		}
		if len(s.Embedding) > 0 {
			entries = append(entries, gallery.Entry{Identity: s.RollNo, SampleID: s.ID, Embedding: s.Embedding})
		}
	}

	snap := p.gallery.Load(entries)
	p.metrics.ObserveRebuild("cache", nil, 0)
	stats := snap.Stats()
	p.metrics.SetGallerySize(stats.Entries, stats.Identities)
	return snap, nil
}
