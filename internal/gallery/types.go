// Package gallery holds the set of enrolled face embeddings and answers
// nearest-neighbour queries against it.
//
// The gallery is published as an immutable Snapshot. Rebuilds construct a new
// snapshot off to the side and swap it in atomically, so readers always see
// either the complete old gallery or the complete new one.
package gallery

import (
	"context"
	"errors"
)

var (
	// ErrEmptyGallery is returned by Nearest when no entries are loaded.
	// Callers treat it as "no match", not as a failure.
	ErrEmptyGallery = errors.New("gallery is empty")

	// ErrNoFaceDetected marks an image that produced no usable embedding.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrDimensionMismatch is returned when a query has the wrong dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidEmbedding is returned for queries containing NaN or Inf.
	ErrInvalidEmbedding = errors.New("embedding has non-finite components")
)

// Embedding is a fixed-length face descriptor produced by the external embedder.
type Embedding []float32

// Entry is one enrolled face. Several entries may share an identity.
type Entry struct {
	Identity  string
	SampleID  int64 // storage ID of the source image, 0 if unknown
	Embedding Embedding
}

// SourceImage is a raw enrollment photo that is read lazily during a rebuild.
type SourceImage struct {
	SampleID int64
	Read     func() ([]byte, error)
}

// Source groups the enrollment photos of one identity.
type Source struct {
	Identity string
	Images   []SourceImage
}

// Embedder extracts face embeddings from an image, in face detection order.
// An image with no detectable face yields an empty slice.
type Embedder interface {
	ExtractEmbeddings(ctx context.Context, image []byte) ([]Embedding, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, image []byte) ([]Embedding, error)

// ExtractEmbeddings calls f.
func (f EmbedderFunc) ExtractEmbeddings(ctx context.Context, image []byte) ([]Embedding, error) {
	return f(ctx, image)
}

func (e Embedding) clone() Embedding {
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}
