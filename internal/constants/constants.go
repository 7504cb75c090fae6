// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// DefaultDistanceThreshold is the maximum Euclidean distance for a face match.
	// The unit is the embedder's native metric; recalibrate together with the embedder.
	DefaultDistanceThreshold = 0.55

	// DefaultMinConfidence is the lowest confidence ever reported for a match
	DefaultMinConfidence = 85

	// DefaultMaxConfidence is the highest confidence ever reported for a match
	DefaultMaxConfidence = 99

	// DefaultEmbeddingDim is the dimensionality of dlib-style face descriptors
	DefaultEmbeddingDim = 128
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel embedder calls during a rebuild
	WorkerPoolSize = 8

	// MaxImageSize is the maximum dimension (width or height) sent to the embedder
	MaxImageSize = 1920

	// DefaultStorageTimeout bounds a single storage call
	DefaultStorageTimeout = 5 * time.Second

	// DefaultEmbedderTimeout bounds a single embedder request
	DefaultEmbedderTimeout = 30 * time.Second
)

// File upload constants
const (
	// MaxUploadSize is the maximum request body size in bytes (32MB)
	MaxUploadSize = 32 << 20

	// MaxEnrollmentImages is the maximum number of photos accepted per enrollment
	MaxEnrollmentImages = 20
)

// Auth constants
const (
	// DefaultTokenTTL is how long a teacher access token stays valid
	DefaultTokenTTL = 4 * time.Hour

	// RoleTeacher is the only role allowed to record attendance
	RoleTeacher = "teacher"
)
