// Package matcher turns a nearest-neighbour distance into an identity decision
// and a bounded confidence score.
package matcher

import (
	"fmt"
	"math"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// FacePolicy decides which face of a multi-face query is matched.
type FacePolicy string

const (
	// FaceFirst matches faces in detection order; the first one under the threshold wins.
	FaceFirst FacePolicy = "first"
	// FaceBest matches the face with the smallest distance across all faces.
	FaceBest FacePolicy = "best"
)

// ParseFacePolicy validates a face policy name from configuration.
func ParseFacePolicy(s string) (FacePolicy, error) {
	switch FacePolicy(s) {
	case "", FaceFirst:
		return FaceFirst, nil
	case FaceBest:
		return FaceBest, nil
	default:
		return "", fmt.Errorf("unknown face policy %q", s)
	}
}

// Policy holds the match threshold and confidence bounds.
type Policy struct {
	Threshold     float64
	MinConfidence int
	MaxConfidence int
	Faces         FacePolicy
}

// DefaultPolicy returns the stock threshold 0.55 and confidence range [85, 99].
func DefaultPolicy() Policy {
	return Policy{
		Threshold:     constants.DefaultDistanceThreshold,
		MinConfidence: constants.DefaultMinConfidence,
		MaxConfidence: constants.DefaultMaxConfidence,
		Faces:         FaceFirst,
	}
}

// Validate checks the policy for values that would make every match meaningless.
func (p Policy) Validate() error {
	if p.Threshold <= 0 || math.IsNaN(p.Threshold) {
		return fmt.Errorf("match threshold must be positive, got %v", p.Threshold)
	}
	if p.MinConfidence < 0 || p.MaxConfidence > 100 {
		return fmt.Errorf("confidence bounds must be within [0, 100], got [%d, %d]", p.MinConfidence, p.MaxConfidence)
	}
	if p.MinConfidence > p.MaxConfidence {
		return fmt.Errorf("min confidence %d exceeds max confidence %d", p.MinConfidence, p.MaxConfidence)
	}
	if _, err := ParseFacePolicy(string(p.Faces)); err != nil {
		return err
	}
	return nil
}

// Confidence maps a distance to round((1-d)*100), clamped to the policy bounds.
func (p Policy) Confidence(distance float64) int {
	c := int(math.Round((1 - distance) * 100))
	return max(p.MinConfidence, min(p.MaxConfidence, c))
}

// Result is the outcome of one match. Confidence and Distance are only
// meaningful when Matched is true.
type Result struct {
	Identity   string  `json:"identity,omitempty"`
	Confidence int     `json:"confidence,omitempty"`
	Distance   float64 `json:"distance,omitempty"`
	Matched    bool    `json:"matched"`
}

// Gallery is the read side of the embedding store.
type Gallery interface {
	Snapshot() *gallery.Snapshot
}

// Matcher applies a Policy to gallery lookups. It holds no mutable state.
type Matcher struct {
	gallery Gallery
	policy  Policy
}

// New creates a Matcher.
func New(g Gallery, policy Policy) *Matcher {
	if policy.Faces == "" {
		policy.Faces = FaceFirst
	}
	return &Matcher{gallery: g, policy: policy}
}

// Policy returns the active policy.
func (m *Matcher) Policy() Policy { return m.policy }

// Match finds the identity for a single query embedding.
func (m *Matcher) Match(query gallery.Embedding) Result {
	return m.matchIn(m.gallery.Snapshot(), query)
}

// MatchFaces matches every face from one image against the same snapshot
// and picks the winner according to the face policy.
func (m *Matcher) MatchFaces(faces []gallery.Embedding) Result {
	snap := m.gallery.Snapshot()

	var best Result
	for _, face := range faces {
		r := m.matchIn(snap, face)
		if !r.Matched {
			continue
		}
		if m.policy.Faces == FaceFirst {
			return r
		}
		if !best.Matched || r.Distance < best.Distance {
			best = r
		}
	}
	return best
}

func (m *Matcher) matchIn(snap *gallery.Snapshot, query gallery.Embedding) Result {
	entry, d, err := snap.Nearest(query)
	if err != nil {
		// Empty gallery, dimension mismatch and non-finite queries all mean
		// nobody can match.
		return Result{}
	}
	// Negated so a NaN distance or threshold is rejected.
	if !(d < m.policy.Threshold) {
		return Result{}
	}
	return Result{
		Identity:   entry.Identity,
		Confidence: m.policy.Confidence(d),
		Distance:   d,
		Matched:    true,
	}
}
