package gallery

import (
	"time"
)

// Stats summarises a published snapshot.
type Stats struct {
	Entries    int       `json:"entries"`
	Identities int       `json:"identities"`
	Dim        int       `json:"dim"`
	BuiltAt    time.Time `json:"built_at"`
}

// Snapshot is an immutable view of the gallery. It is safe for concurrent use.
type Snapshot struct {
	entries []Entry
	index   *linearIndex
	stats   Stats
}

func newSnapshot(entries []Entry, dim int, builtAt time.Time) *Snapshot {
	vectors := make([]Embedding, len(entries))
	identities := make(map[string]struct{})
	for i, e := range entries {
		vectors[i] = e.Embedding
		identities[e.Identity] = struct{}{}
	}
	return &Snapshot{
		entries: entries,
		index:   newLinearIndex(vectors),
		stats: Stats{
			Entries:    len(entries),
			Identities: len(identities),
			Dim:        dim,
			BuiltAt:    builtAt,
		},
	}
}

// Nearest returns the entry closest to query and its Euclidean distance.
func (s *Snapshot) Nearest(query Embedding) (Entry, float64, error) {
	if len(s.entries) == 0 {
		return Entry{}, 0, ErrEmptyGallery
	}
	if len(query) != s.stats.Dim {
		return Entry{}, 0, ErrDimensionMismatch
	}
	if !finite(query) {
		return Entry{}, 0, ErrInvalidEmbedding
	}
	pos, dist, ok := s.index.Nearest(query)
	if !ok {
		return Entry{}, 0, ErrEmptyGallery
	}
	return s.entries[pos], dist, nil
}

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// Stats returns the snapshot summary.
func (s *Snapshot) Stats() Stats { return s.stats }

// Entries returns a copy of the entries in load order.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Identities returns the distinct identities in load order.
func (s *Snapshot) Identities() []string {
	seen := make(map[string]struct{}, s.stats.Identities)
	out := make([]string, 0, s.stats.Identities)
	for _, e := range s.entries {
		if _, ok := seen[e.Identity]; ok {
			continue
		}
		seen[e.Identity] = struct{}{}
		out = append(out, e.Identity)
	}
	return out
}
