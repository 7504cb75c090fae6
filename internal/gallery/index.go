package gallery

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// linearIndex answers nearest-neighbour queries with an exact scan. It keeps
// float64 copies of every vector so gonum can work on them directly.
// Positions refer to the order the vectors were given to newLinearIndex.
type linearIndex struct {
	vectors [][]float64
}

func newLinearIndex(vectors []Embedding) *linearIndex {
	idx := &linearIndex{vectors: make([][]float64, len(vectors))}
	for i, v := range vectors {
		idx.vectors[i] = toFloat64(v)
	}
	return idx
}

// Nearest returns the position and Euclidean distance of the closest vector.
// Ties resolve to the lowest position. ok is false when the index is empty or
// no distance is comparable (a NaN query).
func (l *linearIndex) Nearest(query Embedding) (int, float64, bool) {
	q := toFloat64(query)
	best, bestDist := -1, 0.0
	for i, v := range l.vectors {
		d := distance(q, v)
		if math.IsNaN(d) {
			continue
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, bestDist, true
}

// EuclideanDistance returns the L2 distance between two embeddings of equal length.
func EuclideanDistance(a, b Embedding) float64 {
	return distance(toFloat64(a), toFloat64(b))
}

func distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

func toFloat64(v Embedding) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// finite reports whether every component is a real number.
func finite(v Embedding) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
