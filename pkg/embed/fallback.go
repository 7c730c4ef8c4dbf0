package embed

import (
	"context"
	"math"
)

// Deterministic is the last tier of the chain: a seeded sinusoidal
// pseudo-random embedding requiring no model and no network. The same
// normalized text always yields the same unit-length vector, so cosine
// similarity stays meaningful even fully offline.
type Deterministic struct {
	dimension int
}

// NewDeterministic creates a deterministic fallback embedder
func NewDeterministic(dimension int) *Deterministic {
	return &Deterministic{dimension: dimension}
}

func (d *Deterministic) Dimension() int {
	return d.dimension
}

func (d *Deterministic) Close() error {
	return nil
}

// Embed generates the deterministic embedding. It never fails.
func (d *Deterministic) Embed(_ context.Context, text string) ([]float32, error) {
	var seed int64
	for _, r := range text {
		seed = (seed*31 + int64(r)) & 0x7fffffff
	}

	vec := make([]float32, d.dimension)
	var sumSquares float64
	for i := range vec {
		x := math.Sin(float64(seed)+float64(i)) * 10000.0
		v := x - math.Floor(x) - 0.5
		vec[i] = float32(v)
		sumSquares += v * v
	}

	// L2-normalize to unit length
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}

	return vec, nil
}
