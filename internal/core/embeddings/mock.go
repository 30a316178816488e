package embeddings

import (
	"context"
	"hash/fnv"
	"math"
)

// mockClient produces stable pseudo-embeddings derived from the text hash.
// Identical texts map to identical vectors, so similarity search stays
// meaningful enough for local development.
type mockClient struct {
	dimensions int
}

// NewMock creates the mock embedding client.
func NewMock(dimensions int) Client {
	if dimensions <= 0 {
		dimensions = 1536
	}

	return &mockClient{dimensions: dimensions}
}

func (m *mockClient) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))

	seed := h.Sum64()
	vec := make([]float32, m.dimensions)

	var norm float64

	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float32(int64(seed>>32))/float32(math.MaxInt32) - 1
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}

	return vec, nil
}
