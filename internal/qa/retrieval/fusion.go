package retrieval

import (
	"sort"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
)

// rrfK dampens the weight of top ranks so that an item appearing in
// several lists beats an item topping a single list.
const rrfK = 60

// fuseRRF merges ranked candidate lists with reciprocal rank fusion.
// Each appearance at zero-based rank r contributes 1/(rrfK+r+1); chunks
// are identified by text, so the same passage found by several strategies
// accumulates score instead of duplicating. Input scores are discarded:
// they come from different strategies and are not comparable.
func fuseRRF(lists [][]domain.Chunk) []domain.Chunk {
	type entry struct {
		chunk domain.Chunk
		score float64
	}

	entries := make(map[string]*entry)

	for _, list := range lists {
		for rank, c := range list {
			e, ok := entries[c.Text]
			if !ok {
				e = &entry{chunk: c}
				entries[c.Text] = e
			}

			e.score += 1 / float64(rrfK+rank+1)
		}
	}

	fused := make([]domain.Chunk, 0, len(entries))

	for _, e := range entries {
		c := e.chunk
		c.Score = float32(e.score)
		fused = append(fused, c)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}

		return fused[i].Text < fused[j].Text
	})

	return fused
}
