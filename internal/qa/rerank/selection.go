package rerank

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
)

// Selector cuts the reranked pool down to the evidence set.
type Selector struct {
	Max              int     // Evidence set size limit
	ScoreFloor       float32 // Minimum reranker score, 0 disables
	DuplicateOverlap float32 // Token overlap above which the later passage is dropped
	GroupCap         int     // Passages one section may contribute before backfill
}

// Select filters by score floor, orders by score with official documents
// winning ties, drops near-duplicates and caps passages per document
// section. Slots left open by the per-section cap are backfilled from
// the capped leftovers so relevant evidence is not wasted when the pool
// lacks variety.
func (s Selector) Select(chunks []domain.Chunk) []domain.Chunk {
	pool := make([]domain.Chunk, 0, len(chunks))

	for _, c := range chunks {
		if c.Score >= s.ScoreFloor {
			pool = append(pool, c)
		}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}

		return pool[i].Metadata.IsOfficial && !pool[j].Metadata.IsOfficial
	})

	selected := make([]domain.Chunk, 0, s.Max)
	selectedTokens := make([]map[string]bool, 0, s.Max)
	groupCounts := make(map[string]int)

	var leftovers []domain.Chunk

	take := func(c domain.Chunk) bool {
		tokens := tokenSet(c.Text)

		for _, prev := range selectedTokens {
			if tokenOverlap(tokens, prev) > s.DuplicateOverlap {
				return false
			}
		}

		selected = append(selected, c)
		selectedTokens = append(selectedTokens, tokens)

		return true
	}

	for _, c := range pool {
		if len(selected) == s.Max {
			break
		}

		if s.GroupCap > 0 && groupCounts[groupKey(c)] == s.GroupCap {
			leftovers = append(leftovers, c)

			continue
		}

		if take(c) {
			groupCounts[groupKey(c)]++
		}
	}

	for _, c := range leftovers {
		if len(selected) == s.Max {
			break
		}

		take(c)
	}

	return selected
}

const groupKeyPrefixRunes = 40

// groupKey names the topical group a passage belongs to for the
// diversity cap. The section heading is the natural key; headingless
// passages group by checklist flag and text prefix.
func groupKey(c domain.Chunk) string {
	if h := c.Metadata.SectionHeading; h != "" {
		return h
	}

	prefix := []rune(c.Text)
	if len(prefix) > groupKeyPrefixRunes {
		prefix = prefix[:groupKeyPrefixRunes]
	}

	return fmt.Sprintf("checklist=%t:%s", c.Metadata.IsChecklist, string(prefix))
}

func tokenSet(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}

	return set
}

// tokenOverlap is the shared fraction of the smaller token set. The
// smaller-set denominator catches a passage fully contained in a longer
// one, which plain Jaccard similarity misses.
func tokenOverlap(a, b map[string]bool) float32 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	shared := 0

	for tok := range small {
		if large[tok] {
			shared++
		}
	}

	return float32(shared) / float32(len(small))
}
