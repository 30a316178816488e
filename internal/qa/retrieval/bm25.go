package retrieval

import (
	"math"
	"regexp"
	"sort"
	"sync"

	"golang.org/x/text/cases"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
)

// BM25 parameters. k1 controls term frequency saturation, b controls
// document length normalization.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var (
	tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]{2,}`)
	foldCaser    = cases.Fold()
)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(foldCaser.String(text), -1)
}

// BM25Index is an in-memory lexical index over the knowledge base. Vector
// search misses exact terms like product codes and document names; the
// lexical strategy covers those. The index is rebuilt from the database at
// startup and appended to when human answers are folded back in.
type BM25Index struct {
	mu       sync.RWMutex
	docs     []domain.Chunk
	termFreq []map[string]int
	docLen   []int
	docFreq  map[string]int
	totalLen int
}

func NewBM25Index() *BM25Index {
	return &BM25Index{docFreq: make(map[string]int)}
}

// Add indexes chunks. Safe for concurrent use with Search.
func (idx *BM25Index) Add(chunks ...domain.Chunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, c := range chunks {
		tokens := tokenize(c.Text)

		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}

		for tok := range tf {
			idx.docFreq[tok]++
		}

		idx.docs = append(idx.docs, c)
		idx.termFreq = append(idx.termFreq, tf)
		idx.docLen = append(idx.docLen, len(tokens))
		idx.totalLen += len(tokens)
	}
}

func (idx *BM25Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.docs)
}

// Search scores all indexed chunks against the query and returns the topK
// best matches with positive scores. Scores are BM25 values and only
// comparable within this result list.
func (idx *BM25Index) Search(query string, topK int) []domain.Chunk {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms := tokenize(query)
	if len(terms) == 0 || len(idx.docs) == 0 {
		return nil
	}

	n := float64(len(idx.docs))
	avgLen := float64(idx.totalLen) / n

	type scored struct {
		doc   int
		score float64
	}

	var results []scored

	for doc := range idx.docs {
		var score float64

		for _, term := range terms {
			tf := float64(idx.termFreq[doc][term])
			if tf == 0 {
				continue
			}

			df := float64(idx.docFreq[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := 1 - bm25B + bm25B*float64(idx.docLen[doc])/avgLen
			score += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}

		if score > 0 {
			results = append(results, scored{doc: doc, score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}

		return results[i].doc < results[j].doc
	})

	if len(results) > topK {
		results = results[:topK]
	}

	chunks := make([]domain.Chunk, 0, len(results))

	for _, r := range results {
		c := idx.docs[r.doc]
		c.Score = float32(r.score)
		chunks = append(chunks, c)
	}

	return chunks
}
