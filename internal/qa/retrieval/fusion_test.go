package retrieval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
)

func TestFuseRRF_TopOfBothLists(t *testing.T) {
	a := domain.Chunk{ID: "a", Text: "общий кандидат"}

	fused := fuseRRF([][]domain.Chunk{
		{a, {ID: "b", Text: "только семантический"}},
		{a, {ID: "c", Text: "только лексический"}},
	})

	require.Equal(t, "общий кандидат", fused[0].Text)
	require.InDelta(t, 2.0/float64(rrfK+1), float64(fused[0].Score), 1e-6)
}

func TestFuseRRF_ConsensusBeatsSingleList(t *testing.T) {
	shared := domain.Chunk{ID: "s", Text: "встречается в обоих списках"}
	top := domain.Chunk{ID: "t", Text: "первый только в одном"}

	fused := fuseRRF([][]domain.Chunk{
		{top, shared},
		{shared},
	})

	require.Equal(t, "встречается в обоих списках", fused[0].Text)
}

func TestFuseRRF_DedupByText(t *testing.T) {
	fused := fuseRRF([][]domain.Chunk{
		{{ID: "1", Text: "тот же текст"}},
		{{ID: "2", Text: "тот же текст"}},
	})

	require.Len(t, fused, 1)
}

func TestFuseRRF_DiscardsInputScores(t *testing.T) {
	fused := fuseRRF([][]domain.Chunk{
		{{ID: "1", Text: "a", Score: 123}},
	})

	require.Len(t, fused, 1)
	require.InDelta(t, 1.0/float64(rrfK+1), float64(fused[0].Score), 1e-6)
}

func TestFuseRRF_Empty(t *testing.T) {
	require.Empty(t, fuseRRF(nil))
	require.Empty(t, fuseRRF([][]domain.Chunk{nil, {}}))
}
