package rerank

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
)

type stubLLM struct {
	response   string
	err        error
	lastSystem string
	lastUser   string
}

func (s *stubLLM) Complete(_ context.Context, systemPrompt, userPrompt string, _ float32) (string, error) {
	s.lastSystem = systemPrompt
	s.lastUser = userPrompt

	return s.response, s.err
}

func candidates() []domain.Chunk {
	return []domain.Chunk{
		{ID: "a", Text: "требования к площади помещения"},
		{ID: "b", Text: "паушальный взнос и роялти"},
		{ID: "c", Text: "чек-лист осмотра помещения", Metadata: domain.ChunkMetadata{IsChecklist: true, ItemCount: 12, IsOfficial: true}},
	}
}

func TestLLMRerank_OrdersByModelRanking(t *testing.T) {
	client := &stubLLM{response: "3, 1"}
	r := NewLLMReranker(client, 5)

	got, err := r.Rerank(context.Background(), "как выбрать помещение", candidates())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].ID)
	require.Equal(t, "a", got[1].ID)
	require.Greater(t, got[0].Score, got[1].Score)

	require.Contains(t, client.lastUser, "[official, checklist of 12 items]")
	require.Contains(t, client.lastSystem, "comma-separated list of indices")
}

func TestLLMRerank_MockStyleResponseClampsToRange(t *testing.T) {
	client := &stubLLM{response: "1, 2, 3, 4, 5"}
	r := NewLLMReranker(client, 5)

	got, err := r.Rerank(context.Background(), "вопрос", candidates())
	require.NoError(t, err)
	require.Len(t, got, 3, "indices beyond the candidate count are ignored")
}

func TestLLMRerank_Errors(t *testing.T) {
	r := NewLLMReranker(&stubLLM{err: errors.New("circuit open")}, 5)

	_, err := r.Rerank(context.Background(), "вопрос", candidates())
	require.Error(t, err)

	r = NewLLMReranker(&stubLLM{response: "затрудняюсь ответить"}, 5)

	_, err = r.Rerank(context.Background(), "вопрос", candidates())
	require.Error(t, err, "output without indices is an error, not a silent empty ranking")
}

func TestLLMRerank_EmptyCandidates(t *testing.T) {
	r := NewLLMReranker(&stubLLM{}, 5)

	got, err := r.Rerank(context.Background(), "вопрос", nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestParseIndices(t *testing.T) {
	tests := []struct {
		name string
		out  string
		n    int
		max  int
		want []int
	}{
		{"plain", "2, 1, 3", 3, 5, []int{1, 0, 2}},
		{"duplicates", "1, 1, 2", 3, 5, []int{0, 1}},
		{"out of range", "0, 4, 2", 3, 5, []int{1}},
		{"max cut", "1, 2, 3", 3, 2, []int{0, 1}},
		{"prose around", "Наиболее релевантны: 3 и 1.", 3, 5, []int{2, 0}},
		{"nothing", "нет подходящих", 3, 5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, parseIndices(tt.out, tt.n, tt.max))
		})
	}
}

func TestPassageTag(t *testing.T) {
	require.Empty(t, passageTag(domain.Chunk{}))
	require.True(t, strings.HasPrefix(passageTag(domain.Chunk{Metadata: domain.ChunkMetadata{IsOfficial: true}}), "[official]"))
}
