package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
)

type stubLLM struct {
	response   string
	err        error
	calls      int
	lastSystem string
	lastUser   string
}

func (s *stubLLM) Complete(_ context.Context, systemPrompt, userPrompt string, _ float32) (string, error) {
	s.calls++
	s.lastSystem = systemPrompt
	s.lastUser = userPrompt

	return s.response, s.err
}

type stubPrompts struct {
	overrides map[string]string
}

func (s *stubPrompts) GetSetting(_ context.Context, key string, target interface{}) error {
	text, ok := s.overrides[key]
	if !ok {
		return errors.New("setting not found")
	}

	if p, ok := target.(*string); ok {
		*p = text
	}

	return nil
}

func nopLogger() *zerolog.Logger {
	logger := zerolog.Nop()

	return &logger
}

func evidence() []domain.Chunk {
	return []domain.Chunk{
		{ID: "1", Text: "Площадь помещения должна быть не менее 80 кв. м.", Metadata: domain.ChunkMetadata{DocumentTitle: "Чек-лист помещения"}},
		{ID: "2", Text: "Требуется отдельный вход с улицы.", Metadata: domain.ChunkMetadata{DocumentTitle: "Чек-лист помещения"}},
		{ID: "3", Text: "Паушальный взнос составляет 500 тысяч рублей.", Metadata: domain.ChunkMetadata{Source: "contract_faq"}},
	}
}

func TestCheck_EmptyEvidenceSkipsModel(t *testing.T) {
	client := &stubLLM{response: "yes"}
	c := NewSufficiencyChecker(client, nil, nopLogger())

	got := c.Check(context.Background(), "вопрос", nil)
	require.False(t, got.Sufficient)
	require.Zero(t, client.calls)
}

func TestCheck_ParsesVerdict(t *testing.T) {
	tests := []struct {
		name        string
		response    string
		sufficient  bool
		missingInfo string
	}{
		{"yes", "yes", true, ""},
		{"yes with period", "Yes.", true, ""},
		{"russian yes", "Да", true, ""},
		{"no with reason", "no\nНет информации о сроках согласования", false, "Нет информации о сроках согласования"},
		{"bare no", "no", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewSufficiencyChecker(&stubLLM{response: tt.response}, nil, nopLogger())

			got := c.Check(context.Background(), "вопрос", evidence())
			require.Equal(t, tt.sufficient, got.Sufficient)
			require.Equal(t, tt.missingInfo, got.MissingInfo)
		})
	}
}

func TestCheck_FailsOpen(t *testing.T) {
	c := NewSufficiencyChecker(&stubLLM{err: errors.New("circuit open")}, nil, nopLogger())

	got := c.Check(context.Background(), "вопрос", evidence())
	require.True(t, got.Sufficient)
}

func TestCheck_TruncatesEvidence(t *testing.T) {
	client := &stubLLM{response: "yes"}
	c := NewSufficiencyChecker(client, nil, nopLogger())

	four := append(evidence(), domain.Chunk{ID: "4", Text: "Четвертый фрагмент."})

	c.Check(context.Background(), "вопрос", four)
	require.NotContains(t, client.lastUser, "Четвертый фрагмент")
	require.Contains(t, client.lastUser, "3.")
}

func TestGenerate_AppendsSourcesAndGreeting(t *testing.T) {
	g := NewGenerator(&stubLLM{response: "Помещение должно быть не менее 80 кв. м с отдельным входом."}, nil, 0.2, nopLogger())

	got, err := g.Generate(context.Background(), Input{
		Question: "какие требования к помещению",
		Evidence: evidence(),
		Greet:    true,
	})
	require.NoError(t, err)
	require.True(t, len(got) > 0)
	require.Contains(t, got, "Здравствуйте!")
	require.Contains(t, got, "Источники: Чек-лист помещения, contract_faq")
}

func TestGenerate_NoGreetingOnLaterTurns(t *testing.T) {
	g := NewGenerator(&stubLLM{response: "Ответ."}, nil, 0.2, nopLogger())

	got, err := g.Generate(context.Background(), Input{Question: "вопрос", Evidence: evidence()})
	require.NoError(t, err)
	require.NotContains(t, got, "Здравствуйте")
}

func TestGenerate_IncludesRecentHistory(t *testing.T) {
	client := &stubLLM{response: "Ответ."}
	g := NewGenerator(client, nil, 0.2, nopLogger())

	_, err := g.Generate(context.Background(), Input{
		Question: "а сколько это стоит",
		Evidence: evidence(),
		History: []domain.Turn{
			{Role: domain.RoleUser, Text: "какие требования к помещению"},
			{Role: domain.RoleAssistant, Text: "Не менее 80 кв. м."},
		},
	})
	require.NoError(t, err)
	require.Contains(t, client.lastUser, "какие требования к помещению")
}

func TestGenerate_Errors(t *testing.T) {
	g := NewGenerator(&stubLLM{err: errors.New("boom")}, nil, 0.2, nopLogger())

	_, err := g.Generate(context.Background(), Input{Question: "вопрос", Evidence: evidence()})
	require.Error(t, err)

	g = NewGenerator(&stubLLM{response: "   "}, nil, 0.2, nopLogger())

	_, err = g.Generate(context.Background(), Input{Question: "вопрос", Evidence: evidence()})
	require.Error(t, err)
}

func TestVerify(t *testing.T) {
	v := NewVerifier(&stubLLM{response: "yes"}, nil)

	ok, err := v.Verify(context.Background(), "Ответ.", evidence())
	require.NoError(t, err)
	require.True(t, ok)

	v = NewVerifier(&stubLLM{response: "No, the price claim is unsupported"}, nil)

	ok, err = v.Verify(context.Background(), "Ответ.", evidence())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerify_ErrorIsNotAPass(t *testing.T) {
	v := NewVerifier(&stubLLM{err: errors.New("circuit open")}, nil)

	ok, err := v.Verify(context.Background(), "Ответ.", evidence())
	require.Error(t, err)
	require.False(t, ok)
}

func TestSystemPromptOverrides(t *testing.T) {
	client := &stubLLM{response: "Ответ."}
	prompts := &stubPrompts{overrides: map[string]string{
		promptKeyGenerate: "Отвечай только по документам сети.",
	}}

	g := NewGenerator(client, prompts, 0.2, nopLogger())

	_, err := g.Generate(context.Background(), Input{Question: "вопрос", Evidence: evidence()})
	require.NoError(t, err)
	require.Equal(t, "Отвечай только по документам сети.", client.lastSystem)

	// Keys without an override keep the compiled-in prompt.
	verifyClient := &stubLLM{response: "yes"}
	v := NewVerifier(verifyClient, prompts)

	_, err = v.Verify(context.Background(), "Ответ.", evidence())
	require.NoError(t, err)
	require.Equal(t, verifySystemPrompt, verifyClient.lastSystem)
}

func TestSystemPromptBlankOverrideIgnored(t *testing.T) {
	client := &stubLLM{response: "yes"}
	prompts := &stubPrompts{overrides: map[string]string{promptKeySufficiency: "   "}}

	c := NewSufficiencyChecker(client, prompts, nopLogger())

	c.Check(context.Background(), "вопрос", evidence())
	require.Equal(t, sufficiencySystemPrompt, client.lastSystem)
}
