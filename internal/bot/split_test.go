package bot

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSanitizeHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "обычный текст", "обычный текст"},
		{"keeps bold and code", "<b>важно</b> и <code>/answer</code>", "<b>важно</b> и <code>/answer</code>"},
		{"strips unknown tags", "<div>текст</div>", "текст"},
		{"escapes comparison", "если площадь &lt; 80 кв. м", "если площадь &lt; 80 кв. м"},
		{"keeps https links", `<a href="https://example.com">док</a>`, `<a href="https://example.com">док</a>`},
		{"drops javascript href", `<a href="javascript:alert(1)">x</a>`, "<a>x</a>"},
		{"closes unclosed tag", "<b>жирный текст", "<b>жирный текст</b>"},
		{"closes nested unclosed tags", "<b><i>курсив", "<b><i>курсив</i></b>"},
		{"drops stray closing tag", "текст</b> дальше", "текст дальше"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, sanitizeHTML(tt.input))
		})
	}
}

func TestSplitMessage_ShortPassthrough(t *testing.T) {
	got := splitMessage("короткий ответ", 100)
	require.Equal(t, []string{"короткий ответ"}, got)
}

func TestSplitMessage_PrefersParagraphBreak(t *testing.T) {
	text := strings.Repeat("а", 50) + "\n\n" + strings.Repeat("б", 50)

	got := splitMessage(text, 70)
	require.Len(t, got, 2)
	require.Equal(t, strings.Repeat("а", 50), got[0])
	require.Equal(t, strings.Repeat("б", 50), got[1])
}

func TestSplitMessage_RespectsRuneLimit(t *testing.T) {
	text := strings.Repeat("слово ", 2000)

	for _, part := range splitMessage(text, telegramMessageLimit) {
		require.LessOrEqual(t, utf8.RuneCountInString(part), telegramMessageLimit)
		require.True(t, utf8.ValidString(part))
	}
}

func TestSplitMessage_UnbreakableText(t *testing.T) {
	text := strings.Repeat("ф", 250)

	got := splitMessage(text, 100)
	require.Len(t, got, 3)
	require.Equal(t, 100, utf8.RuneCountInString(got[0]))
}

func TestSplitMessage_KeepsTagsBalancedAcrossParts(t *testing.T) {
	text := "<b>" + strings.Repeat("жирное слово ", 600) + "</b>"

	got := splitMessage(text, telegramMessageLimit)
	require.Greater(t, len(got), 1)

	// A part with an unclosed tag would be rejected by Telegram and the
	// partner would never see it.
	for _, part := range got {
		require.Equal(t, strings.Count(part, "<b>"), strings.Count(part, "</b>"))
	}

	require.True(t, strings.HasSuffix(got[0], "</b>"))
	require.True(t, strings.HasPrefix(got[1], "<b>"))
}

func TestSplitMessage_ReopensLinkWithHref(t *testing.T) {
	text := `<a href="https://example.com">` + strings.Repeat("слово ", 1500) + "</a>"

	got := splitMessage(text, telegramMessageLimit)
	require.Greater(t, len(got), 1)

	require.True(t, strings.HasSuffix(got[0], "</a>"))
	require.True(t, strings.HasPrefix(got[1], `<a href="https://example.com">`))
}
