package bot

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// telegramMessageLimit is below Telegram's hard 4096 cap to leave room
// for the tags closed and reopened at part boundaries.
const telegramMessageLimit = 4000

var allowedTags = map[string]bool{
	"b": true, "strong": true,
	"i": true, "em": true,
	"u": true, "s": true,
	"code": true, "pre": true,
	"a": true,
}

// sanitizeHTML keeps only the inline tags Telegram accepts and escapes
// everything else. Model output occasionally contains markup-looking
// text; a single stray bracket would otherwise fail the whole send.
// Tags still open at the end of the text are closed, and closing tags
// without a matching opener are dropped, so the result always carries
// balanced markup.
func sanitizeHTML(text string) string {
	var sb strings.Builder

	var open []string

	tokenizer := html.NewTokenizer(strings.NewReader(text))

	for {
		tokenType := tokenizer.Next()
		if tokenType == html.ErrorToken {
			for i := len(open) - 1; i >= 0; i-- {
				sb.WriteString("</" + open[i] + ">")
			}

			return sb.String()
		}

		token := tokenizer.Token()

		switch tokenType {
		case html.TextToken:
			sb.WriteString(html.EscapeString(token.Data))
		case html.StartTagToken:
			if !allowedTags[token.Data] {
				continue
			}

			open = append(open, token.Data)

			if token.Data == "a" {
				writeAnchor(&sb, token)

				continue
			}

			sb.WriteString("<" + token.Data + ">")
		case html.EndTagToken:
			if len(open) > 0 && open[len(open)-1] == token.Data {
				open = open[:len(open)-1]
				sb.WriteString("</" + token.Data + ">")
			}
		}
	}
}

func writeAnchor(sb *strings.Builder, token html.Token) {
	for _, attr := range token.Attr {
		if attr.Key != "href" {
			continue
		}

		href := strings.ToLower(strings.TrimSpace(attr.Val))
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") || strings.HasPrefix(href, "tg://") {
			sb.WriteString(`<a href="` + html.EscapeString(attr.Val) + `">`)

			return
		}
	}

	sb.WriteString("<a>")
}

// splitMessage cuts text into parts of at most limit runes, preferring
// paragraph breaks, then line breaks, then word boundaries. Telegram
// rejects a part with unbalanced markup, so tags open at a part boundary
// are closed there and reopened at the start of the next part.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string

	remaining := text

	for utf8.RuneCountInString(remaining) > limit {
		head := string([]rune(remaining)[:limit])

		cut := len(head)
		for _, sep := range []string{"\n\n", "\n", " "} {
			if pos := strings.LastIndex(head, sep); pos > 0 {
				cut = pos + len(sep)

				break
			}
		}

		parts = append(parts, strings.TrimRight(remaining[:cut], " \n"))
		remaining = strings.TrimLeft(remaining[cut:], " \n")
	}

	if remaining != "" {
		parts = append(parts, remaining)
	}

	return balanceParts(parts)
}

type openTag struct {
	name string
	raw  string // Full start tag, with attributes for links
}

// balanceParts closes tags left open at the end of each part and reopens
// them at the start of the next, so every part is deliverable on its own.
func balanceParts(parts []string) []string {
	var open []openTag

	balanced := make([]string, 0, len(parts))

	for _, part := range parts {
		var sb strings.Builder

		for _, t := range open {
			sb.WriteString(t.raw)
		}

		sb.WriteString(part)

		open = openTags(sb.String())

		for i := len(open) - 1; i >= 0; i-- {
			sb.WriteString("</" + open[i].name + ">")
		}

		balanced = append(balanced, sb.String())
	}

	return balanced
}

// openTags returns the stack of allowed tags still open at the end of
// part. Sanitized input keeps tags properly nested, so a plain stack
// suffices.
func openTags(part string) []openTag {
	var open []openTag

	tokenizer := html.NewTokenizer(strings.NewReader(part))

	for {
		tokenType := tokenizer.Next()
		if tokenType == html.ErrorToken {
			return open
		}

		token := tokenizer.Token()

		switch tokenType {
		case html.StartTagToken:
			if allowedTags[token.Data] {
				open = append(open, openTag{name: token.Data, raw: startTag(token)})
			}
		case html.EndTagToken:
			if len(open) > 0 && open[len(open)-1].name == token.Data {
				open = open[:len(open)-1]
			}
		}
	}
}

func startTag(token html.Token) string {
	if token.Data == "a" {
		var sb strings.Builder

		writeAnchor(&sb, token)

		return sb.String()
	}

	return "<" + token.Data + ">"
}
