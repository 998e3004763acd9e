package telegram

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	reHeading   = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	reQuote     = regexp.MustCompile(`(?m)^>\s*(.*)$`)
	reLink      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	reBold      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBoldAlt   = regexp.MustCompile(`__(.+?)__`)
	reItalic    = regexp.MustCompile(`(^|[^\w])_([^_\n]+)_([^\w]|$)`)
	reStrike    = regexp.MustCompile(`~~(.+?)~~`)
	reBullet    = regexp.MustCompile(`(?m)^[-*]\s+`)
	reCodeBlock = regexp.MustCompile("```[\\w]*\\n?([\\s\\S]*?)```")
	reInline    = regexp.MustCompile("`([^`]+)`")
)

// markdownToTelegramHTML converts the Markdown subset models usually emit
// into the HTML subset Telegram accepts. Code spans are escaped verbatim.
func markdownToTelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	text, blocks := extract(reCodeBlock, text, "CB")
	text, inlines := extract(reInline, text, "IC")

	text = reHeading.ReplaceAllString(text, "$1")
	text = reQuote.ReplaceAllString(text, "$1")
	text = EscapeHTML(text)
	text = reLink.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = reBold.ReplaceAllString(text, "<b>$1</b>")
	text = reBoldAlt.ReplaceAllString(text, "<b>$1</b>")
	text = reItalic.ReplaceAllString(text, "$1<i>$2</i>$3")
	text = reStrike.ReplaceAllString(text, "<s>$1</s>")
	text = reBullet.ReplaceAllString(text, "• ")

	for i, code := range inlines {
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00IC%d\x00", i), "<code>"+EscapeHTML(code)+"</code>")
	}
	for i, code := range blocks {
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00CB%d\x00", i), "<pre><code>"+EscapeHTML(code)+"</code></pre>")
	}
	return text
}

// extract swaps each match of re for a NUL-delimited placeholder and returns
// the captured group bodies in order.
func extract(re *regexp.Regexp, text, tag string) (string, []string) {
	var codes []string
	text = re.ReplaceAllStringFunc(text, func(m string) string {
		codes = append(codes, re.FindStringSubmatch(m)[1])
		return fmt.Sprintf("\x00%s%d\x00", tag, len(codes)-1)
	})
	return text, codes
}

// EscapeHTML escapes the characters Telegram HTML treats as markup.
func EscapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

// splitLargeMessage splits Telegram HTML into chunks of at most maxLen
// bytes, preferring a newline in the last third of a chunk. A cut never
// falls inside a tag, an entity or a UTF-8 sequence. Tags still open at a
// cut are closed at the end of that chunk and reopened at the start of the
// next, so every chunk parses on its own.
func splitLargeMessage(content string, maxLen int) []string {
	if content == "" {
		return nil
	}
	if len(content) <= maxLen {
		return []string{content}
	}

	type cut struct {
		end   int
		stack []htmlTag
	}

	var (
		chunks []string
		stack  []htmlTag
		pos    int
	)
	for pos < len(content) {
		prefix := openTags(stack)
		cur := stack
		var last, lastNL *cut

		i := pos
		for i < len(content) {
			tok, kind := nextToken(content, i)
			next := cur
			switch kind {
			case tokenOpen:
				next = pushTag(cur, htmlTag{name: tagName(tok), open: tok})
			case tokenClose:
				next = popTag(cur, tagName(tok))
			}

			size := len(prefix) + (i + len(tok) - pos) + closeLen(next)
			if size > maxLen && last != nil {
				break
			}
			i += len(tok)
			cur = next
			if kind != tokenOpen || size > maxLen {
				last = &cut{end: i, stack: cur}
				if tok == "\n" {
					lastNL = last
				}
			}
			if size > maxLen {
				break // one oversized token; emit it alone
			}
		}

		if i >= len(content) && (last == nil || last.end == i) {
			chunks = append(chunks, prefix+content[pos:]+closeTags(cur))
			break
		}

		c := last
		if lastNL != nil && lastNL.end-pos > (maxLen-len(prefix))*2/3 {
			c = lastNL
		}
		chunks = append(chunks, prefix+content[pos:c.end]+closeTags(c.stack))
		pos = c.end
		stack = c.stack
	}
	return chunks
}

type tokenKind int

const (
	tokenText tokenKind = iota
	tokenOpen
	tokenClose
)

type htmlTag struct {
	name string
	open string // the opening tag as written, attributes included
}

// nextToken returns the indivisible unit starting at i: a whole tag, a whole
// entity, or one rune.
func nextToken(s string, i int) (string, tokenKind) {
	switch s[i] {
	case '<':
		if j := strings.IndexByte(s[i:], '>'); j > 0 {
			tok := s[i : i+j+1]
			if strings.HasPrefix(tok, "</") {
				return tok, tokenClose
			}
			return tok, tokenOpen
		}
	case '&':
		if j := strings.IndexByte(s[i:], ';'); j > 0 && j <= 10 {
			return s[i : i+j+1], tokenText
		}
	}
	_, n := utf8.DecodeRuneInString(s[i:])
	return s[i : i+n], tokenText
}

func tagName(tok string) string {
	name := strings.TrimLeft(tok, "</")
	if j := strings.IndexAny(name, " >"); j >= 0 {
		name = name[:j]
	}
	return name
}

func pushTag(stack []htmlTag, t htmlTag) []htmlTag {
	next := make([]htmlTag, len(stack), len(stack)+1)
	copy(next, stack)
	return append(next, t)
}

func popTag(stack []htmlTag, name string) []htmlTag {
	for j := len(stack) - 1; j >= 0; j-- {
		if stack[j].name == name {
			return stack[:j]
		}
	}
	return stack
}

func openTags(stack []htmlTag) string {
	var b strings.Builder
	for _, t := range stack {
		b.WriteString(t.open)
	}
	return b.String()
}

func closeTags(stack []htmlTag) string {
	var b strings.Builder
	for j := len(stack) - 1; j >= 0; j-- {
		b.WriteString("</" + stack[j].name + ">")
	}
	return b.String()
}

func closeLen(stack []htmlTag) int {
	n := 0
	for _, t := range stack {
		n += len(t.name) + 3
	}
	return n
}

var reTag = regexp.MustCompile(`<[^>]*>`)

// plainText strips tags and unescapes entities, for resending a chunk that
// Telegram refused to parse.
func plainText(htmlText string) string {
	return html.UnescapeString(reTag.ReplaceAllString(htmlText, ""))
}
