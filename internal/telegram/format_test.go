package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestMarkdownToTelegramHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"bold", "**Roadmap** is live", "<b>Roadmap</b> is live"},
		{"escape", "a < b & c", "a &lt; b &amp; c"},
		{"heading", "## Fees\ntext", "Fees\ntext"},
		{"link", "[docs](https://modfi.ai)", `<a href="https://modfi.ai">docs</a>`},
		{"inline code", "run `a<b`", "run <code>a&lt;b</code>"},
		{"code block", "```go\nx := 1 < 2\n```", "<pre><code>x := 1 &lt; 2\n</code></pre>"},
		{"italic", "this is _soft_ text", "this is <i>soft</i> text"},
		{"snake case untouched", "ask @modfi_bot or use my_var_name", "ask @modfi_bot or use my_var_name"},
		{"bullets", "- one\n- two", "• one\n• two"},
		{"strike", "~~old~~ new", "<s>old</s> new"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := markdownToTelegramHTML(tt.in); got != tt.want {
				t.Errorf("markdownToTelegramHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitLargeMessage(t *testing.T) {
	if got := splitLargeMessage("", 10); got != nil {
		t.Errorf("splitLargeMessage(\"\") = %v, want nil", got)
	}
	if got := splitLargeMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("splitLargeMessage(short) = %v", got)
	}

	long := strings.Repeat("a", 9000)
	chunks := splitLargeMessage(long, MaxMessageLength)
	if len(chunks) != 3 || strings.Join(chunks, "") != long {
		t.Fatalf("split into %d chunks, lost content", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > MaxMessageLength {
			t.Errorf("chunk %d has %d bytes", i, len(c))
		}
	}
}

func TestSplitLargeMessage_PrefersNewline(t *testing.T) {
	text := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 50)
	chunks := splitLargeMessage(text, 100)
	if len(chunks) != 2 || chunks[0] != strings.Repeat("a", 80)+"\n" {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestSplitLargeMessage_KeepsRunes(t *testing.T) {
	text := strings.Repeat("é", 60) // 120 bytes
	for _, c := range splitLargeMessage(text, 51) {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %q is not valid UTF-8", c)
		}
	}
}

func TestSplitLargeMessage_LongCodeBlockStaysBalanced(t *testing.T) {
	md := "```\n" + strings.Repeat("a < b && c\n", 500) + "```"
	full := markdownToTelegramHTML(md)
	chunks := splitLargeMessage(full, MaxMessageLength)
	if len(chunks) < 3 {
		t.Fatalf("got %d chunks for %d bytes", len(chunks), len(full))
	}

	var text strings.Builder
	for i, c := range chunks {
		if len(c) > MaxMessageLength {
			t.Errorf("chunk %d has %d bytes", i, len(c))
		}
		for _, tag := range []string{"pre", "code"} {
			open, closed := strings.Count(c, "<"+tag+">"), strings.Count(c, "</"+tag+">")
			if open != 1 || closed != 1 {
				t.Errorf("chunk %d: <%s>=%d </%s>=%d, want 1/1", i, tag, open, tag, closed)
			}
		}
		if !strings.HasPrefix(c, "<pre><code>") || !strings.HasSuffix(c, "</code></pre>") {
			t.Errorf("chunk %d is not wrapped in the code block tags", i)
		}
		text.WriteString(plainText(c))
	}
	if text.String() != plainText(full) {
		t.Error("chunks lost or duplicated content")
	}
}

func TestSplitLargeMessage_NeverCutsEntities(t *testing.T) {
	full := strings.Repeat("x&amp;", 40) // 240 bytes, entities at odd offsets
	for _, max := range []int{7, 10, 33, 50} {
		for i, c := range splitLargeMessage(full, max) {
			if strings.Count(c, "&") != strings.Count(c, "&amp;") {
				t.Errorf("max %d: chunk %d %q splits an entity", max, i, c)
			}
		}
	}
}

func TestSplitLargeMessage_ReopensInlineTags(t *testing.T) {
	full := `<a href="https://modfi.ai">` + strings.Repeat("w", 60) + "</a> done"
	chunks := splitLargeMessage(full, 50)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %q", chunks)
	}
	for i, c := range chunks[:len(chunks)-1] {
		if !strings.HasPrefix(c, `<a href="https://modfi.ai">`) || !strings.HasSuffix(c, "</a>") {
			t.Errorf("chunk %d = %q, want link reopened and closed", i, c)
		}
	}
}

func TestPlainText(t *testing.T) {
	if got := plainText("<b>a &lt; b</b> &amp; c"); got != "a < b & c" {
		t.Errorf("plainText = %q, want %q", got, "a < b & c")
	}
}
