package agent

import (
	"encoding/json"
	"testing"
)

func TestParseSearchResultsShapes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"bare array", `[{"url":"https://a.example.com","title":"A"}]`, 1},
		{"data envelope", `{"data":[{"url":"https://a.example.com"},{"url":"https://b.example.com"}]}`, 2},
		{"results envelope", `{"results":[{"url":"https://a.example.com"}]}`, 1},
		{"web results envelope", `{"web":{"results":[{"url":"https://a.example.com"}]}}`, 1},
		{"web data envelope", `{"web":{"data":[{"url":"https://a.example.com"}]}}`, 1},
		{"quoted payload", `"[{\"url\":\"https://a.example.com\"}]"`, 1},
		{"unknown shape", `{"items":[{"url":"https://a.example.com"}]}`, 0},
		{"scalar", `42`, 0},
		{"empty", ``, 0},
	}
	for _, tc := range cases {
		got := parseSearchResults(json.RawMessage(tc.raw))
		if len(got) != tc.want {
			t.Fatalf("%s: got %d hits, want %d", tc.name, len(got), tc.want)
		}
	}
}

func TestParseSearchResultsKeepsFields(t *testing.T) {
	t.Parallel()
	raw := `{"data":[{"url":"https://a.example.com","title":"Paper A","description":"desc","markdown":"# body"}]}`
	hits := parseSearchResults(json.RawMessage(raw))
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	h := hits[0]
	if h.URL != "https://a.example.com" || h.Title != "Paper A" || h.Description != "desc" || h.Markdown != "# body" {
		t.Fatalf("unexpected hit: %+v", h)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()
	cases := []struct{ a, b string }{
		{"https://Example.com/Paper/", "https://example.com/Paper"},
		{"HTTPS://example.com/x#frag", "https://example.com/x"},
		{"https://example.com", "https://example.com"},
	}
	for _, tc := range cases {
		if got := normalizeURL(tc.a); got != tc.b {
			t.Fatalf("normalizeURL(%q) = %q, want %q", tc.a, got, tc.b)
		}
	}
	if normalizeURL("https://example.com/a/") != normalizeURL("https://EXAMPLE.com/a") {
		t.Fatal("expected cosmetic variants to normalize identically")
	}
}

func TestMathDensity(t *testing.T) {
	t.Parallel()
	if got := MathDensity("no math here"); got != 0 {
		t.Fatalf("plain text density = %v, want 0", got)
	}
	if got := MathDensity(`$x$ and \begin{align}`); got <= 0 {
		t.Fatalf("math text density = %v, want > 0", got)
	}
	long := ""
	for i := 0; i < 200; i++ {
		long += "$x$ "
	}
	if got := MathDensity(long); got != 1 {
		t.Fatalf("saturated density = %v, want 1", got)
	}
}

func TestSplitChunks(t *testing.T) {
	t.Parallel()
	if got := splitChunks("", 10); got != nil {
		t.Fatalf("empty input: got %v", got)
	}
	text := ""
	for i := 0; i < 250; i++ {
		text += "abcdefghij"
	}
	chunks := splitChunks(text, 1000)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 1000 || len(chunks[2]) != 500 {
		t.Fatalf("unexpected chunk sizes: %d, %d", len(chunks[0]), len(chunks[2]))
	}
}
