package agent

import (
	"strings"
	"unicode/utf8"

	"github.com/halo-research/halo/internal/store"
)

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:runeBoundary(s, n)]
}

// splitChunks slices text into fixed-size pieces for embedding. Cuts land on
// rune boundaries so every chunk stays valid UTF-8.
func splitChunks(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var out []string
	for len(text) > size {
		cut := runeBoundary(text, size)
		if cut == 0 {
			cut = size
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	return append(out, text)
}

// runeBoundary backs n up to the start of the rune it lands inside.
func runeBoundary(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

func seenURLs(docs []store.Document) map[string]struct{} {
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if d.URL != "" {
			seen[normalizeURL(d.URL)] = struct{}{}
		}
	}
	return seen
}

func cloneMeta(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// imageURL finds a usable image reference in document metadata.
func imageURL(meta map[string]interface{}) string {
	for _, key := range []string{"og_image", "image", "screenshot"} {
		if v, ok := meta[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func toFloat64(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}
