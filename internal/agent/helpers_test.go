package agent

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitChunksKeepsRuneBoundaries(t *testing.T) {
	// 3-byte runes, so a naive 1000-byte cut lands mid-rune.
	text := strings.Repeat("数", 1200)
	chunks := splitChunks(text, 1000)
	var rebuilt strings.Builder
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %d is invalid UTF-8", i)
		}
		if len(c) > 1000 {
			t.Fatalf("chunk %d is %d bytes, over the size", i, len(c))
		}
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != text {
		t.Fatal("chunks must reassemble to the input with no bytes lost")
	}
}

func TestSplitChunksASCIIUnchanged(t *testing.T) {
	text := strings.Repeat("a", 2500)
	chunks := splitChunks(text, 1000)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 1000 || len(chunks[2]) != 500 {
		t.Fatalf("unexpected chunk sizes: %d, %d, %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestClipKeepsRuneBoundaries(t *testing.T) {
	s := strings.Repeat("δ", 40) // 2-byte runes; 25 is mid-rune
	got := clip(s, 25)
	if !utf8.ValidString(got) {
		t.Fatalf("clip produced invalid UTF-8: %q", got)
	}
	if len(got) > 25 {
		t.Fatalf("clip kept %d bytes, cap is 25", len(got))
	}
	if !strings.HasPrefix(s, got) {
		t.Fatal("clip must return a prefix of the input")
	}
}
