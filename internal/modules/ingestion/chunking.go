package ingestion

import (
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	ChunkStrategyWindow    = "window"
	ChunkStrategyRecursive = "recursive"
)

// Chunk is one ordinal slice of extracted text, decided before any embedding.
type Chunk struct {
	Ordinal int
	Text    string
}

// SplitIntoChunks cuts text into windows of about size runes where each
// window repeats the last overlap runes of the previous one. A window end is
// pulled back to the nearest whitespace when one exists in its last quarter.
func SplitIntoChunks(text string, size int, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	r := []rune(text)

	if size < MinChunkSize {
		size = MinChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}

	out := make([]string, 0, len(r)/(size-overlap)+1)
	start := 0
	for start < len(r) {
		end := start + size
		if end >= len(r) {
			end = len(r)
		} else if cut := breakBefore(r, start+size*3/4, end); cut > start {
			end = cut
		}

		if p := strings.TrimSpace(string(r[start:end])); p != "" {
			out = append(out, p)
		}
		if end == len(r) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func breakBefore(r []rune, lo, hi int) int {
	for i := hi; i > lo; i-- {
		if unicode.IsSpace(r[i-1]) {
			return i
		}
	}
	return -1
}

// SplitRecursive splits on paragraph, line, then word boundaries.
func SplitRecursive(text string, size int, overlap int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if overlap >= size {
		overlap = size / 4
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// BuildChunks splits text with the configured strategy and assigns ordinals
// 0..N-1 in text order.
func BuildChunks(text string, cfg Config) ([]Chunk, error) {
	var (
		parts []string
		err   error
	)
	switch cfg.ChunkStrategy {
	case ChunkStrategyRecursive:
		parts, err = SplitRecursive(text, cfg.ChunkSize, cfg.ChunkOverlap)
		if err != nil {
			return nil, err
		}
	default:
		parts = SplitIntoChunks(text, cfg.ChunkSize, cfg.ChunkOverlap)
	}
	out := make([]Chunk, 0, len(parts))
	for i, p := range parts {
		out = append(out, Chunk{Ordinal: i, Text: p})
	}
	return out, nil
}

// EstimateTokens is the usual four-characters-per-token approximation.
func EstimateTokens(s string) int {
	n := len([]rune(s))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
