package ingestion

import (
	"strings"
	"testing"
)

func TestSplitIntoChunksOverlapAndCoverage(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon zeta eta theta. ", 40)
	parts := SplitIntoChunks(text, 120, 30)
	if len(parts) < 5 {
		t.Fatalf("expected several chunks, got %d", len(parts))
	}
	for i, p := range parts {
		if n := len([]rune(p)); n > 120 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
	for i := 1; i < len(parts); i++ {
		prev := parts[i-1]
		tail := prev[len(prev)-10:]
		if !strings.Contains(parts[i], strings.TrimSpace(tail)) {
			t.Fatalf("chunk %d does not carry the overlap from chunk %d", i, i-1)
		}
	}
	if !strings.HasPrefix(strings.TrimSpace(text), parts[0]) {
		t.Fatalf("first chunk does not start the text")
	}
	if !strings.HasSuffix(strings.TrimSpace(text), parts[len(parts)-1]) {
		t.Fatalf("last chunk does not end the text")
	}
}

func TestSplitIntoChunksEdgeCases(t *testing.T) {
	if got := SplitIntoChunks("   ", 100, 10); got != nil {
		t.Fatalf("blank text: got %v", got)
	}
	if got := SplitIntoChunks("short", 100, 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text: got %v", got)
	}
	// No whitespace at all still makes progress.
	long := strings.Repeat("x", 1000)
	got := SplitIntoChunks(long, 100, 99)
	if len(got) == 0 || len(got) > 1000 {
		t.Fatalf("unbroken text: got %d chunks", len(got))
	}
}

func TestBuildChunksOrdinalsAreContiguous(t *testing.T) {
	text := strings.Repeat("Cells divide.\n\nMembranes regulate transport across boundaries.\n\n", 30)
	for _, strategy := range []string{ChunkStrategyWindow, ChunkStrategyRecursive} {
		cfg := DefaultConfig()
		cfg.ChunkSize = 100
		cfg.ChunkOverlap = 20
		cfg.ChunkStrategy = strategy
		chunks, err := BuildChunks(text, cfg)
		if err != nil {
			t.Fatalf("%s: BuildChunks: %v", strategy, err)
		}
		if len(chunks) < 2 {
			t.Fatalf("%s: expected multiple chunks, got %d", strategy, len(chunks))
		}
		for i, c := range chunks {
			if c.Ordinal != i {
				t.Fatalf("%s: chunk %d has ordinal %d", strategy, i, c.Ordinal)
			}
			if strings.TrimSpace(c.Text) == "" {
				t.Fatalf("%s: chunk %d is empty", strategy, i)
			}
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	if EstimateTokens("") != 0 {
		t.Fatalf("empty string should have no tokens")
	}
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Fatalf("EstimateTokens: got %d want 2", got)
	}
}
