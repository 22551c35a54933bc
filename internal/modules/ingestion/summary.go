package ingestion

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/lumen-backend/internal/platform/llm"
)

type summaryOutput struct {
	Summary string `json:"summary" jsonschema:"description=Two or three plain sentences describing what the document covers."`
}

const (
	summarySystemPrompt = "You summarize study material for a learner. Reply with a short neutral summary of what the document covers."
	summaryInputChars   = 12000
)

// summarize asks the document_summary route for a summary and falls back to
// the leading sentences of text when the route is missing or the call fails.
func (p *Pipeline) summarize(ctx context.Context, text string) string {
	maxChars := p.cfg.SummaryMaxChars
	gen, err := p.deps.Models.Generator(llm.TaskDocumentSummary)
	if err != nil {
		return extractiveSummary(text, maxChars)
	}
	schema, err := llm.SchemaFor[summaryOutput]()
	if err != nil {
		p.log.Warn("summary schema failed", "error", err)
		return extractiveSummary(text, maxChars)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.GenerateTimeout)
	defer cancel()
	obj, err := gen.GenerateJSON(callCtx, summarySystemPrompt, truncateRunes(text, summaryInputChars), "document_summary", schema)
	if err != nil {
		p.log.Warn("summary generation failed, using extractive summary", "error", err)
		return extractiveSummary(text, maxChars)
	}
	out, err := llm.Decode[summaryOutput](obj)
	if err != nil || strings.TrimSpace(out.Summary) == "" {
		return extractiveSummary(text, maxChars)
	}
	return truncateRunes(strings.TrimSpace(out.Summary), maxChars)
}

// extractiveSummary keeps whole leading sentences up to maxChars runes.
func extractiveSummary(text string, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	var sb strings.Builder
	n := 0
	for _, s := range splitSentences(text) {
		sl := utf8.RuneCountInString(s)
		if n > 0 && n+1+sl > maxChars {
			break
		}
		if n > 0 {
			sb.WriteByte(' ')
			n++
		}
		sb.WriteString(s)
		n += sl
	}
	if sb.Len() == 0 || n > maxChars {
		return truncateRunes(text, maxChars)
	}
	return sb.String()
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	rs := []rune(text)
	for i, r := range rs {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(rs) && rs[i+1] != ' ' {
			continue
		}
		if s := strings.TrimSpace(string(rs[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if start < len(rs) {
		if s := strings.TrimSpace(string(rs[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return strings.TrimSpace(string(rs[:n]))
}
