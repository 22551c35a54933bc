package ingestion

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	types "github.com/yungbote/lumen-backend/internal/domain/materials"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractDOCXParagraphs(t *testing.T) {
	data := buildDOCX(t, `<w:p><w:r><w:t>Cell</w:t></w:r><w:r><w:t xml:space="preserve"> biology</w:t></w:r></w:p><w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>`)
	ex := NewExtractor(logger.NewNop(), nil)
	got, err := ex.Extract(context.Background(), types.TypeDOCX, data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "Cell biology\nSecond paragraph" {
		t.Fatalf("docx text: %q", got)
	}
}

func TestExtractRejectsUnreadable(t *testing.T) {
	ex := NewExtractor(logger.NewNop(), nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		typ   types.DeclaredType
		input []byte
	}{
		{"empty", types.TypePlainText, nil},
		{"whitespace", types.TypePlainText, []byte(" \n\t ")},
		{"docx not zip", types.TypeDOCX, []byte("plain words")},
		{"docx no body text", types.TypeDOCX, buildDOCX(t, `<w:p></w:p>`)},
		{"pdf without header", types.TypePDF, []byte("not a pdf")},
	}
	for _, tc := range cases {
		_, err := ex.Extract(ctx, tc.typ, tc.input)
		if !errors.Is(err, ErrUnreadable) {
			t.Fatalf("%s: expected ErrUnreadable, got %v", tc.name, err)
		}
	}
}

func TestExtractPlainTextReplacesInvalidBytes(t *testing.T) {
	ex := NewExtractor(logger.NewNop(), nil)
	got, err := ex.Extract(context.Background(), types.TypePlainText, []byte("caf\xe9 au lait\r\n\r\n\r\n\r\nnext"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "\uFFFD") {
		t.Fatalf("invalid byte not replaced: %q", got)
	}
	if strings.Count(got, "\n") != 2 {
		t.Fatalf("blank lines not collapsed: %q", got)
	}
}

func TestExtractiveSummaryKeepsWholeSentences(t *testing.T) {
	text := "One short sentence. Another short sentence. " + strings.Repeat("word ", 200)
	got := extractiveSummary(text, 60)
	if got != "One short sentence. Another short sentence." {
		t.Fatalf("summary: %q", got)
	}
	if got := extractiveSummary(strings.Repeat("a", 100), 10); len(got) != 10 {
		t.Fatalf("long single sentence not truncated: %q", got)
	}
}
