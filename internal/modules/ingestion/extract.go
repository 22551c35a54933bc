package ingestion

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	types "github.com/yungbote/lumen-backend/internal/domain/materials"
	"github.com/yungbote/lumen-backend/internal/platform/gcp"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

// ErrUnreadable marks content that will never yield text on retry.
var ErrUnreadable = errors.New("no readable text")

type Extractor interface {
	Extract(ctx context.Context, declared types.DeclaredType, data []byte) (string, error)
}

type textExtractor struct {
	log       *logger.Logger
	docAI     gcp.Document
	pdftotext string
}

// NewExtractor returns the default extractor. docAI may be nil; PDFs then go
// straight to the local pdftotext binary.
func NewExtractor(log *logger.Logger, docAI gcp.Document) Extractor {
	bin, _ := exec.LookPath("pdftotext")
	return &textExtractor{log: log.With("component", "TextExtractor"), docAI: docAI, pdftotext: bin}
}

func (e *textExtractor) Extract(ctx context.Context, declared types.DeclaredType, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrUnreadable)
	}
	var (
		text string
		err  error
	)
	switch declared {
	case types.TypePDF:
		text, err = e.extractPDF(ctx, data)
	case types.TypeDOCX:
		text, err = extractDOCX(data)
	case types.TypePlainText:
		text = decodePlainText(data)
	default:
		return "", fmt.Errorf("%w: unsupported type %q", ErrUnreadable, declared)
	}
	if err != nil {
		return "", err
	}
	text = normalizeText(text)
	if text == "" {
		return "", ErrUnreadable
	}
	return text, nil
}

func (e *textExtractor) extractPDF(ctx context.Context, data []byte) (string, error) {
	if !isPDF(data) {
		return "", fmt.Errorf("%w: missing %%PDF header", ErrUnreadable)
	}
	var docErr error
	if e.docAI != nil {
		txt, err := e.docAI.ExtractText(ctx, types.TypePDF.MimeType(), data)
		if err == nil && strings.TrimSpace(txt) != "" {
			return txt, nil
		}
		if err != nil {
			docErr = err
			e.log.Warn("document ai extraction failed, trying pdftotext", "error", err)
		}
	}
	if e.pdftotext == "" {
		if docErr != nil {
			return "", docErr
		}
		return "", fmt.Errorf("pdf extraction unavailable: no document ai processor and pdftotext not in PATH")
	}
	txt, err := pdfToText(ctx, e.pdftotext, data)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return txt, nil
}

func pdfToText(ctx context.Context, bin string, data []byte) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	tmpDir, err := os.MkdirTemp("", "lumen_pdftotext_*")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inPath := filepath.Join(tmpDir, "in.pdf")
	outPath := filepath.Join(tmpDir, "out.txt")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}

	cmd := exec.CommandContext(callCtx, bin, "-enc", "UTF-8", "-q", inPath, outPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return "", fmt.Errorf("pdftotext: %w: %s", err, s)
		}
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	b, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("read pdftotext output: %w", err)
	}
	return string(b), nil
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

// extractDOCX collects the w:t runs of word/document.xml, one line per
// paragraph.
func extractDOCX(data []byte) (string, error) {
	if !isZip(data) {
		return "", fmt.Errorf("%w: docx is not a zip container", ErrUnreadable)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	var part *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			part = f
			break
		}
	}
	if part == nil {
		return "", fmt.Errorf("%w: word/document.xml missing", ErrUnreadable)
	}
	rc, err := part.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer rc.Close()

	var (
		sb     strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

func decodePlainText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD")
}

// normalizeText trims trailing space per line and collapses runs of blank
// lines, keeping paragraph breaks for the chunker.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, ln := range lines {
		ln = strings.TrimRight(ln, " \t\u00a0")
		if strings.TrimSpace(ln) == "" {
			blank++
			if blank > 1 {
				continue
			}
			ln = ""
		} else {
			blank = 0
		}
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
