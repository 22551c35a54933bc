package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/yungbote/lumen-backend/internal/platform/ctxutil"
	"github.com/yungbote/lumen-backend/internal/platform/envutil"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

// Document extracts plain text from PDF bytes using a Document AI OCR processor.
type Document interface {
	ExtractText(ctx context.Context, mimeType string, data []byte) (string, error)
	Close() error
}

type DocumentConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

func DocumentConfigFromEnv() DocumentConfig {
	return DocumentConfig{
		ProjectID:        envutil.String("GCP_PROJECT_ID", ""),
		Location:         envutil.String("DOCUMENTAI_LOCATION", "us"),
		ProcessorID:      envutil.String("DOCUMENTAI_PROCESSOR_ID", ""),
		ProcessorVersion: envutil.String("DOCUMENTAI_PROCESSOR_VERSION", ""),
		Timeout:          envutil.Seconds("DOCUMENTAI_TIMEOUT_SECONDS", 180),
	}
}

func (c DocumentConfig) Enabled() bool {
	return c.ProjectID != "" && c.ProcessorID != ""
}

type documentService struct {
	log       *logger.Logger
	cfg       DocumentConfig
	docClient *documentai.DocumentProcessorClient
}

func NewDocument(log *logger.Logger, cfg DocumentConfig) (Document, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("documentai requires GCP_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	slog := log.With("service", "gcp.Document")

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog.Info("Document AI initialized", "endpoint", endpoint, "processor_id", cfg.ProcessorID)
	return &documentService{log: slog, cfg: cfg, docClient: c}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.docClient == nil {
		return nil
	}
	return s.docClient.Close()
}

func (s *documentService) ExtractText(ctx context.Context, mimeType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), s.cfg.Timeout)
	defer cancel()

	name := processorName(s.cfg.ProjectID, s.cfg.Location, s.cfg.ProcessorID, s.cfg.ProcessorVersion)
	resp, err := s.docClient.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: mimeType},
		},
		// Only the flattened text is consumed; skip layout payloads.
		FieldMask: &fieldmaskpb.FieldMask{Paths: []string{"text"}},
	})
	if err != nil {
		return "", fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Document.Text), nil
}

func processorName(projectID, location, processorID, version string) string {
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", projectID, location, processorID)
	if strings.TrimSpace(version) == "" {
		return base
	}
	return base + "/processorVersions/" + strings.TrimSpace(version)
}
