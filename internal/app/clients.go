package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/lumen-backend/internal/platform/anthropic"
	"github.com/yungbote/lumen-backend/internal/platform/gcp"
	"github.com/yungbote/lumen-backend/internal/platform/llm"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
	"github.com/yungbote/lumen-backend/internal/platform/openai"
	"github.com/yungbote/lumen-backend/internal/realtime/bus"
	"github.com/yungbote/lumen-backend/internal/temporalx"
)

type Clients struct {
	SSEBus      bus.Bus
	GcpBucket   gcp.BucketService
	GcpDocument gcp.Document
	Models      *llm.Router

	Temporal    temporalsdkclient.Client
	TemporalCfg temporalx.Config
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis
	redisCfg := bus.RedisConfigFromEnv()
	if strings.TrimSpace(redisCfg.Addr) != "" {
		b, err := bus.NewRedisBus(log, redisCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		out.SSEBus = b
	}

	// Gcs. Without a bucket, uploads and signed URLs report storage_unavailable.
	storageCfg, err := gcp.StorageConfigFromEnv()
	var cfgErr *gcp.StorageConfigError
	switch {
	case errors.As(err, &cfgErr) && cfgErr.Code == gcp.StorageConfigErrorMissingBucket:
		log.Warn("Object storage disabled", "reason", cfgErr.Error())
	case err != nil:
		out.Close()
		return Clients{}, fmt.Errorf("object storage config: %w", err)
	default:
		out.GcpBucket, err = gcp.NewBucketService(log, storageCfg)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init bucket client: %w", err)
		}
	}

	// Document AI is optional; PDFs fall back to pdftotext.
	docCfg := gcp.DocumentConfigFromEnv()
	if docCfg.Enabled() {
		out.GcpDocument, err = gcp.NewDocument(log, docCfg)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init document client: %w", err)
		}
	}

	// Models
	out.Models, err = wireModels(log, cfg)
	if err != nil {
		out.Close()
		return Clients{}, err
	}

	// Temporal
	out.TemporalCfg = temporalx.LoadConfig()
	out.Temporal, err = temporalx.NewClient(ctx, out.TemporalCfg, log)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}

	return out, nil
}

// wireModels builds the task router from whichever providers have keys.
func wireModels(log *logger.Logger, cfg Config) (*llm.Router, error) {
	routes, err := llm.LoadRoutes(cfg.ModelRoutesPath)
	if err != nil {
		return nil, err
	}
	var providers []llm.Provider
	if oaCfg := openai.ConfigFromEnv(); strings.TrimSpace(oaCfg.APIKey) != "" {
		c, err := openai.NewClient(log, oaCfg)
		if err != nil {
			return nil, fmt.Errorf("init openai client: %w", err)
		}
		providers = append(providers, llm.OpenAIProvider(c))
	}
	if anCfg := anthropic.ConfigFromEnv(); strings.TrimSpace(anCfg.APIKey) != "" {
		c, err := anthropic.New(log, anCfg)
		if err != nil {
			return nil, fmt.Errorf("init anthropic client: %w", err)
		}
		providers = append(providers, llm.AnthropicProvider(c))
	}
	router, skipped, err := llm.NewRouter(routes, providers...)
	if err != nil {
		return nil, fmt.Errorf("model routes: %w", err)
	}
	if len(skipped) > 0 {
		log.Warn("Model routes without a configured provider", "tasks", skipped)
	}
	return router, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
	if c.GcpDocument != nil {
		_ = c.GcpDocument.Close()
	}
	if c.GcpBucket != nil {
		_ = c.GcpBucket.Close()
	}
}
