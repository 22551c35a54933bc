package llm

import (
	"context"
	"errors"
)

// Embedder turns text into fixed-dimension vectors, one per input in order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Generator produces free text or JSON matching a schema.
type Generator interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

// Provider hands out model-bound clients. Embeddings are optional.
type Provider interface {
	Name() string
	Generator(model string) Generator
	Embedder(model string) (Embedder, bool)
}

var (
	ErrNoRoute          = errors.New("no model route for task")
	ErrUnknownProvider  = errors.New("unknown model provider")
	ErrNoEmbeddingModel = errors.New("provider does not support embeddings")
)
