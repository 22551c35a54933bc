package llm

import (
	"github.com/yungbote/lumen-backend/internal/platform/anthropic"
	"github.com/yungbote/lumen-backend/internal/platform/openai"
)

type openAIProvider struct {
	client openai.Client
}

func OpenAIProvider(c openai.Client) Provider {
	return openAIProvider{client: c}
}

func (p openAIProvider) Name() string { return "openai" }

func (p openAIProvider) Generator(model string) Generator {
	return openai.WithModel(p.client, model, "")
}

func (p openAIProvider) Embedder(model string) (Embedder, bool) {
	return openai.WithModel(p.client, "", model), true
}

type anthropicProvider struct {
	client *anthropic.Client
}

func AnthropicProvider(c *anthropic.Client) Provider {
	return anthropicProvider{client: c}
}

func (p anthropicProvider) Name() string { return "anthropic" }

func (p anthropicProvider) Generator(model string) Generator {
	return p.client.WithModel(model)
}

func (p anthropicProvider) Embedder(string) (Embedder, bool) {
	return nil, false
}

type staticProvider struct {
	name string
	gen  Generator
	emb  Embedder
}

// StaticProvider serves the same clients for every model. Local runs and
// tests use it to plug in fixed implementations.
func StaticProvider(name string, gen Generator, emb Embedder) Provider {
	return staticProvider{name: name, gen: gen, emb: emb}
}

func (p staticProvider) Name() string { return p.name }

func (p staticProvider) Generator(string) Generator { return p.gen }

func (p staticProvider) Embedder(string) (Embedder, bool) {
	return p.emb, p.emb != nil
}
