package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/yungbote/lumen-backend/internal/platform/envutil"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:    envutil.String("ANTHROPIC_API_KEY", ""),
		BaseURL:   envutil.String("ANTHROPIC_BASE_URL", ""),
		Model:     envutil.String("ANTHROPIC_MODEL", string(anthropic.ModelClaude4Sonnet20250514)),
		MaxTokens: envutil.Int64("ANTHROPIC_MAX_TOKENS", 4096),
		Timeout:   envutil.Seconds("ANTHROPIC_TIMEOUT_SECONDS", 120),
	}
}

// Client produces text and schema-shaped JSON through the Messages API.
// JSON output is obtained by forcing a single tool call whose input schema
// is the requested output schema.
type Client struct {
	log       *logger.Logger
	api       *anthropic.Client
	model     string
	maxTokens int64
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing ANTHROPIC_API_KEY")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	api := anthropic.NewClient(opts...)
	return &Client{
		log:       log.With("service", "AnthropicClient"),
		api:       &api,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// WithModel returns a copy bound to model.
func (c *Client) WithModel(model string) *Client {
	clone := *c
	if strings.TrimSpace(model) != "" {
		clone.model = strings.TrimSpace(model)
	}
	return &clone
}

func (c *Client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	resp, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(tb.Text)
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", errors.New("anthropic response contained no text")
	}
	return out.String(), nil
}

func (c *Client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	props := schema["properties"]
	if props == nil {
		return nil, errors.New("schema must declare properties")
	}
	resp, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
		Tools: []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        schemaName,
				Description: anthropic.String("Return the result as the tool input."),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: props},
			},
		}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: schemaName},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	for _, block := range resp.Content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok || toolUse.Name != schemaName {
			continue
		}
		raw, err := json.Marshal(toolUse.Input)
		if err != nil {
			return nil, fmt.Errorf("anthropic tool input: %w", err)
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("failed to parse model JSON: %w", err)
		}
		return obj, nil
	}
	c.log.Warn("Anthropic response missing tool call", "schema", schemaName, "stop_reason", string(resp.StopReason))
	return nil, fmt.Errorf("anthropic response missing %s tool call", schemaName)
}
