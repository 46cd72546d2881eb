// Package llm adapts a langchaingo chat model to the pipeline's classifier,
// decision maker and responder.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ledgerd/internal/config"
	"github.com/fyrsmithlabs/ledgerd/internal/decision"
)

var (
	// ErrEmptyCompletion is returned when the model answers with no choices.
	ErrEmptyCompletion = errors.New("model returned no completion")
	// ErrMalformedOutput is returned when structured output cannot be parsed.
	ErrMalformedOutput = errors.New("model returned malformed output")
)

// jsonOnlyInstruction is appended to the system prompt of structured calls.
// The completion is still passed through stripFences before decoding.
const jsonOnlyInstruction = "\n\nRespond with a single JSON object and nothing else."

// NewOpenAI builds an OpenAI-compatible chat model from configuration.
func NewOpenAI(cfg config.LLMConfig) (llms.Model, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("llm base url and model are required")
	}
	token := cfg.APIKey.Value()
	if token == "" {
		// Local OpenAI-compatible servers ignore the token but langchaingo requires one.
		token = "placeholder"
	}
	model, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return model, nil
}

// Client issues rate-limited completions and reports token usage.
type Client struct {
	model     llms.Model
	modelName string
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit limits completions to r per second with the given burst.
// A zero r disables limiting.
func WithRateLimit(r float64, burst int) ClientOption {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient wraps model. modelName is reported in usage.
func NewClient(model llms.Model, modelName string, opts ...ClientOption) *Client {
	c := &Client{model: model, modelName: modelName, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type completion struct {
	system   string
	user     string
	jsonMode bool
	maxTok   int
}

func (c *Client) complete(ctx context.Context, req completion) (string, decision.Usage, error) {
	usage := decision.Usage{Model: c.modelName}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", usage, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	system := req.system
	if req.jsonMode {
		system += jsonOnlyInstruction
	}
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, req.user),
	}
	opts := []llms.CallOption{llms.WithTemperature(0.1)}
	if req.maxTok > 0 {
		opts = append(opts, llms.WithMaxTokens(req.maxTok))
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", usage, err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", usage, ErrEmptyCompletion
	}

	choice := resp.Choices[0]
	usage.Tokens = totalTokens(choice.GenerationInfo)
	c.logger.Debug("llm completion",
		zap.String("model", c.modelName),
		zap.Int("tokens", usage.Tokens),
		zap.String("stop_reason", choice.StopReason))
	return choice.Content, usage, nil
}

// totalTokens reads the usage counters the OpenAI backend reports.
func totalTokens(info map[string]any) int {
	if info == nil {
		return 0
	}
	if n, ok := asInt(info["TotalTokens"]); ok {
		return n
	}
	prompt, _ := asInt(info["PromptTokens"])
	completion, _ := asInt(info["CompletionTokens"])
	return prompt + completion
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
