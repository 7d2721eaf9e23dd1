// Package anthropic sends single-turn prompts to the Anthropic Messages API
// and reports token usage for each reply.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Messenger sends one prompt and returns the model's reply.
type Messenger interface {
	Send(ctx context.Context, p Prompt) (*Reply, error)
}

// Prompt is a single system+user exchange.
type Prompt struct {
	Model       string
	System      string
	User        string
	MaxTokens   int64
	Temperature *float64

	// CacheSystem marks the system prompt as an ephemeral cache breakpoint.
	// Batches reuse one system prompt per agent, so later leads read it warm.
	CacheSystem bool
}

// Reply is the text of a completion plus its accounting.
type Reply struct {
	ID         string
	Model      string
	Text       string
	StopReason string
	Usage      Usage
}

// Usage counts the tokens billed for one reply.
type Usage struct {
	Input      int64
	Output     int64
	CacheWrite int64
	CacheRead  int64
}

type price struct {
	input  float64 // USD per million tokens
	output float64
}

var prices = map[string]price{
	"claude-haiku-4-5-20251001":  {input: 1.00, output: 5.00},
	"claude-3-5-haiku-latest":    {input: 0.80, output: 4.00},
	"claude-sonnet-4-5-20250929": {input: 3.00, output: 15.00},
}

// CostUSD estimates the cost of u for model. Unknown models cost 0.
// Cache writes bill at 1.25x input and cache reads at 0.1x input.
func (u Usage) CostUSD(model string) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	const perM = 1e6
	return float64(u.Input)/perM*p.input +
		float64(u.Output)/perM*p.output +
		float64(u.CacheWrite)/perM*p.input*1.25 +
		float64(u.CacheRead)/perM*p.input*0.1
}

// Fields renders u as structured log fields.
func (u Usage) Fields(model string) []zap.Field {
	return []zap.Field{
		zap.String("model", model),
		zap.Int64("input_tokens", u.Input),
		zap.Int64("output_tokens", u.Output),
		zap.Int64("cache_write_tokens", u.CacheWrite),
		zap.Int64("cache_read_tokens", u.CacheRead),
		zap.Float64("estimated_cost_usd", u.CostUSD(model)),
	}
}

// Option configures a Client.
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(o *[]option.RequestOption) {
		*o = append(*o, option.WithBaseURL(url))
	}
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) Option {
	return func(o *[]option.RequestOption) {
		*o = append(*o, option.WithMaxRetries(n))
	}
}

// Client is a Messenger backed by the official SDK.
type Client struct {
	api sdk.Client
}

// New creates a Client authenticated with apiKey.
func New(apiKey string, opts ...Option) *Client {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Client{api: sdk.NewClient(reqOpts...)}
}

// Send posts p as one user turn. API failures carry the HTTP status.
func (c *Client) Send(ctx context.Context, p Prompt) (*Reply, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.Model),
		MaxTokens: p.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(p.User))},
	}
	if p.System != "" {
		block := sdk.TextBlockParam{Text: p.System}
		if p.CacheSystem {
			block.CacheControl = sdk.NewCacheControlEphemeralParam()
		}
		params.System = []sdk.TextBlockParam{block}
	}
	if p.Temperature != nil {
		params.Temperature = sdk.Float(*p.Temperature)
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return nil, eris.Wrapf(err, "anthropic: send (status %d)", apiErr.StatusCode)
		}
		return nil, eris.Wrap(err, "anthropic: send")
	}
	return replyFrom(msg), nil
}

func replyFrom(msg *sdk.Message) *Reply {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Reply{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Text:       text.String(),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			Input:      msg.Usage.InputTokens,
			Output:     msg.Usage.OutputTokens,
			CacheWrite: msg.Usage.CacheCreationInputTokens,
			CacheRead:  msg.Usage.CacheReadInputTokens,
		},
	}
}
