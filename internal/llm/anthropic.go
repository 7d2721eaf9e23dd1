package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pql-agent/pkg/anthropic"
)

// AnthropicCompleter completes prompts with the Anthropic Messages API.
type AnthropicCompleter struct {
	client      anthropic.Messenger
	model       string
	maxTokens   int64
	temperature *float64
}

// NewAnthropicCompleter wraps an Anthropic client for a fixed model.
func NewAnthropicCompleter(client anthropic.Messenger, model string, maxTokens int64, temperature float64) *AnthropicCompleter {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicCompleter{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: &temperature,
	}
}

// Complete sends the prompt and returns the reply text.
func (c *AnthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	reply, err := c.client.Send(ctx, anthropic.Prompt{
		Model:       c.model,
		System:      system,
		User:        user,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		CacheSystem: true,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: anthropic complete")
	}
	zap.L().Info("llm: anthropic usage", reply.Usage.Fields(c.model)...)
	return reply.Text, nil
}
