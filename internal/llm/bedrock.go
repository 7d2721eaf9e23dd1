package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// ModelInvoker is the slice of the Bedrock runtime client we call.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type bedrockMessage struct {
	Role    string         `json:"role"`
	Content []bedrockBlock `json:"content"`
}

type bedrockBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int64            `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature"`
}

type bedrockResponse struct {
	Content    []bedrockBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// BedrockCompleter completes prompts with an Anthropic model hosted on AWS
// Bedrock.
type BedrockCompleter struct {
	client      ModelInvoker
	modelID     string
	maxTokens   int64
	temperature float64
}

// NewBedrockCompleter loads the default AWS credential chain for region.
func NewBedrockCompleter(ctx context.Context, region, modelID string, maxTokens int64, temperature float64) (*BedrockCompleter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "llm: load aws config")
	}
	return NewBedrockCompleterWithClient(bedrockruntime.NewFromConfig(cfg), modelID, maxTokens, temperature), nil
}

// NewBedrockCompleterWithClient builds a completer over an existing invoker.
func NewBedrockCompleterWithClient(client ModelInvoker, modelID string, maxTokens int64, temperature float64) *BedrockCompleter {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &BedrockCompleter{
		client:      client,
		modelID:     modelID,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Complete invokes the model with an Anthropic Messages body.
func (c *BedrockCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        c.maxTokens,
		System:           system,
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockBlock{{Type: "text", Text: user}},
		}},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: marshal bedrock request")
	}

	out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: bedrock invoke model")
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", eris.Wrap(err, "llm: parse bedrock response")
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	zap.L().Debug("bedrock completion",
		zap.String("model", c.modelID),
		zap.String("stop_reason", resp.StopReason),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)

	return b.String(), nil
}
