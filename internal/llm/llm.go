// Package llm exposes the single chat-completion capability the agents
// depend on, with Anthropic and AWS Bedrock backends, plus lenient parsing
// of JSON objects embedded in model output.
package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// Completer sends one system+user exchange and returns the raw text reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, user string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

var (
	fenceRe  = regexp.MustCompile("```(?:json)?")
	objectRe = regexp.MustCompile(`\{[\s\S]*\}`)
)

// ExtractJSON pulls the outermost JSON object out of model output. Markdown
// code fences are stripped first. ok is false when no object parses.
func ExtractJSON(content string) (map[string]any, bool) {
	cleaned := strings.Trim(fenceRe.ReplaceAllString(content, ""), "` \n")
	match := objectRe.FindString(cleaned)
	if match == "" {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(match), &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

// ExtractJSONOr is ExtractJSON with a fallback object.
func ExtractJSONOr(content string, fallback map[string]any) map[string]any {
	if out, ok := ExtractJSON(content); ok {
		return out
	}
	return fallback
}
