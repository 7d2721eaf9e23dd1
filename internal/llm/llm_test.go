package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   map[string]any
		wantOK bool
	}{
		{
			name:   "plain object",
			in:     `{"days_since_last_active": 4}`,
			want:   map[string]any{"days_since_last_active": float64(4)},
			wantOK: true,
		},
		{
			name:   "fenced",
			in:     "```json\n{\"subject\": \"Hi\"}\n```",
			want:   map[string]any{"subject": "Hi"},
			wantOK: true,
		},
		{
			name:   "surrounding prose",
			in:     "Sure! Here it is: {\"a\": {\"b\": 1}} Hope that helps.",
			want:   map[string]any{"a": map[string]any{"b": float64(1)}},
			wantOK: true,
		},
		{
			name:   "no object",
			in:     "I don't know",
			wantOK: false,
		},
		{
			name:   "broken json",
			in:     `{"a": 1,,}`,
			wantOK: false,
		},
		{
			name:   "two objects span is not valid",
			in:     `{"a":1} and {"b":2}`,
			wantOK: false,
		},
		{
			name:   "empty",
			in:     "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestExtractJSONOr(t *testing.T) {
	fallback := map[string]any{"subject": "Quick follow-up"}
	assert.Equal(t, fallback, ExtractJSONOr("nope", fallback))
	assert.Equal(t, map[string]any{"x": true}, ExtractJSONOr(`{"x": true}`, fallback))
}

func TestCompleterFunc(t *testing.T) {
	var c Completer = CompleterFunc(func(_ context.Context, system, user string) (string, error) {
		return system + "|" + user, nil
	})
	out, err := c.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, "sys|usr", out)
}
