package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferWebsiteHint(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		company string
		wantURL string
		source  string
	}{
		{"business email", "Jane@Acme.IO", "Acme Corp", "https://acme.io", HintFromEmailDomain},
		{"strips www", "jane@www.acme.io", "", "https://acme.io", HintFromEmailDomain},
		{"personal email uses company", "jane@gmail.com", "Acme Corp, Inc.", "https://acmecorpinc.com", HintFromCompanyName},
		{"accents folded", "", "Café Düsseldorf", "https://cafedusseldorf.com", HintFromCompanyName},
		{"domain without dot", "jane@localhost", "Beta", "https://beta.com", HintFromCompanyName},
		{"nothing usable", "not-an-email", "!!!", "", HintNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferWebsiteHint(tt.email, tt.company)
			assert.Equal(t, tt.source, got.Source)
			if tt.wantURL == "" {
				assert.Nil(t, got.URL)
				return
			}
			require.NotNil(t, got.URL)
			assert.Equal(t, tt.wantURL, *got.URL)
		})
	}
}
