package evidence

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/pql-agent/internal/model"
)

// Hint sources.
const (
	HintFromEmailDomain = "email_domain"
	HintFromCompanyName = "company_name_com"
	HintNone            = "none"
)

var personalEmailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"yahoo.co.uk":    true,
	"outlook.com":    true,
	"hotmail.com":    true,
	"live.com":       true,
	"msn.com":        true,
	"icloud.com":     true,
	"me.com":         true,
	"aol.com":        true,
	"proton.me":      true,
	"protonmail.com": true,
	"mail.com":       true,
	"gmx.com":        true,
	"ymail.com":      true,
}

// InferWebsiteHint guesses a homepage without any network access: the
// business email domain first, then the folded company name plus ".com".
func InferWebsiteHint(email, company string) model.WebsiteHint {
	if domain := emailDomain(email); domain != "" && !personalEmailDomains[domain] {
		u := "https://" + domain
		return model.WebsiteHint{URL: &u, Source: HintFromEmailDomain}
	}

	if name := foldCompanyName(company); name != "" {
		u := "https://" + name + ".com"
		return model.WebsiteHint{URL: &u, Source: HintFromCompanyName}
	}

	return model.WebsiteHint{Source: HintNone}
}

func emailDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || !strings.Contains(domain, ".") {
		return ""
	}
	return strings.TrimPrefix(domain, "www.")
}

// foldCompanyName strips accents and keeps only ASCII letters and digits.
func foldCompanyName(company string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, company)
	if err != nil {
		folded = company
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
