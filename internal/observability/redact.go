package observability

import "regexp"

// Patterns matching credential-bearing fragments that must never reach a log
// sink. LLM request/response bodies pass through Redact before logging.
var redactPatterns = []*regexp.Regexp{
	// Bearer tokens and Authorization headers.
	regexp.MustCompile(`(?i)(authorization\s*:\s*)(bearer\s+)?[a-z0-9._~+/-]+=*`),
	// Google style API keys.
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{30,}`),
	// OpenAI style secret keys.
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`),
	// Key-ish query params and JSON fields.
	regexp.MustCompile(`(?i)("?(?:api[_-]?key|token|secret|password)"?\s*[:=]\s*"?)[^"&\s,}]+`),
}

// Redact replaces credential-bearing substrings with a placeholder so that
// request/response bodies can be logged for diagnostics without leaking
// secrets.
func Redact(s string) string {
	for _, p := range redactPatterns {
		s = p.ReplaceAllStringFunc(s, func(m string) string {
			// Preserve a recognizable prefix when the pattern captured one.
			if sub := p.FindStringSubmatch(m); len(sub) > 1 && sub[1] != "" {
				return sub[1] + "[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return s
}
