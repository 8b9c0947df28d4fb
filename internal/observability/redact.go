// Package observability provides structured logging with credential
// redaction. The scheduler handles raw API secrets, so anything that
// could leak one into a log line goes through the redactor first.
package observability

import (
	"regexp"
	"strings"
)

// Redactor handles sensitive data masking in logs.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
	name        string
}

// NewRedactor creates a new redactor with default patterns.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.addDefaultPatterns()
	return r
}

func (r *Redactor) addDefaultPatterns() {
	// Bearer tokens and Authorization headers
	r.AddPattern(`Bearer\s+[a-zA-Z0-9\-_\.=/+]+`, "Bearer [REDACTED]", "bearer_token")
	r.AddPattern(`Basic\s+[a-zA-Z0-9=/+]+`, "Basic [REDACTED]", "basic_auth")
	r.AddPattern(`Authorization:\s*[^\s]+`, "Authorization: [REDACTED]", "auth_header")

	// password/secret/token in URLs and key=value fragments
	r.AddPattern(`://[^/\s:@]+:[^@\s]+@`, "://[REDACTED]@", "url_userinfo")
	r.AddPattern(`(?i)(api[_-]?key|secret|token|password)=[^&\s"']+`, "$1=[REDACTED]", "kv_secret")

	// bare hex secrets (app passwords, personal tokens)
	r.AddPattern(`\b[a-f0-9]{32,64}\b`, "[REDACTED_SECRET]", "hex_secret")
}

// AddPattern adds a custom redaction pattern.
func (r *Redactor) AddPattern(pattern, replacement, name string) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return // Skip invalid patterns
	}
	r.patterns = append(r.patterns, &redactPattern{
		regex:       regex,
		replacement: replacement,
		name:        name,
	})
}

// Redact applies all redaction patterns to the input string.
func (r *Redactor) Redact(input string) string {
	result := input
	for _, p := range r.patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

// RedactValue masks a value entirely when its key suggests secret
// material, and pattern-redacts it otherwise.
func (r *Redactor) RedactValue(key, value string) string {
	lowerKey := strings.ToLower(key)
	for _, marker := range []string{"secret", "password", "token", "api_key", "apikey"} {
		if strings.Contains(lowerKey, marker) {
			return "[REDACTED]"
		}
	}
	return r.Redact(value)
}
