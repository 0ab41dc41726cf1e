package validation

import (
	"regexp"
	"strings"
)

// SensitiveKind names a built-in sensitive data pattern.
type SensitiveKind string

const (
	KindCreditCard SensitiveKind = "credit_card"
	KindSSN        SensitiveKind = "ssn"
	KindEmail      SensitiveKind = "email"
)

type sensitivePattern struct {
	kind   SensitiveKind
	re     *regexp.Regexp
	redact func(match string) string
}

// Order matters: card numbers are redacted before the SSN pattern runs so
// a 16-digit run is never partially rewritten as an SSN. None of the
// redacted forms match any pattern, which keeps Sanitize idempotent.
var sensitivePatterns = []sensitivePattern{
	{
		kind:   KindCreditCard,
		re:     regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
		redact: redactCard,
	},
	{
		kind:   KindSSN,
		re:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		redact: redactSSN,
	},
	{
		kind:   KindEmail,
		re:     regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		redact: redactEmail,
	},
}

// ContainsSensitive reports the first sensitive pattern found in text.
func ContainsSensitive(text string) (SensitiveKind, bool) {
	for _, p := range sensitivePatterns {
		if p.re.MatchString(text) {
			return p.kind, true
		}
	}
	return "", false
}

// Sanitize replaces sensitive substrings with partially redacted forms.
func Sanitize(text string) string {
	for _, p := range sensitivePatterns {
		text = p.re.ReplaceAllStringFunc(text, p.redact)
	}
	return text
}

func redactCard(match string) string {
	digits := onlyDigits(match)
	return "****-****-****-" + digits[len(digits)-4:]
}

func redactSSN(match string) string {
	return "***-**-" + match[len(match)-4:]
}

func redactEmail(match string) string {
	local, domain, _ := strings.Cut(match, "@")
	if local == "" {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
