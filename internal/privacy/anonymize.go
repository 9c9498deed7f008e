package privacy

import "regexp"

// Placeholders substituted for detected identifiers.
const (
	EmailPlaceholder   = "[EMAIL]"
	PhonePlaceholder   = "[PHONE]"
	SSNPlaceholder     = "[SSN]"
	AddressPlaceholder = "[ADDRESS]"
	NamePlaceholder    = "[NAME]"
)

type substitution struct {
	pattern     *regexp.Regexp
	placeholder string
}

// Addresses run before names so "12 Main Street" is not read as a name.
var substitutions = []substitution{
	{regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), EmailPlaceholder},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), SSNPlaceholder},
	{regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(\d{3}\)\s?|\b\d{3}[-.\s])\d{3}[-.\s]\d{4}\b`), PhonePlaceholder},
	{regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Z][a-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way)\b\.?`), AddressPlaceholder},
	{regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`), NamePlaceholder},
}

// Anonymize masks emails, SSNs, phone numbers, street addresses and
// capitalized two-word names in s.
func Anonymize(s string) string {
	for _, sub := range substitutions {
		s = sub.pattern.ReplaceAllLiteralString(s, sub.placeholder)
	}
	return s
}

// AnonymizeValue applies Anonymize to every string reachable from v.
// Other values are returned unchanged.
func AnonymizeValue(v any) any {
	switch typed := v.(type) {
	case string:
		return Anonymize(typed)
	case []string:
		out := make([]string, len(typed))
		for i, s := range typed {
			out[i] = Anonymize(s)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = AnonymizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = AnonymizeValue(item)
		}
		return out
	default:
		return v
	}
}
