package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrCitationLeak is returned when a reply cites a source outside the
// allowed evidence
var ErrCitationLeak = errors.New("citation leak")

var urlPattern = regexp.MustCompile(`https?://[^\s\)\]"'<>]+`)

// ExtractURLs returns the distinct URLs mentioned in text, in order
func ExtractURLs(text string) []string {
	seen := make(map[string]bool)
	var unique []string
	for _, u := range urlPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}
	return unique
}

// CheckCitations fails if any cited URL is missing from allowed.
// Trailing slashes are ignored when comparing.
func CheckCitations(cited, allowed []string) error {
	ok := make(map[string]bool, len(allowed))
	for _, u := range allowed {
		ok[strings.TrimSuffix(u, "/")] = true
	}
	for _, u := range cited {
		if !ok[strings.TrimSuffix(u, "/")] {
			return fmt.Errorf("%w: cited disallowed URL %s", ErrCitationLeak, u)
		}
	}
	return nil
}

// DecodeJSON decodes the first JSON object or array in a model reply.
// Markdown code fences and surrounding prose are tolerated.
func DecodeJSON(text string, v any) error {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return fmt.Errorf("empty reply")
	}

	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return fmt.Errorf("no JSON value in reply: %s", truncate(raw, 80))
	}
	closer := byte('}')
	if raw[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(raw, closer)
	if end < start {
		return fmt.Errorf("unterminated JSON value in reply: %s", truncate(raw, 80))
	}

	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
