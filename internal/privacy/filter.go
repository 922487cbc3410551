package privacy

import (
	"regexp"
	"strings"
)

// privateTagRegex matches <private>...</private> blocks (non-greedy, dotall).
var privateTagRegex = regexp.MustCompile(`(?s)<private>.*?</private>`)

// StripPrivateTags removes all <private>...</private> blocks from a message
// before it is formatted into a memory document.
func StripPrivateTags(content string) string {
	return strings.TrimSpace(privateTagRegex.ReplaceAllString(content, ""))
}

// HasOnlyPrivateContent returns true if nothing useful remains after
// stripping private blocks and whitespace.
func HasOnlyPrivateContent(content string) bool {
	return StripPrivateTags(content) == ""
}
