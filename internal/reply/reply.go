// Package reply removes quoted/previous-thread content from a reply body
// using a per-rule separator token and signature-line heuristics.
package reply

import (
	"regexp"
	"strings"
)

// signatureLinePatterns recognize the locale-specific "on ... wrote:" lines
// mail clients place directly above quoted text.
var signatureLinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^on\b.*wrote:?$`),
	regexp.MustCompile(`(?i)^am\b.*schrieb [\w\d\s]+:$`),
	regexp.MustCompile(`(?i)^le\b.*a écrit:?$`),
}

// Strip returns the new-content portion of body above the most plausible
// quote boundary. The body is scanned backward line by line: the last line
// containing the separator is the provisional cut point, then blank lines and
// signature lines directly above it are consumed as well. An empty separator
// disables the feature and returns body unchanged; a separator on the very
// first line yields an empty string; a body without the separator is returned
// trimmed.
func Strip(body, separator string) string {
	if separator == "" {
		return body
	}
	if body == "" {
		return ""
	}

	lines := strings.Split(body, "\n")
	cut := -1
	foundEmpty := false

	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		switch {
		case cut < 0:
			if strings.Contains(line, separator) {
				cut = i
			}
		case !foundEmpty:
			cut = i
			foundEmpty = isBlank(line)
		default:
			if isBlank(line) || isSignatureLine(line) {
				cut = i
			} else {
				return strings.TrimSpace(strings.Join(lines[:i+1], "\n"))
			}
		}
	}

	if cut < 0 {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(strings.Join(lines[:cut], "\n"))
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func isSignatureLine(line string) bool {
	for _, re := range signatureLinePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
