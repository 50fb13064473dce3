package heuristics

import (
	"regexp"
	"strings"
)

// summaryLimit caps the fallback description when no sentence boundary is
// found in the cleaned text.
const summaryLimit = 240

var (
	cssFragmentRe = regexp.MustCompile(`[{}]|^\s*[.#@][\w-]+\s*[:,{]|^\s*[\w-]+\s*:\s*[^ ]+;`)
	layoutTokenRe = regexp.MustCompile(`(?i)^(menu|home|search|login|sign in|skip to (main )?content|toggle navigation|close|×|\|)$`)
	spaceRe       = regexp.MustCompile(`[ \t]+`)
	sentenceEndRe = regexp.MustCompile(`[.!?](\s|$)`)
)

// CleanLines splits page text into trimmed lines with style-sheet fragments
// and layout tokens removed. Hour scanning and the description summary both
// operate on this view of the page.
func CleanLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		if cssFragmentRe.MatchString(line) {
			continue
		}
		if layoutTokenRe.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Summarize joins cleaned lines and returns the first sentence, or the first
// 240 characters when no sentence terminator appears.
func Summarize(text string) string {
	joined := strings.Join(CleanLines(text), " ")
	joined = strings.TrimSpace(joined)
	if joined == "" {
		return ""
	}

	if loc := sentenceEndRe.FindStringIndex(joined); loc != nil {
		return strings.TrimSpace(joined[:loc[0]+1])
	}

	if len(joined) > summaryLimit {
		return strings.TrimSpace(joined[:summaryLimit])
	}
	return joined
}
