package orchestration

import (
	"regexp"
	"strings"
)

// Formatting that reads fine on screen but sounds wrong when spoken.
var (
	boldPattern    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern  = regexp.MustCompile(`\*(.*?)\*`)
	codePattern    = regexp.MustCompile("`(.*?)`")
	headingPattern = regexp.MustCompile(`#+ (.+)`)
	linkPattern    = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// cleanForSynthesis strips markup from model output before it is handed to
// the speech synthesizer. It keeps the wording intact and only removes
// formatting.
func cleanForSynthesis(text string) string {
	text = boldPattern.ReplaceAllString(text, "$1")
	text = italicPattern.ReplaceAllString(text, "$1")
	text = codePattern.ReplaceAllString(text, "$1")
	text = headingPattern.ReplaceAllString(text, "$1")
	text = linkPattern.ReplaceAllString(text, "$1")

	text = htmlTagPattern.ReplaceAllString(text, "")

	text = spacePattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
