package legaltext

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	urlPattern       = regexp.MustCompile(`https?://\S+`)
	emailPattern     = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	lineNumber       = regexp.MustCompile(`(?m)^[ \t]*\d+[ \t]+`)
	horizontalSpace  = regexp.MustCompile(`[ \t]{2,}`)
	blankLines       = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)*`)
	etSeq            = regexp.MustCompile(`(?i)\bet\s*seq\b\.?`)
	sectionEntityRef = regexp.MustCompile(`&sect;`)
)

// CleanDocumentText prepares extracted statute text for chunking: it drops
// page breaks, control characters, links and leading line numbers, and
// normalizes citation spellings.
func CleanDocumentText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\f", "\n")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	text = urlPattern.ReplaceAllString(text, "")
	text = emailPattern.ReplaceAllString(text, "")
	text = lineNumber.ReplaceAllString(text, "")
	text = sectionEntityRef.ReplaceAllString(text, "§")
	text = etSeq.ReplaceAllString(text, "et seq.")
	text = NormalizeUSC(text)
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
