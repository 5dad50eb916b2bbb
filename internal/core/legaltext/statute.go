package legaltext

import (
	"regexp"
	"strings"
)

var (
	uscVariant  = regexp.MustCompile(`(?i)\bu\.?\s?s\.?\s?c\b\.?`)
	sectionSign = regexp.MustCompile(`§+\s*`)
	sectionWord = regexp.MustCompile(`(?i)\b(?:sec\.|section)\s+(\d+[a-z]?)\b`)

	// 18 U.S.C. § 2113, 18 U.S.C. 2113, § 2113, §§ 2113
	sectionRef = regexp.MustCompile(`(?i)(?:\b\d+\s+U\.S\.C\.\s*(?:§\s*)?|§\s*)(\d+[a-z]?(?:\.\d+)?)`)
	cfrRef     = regexp.MustCompile(`(?i)\b(\d+)\s+C\.F\.R\.\s*(?:§\s*)?(\d+(?:\.\d+)?)`)
)

// NormalizeUSC rewrites spelling variants of the code abbreviation to
// "U.S.C." and tightens section signs to "§ ".
func NormalizeUSC(s string) string {
	s = uscVariant.ReplaceAllString(s, "U.S.C.")
	s = sectionWord.ReplaceAllString(s, "§ $1")
	return sectionSign.ReplaceAllString(s, "§ ")
}

// SectionNumbers returns the statute section numbers referenced in s, in
// first-seen order without duplicates.
func SectionNumbers(s string) []string {
	s = NormalizeUSC(s)
	matches := sectionRef.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.ToLower(m[1]))
	}
	return Dedupe(out)
}

// CanonicalSection renders a Title 18 section number in citation form.
func CanonicalSection(number string) string {
	return "18 U.S.C. § " + number
}

// CFRReference is a "<title> C.F.R. § <part>" match.
type CFRReference struct {
	Title string
	Part  string
}

func CFRReferences(s string) []CFRReference {
	matches := cfrRef.FindAllStringSubmatch(s, -1)
	out := make([]CFRReference, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		key := m[1] + ":" + m[2]
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, CFRReference{Title: m[1], Part: m[2]})
	}
	return out
}
