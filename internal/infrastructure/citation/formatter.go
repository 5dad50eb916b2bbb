// Package citation finds U.S. Code and C.F.R. references in answer text and
// turns them into links.
package citation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/legaltext"
)

const (
	KindUSC = "usc"
	KindCFR = "cfr"

	defaultTitle = 18
)

var (
	uscPattern = regexp.MustCompile(`(?:\b(\d+)\s+U\.S\.C\.\s*(?:§\s*)?|§\s*)(\d+[a-zA-Z]?(?:\.\d+)?)((?:\s*\([a-zA-Z0-9]+\))*)`)
	cfrPattern = regexp.MustCompile(`\b(\d+)\s+C\.F\.R\.\s*(?:§\s*)?(\d+(?:\.\d+)?)`)
)

type match struct {
	start, end int
	citation   domain.Citation
}

// Formatter is stateless and safe for concurrent use.
type Formatter struct {
	uscBase string
	cfrBase string
}

func NewFormatter() *Formatter {
	return &Formatter{
		uscBase: "https://www.law.cornell.edu/uscode/text",
		cfrBase: "https://www.ecfr.gov/current",
	}
}

// Extract returns one citation per referenced section, keeping the most
// specific spelling (for example "§ 2113(a)" over "§ 2113").
func (f *Formatter) Extract(text string) []domain.Citation {
	matches := f.find(normalize(text))
	out := make([]domain.Citation, 0, len(matches))
	index := make(map[string]int, len(matches))
	width := make(map[string]int, len(matches))
	for _, m := range matches {
		key := fmt.Sprintf("%s:%d:%s", m.citation.Kind, m.citation.Title, strings.ToLower(m.citation.Section))
		w := m.end - m.start
		if i, ok := index[key]; ok {
			if w > width[key] {
				out[i] = m.citation
				width[key] = w
			}
			continue
		}
		index[key] = len(out)
		width[key] = w
		out = append(out, m.citation)
	}
	return out
}

// Format wraps every reference in a markdown link.
func (f *Formatter) Format(text string) string {
	text = normalize(text)
	matches := f.find(text)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.start])
		fmt.Fprintf(&b, "[%s](%s)", text[m.start:m.end], m.citation.URL)
		last = m.end
	}
	b.WriteString(text[last:])
	return b.String()
}

func normalize(text string) string {
	return strings.ReplaceAll(text, "&sect;", "§")
}

// find returns non-overlapping matches in text order. C.F.R. matches win
// over the bare "§ N" they contain.
func (f *Formatter) find(text string) []match {
	var out []match
	taken := func(start, end int) bool {
		for _, m := range out {
			if start < m.end && m.start < end {
				return true
			}
		}
		return false
	}

	for _, loc := range cfrPattern.FindAllStringSubmatchIndex(text, -1) {
		title, _ := strconv.Atoi(text[loc[2]:loc[3]])
		part := text[loc[4]:loc[5]]
		out = append(out, match{start: loc[0], end: loc[1], citation: domain.Citation{
			Reference: fmt.Sprintf("%d C.F.R. § %s", title, part),
			Title:     title,
			Section:   part,
			Kind:      KindCFR,
			URL:       fmt.Sprintf("%s/title-%d/section-%s", f.cfrBase, title, part),
		}})
	}

	for _, loc := range uscPattern.FindAllStringSubmatchIndex(text, -1) {
		if taken(loc[0], loc[1]) {
			continue
		}
		title := defaultTitle
		if loc[2] >= 0 {
			title, _ = strconv.Atoi(text[loc[2]:loc[3]])
		}
		section := strings.ToLower(text[loc[4]:loc[5]])
		subsections := strings.ReplaceAll(text[loc[6]:loc[7]], " ", "")
		reference := legaltext.CanonicalSection(section + subsections)
		if title != defaultTitle {
			reference = fmt.Sprintf("%d U.S.C. § %s%s", title, section, subsections)
		}
		out = append(out, match{start: loc[0], end: loc[1], citation: domain.Citation{
			Reference: reference,
			Title:     title,
			Section:   section,
			Kind:      KindUSC,
			URL:       fmt.Sprintf("%s/%d/%s", f.uscBase, title, section),
		}})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}
