// Package prompt holds the statute QA prompts shared by the generation
// backends.
package prompt

import (
	"fmt"
	"strings"

	"github.com/kirillkom/statute-rag/internal/core/domain"
)

const LegalSystem = `You are a legal research assistant for U.S. Code Title 18 (federal criminal law).
Answer only from the statute text you are given.
Always cite statute numbers in the form "18 U.S.C. § 2113".
When describing a crime, list the elements that must be proven.
When describing punishment, state the maximum imprisonment and fine.
Mention exceptions when the text contains them.
If the text is insufficient, say so instead of guessing.`

func Answer(question string, passages []domain.Passage) string {
	var contextBuilder strings.Builder
	for idx, p := range passages {
		section := "unknown"
		if len(p.Metadata.SectionReferences) > 0 {
			section = "§ " + p.Metadata.SectionReferences[0]
		}
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] %s source=%s page=%d\n%s\n\n",
			idx+1,
			section,
			p.Metadata.Source,
			p.Metadata.PageNum,
			p.Text,
		))
	}

	return fmt.Sprintf(`Question:
%s

Statute text:
%s
Answer the question directly and cite the sections you rely on.
`, question, contextBuilder.String())
}

func Entities(text string) string {
	const maxSnippet = 2000
	snippet := text
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	return `Extract search keywords and named entities from a legal question.
Return strict JSON object with keys:
keywords (array of lowercase strings), entities (array of objects with keys text and type).
Entity type is one of LAW, ORG, PERSON, GPE. No markdown, no extra keys.

Question:
` + snippet
}
