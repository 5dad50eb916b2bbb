// Package legaltext holds the text primitives shared by query understanding,
// lexical indexing and metadata extraction over statute text.
package legaltext

import (
	"strings"
	"unicode"
)

// Tokenize splits s into lowercase alphanumeric tokens.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '\'' || r == '’' {
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

// Terms tokenizes s and drops stop words. Repeated terms are kept so callers
// can count frequencies.
func Terms(s string) []string {
	tokens := Tokenize(s)
	out := tokens[:0]
	for _, tok := range tokens {
		if IsStopWord(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// UniqueTerms is Terms with duplicates removed, first occurrence wins.
func UniqueTerms(s string) []string {
	return Dedupe(Terms(s))
}

// Dedupe removes case-insensitive duplicates preserving first-seen order.
func Dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func IsStopWord(tok string) bool {
	_, ok := stopWords[tok]
	return ok
}

var stopWords = toSet(
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and",
	"any", "are", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "could", "did", "do", "does", "doing",
	"down", "during", "each", "few", "for", "from", "further", "had", "has", "have",
	"having", "he", "her", "here", "hers", "him", "his", "how", "i", "if", "in",
	"into", "is", "it", "its", "itself", "just", "me", "more", "most", "my", "no",
	"nor", "not", "now", "of", "off", "on", "once", "only", "or", "other", "our",
	"out", "over", "own", "same", "she", "should", "so", "some", "such", "than",
	"that", "the", "their", "them", "then", "there", "these", "they", "this",
	"those", "through", "to", "too", "under", "until", "up", "very", "was", "we",
	"were", "what", "when", "where", "which", "while", "who", "whom", "why",
	"will", "with", "would", "you", "your", "s", "t",
)

func toSet(items ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[item] = struct{}{}
	}
	return out
}
