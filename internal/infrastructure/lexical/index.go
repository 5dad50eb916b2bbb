// Package lexical implements an in-memory Okapi BM25 index over chunk text.
package lexical

import (
	"math"
	"sort"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/kirillkom/statute-rag/internal/core/legaltext"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type Document struct {
	ID   string
	Text string
}

type posting struct {
	doc int
	tf  int
}

// Index is built once per corpus version and only read afterwards.
type Index struct {
	ids      []string
	docLen   []int
	avgLen   float64
	postings map[string][]posting
}

func Build(docs []Document) *Index {
	ix := &Index{
		ids:      make([]string, 0, len(docs)),
		docLen:   make([]int, 0, len(docs)),
		postings: make(map[string][]posting, 1024),
	}

	totalLen := 0
	for docIdx, doc := range docs {
		terms := legaltext.Terms(doc.Text)
		ix.ids = append(ix.ids, doc.ID)
		ix.docLen = append(ix.docLen, len(terms))
		totalLen += len(terms)

		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}
		for term, freq := range tf {
			ix.postings[term] = append(ix.postings[term], posting{doc: docIdx, tf: freq})
		}
	}
	if len(docs) > 0 {
		ix.avgLen = float64(totalLen) / float64(len(docs))
	}
	return ix
}

// Empty reports whether the index has no terms to match against.
func (ix *Index) Empty() bool {
	return ix == nil || len(ix.postings) == 0
}

func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.ids)
}

func (ix *Index) Vocabulary() int {
	if ix == nil {
		return 0
	}
	return len(ix.postings)
}

// Search scores every document against terms and returns matches ordered by
// score, then id. Documents without any matching term are omitted.
func (ix *Index) Search(terms []string, limit int) []domain.ScoredID {
	if ix.Empty() || len(terms) == 0 {
		return nil
	}

	scores := make(map[int]float64, 64)
	n := float64(len(ix.ids))
	for _, term := range uniqueTokens(terms) {
		list := ix.postings[term]
		if len(list) == 0 {
			continue
		}
		df := float64(len(list))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range list {
			tf := float64(p.tf)
			norm := 1 - bm25B + bm25B*float64(ix.docLen[p.doc])/ix.avgLen
			scores[p.doc] += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*norm)
		}
	}

	out := make([]domain.ScoredID, 0, len(scores))
	for doc, score := range scores {
		if score <= 0 || math.IsNaN(score) {
			continue
		}
		out = append(out, domain.ScoredID{ChunkID: ix.ids[doc], Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func uniqueTokens(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		for _, tok := range legaltext.Tokenize(term) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	return out
}
