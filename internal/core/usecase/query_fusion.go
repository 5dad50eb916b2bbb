package usecase

import "sort"

const defaultRRFConstant = 60

// fusedCandidate carries 1-based source ranks; zero means the chunk is absent
// from that source.
type fusedCandidate struct {
	chunkID    string
	denseRank  int
	sparseRank int
	score      float64
}

func (c fusedCandidate) bestRank() int {
	switch {
	case c.denseRank == 0:
		return c.sparseRank
	case c.sparseRank == 0:
		return c.denseRank
	case c.denseRank < c.sparseRank:
		return c.denseRank
	default:
		return c.sparseRank
	}
}

// fuseCandidatesRRF applies reciprocal rank fusion over the dense and sparse
// rankings. Chunks rejected by keep are skipped without shifting the ranks of
// the remaining ones. Only ranks contribute to the score.
func fuseCandidatesRRF(dense, sparse []string, keep func(string) bool, rrfK int) []fusedCandidate {
	if rrfK <= 0 {
		rrfK = defaultRRFConstant
	}
	if keep == nil {
		keep = func(string) bool { return true }
	}

	acc := make(map[string]*fusedCandidate, len(dense)+len(sparse))
	addList := func(ids []string, setRank func(*fusedCandidate, int)) {
		for i, id := range ids {
			if !keep(id) {
				continue
			}
			rank := i + 1
			candidate, ok := acc[id]
			if !ok {
				candidate = &fusedCandidate{chunkID: id}
				acc[id] = candidate
			}
			setRank(candidate, rank)
			candidate.score += 1.0 / float64(rrfK+rank)
		}
	}

	addList(dense, func(c *fusedCandidate, rank int) { c.denseRank = rank })
	addList(sparse, func(c *fusedCandidate, rank int) { c.sparseRank = rank })

	out := make([]fusedCandidate, 0, len(acc))
	for _, c := range acc {
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if bi, bj := out[i].bestRank(), out[j].bestRank(); bi != bj {
			return bi < bj
		}
		return out[i].chunkID < out[j].chunkID
	})

	return out
}

func trimCandidates(candidates []fusedCandidate, limit int) []fusedCandidate {
	if limit < 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}
