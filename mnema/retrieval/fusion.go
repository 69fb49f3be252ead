package retrieval

// fusedHit accumulates per-index contributions for one chunk during rank
// fusion.
type fusedHit struct {
	ChunkID      string
	Fused        float64
	DenseScore   float64
	LexicalScore float64
}

// fuseRRF implements Reciprocal Rank Fusion over the two candidate lists.
// Each list contributes 1/(rank+kappa) with 1-based ranks; a chunk present
// in both lists sums both contributions. Raw per-index scores are carried
// through for prompt confidence metadata.
func fuseRRF(dense, lexical []Hit, kappa float64) map[string]*fusedHit {
	fused := make(map[string]*fusedHit, len(dense)+len(lexical))

	accumulate := func(hits []Hit, isDense bool) {
		for i, h := range hits {
			rrfScore := 1.0 / (float64(i+1) + kappa)
			f, ok := fused[h.ChunkID]
			if !ok {
				f = &fusedHit{ChunkID: h.ChunkID}
				fused[h.ChunkID] = f
			}
			f.Fused += rrfScore
			if isDense {
				f.DenseScore = h.Score
			} else {
				f.LexicalScore = h.Score
			}
		}
	}

	accumulate(dense, true)
	accumulate(lexical, false)
	return fused
}
