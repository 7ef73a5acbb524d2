package search

import (
	"sort"
)

// Fusion names for config search.fusion.
const (
	FusionMinMax = "minmax"
	FusionRRF    = "rrf"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// Fuser merges semantic and lexical result lists into one ranking. Inputs
// are each sorted best first; weights are already normalized.
type Fuser interface {
	Fuse(semantic, lexical []*Result, w Weights) []*Result
}

// NewFuser returns the fuser for name; unknown names use min-max.
func NewFuser(name string) Fuser {
	if name == FusionRRF {
		return NewRRFFusion()
	}
	return MinMaxFusion{}
}

// MinMaxFusion normalizes similarity and rank to [0, 1] over each list and
// combines them linearly.
//
//	semantic = (sim - min) / range
//	keyword  = 1 - (rank - min) / range
//	combined = w.Semantic*semantic + w.Keyword*keyword
//
// A degenerate range uses 1.0 as the denominator. A result missing from a
// list scores 0 for that list.
type MinMaxFusion struct{}

// Fuse implements Fuser.
func (MinMaxFusion) Fuse(semantic, lexical []*Result, w Weights) []*Result {
	if len(semantic) == 0 && len(lexical) == 0 {
		return []*Result{}
	}

	merged := make(map[string]*Result, len(semantic)+len(lexical))

	if len(semantic) > 0 {
		lo, hi := semantic[0].Similarity, semantic[0].Similarity
		for _, r := range semantic {
			lo, hi = min(lo, r.Similarity), max(hi, r.Similarity)
		}
		span := rangeOrOne(lo, hi)
		for _, r := range semantic {
			m := getOrCreate(merged, r)
			m.Similarity = r.Similarity
			m.HasSemantic = true
			m.SemanticScore = (r.Similarity - lo) / span
		}
	}

	if len(lexical) > 0 {
		lo, hi := lexical[0].LexicalRank, lexical[0].LexicalRank
		for _, r := range lexical {
			lo, hi = min(lo, r.LexicalRank), max(hi, r.LexicalRank)
		}
		span := rangeOrOne(lo, hi)
		for _, r := range lexical {
			m := getOrCreate(merged, r)
			m.LexicalRank = r.LexicalRank
			m.HasLexical = true
			m.KeywordScore = 1 - (r.LexicalRank-lo)/span
		}
	}

	results := make([]*Result, 0, len(merged))
	for _, r := range merged {
		r.CombinedScore = w.Semantic*r.SemanticScore + w.Keyword*r.KeywordScore
		results = append(results, r)
	}
	sortByCombined(results)
	return results
}

func rangeOrOne(lo, hi float64) float64 {
	if hi == lo {
		return 1.0
	}
	return hi - lo
}

// RRFFusion combines lists by Reciprocal Rank Fusion:
//
//	score(d) = Σ weight_i / (k + rank_i)
//
// with 1-indexed ranks. A result missing from a list contributes at
// missing_rank = max(len(semantic), len(lexical)) + 1. Scores are scaled
// so the best result is 1.0.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates an RRF fusion with k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// Fuse implements Fuser.
func (f *RRFFusion) Fuse(semantic, lexical []*Result, w Weights) []*Result {
	if len(semantic) == 0 && len(lexical) == 0 {
		return []*Result{}
	}
	k := f.K
	if k <= 0 {
		k = DefaultRRFConstant
	}
	missingRank := max(len(semantic), len(lexical)) + 1

	merged := make(map[string]*Result, len(semantic)+len(lexical))
	for rank, r := range semantic {
		m := getOrCreate(merged, r)
		m.Similarity = r.Similarity
		m.HasSemantic = true
		m.SemanticScore = 1 / float64(k+rank+1)
	}
	for rank, r := range lexical {
		m := getOrCreate(merged, r)
		m.LexicalRank = r.LexicalRank
		m.HasLexical = true
		m.KeywordScore = 1 / float64(k+rank+1)
	}

	results := make([]*Result, 0, len(merged))
	for _, r := range merged {
		if !r.HasSemantic {
			r.SemanticScore = 1 / float64(k+missingRank)
		}
		if !r.HasLexical {
			r.KeywordScore = 1 / float64(k+missingRank)
		}
		r.CombinedScore = w.Semantic*r.SemanticScore + w.Keyword*r.KeywordScore
		results = append(results, r)
	}
	sortByCombined(results)

	if top := results[0].CombinedScore; top > 0 {
		for _, r := range results {
			r.CombinedScore /= top
		}
	}
	return results
}

// getOrCreate returns the merged entry for r's chunk, creating it from r.
func getOrCreate(m map[string]*Result, r *Result) *Result {
	if existing, ok := m[r.ChunkID()]; ok {
		return existing
	}
	created := &Result{Chunk: r.Chunk}
	m[r.ChunkID()] = created
	return created
}

// sortByCombined orders by combined score desc, then chunk id asc.
func sortByCombined(results []*Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].ChunkID() < results[j].ChunkID()
	})
}
