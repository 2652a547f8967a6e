// Package search implements the query coordinator (SPEC_FULL.md §4.H):
// normalize the query, look terms up in the lexicon, fetch postings
// from the main index and the delta concurrently, AND-intersect,
// apply the proximity bonus, optionally blend in dense-vector
// similarity, then rank and truncate to the top K. Grounded on
// original_source/backend/src/SearchService.cpp's search() control
// flow.
package search

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bobinette/paperindex/barrel"
	"github.com/bobinette/paperindex/delta"
	"github.com/bobinette/paperindex/docstats"
	"github.com/bobinette/paperindex/lexicon"
	"github.com/bobinette/paperindex/metadata"
	"github.com/bobinette/paperindex"
	"github.com/bobinette/paperindex/scorer"
	"github.com/bobinette/paperindex/semantic"
)

// proximityBonus is added once per adjacent query-term pair found
// adjacent in a document (§4.H).
const proximityBonus = 100.0

var normalizeRE = regexp.MustCompile(`[^a-z0-9]+`)

// Coordinator wires the index components together to answer queries.
// It holds no mutable state of its own: every field is a reference to
// a component that owns its own concurrency control.
type Coordinator struct {
	Lexicon  *lexicon.Lexicon
	Barrels  *barrel.Store
	Delta    *delta.Store
	Stats    *docstats.Cache
	Metadata *metadata.Store
	Semantic *semantic.Scorer // nil disables semantic blending

	Weights        scorer.Weights
	SemanticWeight float64 // ignored when Semantic == nil
	TopK           int
}

// normalizeQuery lower-cases q and collapses runs of non-alphanumeric
// characters to single spaces before splitting on whitespace, matching
// SearchService::normalize_query.
func normalizeQuery(q string) []string {
	q = strings.ToLower(q)
	q = normalizeRE.ReplaceAllString(q, " ")
	fields := strings.Fields(q)
	return fields
}

type termHit struct {
	postings paperindex.PostingList
}

// Search executes q against the index and returns up to TopK ranked
// results. Unknown query terms are dropped silently; a query with no
// recognized terms returns an empty result set, never an error (§7).
func (c *Coordinator) Search(q string) paperindex.SearchResponse {
	tokens := normalizeQuery(q)

	type queryTerm struct {
		termID int
	}
	var terms []queryTerm
	for _, tok := range tokens {
		id := c.Lexicon.IndexOf(tok)
		if id == lexicon.NotFound {
			continue
		}
		terms = append(terms, queryTerm{termID: id})
	}

	if len(terms) == 0 {
		return paperindex.SearchResponse{Query: q, Results: []paperindex.SearchResult{}}
	}

	hits := make([]termHit, len(terms))
	g, _ := errgroup.WithContext(context.Background())
	for i, t := range terms {
		i, t := i, t
		g.Go(func() error {
			main, err := c.Barrels.PostingsFor(t.termID)
			if err != nil {
				// A barrel I/O failure degrades this term to "no
				// postings" rather than failing the whole query.
				main = nil
			}
			deltaPostings := c.Delta.Snapshot(t.termID)
			combined := make(paperindex.PostingList, 0, len(main)+len(deltaPostings))
			combined = append(combined, main...)
			combined = append(combined, deltaPostings...)
			hits[i] = termHit{postings: combined}
			return nil
		})
	}
	_ = g.Wait()

	numTerms := len(terms)
	scores := make(map[int]float64)
	matched := make(map[int]int)
	positions := make(map[int]map[int][]int) // docID -> queryIndex -> positions

	for i, hit := range hits {
		termID := terms[i].termID
		for _, p := range hit.postings {
			matched[p.DocID]++

			if positions[p.DocID] == nil {
				positions[p.DocID] = make(map[int][]int)
			}
			positions[p.DocID][i] = append(positions[p.DocID][i], p.Positions...)

			stats, _ := c.Stats.Get(p.DocID)
			titleFreq := stats.TitleFreqs[termID]
			docLength := stats.Length
			hasLength := docLength > 0

			meta := c.Metadata.Get(p.DocID)

			in := scorer.Input{
				WeightedFrequency: p.WeightedFrequency,
				TitleFrequency:    titleFreq,
				Positions:         p.Positions,
				DocLength:         docLength,
				HasDocLength:      hasLength,
				Citations:         meta.Citations,
				HasCitations:      meta.Citations > 0,
				Year:              meta.Year,
				HasYear:           meta.Year > 0,
			}
			scores[p.DocID] += scorer.Score(in, c.Weights)
		}
	}

	// AND intersection: keep only docs matching every recognized term.
	var candidates []int
	for docID, count := range matched {
		if count == numTerms {
			candidates = append(candidates, docID)
		}
	}

	for _, docID := range candidates {
		docPositions := positions[docID]
		for k := 0; k+1 < numTerms; k++ {
			if hasAdjacentPosition(docPositions[k], docPositions[k+1]) {
				scores[docID] += proximityBonus
			}
		}
	}

	if c.Semantic != nil && len(candidates) > 0 {
		c.blendSemantic(tokens, candidates, scores)
	}

	results := make([]paperindex.SearchResult, 0, len(candidates))
	for _, docID := range candidates {
		meta := c.Metadata.Get(docID)
		results = append(results, paperindex.SearchResult{
			DocID:     docID,
			Score:     scores[docID],
			URL:       meta.URL,
			Title:     meta.Title,
			Year:      meta.Year,
			Citations: meta.Citations,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		return a.Citations > b.Citations
	})

	k := c.TopK
	if k <= 0 || k > len(results) {
		k = len(results)
	}
	return paperindex.SearchResponse{Query: q, Results: results[:k]}
}

// hasAdjacentPosition reports whether any position in next equals any
// position in cur plus one.
func hasAdjacentPosition(cur, next []int) bool {
	if len(cur) == 0 || len(next) == 0 {
		return false
	}
	curSet := make(map[int]bool, len(cur))
	for _, p := range cur {
		curSet[p] = true
	}
	for _, p := range next {
		if curSet[p-1] {
			return true
		}
	}
	return false
}

// blendSemantic mixes each candidate's raw ranking score with its
// dense cosine similarity, min-max normalized within the candidate
// set: final = (1-SemanticWeight)*sparse + SemanticWeight*normalized_dense.
// If the sparse-score range across candidates is degenerate (all
// equal), the dense score is left unnormalized (raw cosine, already in
// [0,1]) instead of dividing by a zero range (§4.F).
func (c *Coordinator) blendSemantic(tokens []string, candidates []int, scores map[int]float64) {
	qv, ok := c.Semantic.QueryVector(tokens)
	if !ok {
		return
	}

	denseWeight := c.SemanticWeight
	sparseWeight := 1 - denseWeight

	dense := make(map[int]float64, len(candidates))
	minDense, maxDense := 1.0, 0.0
	for _, docID := range candidates {
		sim := c.Semantic.Similarity(docID, qv)
		dense[docID] = sim
		if sim < minDense {
			minDense = sim
		}
		if sim > maxDense {
			maxDense = sim
		}
	}

	minSparse, maxSparse := scores[candidates[0]], scores[candidates[0]]
	for _, docID := range candidates {
		s := scores[docID]
		if s < minSparse {
			minSparse = s
		}
		if s > maxSparse {
			maxSparse = s
		}
	}

	normalizeDense := maxSparse != minSparse
	denseRange := maxDense - minDense

	for _, docID := range candidates {
		normDense := dense[docID]
		if normalizeDense && denseRange > 0 {
			normDense = (dense[docID] - minDense) / denseRange
		}
		scores[docID] = sparseWeight*scores[docID] + denseWeight*normDense
	}
}
