// Package semantic implements the optional dense-vector similarity
// blend (SPEC_FULL.md §4.G), ported from
// original_source/backend/src/SemanticScorer.cpp: 300-dimensional
// unit-norm vectors, cosine similarity clamped to [0, 1].
package semantic

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strings"
)

// Dims is the fixed vector dimensionality the wire format and the
// scorer both assume.
const Dims = 300

// Vector is a fixed-size embedding.
type Vector [Dims]float32

// Scorer holds the document and term vector tables loaded from the
// two binary formats in §6. A Scorer with empty tables scores every
// query at similarity 0, never an error. Its methods do not accept a
// nil *Scorer; the search coordinator skips blending when its scorer
// is nil.
type Scorer struct {
	docVectors  map[int]Vector
	termVectors map[string]Vector
}

// New returns an empty scorer.
func New() *Scorer {
	return &Scorer{docVectors: make(map[int]Vector), termVectors: make(map[string]Vector)}
}

func norm(v Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func normalize(v Vector) Vector {
	n := norm(v)
	if n == 0 {
		return v
	}
	var out Vector
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// LoadDocumentVectors reads the document-vector binary file: i32 n,
// then n x (i32 doc_id, 300 x f32).
func LoadDocumentVectors(path string) (map[int]Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	out := make(map[int]Vector, n)
	for i := int32(0); i < n; i++ {
		var docID int32
		if err := binary.Read(r, binary.LittleEndian, &docID); err != nil {
			return nil, err
		}
		var v Vector
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		out[int(docID)] = v
	}
	return out, nil
}

// LoadTermVectors reads the term-vector binary file: i32 m, then
// m x (i32 len, len x byte word, 300 x f32). Vectors are L2-normalized
// on load, matching SemanticScorer::normalize_vector.
func LoadTermVectors(path string) (map[string]Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var m int32
	if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
		return nil, err
	}

	out := make(map[string]Vector, m)
	for i := int32(0); i < m; i++ {
		var wordLen int32
		if err := binary.Read(r, binary.LittleEndian, &wordLen); err != nil {
			return nil, err
		}
		buf := make([]byte, wordLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		var v Vector
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		out[strings.ToLower(string(buf))] = normalize(v)
	}
	return out, nil
}

// Load populates a scorer from both binary files. A missing or corrupt
// file in either half yields a scorer with both tables empty and the
// error is returned,
// matching §7: the caller logs and continues with degraded (zero)
// semantic scoring rather than failing startup.
func Load(docVectorsPath, termVectorsPath string) (*Scorer, error) {
	s := New()

	docs, err := LoadDocumentVectors(docVectorsPath)
	if err != nil {
		return s, err
	}
	terms, err := LoadTermVectors(termVectorsPath)
	if err != nil {
		return s, err
	}

	s.docVectors = docs
	s.termVectors = terms
	return s, nil
}

// QueryVector averages the term vectors for tokens present in the term
// table, then renormalizes. ok is false when no token matched, in
// which case similarity must be treated as 0 (§4.G).
func (s *Scorer) QueryVector(tokens []string) (Vector, bool) {
	var sum Vector
	matched := 0
	for _, tok := range tokens {
		v, ok := s.termVectors[strings.ToLower(tok)]
		if !ok {
			continue
		}
		matched++
		for i := range sum {
			sum[i] += v[i]
		}
	}
	if matched == 0 {
		return Vector{}, false
	}
	for i := range sum {
		sum[i] /= float32(matched)
	}
	return normalize(sum), true
}

// Similarity returns the cosine similarity between docID's vector and
// qv, clamped to [0, 1]. Documents without a vector score 0.
func (s *Scorer) Similarity(docID int, qv Vector) float64 {
	dv, ok := s.docVectors[docID]
	if !ok {
		return 0
	}

	var dot float64
	for i := range dv {
		dot += float64(dv[i]) * float64(qv[i])
	}

	sim := dot / (norm(dv) * norm(qv))
	if math.IsNaN(sim) {
		return 0
	}
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
