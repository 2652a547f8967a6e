package semantic

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDocVectorsFile(t *testing.T, path string, vectors map[int]Vector) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(len(vectors))))
	for id, v := range vectors {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(id)))
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeTermVectorsFile(t *testing.T, path string, vectors map[string]Vector) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(len(vectors))))
	for word, v := range vectors {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(len(word))))
		buf.WriteString(word)
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func unitVector(dim int) Vector {
	var v Vector
	v[dim] = 1
	return v
}

func TestLoadNormalizesTermVectors(t *testing.T) {
	dir := t.TempDir()
	docsPath := filepath.Join(dir, "doc_vectors.bin")
	termsPath := filepath.Join(dir, "term_vectors.bin")

	var unnormalized Vector
	unnormalized[0] = 3
	unnormalized[1] = 4 // norm 5

	writeDocVectorsFile(t, docsPath, map[int]Vector{})
	writeTermVectorsFile(t, termsPath, map[string]Vector{"quick": unnormalized})

	s, err := Load(docsPath, termsPath)
	require.NoError(t, err)

	qv, ok := s.QueryVector([]string{"quick"})
	require.True(t, ok)
	assert.InDelta(t, 0.6, qv[0], 1e-6)
	assert.InDelta(t, 0.8, qv[1], 1e-6)
}

func TestQueryVectorNoMatchReturnsNotOK(t *testing.T) {
	s := New()
	_, ok := s.QueryVector([]string{"nonexistent"})
	assert.False(t, ok)
}

func TestSimilarityUnknownDocIsZero(t *testing.T) {
	s := New()
	assert.Equal(t, 0.0, s.Similarity(99, unitVector(0)))
}

func TestSimilarityIdenticalVectorsIsOne(t *testing.T) {
	dir := t.TempDir()
	docsPath := filepath.Join(dir, "doc_vectors.bin")
	termsPath := filepath.Join(dir, "term_vectors.bin")

	v := unitVector(5)
	writeDocVectorsFile(t, docsPath, map[int]Vector{1: v})
	writeTermVectorsFile(t, termsPath, map[string]Vector{})

	s, err := Load(docsPath, termsPath)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, s.Similarity(1, v), 1e-9)
}

func TestSimilarityOrthogonalVectorsIsZero(t *testing.T) {
	dir := t.TempDir()
	docsPath := filepath.Join(dir, "doc_vectors.bin")
	termsPath := filepath.Join(dir, "term_vectors.bin")

	writeDocVectorsFile(t, docsPath, map[int]Vector{1: unitVector(0)})
	writeTermVectorsFile(t, termsPath, map[string]Vector{})

	s, err := Load(docsPath, termsPath)
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.Similarity(1, unitVector(1)))
}
