package docstats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobinette/paperindex"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docstats.bin")

	c := New()
	c.Set(1, paperindex.DocStats{Length: 120, TitleFreqs: map[int]int{5: 2, 9: 1}})
	c.Set(2, paperindex.DocStats{Length: 40, TitleFreqs: map[int]int{}})
	require.NoError(t, c.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())

	s1, ok := loaded.Get(1)
	require.True(t, ok)
	assert.Equal(t, 120, s1.Length)
	assert.Equal(t, 2, s1.TitleFreqs[5])
	assert.Equal(t, 1, s1.TitleFreqs[9])

	s2, ok := loaded.Get(2)
	require.True(t, ok)
	assert.Equal(t, 40, s2.Length)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}

func TestLoadCorruptFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x01}, 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRebuildFromForwardIndexComputesLengthAndTitleFreqs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forward_index.jsonl")

	content := `{"doc_id":"0","data":{"doc_length":10,"title_length":2,"body_length":8,"words":{"3":{"title_frequency":1,"body_frequency":2,"weighted_frequency":5,"title_positions":[0],"body_positions":[1,2]},"7":{"title_frequency":0,"body_frequency":1,"weighted_frequency":1,"title_positions":[],"body_positions":[5]}}}}
{"doc_id":"1","data":{"doc_length":6,"title_length":0,"body_length":6,"words":{"3":{"title_frequency":0,"body_frequency":1,"weighted_frequency":1,"title_positions":[],"body_positions":[0]}}}}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, lineErrs, err := RebuildFromForwardIndex(path)
	require.NoError(t, err)
	assert.Empty(t, lineErrs)
	require.Equal(t, 2, c.Len())

	s0, ok := c.Get(0)
	require.True(t, ok)
	assert.Equal(t, 10, s0.Length)
	assert.Equal(t, 1, s0.TitleFreqs[3])
	_, hasZeroFreqTerm := s0.TitleFreqs[7]
	assert.False(t, hasZeroFreqTerm, "zero title frequency need not be stored")

	s1, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, 6, s1.Length)
}

func TestRebuildFromForwardIndexSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forward_index.jsonl")

	content := "not json at all\n" + `{"doc_id":"2","data":{"doc_length":3,"words":{}}}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, lineErrs, err := RebuildFromForwardIndex(path)
	require.NoError(t, err)
	assert.Len(t, lineErrs, 1)
	assert.Equal(t, 1, c.Len())
}
