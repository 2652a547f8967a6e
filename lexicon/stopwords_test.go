package lexicon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStopWordsLowercasesAndSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stopwords.txt")
	require.NoError(t, os.WriteFile(path, []byte("Custom\n\nWORD\n  spaced  \n"), 0o644))

	got, err := LoadStopWords(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"custom": true, "word": true, "spaced": true}, got)
}

func TestLoadStopWordsMissingFileErrors(t *testing.T) {
	_, err := LoadStopWords(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestNewUsesProvidedStopWordsOverDefault(t *testing.T) {
	l := New(Options{MinDF: 1, StopWords: map[string]bool{"custom": true}})
	assert.True(t, l.isSignificant("the"))
	assert.False(t, l.isSignificant("custom"))
}
