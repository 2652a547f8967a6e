package urlmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissingReturnsEmptyString(t *testing.T) {
	s := New()
	assert.Equal(t, "", s.Get(1))
}

func TestIsUploadedChecksPrefix(t *testing.T) {
	s := New()
	s.Set(1, "uploaded://paper.pdf")
	s.Set(2, "https://arxiv.org/abs/1")

	assert.True(t, s.IsUploaded(1))
	assert.False(t, s.IsUploaded(2))
	assert.False(t, s.IsUploaded(3))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docid_to_url.json")

	s := New()
	s.Set(0, "https://arxiv.org/abs/0001")
	s.Set(1, "uploaded://local.pdf")
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://arxiv.org/abs/0001", loaded.Get(0))
	assert.Equal(t, "uploaded://local.pdf", loaded.Get(1))
}

func TestLoadMissingFileReturnsErrorAndEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.Equal(t, "", s.Get(0))
}

func TestLoadCorruptFileReturnsErrorAndEmptyStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	s, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, "", s.Get(0))
}

func TestIDsListsEveryKnownDoc(t *testing.T) {
	s := New()
	s.Set(0, "https://arxiv.org/abs/0001")
	s.Set(5, "uploaded://local.pdf")

	assert.ElementsMatch(t, []int{0, 5}, s.IDs())
}

func TestReloadSwapsContentsInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docid_to_url.json")

	s := New()
	s.Set(1, "https://arxiv.org/abs/0001")
	require.NoError(t, s.Save(path))

	s.Set(1, "https://stale.example.com")
	s.Set(2, "https://should-be-dropped.example.com")

	require.NoError(t, s.Reload(path))
	assert.Equal(t, "https://arxiv.org/abs/0001", s.Get(1))
	assert.Equal(t, "", s.Get(2))
}
