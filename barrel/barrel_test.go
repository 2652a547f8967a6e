package barrel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobinette/paperindex/delta"
	"github.com/bobinette/paperindex/log"
	"github.com/bobinette/paperindex"
)

func testLogger() log.Logger { return log.New("test") }

func writeShard(t *testing.T, dir string, shardID int, body string) {
	t.Helper()
	path := filepath.Join(dir, "inverted_barrel_"+itoa(shardID)+".json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func itoa(n int) string {
	// avoid importing strconv twice across test helpers; fine for small ids.
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var out []byte
	for n > 0 {
		out = append([]byte{digits[n%10]}, out...)
		n /= 10
	}
	return string(out)
}

func TestPostingsForMissingShardReturnsNilNoError(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 4, 2, testLogger())

	got, err := s.PostingsFor(7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostingsForReadsShardOnDisk(t *testing.T) {
	dir := t.TempDir()
	// term id 5 with N=4 -> shard 1
	writeShard(t, dir, 1, `{"5":[[10,3,[0,4]]]}`)

	s := New(dir, 4, 2, testLogger())
	got, err := s.PostingsFor(5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].DocID)
	assert.Equal(t, 3, got[0].WeightedFrequency)
	assert.Equal(t, []int{0, 4}, got[0].Positions)
}

func TestPostingsForCorruptShardYieldsEmptyNoError(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, 1, `not json`)

	s := New(dir, 4, 2, testLogger())
	got, err := s.PostingsFor(5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, 0, `{"0":[[1,1,[0]]]}`)
	writeShard(t, dir, 1, `{"1":[[2,1,[0]]]}`)
	writeShard(t, dir, 2, `{"2":[[3,1,[0]]]}`)

	// N large enough that term ids map 1:1 to shard ids used above.
	s := New(dir, 100, 2, testLogger())

	_, err := s.PostingsFor(0)
	require.NoError(t, err)
	_, err = s.PostingsFor(1)
	require.NoError(t, err)

	s.mu.Lock()
	assert.Equal(t, 2, s.ll.Len())
	s.mu.Unlock()

	// Touching shard 2 should evict shard 0 (least recently used).
	_, err = s.PostingsFor(2)
	require.NoError(t, err)

	s.mu.Lock()
	_, hasShard0 := s.elems[0]
	_, hasShard1 := s.elems[1]
	_, hasShard2 := s.elems[2]
	s.mu.Unlock()

	assert.False(t, hasShard0)
	assert.True(t, hasShard1)
	assert.True(t, hasShard2)
}

func TestMergeDeltaAppendsNewPostingsAndClearsDelta(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 4, 2, testLogger())

	d := delta.New()
	d.Append(5, paperindex.Posting{DocID: 20, WeightedFrequency: 2, Positions: []int{1}})

	require.NoError(t, s.MergeDelta(d))
	assert.Equal(t, 0, d.UniqueDocCount())

	got, err := s.PostingsFor(5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 20, got[0].DocID)
}

func TestMergeDeltaSkipsDuplicateDocIDAndKeepsGoing(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, 1, `{"5":[[20,1,[0]]]}`)
	s := New(dir, 4, 2, testLogger())

	d := delta.New()
	d.Append(5, paperindex.Posting{DocID: 20, WeightedFrequency: 9, Positions: []int{9}})
	d.Append(5, paperindex.Posting{DocID: 21, WeightedFrequency: 1, Positions: []int{2}})

	require.NoError(t, s.MergeDelta(d))

	got, err := s.PostingsFor(5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 20, got[0].DocID)
	assert.Equal(t, 1, got[0].WeightedFrequency, "existing posting for doc 20 must not be overwritten")
	assert.Equal(t, 21, got[1].DocID)
}

func TestMergeDeltaInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 4, 2, testLogger())

	_, err := s.PostingsFor(5) // populate cache with an empty shard
	require.NoError(t, err)

	d := delta.New()
	d.Append(5, paperindex.Posting{DocID: 1, WeightedFrequency: 1, Positions: []int{0}})
	require.NoError(t, s.MergeDelta(d))

	got, err := s.PostingsFor(5)
	require.NoError(t, err)
	require.Len(t, got, 1, "cached empty shard must be evicted so the merged posting is visible")
}
