package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobinette/paperindex/config"
	"github.com/bobinette/paperindex/log"
	"github.com/bobinette/paperindex"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.NumWorkers = 4
	cfg.BatchSize = 1
	cfg.FlushInterval = time.Hour
	cfg.ExtractorPath = "/bin/false"

	e, err := New(cfg, log.New("test"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = e.writer.Shutdown()
	})
	return e
}

func TestNewBootstrapsEmptyEngine(t *testing.T) {
	e := newTestEngine(t)

	resp := e.Search("anything")
	assert.Equal(t, "anything", resp.Query)
	assert.Empty(t, resp.Results)

	auto, err := e.Autocomplete("a", 10)
	require.NoError(t, err)
	assert.Empty(t, auto.Suggestions)
}

func TestAutocompleteRejectsLimitAboveFifty(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Autocomplete("a", 51)
	require.Error(t, err)
}

func TestSearchFindsDocumentAddedDirectlyToComponents(t *testing.T) {
	e := newTestEngine(t)

	added := e.lexicon.ExtendWithTokens([]string{"quick", "fox"})
	require.NotEmpty(t, added)
	quickID := e.lexicon.IndexOf("quick")
	require.NotEqual(t, -1, quickID)

	e.delta.Append(quickID, paperindex.Posting{DocID: 42, WeightedFrequency: 3, Positions: []int{0}})
	e.metadata.Set(42, paperindex.DocMetadata{Title: "A Quick Paper", URL: "uploaded://doc.pdf"})

	resp := e.Search("quick")
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 42, resp.Results[0].DocID)
	assert.Equal(t, "A Quick Paper", resp.Results[0].Title)
}

func TestReloadPicksUpMetadataWrittenToDisk(t *testing.T) {
	e := newTestEngine(t)

	e.metadata.Set(7, paperindex.DocMetadata{Title: "Before", URL: "uploaded://a.pdf"})
	require.NoError(t, e.metadata.Save(e.paths.metadata))

	// Diverge the in-memory copy from what is on disk, then reload.
	e.metadata.Set(7, paperindex.DocMetadata{Title: "Stale In Memory", URL: "uploaded://a.pdf"})

	require.NoError(t, e.Reload())
	assert.Equal(t, "Before", e.metadata.Get(7).Title)

	// The coordinator must observe the same update through its own
	// pointer, since Reload swaps contents in place rather than the
	// pointer itself.
	assert.Equal(t, "Before", e.coordinator.Metadata.Get(7).Title)
}

func TestMergeDeltaDrainsIntoBarrels(t *testing.T) {
	e := newTestEngine(t)

	e.delta.Append(3, paperindex.Posting{DocID: 1, WeightedFrequency: 1, Positions: []int{0}})
	require.Equal(t, 1, e.delta.UniqueDocCount())

	require.NoError(t, e.MergeDelta())
	assert.Equal(t, 0, e.delta.UniqueDocCount())

	postings, err := e.barrels.PostingsFor(3)
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, 1, postings[0].DocID)
}

func TestFlushNowWithNothingPendingIsANoop(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.FlushNow())
}

func TestDerivePathsMatchesOriginalSourceLayout(t *testing.T) {
	p := derivePaths("data")
	assert.Equal(t, filepath.Join("data", "processed", "lexicon.json"), p.lexicon)
	assert.Equal(t, filepath.Join("data", "processed", "forward_index.jsonl"), p.forwardIndex)
	assert.Equal(t, filepath.Join("data", "processed", "barrels", "inverted_delta.json"), p.delta)
	assert.Equal(t, filepath.Join("data", "processed", "document_metadata.json"), p.metadata)
	assert.Equal(t, filepath.Join("data", "processed", "docid_to_url.json"), p.urlmap)
	assert.Equal(t, filepath.Join("data", "processed", "test.jsonl"), p.rawCorpus)
}
