package ingest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobinette/paperindex/lexicon"
	"github.com/bobinette/paperindex/log"
	"github.com/bobinette/paperindex"
)

type stubExtractor struct {
	title  string
	tokens []string
	err    error
}

func (s stubExtractor) Extract(ctx context.Context, path string, docID int) (string, []string, error) {
	return s.title, s.tokens, s.err
}

type recordingSink struct {
	mu   sync.Mutex
	docs []paperindex.PendingDocument
}

func (s *recordingSink) Enqueue(pd paperindex.PendingDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, pd)
}

func (s *recordingSink) all() []paperindex.PendingDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]paperindex.PendingDocument, len(s.docs))
	copy(out, s.docs)
	return out
}

func TestSubmitProcessesAndEnqueues(t *testing.T) {
	lex := lexicon.Build([][]string{{"quick", "brown", "fox"}}, lexicon.Options{MinDF: 1})
	sink := &recordingSink{}
	extractor := stubExtractor{title: "A Paper", tokens: []string{"quick", "brown", "fox"}}

	p := New(4, 4, extractor, lex, sink, log.New("test"))
	task := p.Submit("/tmp/doc.pdf", 7, "uploaded://doc.pdf")

	docID, err := task.Result()
	require.NoError(t, err)
	assert.Equal(t, 7, docID)

	docs := sink.all()
	require.Len(t, docs, 1)
	assert.Equal(t, "A Paper", docs[0].Title)
	assert.Equal(t, 7, docs[0].DocID)

	quickID := lex.IndexOf("quick")
	require.NotEqual(t, lexicon.NotFound, quickID)
	require.Contains(t, docs[0].Stats, quickID)
	assert.Equal(t, 1, docs[0].Stats[quickID].BodyFrequency)
	assert.Equal(t, []int{0}, docs[0].Stats[quickID].BodyPositions)

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestSubmitExtractorFailureDoesNotEnqueue(t *testing.T) {
	lex := lexicon.New(lexicon.Options{})
	sink := &recordingSink{}
	extractor := stubExtractor{err: assertErr{"boom"}}

	p := New(4, 4, extractor, lex, sink, log.New("test"))
	task := p.Submit("/tmp/bad.pdf", 1, "")

	_, err := task.Result()
	assert.Error(t, err)
	assert.Empty(t, sink.all())

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestSubmitAllAggregatesErrorsWithoutLosingSuccesses(t *testing.T) {
	lex := lexicon.Build([][]string{{"quick", "brown"}}, lexicon.Options{MinDF: 1})
	sink := &recordingSink{}

	calls := 0
	var mu sync.Mutex
	extractor := extractorFunc(func(ctx context.Context, path string, docID int) (string, []string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n%2 == 0 {
			return "", nil, assertErr{"fail"}
		}
		return "ok", []string{"quick"}, nil
	})

	p := New(4, 8, extractor, lex, sink, log.New("test"))
	items := []SubmitItem{
		{Path: "a", DocID: 1},
		{Path: "b", DocID: 2},
		{Path: "c", DocID: 3},
		{Path: "d", DocID: 4},
	}
	err := p.SubmitAll(items)
	assert.Error(t, err)
	assert.NotEmpty(t, sink.all())

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestBodyOnlyStatsNeverSetsTitleFrequency(t *testing.T) {
	lex := lexicon.Build([][]string{{"quick", "brown"}}, lexicon.Options{MinDF: 1})
	stats := BuildDocStats([]string{"quick", "brown", "quick"}, lex)

	quickID := lex.IndexOf("quick")
	require.Contains(t, stats, quickID)
	assert.Equal(t, 0, stats[quickID].TitleFrequency)
	assert.Equal(t, 2, stats[quickID].BodyFrequency)
	assert.Equal(t, []int{0, 2}, stats[quickID].BodyPositions)
}

type extractorFunc func(ctx context.Context, path string, docID int) (string, []string, error)

func (f extractorFunc) Extract(ctx context.Context, path string, docID int) (string, []string, error) {
	return f(ctx, path, docID)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
