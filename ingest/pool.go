package ingest

import (
	"context"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/bobinette/paperindex/lexicon"
	"github.com/bobinette/paperindex/log"
	"github.com/bobinette/paperindex"
)

// minWorkers is the floor SPEC_FULL.md §4.I imposes on the pool size
// regardless of configuration.
const minWorkers = 4

// Sink receives a fully-built PendingDocument once a worker finishes
// extraction and stats folding. The batch writer implements this.
type Sink interface {
	Enqueue(paperindex.PendingDocument)
}

type job struct {
	path   string
	docID  int
	url    string
	result chan taskResult
}

type taskResult struct {
	docID int
	err   error
}

// Task is the handle returned by Submit, the Go analogue of
// std::future<int> in original_source.
type Task struct {
	docID  int
	result chan taskResult
}

// DocID returns the id assigned to this task at submission time.
func (t *Task) DocID() int { return t.docID }

// Result blocks until the task's extraction and stats folding
// complete, returning the assigned doc_id and any error.
func (t *Task) Result() (int, error) {
	r := <-t.result
	return r.docID, r.err
}

// Pool runs a bounded set of workers pulling paths off a buffered
// channel, extracting title+tokens, folding per-document stats, and
// handing the result to Sink for the batch writer to persist.
type Pool struct {
	extractor Extractor
	lexicon   *lexicon.Lexicon
	sink      Sink
	logger    log.Logger

	jobs chan job
	wg   sync.WaitGroup
}

// New returns a pool with numWorkers workers (floored at minWorkers),
// a queue of the given capacity, using extractor to process each
// submitted path and lexicon to resolve tokens to term ids.
func New(numWorkers, queueCapacity int, extractor Extractor, lex *lexicon.Lexicon, sink Sink, logger log.Logger) *Pool {
	if numWorkers < minWorkers {
		numWorkers = minWorkers
	}
	if queueCapacity <= 0 {
		queueCapacity = numWorkers
	}

	p := &Pool{
		extractor: extractor,
		lexicon:   lex,
		sink:      sink,
		logger:    logger,
		jobs:      make(chan job, queueCapacity),
	}

	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		title, tokens, err := p.extractor.Extract(context.Background(), j.path, j.docID)
		if err != nil {
			j.result <- taskResult{docID: j.docID, err: err}
			continue
		}

		stats := BuildDocStats(tokens, p.lexicon)
		p.sink.Enqueue(paperindex.PendingDocument{
			DocID:      j.docID,
			Title:      title,
			Tokens:     tokens,
			Stats:      stats,
			URL:        j.url,
			SourcePath: j.path,
		})

		j.result <- taskResult{docID: j.docID}
	}
}

// BuildDocStats folds body tokens into per-term WordStats exactly as
// PDFProcessingPool::build_doc_stats does: lowercase, look up the
// lexicon id, increment body_frequency, append the position. Unknown
// tokens are dropped silently. The batch writer calls this a second
// time after extending the lexicon, so a token this document is the
// first to introduce still resolves to a posting.
func BuildDocStats(tokens []string, lex *lexicon.Lexicon) map[int]paperindex.WordStats {
	stats := make(map[int]paperindex.WordStats)
	for pos, tok := range tokens {
		id := lex.IndexOf(strings.ToLower(tok))
		if id == lexicon.NotFound {
			continue
		}
		w := stats[id]
		w.BodyFrequency++
		w.BodyPositions = append(w.BodyPositions, pos)
		stats[id] = w
	}
	return stats
}

// Submit enqueues path for extraction under docID, returning a handle
// to its eventual result.
func (p *Pool) Submit(path string, docID int, url string) *Task {
	j := job{path: path, docID: docID, url: url, result: make(chan taskResult, 1)}
	p.jobs <- j
	return &Task{docID: docID, result: j.result}
}

// SubmitAll submits every (path, docID, url) triple and waits for all
// of them, aggregating any per-document failures into one error via
// go-multierror without losing individual failures.
func (p *Pool) SubmitAll(items []SubmitItem) error {
	tasks := make([]*Task, len(items))
	for i, it := range items {
		tasks[i] = p.Submit(it.Path, it.DocID, it.URL)
	}

	var result error
	for _, t := range tasks {
		if _, err := t.Result(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// SubmitItem is one entry of a batch submission.
type SubmitItem struct {
	Path  string
	DocID int
	URL   string
}

// Shutdown closes the job queue and waits for in-flight tasks to
// drain, matching §5's "workers finish in-flight work and exit."
func (p *Pool) Shutdown(ctx context.Context) error {
	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
