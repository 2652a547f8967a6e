// Package batch implements the asynchronous batch index writer
// (SPEC_FULL.md §4.J): it collects PendingDocuments handed to it by
// the ingestion worker pool and flushes them together, extending the
// lexicon, appending to the forward index, merging into the delta, and
// persisting metadata and the URL map. Grounded on
// original_source/backend/src/BatchIndexWriter.cpp's
// update_indices/flush_batch pair.
package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/juju/clock"
	"gopkg.in/robfig/cron.v2"

	"github.com/bobinette/paperindex/barrel"
	"github.com/bobinette/paperindex/delta"
	"github.com/bobinette/paperindex/ingest"
	"github.com/bobinette/paperindex/internal/atomicfile"
	"github.com/bobinette/paperindex/internal/postingsfile"
	"github.com/bobinette/paperindex/lexicon"
	"github.com/bobinette/paperindex/log"
	"github.com/bobinette/paperindex/metadata"
	"github.com/bobinette/paperindex"
	"github.com/bobinette/paperindex/urlmap"
)

// mergeSpec runs the advisory merge check once a minute, matching the
// once-a-minute cadence SPEC_FULL.md §4.J asks for.
const mergeSpec = "0 * * * * *"

// Paths names every file the writer's flush touches (§6).
type Paths struct {
	Lexicon      string
	ForwardIndex string
	Delta        string
	Metadata     string
	URLMap       string
	RawCorpus    string
}

// Writer batches PendingDocuments and flushes them together, either
// when the queue reaches BatchSize, when FlushInterval has elapsed
// since the last flush, or on demand via FlushNow.
type Writer struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []paperindex.PendingDocument

	// flushMu is the direct analogue of BatchIndexWriter's
	// flush_mutex_: it excludes a background-triggered flush and an
	// explicit FlushNow from ever running concurrently, even though
	// queue draining under mu already keeps them from grabbing the
	// same items.
	flushMu sync.Mutex

	clock         clock.Clock
	lastFlush     time.Time
	retryAfter    time.Time
	batchSize     int
	flushInterval time.Duration

	paths    Paths
	lexicon  *lexicon.Lexicon
	delta    *delta.Store
	barrels  *barrel.Store
	metadata *metadata.Store
	urlmap   *urlmap.Store

	mergeThreshold int
	cronRunner     *cron.Cron

	logger log.Logger

	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	nextDocID int64
	idMu      sync.Mutex
}

// Config configures a Writer's triggering behavior.
type Config struct {
	BatchSize      int
	FlushInterval  time.Duration
	MergeThreshold int
}

// New returns a running Writer. The caller retains ownership of lex,
// d, barrels, meta and urls; the writer only calls their exported
// methods.
func New(
	cfg Config,
	paths Paths,
	lex *lexicon.Lexicon,
	d *delta.Store,
	barrels *barrel.Store,
	meta *metadata.Store,
	urls *urlmap.Store,
	clk clock.Clock,
	logger log.Logger,
) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.MergeThreshold <= 0 {
		cfg.MergeThreshold = 50
	}
	if clk == nil {
		clk = clock.WallClock
	}

	w := &Writer{
		clock:          clk,
		lastFlush:      clk.Now(),
		batchSize:      cfg.BatchSize,
		flushInterval:  cfg.FlushInterval,
		paths:          paths,
		lexicon:        lex,
		delta:          d,
		barrels:        barrels,
		metadata:       meta,
		urlmap:         urls,
		mergeThreshold: cfg.MergeThreshold,
		logger:         logger,
		stopCh:         make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	w.nextDocID = int64(nextDocIDSeed(meta, urls))

	w.wg.Add(2)
	go w.timeoutLoop()
	go w.run()

	w.startMergePolicy()

	return w
}

// nextDocIDSeed derives the first free doc_id from what is already
// persisted, so a restarted writer never reassigns an id (invariant
// I2).
func nextDocIDSeed(meta *metadata.Store, urls *urlmap.Store) int {
	max := -1
	for _, docID := range meta.IDs() {
		if docID > max {
			max = docID
		}
	}
	for _, docID := range urls.IDs() {
		if docID > max {
			max = docID
		}
	}
	return max + 1
}

// NextDocID returns the next monotonically increasing doc_id and
// reserves it, matching §4.I's "doc_id assignment via a monotonic
// counter."
func (w *Writer) NextDocID() int {
	w.idMu.Lock()
	defer w.idMu.Unlock()
	id := w.nextDocID
	w.nextDocID++
	return int(id)
}

// Enqueue implements ingest.Sink. If the caller left pd.Done nil, it
// gives the queued copy a channel of its own so the flush can report
// to it; that channel is not visible to the caller, who learns the
// flush outcome only through a Done channel it set itself.
func (w *Writer) Enqueue(pd paperindex.PendingDocument) {
	if pd.Done == nil {
		pd.Done = make(chan error, 1)
	}

	w.mu.Lock()
	w.queue = append(w.queue, pd)
	w.cond.Broadcast()
	w.mu.Unlock()
}

// run is the background writer goroutine: it wakes whenever Broadcast
// fires (from Enqueue crossing BatchSize, from timeoutLoop's interval
// tick, or from Shutdown) and re-checks its own predicate, since
// sync.Cond gives no guarantee the wake was for the reason it's
// checking.
func (w *Writer) run() {
	defer w.wg.Done()

	w.mu.Lock()
	for {
		for !w.stopped && (len(w.queue) < w.batchSize && w.clock.Now().Before(w.lastFlush.Add(w.flushInterval)) || w.clock.Now().Before(w.retryAfter)) {
			w.cond.Wait()
		}

		stopping := w.stopped
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()

		if len(batch) > 0 {
			if err := w.flushBatch(batch); err != nil {
				w.logger.Errorf("batch: flush failed: %v", err)
			}
		}

		// A failed flush pushes batch back onto the front of the
		// queue for the next natural trigger to retry; shutdown does
		// not spin retrying a permanently failing flush, it drains
		// once and exits.
		if stopping {
			return
		}
		w.mu.Lock()
	}
}

// timeoutLoop periodically broadcasts so run wakes to check whether
// FlushInterval has elapsed, since sync.Cond has no built-in timeout
// (the idiomatic substitute for condition_variable::wait_for).
func (w *Writer) timeoutLoop() {
	defer w.wg.Done()
	for {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		wait := w.lastFlush.Add(w.flushInterval).Sub(w.clock.Now())
		w.mu.Unlock()
		if wait < 0 {
			wait = 0
		}

		select {
		case <-w.clock.After(wait):
		case <-w.stopCh:
			return
		}

		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

// FlushNow drains the pending queue and flushes it synchronously,
// regardless of BatchSize/FlushInterval. It is safe to call
// concurrently with the background writer: whichever of the two drains
// the queue under mu gets the batch, the other sees an empty queue and
// returns immediately, and flushBatch's own flushMu keeps two
// non-empty flushes from ever writing concurrently.
func (w *Writer) FlushNow() error {
	w.mu.Lock()
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return w.flushBatch(batch)
}

// Shutdown stops the background goroutines, flushing whatever is left
// in the queue first.
func (w *Writer) Shutdown() error {
	w.mu.Lock()
	w.stopped = true
	w.cond.Broadcast()
	w.mu.Unlock()
	close(w.stopCh)

	w.wg.Wait()

	if w.cronRunner != nil {
		w.cronRunner.Stop()
	}

	return w.FlushNow()
}

// startMergePolicy schedules the advisory merge check. A missed tick
// or a scheduler that never starts only postpones the merge —
// correctness never depends on it (§4.J).
func (w *Writer) startMergePolicy() {
	c := cron.New()
	c.AddFunc(mergeSpec, func() {
		if w.delta.UniqueDocCount() < w.mergeThreshold {
			return
		}
		if err := w.barrels.MergeDelta(w.delta); err != nil {
			w.logger.Errorf("batch: advisory merge failed: %v", err)
			return
		}
		if err := w.delta.Save(w.paths.Delta); err != nil {
			w.logger.Errorf("batch: could not persist cleared delta after merge: %v", err)
		}
	})
	c.Start()
	w.cronRunner = c
}

// flushBatch performs the six update steps in updateIndices' order,
// with the delta merge last, aborting on the first failure and reporting it to every affected
// document's Done channel. On success every Done channel receives nil.
func (w *Writer) flushBatch(batch []paperindex.PendingDocument) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	if err := w.updateIndices(batch); err != nil {
		w.mu.Lock()
		w.queue = append(batch, w.queue...)
		// A failed attempt resets the interval clock and, regardless of
		// how large the backlog has grown, sets retryAfter so a
		// full-or-over-size backlog also waits out a FlushInterval
		// before retrying instead of spinning.
		now := w.clock.Now()
		w.lastFlush = now
		w.retryAfter = now.Add(w.flushInterval)
		w.mu.Unlock()

		notify(batch, err)
		return err
	}

	w.mu.Lock()
	w.lastFlush = w.clock.Now()
	w.retryAfter = time.Time{}
	w.mu.Unlock()

	// Every write in updateIndices succeeded and is durable on disk;
	// bring the coordinator's live stores up to date in one shot.
	// Metadata and the URL map reload before the delta so a document's
	// postings never become visible to a concurrent query before its
	// title and URL do. A reload failure here does not fail the flush —
	// the batch is already safely persisted, and retrying it would
	// re-apply the delta merge a second time — it only means the live
	// view lags disk until the next successful reload.
	if err := w.metadata.Reload(w.paths.Metadata); err != nil {
		w.logger.Errorf("batch: reloading metadata after flush: %v", err)
	}
	if err := w.urlmap.Reload(w.paths.URLMap); err != nil {
		w.logger.Errorf("batch: reloading url map after flush: %v", err)
	}
	if err := w.delta.Reload(w.paths.Delta); err != nil {
		w.logger.Errorf("batch: reloading delta after flush: %v", err)
	}

	notify(batch, nil)
	return nil
}

func notify(batch []paperindex.PendingDocument, err error) {
	for _, pd := range batch {
		if pd.Done == nil {
			continue
		}
		select {
		case pd.Done <- err:
		default:
		}
	}
}

// updateIndices performs the persist steps from §4.J against disk only,
// and only against fresh copies of metadata/urlmap loaded from what is
// currently on disk — never against the coordinator's live stores. The
// live delta/metadata/urlmap stores the coordinator reads move only
// once every step below has durably succeeded (see the reload call at
// the end of flushBatch), so a concurrent query never observes a
// document with postings but no metadata, or metadata but no postings.
//
// The delta merge is deliberately the last disk write: a batch is only
// ever retried because an earlier step failed, and every earlier step
// (lexicon extension, metadata/url map save) is idempotent to redo, so
// a retried attempt reaches the delta merge, and applies it, at most
// once per batch. Ordering it any earlier would let a later step's
// failure trigger a retry that re-reads the already-advanced delta file
// and appends the same postings a second time — an I1 violation.
func (w *Writer) updateIndices(batch []paperindex.PendingDocument) error {
	// 1. Lexicon: extend once with every token seen in this batch, then
	// re-fold each document's stats against the now-extended lexicon so
	// a term this document is the first to introduce still resolves to
	// a term id here rather than being silently dropped at extraction
	// time.
	var allTokens []string
	for _, doc := range batch {
		allTokens = append(allTokens, doc.Tokens...)
	}
	if len(allTokens) > 0 {
		added := w.lexicon.ExtendWithTokens(allTokens)
		if len(added) > 0 {
			if err := w.lexicon.Save(w.paths.Lexicon); err != nil {
				return fmt.Errorf("saving lexicon: %w", err)
			}
			for i := range batch {
				batch[i].Stats = ingest.BuildDocStats(batch[i].Tokens, w.lexicon)
			}
		}
	}

	// 2. Forward index: one JSONL line per document, append-only.
	if err := w.appendForwardIndex(batch); err != nil {
		return fmt.Errorf("appending forward index: %w", err)
	}

	// 3. Metadata: merge into a copy of what's on disk, not the live
	// store, and persist it.
	if err := w.writeMetadata(batch); err != nil {
		return fmt.Errorf("saving metadata: %w", err)
	}

	// 4. URL map: same pattern.
	if err := w.writeURLMap(batch); err != nil {
		return fmt.Errorf("saving url map: %w", err)
	}

	// 5. Raw corpus, append-only, best-effort record of what was
	// ingested (original_source's test.jsonl).
	if err := w.appendRawCorpus(batch); err != nil {
		return fmt.Errorf("appending raw corpus: %w", err)
	}

	// 6. Delta barrel: merge in new postings, atomic temp+rename. Last,
	// per the ordering note above.
	if err := w.mergeIntoDelta(batch); err != nil {
		return fmt.Errorf("merging delta: %w", err)
	}

	return nil
}

// writeMetadata merges batch's documents into whatever is currently
// persisted at paths.Metadata and saves the result, without touching
// the live store the coordinator reads.
func (w *Writer) writeMetadata(batch []paperindex.PendingDocument) error {
	s, err := loadMetadataForMerge(w.paths.Metadata)
	if err != nil {
		return err
	}
	for _, doc := range batch {
		s.Set(doc.DocID, paperindex.DocMetadata{Title: doc.Title, URL: doc.URL})
	}
	return s.Save(w.paths.Metadata)
}

func loadMetadataForMerge(path string) (*metadata.Store, error) {
	s, err := metadata.Load(path)
	if err == nil {
		return s, nil
	}
	if os.IsNotExist(err) {
		return metadata.New(), nil
	}
	// A corrupt file would silently drop existing metadata if treated
	// as empty here, same reasoning as loadDeltaFile below.
	return nil, err
}

// writeURLMap mirrors writeMetadata for the URL map.
func (w *Writer) writeURLMap(batch []paperindex.PendingDocument) error {
	s, err := loadURLMapForMerge(w.paths.URLMap)
	if err != nil {
		return err
	}
	for _, doc := range batch {
		s.Set(doc.DocID, doc.URL)
	}
	return s.Save(w.paths.URLMap)
}

func loadURLMapForMerge(path string) (*urlmap.Store, error) {
	s, err := urlmap.Load(path)
	if err == nil {
		return s, nil
	}
	if os.IsNotExist(err) {
		return urlmap.New(), nil
	}
	return nil, err
}

type forwardIndexWord struct {
	TitleFrequency    int   `json:"title_frequency"`
	BodyFrequency     int   `json:"body_frequency"`
	WeightedFrequency int   `json:"weighted_frequency"`
	TitlePositions    []int `json:"title_positions"`
	BodyPositions     []int `json:"body_positions"`
}

type forwardIndexData struct {
	DocLength   int                         `json:"doc_length"`
	TitleLength int                         `json:"title_length"`
	BodyLength  int                         `json:"body_length"`
	Words       map[string]forwardIndexWord `json:"words"`
}

type forwardIndexLine struct {
	DocID string           `json:"doc_id"`
	Data  forwardIndexData `json:"data"`
}

func (w *Writer) appendForwardIndex(batch []paperindex.PendingDocument) error {
	for _, doc := range batch {
		words := make(map[string]forwardIndexWord, len(doc.Stats))
		total := 0
		for wordID, stats := range doc.Stats {
			words[fmt.Sprintf("%d", wordID)] = forwardIndexWord{
				TitleFrequency:    stats.TitleFrequency,
				BodyFrequency:     stats.BodyFrequency,
				WeightedFrequency: stats.WeightedFrequency(),
				TitlePositions:    stats.TitlePositions,
				BodyPositions:     stats.BodyPositions,
			}
			total += stats.TitleFrequency + stats.BodyFrequency
		}

		line := forwardIndexLine{
			DocID: fmt.Sprintf("%d", doc.DocID),
			Data: forwardIndexData{
				DocLength:   total,
				TitleLength: 0,
				BodyLength:  total,
				Words:       words,
			},
		}

		data, err := json.Marshal(line)
		if err != nil {
			return err
		}
		if err := atomicfile.AppendLine(w.paths.ForwardIndex, data); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) mergeIntoDelta(batch []paperindex.PendingDocument) error {
	existing, err := loadDeltaFile(w.paths.Delta)
	if err != nil {
		return err
	}

	for _, doc := range batch {
		for wordID, stats := range doc.Stats {
			positions := make([]int, 0, len(stats.TitlePositions)+len(stats.BodyPositions))
			positions = append(positions, stats.TitlePositions...)
			positions = append(positions, stats.BodyPositions...)

			existing[wordID] = append(existing[wordID], paperindex.Posting{
				DocID:             doc.DocID,
				WeightedFrequency: stats.WeightedFrequency(),
				Positions:         positions,
			})
		}
	}

	data, err := json.Marshal(postingsfile.FromMap(existing))
	if err != nil {
		return err
	}
	return atomicfile.Write(w.paths.Delta, data)
}

func readIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func loadDeltaFile(path string) (map[int][]paperindex.Posting, error) {
	data, err := readIfExists(path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return make(map[int][]paperindex.Posting), nil
	}

	var raw postingsfile.File
	if err := json.Unmarshal(data, &raw); err != nil {
		// A corrupt delta file would silently drop existing postings if
		// treated as empty here; unlike the read paths (§7's "corrupt ⇒
		// treated as empty"), a flush must not risk destroying data it
		// didn't write, so this aborts the batch instead.
		return nil, err
	}
	m, _ := raw.ToMap()
	return m, nil
}

type rawCorpusLine struct {
	DocID     int      `json:"doc_id"`
	Title     string   `json:"title"`
	BodyToken []string `json:"body_tokens"`
	WordCount int      `json:"word_count"`
	PDFPath   string   `json:"pdf_path"`
	URL       string   `json:"url"`
}

func (w *Writer) appendRawCorpus(batch []paperindex.PendingDocument) error {
	if w.paths.RawCorpus == "" {
		return nil
	}
	for _, doc := range batch {
		line := rawCorpusLine{
			DocID:     doc.DocID,
			Title:     doc.Title,
			BodyToken: doc.Tokens,
			WordCount: len(doc.Tokens),
			PDFPath:   doc.SourcePath,
			URL:       doc.URL,
		}
		data, err := json.Marshal(line)
		if err != nil {
			return err
		}
		if err := atomicfile.AppendLine(w.paths.RawCorpus, data); err != nil {
			return err
		}
	}
	return nil
}
