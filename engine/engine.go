// Package engine wires the lexicon, barrel store, delta store,
// doc-stats cache, metadata store, URL map, semantic scorer, search
// coordinator, ingestion worker pool, and batch index writer into one
// value exposing the plain Go methods named in SPEC_FULL.md §6.
// Grounded on bobinette-papernet/papernet/cmd/http.go's Start
// function: load config → construct stores → construct services →
// wire → return.
package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/juju/clock"

	"github.com/bobinette/paperindex/barrel"
	"github.com/bobinette/paperindex/batch"
	"github.com/bobinette/paperindex/config"
	"github.com/bobinette/paperindex/delta"
	"github.com/bobinette/paperindex/docstats"
	"github.com/bobinette/paperindex/errors"
	"github.com/bobinette/paperindex/ingest"
	"github.com/bobinette/paperindex/lexicon"
	"github.com/bobinette/paperindex/log"
	"github.com/bobinette/paperindex/metadata"
	"github.com/bobinette/paperindex"
	"github.com/bobinette/paperindex/scorer"
	"github.com/bobinette/paperindex/search"
	"github.com/bobinette/paperindex/semantic"
	"github.com/bobinette/paperindex/urlmap"
)

// paths bundles the canonical on-disk locations derived from
// cfg.DataDir, matching original_source's flat data/processed/
// layout with barrels nested one level under barrels/.
type paths struct {
	lexicon      string
	forwardIndex string
	delta        string
	metadata     string
	urlmap       string
	rawCorpus    string
	barrelsDir   string
	docStats     string
}

func derivePaths(dataDir string) paths {
	processed := filepath.Join(dataDir, "processed")
	return paths{
		lexicon:      filepath.Join(processed, "lexicon.json"),
		forwardIndex: filepath.Join(processed, "forward_index.jsonl"),
		delta:        filepath.Join(processed, "barrels", "inverted_delta.json"),
		metadata:     filepath.Join(processed, "document_metadata.json"),
		urlmap:       filepath.Join(processed, "docid_to_url.json"),
		rawCorpus:    filepath.Join(processed, "test.jsonl"),
		barrelsDir:   filepath.Join(processed, "barrels"),
		docStats:     filepath.Join(processed, "doc_stats.bin"),
	}
}

// Engine is the search and indexing core, safe for concurrent use by
// many callers.
type Engine struct {
	cfg    config.Config
	paths  paths
	logger log.Logger

	lexicon  *lexicon.Lexicon
	barrels  *barrel.Store
	delta    *delta.Store
	stats    *docstats.Cache
	metadata *metadata.Store
	urlmap   *urlmap.Store
	semantic *semantic.Scorer

	coordinator *search.Coordinator
	pool        *ingest.Pool
	writer      *batch.Writer
}

// New constructs an Engine from cfg, loading every persisted artifact
// it can find and degrading gracefully — per §7's "the engine must
// start even with no indices" — on anything missing or corrupt.
func New(cfg config.Config, logger log.Logger) (*Engine, error) {
	p := derivePaths(cfg.DataDir)

	var stopWords map[string]bool
	if cfg.StopWordsPath != "" {
		sw, err := lexicon.LoadStopWords(cfg.StopWordsPath)
		if err != nil {
			logger.Errorf("engine: could not load stop words from %s, using defaults: %v", cfg.StopWordsPath, err)
		} else {
			stopWords = sw
		}
	}

	lexOpts := lexicon.Options{
		MinDF:           cfg.MinDF,
		MaxDFPercentile: cfg.MaxDFPercentile,
		StopWords:       stopWords,
	}
	lex, err := lexicon.Load(p.lexicon, lexOpts)
	if err != nil {
		logger.Errorf("engine: could not load lexicon from %s, starting empty: %v", p.lexicon, err)
	}

	barrels := barrel.New(p.barrelsDir, cfg.NumBarrels, cfg.BarrelCacheLimit, logger.Component("barrel"))

	d := delta.New()
	if err := d.Reload(p.delta); err != nil && !os.IsNotExist(err) {
		logger.Errorf("engine: could not load delta from %s, starting empty: %v", p.delta, err)
	}

	stats, lineErrs, err := loadOrRebuildDocStats(p, logger)
	if err != nil {
		logger.Errorf("engine: could not build doc-stats cache: %v", err)
		stats = docstats.New()
	}
	for _, lerr := range lineErrs {
		logger.Errorf("engine: skipped malformed forward-index line while rebuilding doc stats: %v", lerr)
	}

	meta, err := metadata.Load(p.metadata)
	if err != nil {
		logger.Errorf("engine: could not load metadata from %s, starting empty: %v", p.metadata, err)
	}

	urls, err := urlmap.Load(p.urlmap)
	if err != nil {
		logger.Errorf("engine: could not load url map from %s, starting empty: %v", p.urlmap, err)
	}

	var sem *semantic.Scorer
	if cfg.DocVectorsPath != "" && cfg.TermVectorsPath != "" {
		sem, err = semantic.Load(cfg.DocVectorsPath, cfg.TermVectorsPath)
		if err != nil {
			logger.Errorf("engine: could not load semantic vectors, degrading to sparse-only scoring: %v", err)
			sem = nil
		}
	}

	coordinator := &search.Coordinator{
		Lexicon:  lex,
		Barrels:  barrels,
		Delta:    d,
		Stats:    stats,
		Metadata: meta,
		Semantic: sem,

		Weights:        scorer.Weights(cfg.Weights),
		SemanticWeight: cfg.SemanticWeight,
		TopK:           cfg.TopK,
	}

	writer := batch.New(
		batch.Config{
			BatchSize:      cfg.BatchSize,
			FlushInterval:  cfg.FlushInterval,
			MergeThreshold: cfg.MergeThreshold,
		},
		batch.Paths{
			Lexicon:      p.lexicon,
			ForwardIndex: p.forwardIndex,
			Delta:        p.delta,
			Metadata:     p.metadata,
			URLMap:       p.urlmap,
			RawCorpus:    p.rawCorpus,
		},
		lex, d, barrels, meta, urls,
		clock.WallClock,
		logger.Component("batch"),
	)

	extractor := ingest.NewProcessExtractor(cfg.ExtractorPath, filepath.Join(cfg.DataDir, "tmp"))
	pool := ingest.New(cfg.NumWorkers, cfg.NumWorkers, extractor, lex, writer, logger.Component("ingest"))

	return &Engine{
		cfg:    cfg,
		paths:  p,
		logger: logger,

		lexicon:  lex,
		barrels:  barrels,
		delta:    d,
		stats:    stats,
		metadata: meta,
		urlmap:   urls,
		semantic: sem,

		coordinator: coordinator,
		pool:        pool,
		writer:      writer,
	}, nil
}

func loadOrRebuildDocStats(p paths, logger log.Logger) (*docstats.Cache, []error, error) {
	cache, err := docstats.Load(p.docStats)
	if err == nil {
		if !docStatsStale(p) {
			return cache, nil, nil
		}
		logger.Errorf("engine: doc-stats cache at %s is older than the forward index, rebuilding", p.docStats)
	} else if !os.IsNotExist(err) {
		logger.Errorf("engine: doc-stats cache at %s is corrupt, rebuilding from forward index: %v", p.docStats, err)
	}
	rebuilt, lineErrs, err := docstats.RebuildFromForwardIndex(p.forwardIndex)
	if err != nil {
		return nil, lineErrs, err
	}
	if err := rebuilt.Save(p.docStats); err != nil {
		logger.Errorf("engine: could not rewrite doc-stats cache at %s: %v", p.docStats, err)
	}
	return rebuilt, lineErrs, nil
}

// docStatsStale reports whether the doc-stats binary cache predates the
// forward index it was built from, per §4.D's "rebuild if missing,
// corrupt, or stale relative to the forward-index source". A forward
// index that doesn't exist yet, or a stat failure on either file, is
// not treated as staleness — Load/RebuildFromForwardIndex already
// handle a missing forward index correctly.
func docStatsStale(p paths) bool {
	statsInfo, err := os.Stat(p.docStats)
	if err != nil {
		return false
	}
	fwdInfo, err := os.Stat(p.forwardIndex)
	if err != nil {
		return false
	}
	return statsInfo.ModTime().Before(fwdInfo.ModTime())
}

// Search executes q and returns up to TopK ranked results.
func (e *Engine) Search(q string) paperindex.SearchResponse {
	return e.coordinator.Search(q)
}

// Autocomplete returns up to k terms completing prefix. k is clamped
// to cfg.MaxCompletion when zero, and rejected with a BadRequest when
// it exceeds 50, per §4.A "callers upstream must clamp k <= 50".
func (e *Engine) Autocomplete(prefix string, k int) (paperindex.AutocompleteResponse, error) {
	if k > 50 {
		return paperindex.AutocompleteResponse{}, errors.New("autocomplete limit exceeds 50", errors.BadRequest())
	}
	if k <= 0 {
		k = e.cfg.MaxCompletion
	}
	suggestions := e.lexicon.Complete(prefix, k)
	return paperindex.AutocompleteResponse{Prefix: prefix, Suggestions: suggestions}, nil
}

// Ingest allocates a doc_id for path and submits it for asynchronous
// extraction and indexing, returning a handle resolving to that doc_id
// per §7's "handle resolving to the assigned doc_id". url may be empty,
// in which case the document is recorded as locally uploaded.
func (e *Engine) Ingest(path, url string) *ingest.Task {
	docID := e.writer.NextDocID()
	if url == "" {
		url = urlmap.UploadedPrefix + filepath.Base(path)
	}
	return e.pool.Submit(path, docID, url)
}

// IngestAll submits every path in paths for ingestion and blocks until
// all of them finish, returning the user-visible report from §7.
func (e *Engine) IngestAll(pathsAndURLs []ingest.SubmitItem) paperindex.IngestReport {
	items := make([]ingest.SubmitItem, len(pathsAndURLs))
	for i, it := range pathsAndURLs {
		it.DocID = e.writer.NextDocID()
		if it.URL == "" {
			it.URL = urlmap.UploadedPrefix + filepath.Base(it.Path)
		}
		items[i] = it
	}

	tasks := make([]*ingest.Task, len(items))
	for i, it := range items {
		tasks[i] = e.pool.Submit(it.Path, it.DocID, it.URL)
	}

	report := paperindex.IngestReport{NewDocIDs: make([]int, 0, len(tasks))}
	for _, t := range tasks {
		docID, err := t.Result()
		if err != nil {
			e.logger.Errorf("engine: ingest failed for doc %d: %v", docID, err)
			report.FailedCount++
			continue
		}
		report.UploadedCount++
		report.NewDocIDs = append(report.NewDocIDs, docID)
	}
	return report
}

// FlushNow forces an immediate batch flush of any pending ingested
// documents, bypassing the size/interval triggers.
func (e *Engine) FlushNow() error {
	return e.writer.FlushNow()
}

// Reload re-reads the delta, metadata, and URL map from disk in place,
// so a coordinator holding pointers to these stores observes the
// update without any re-wiring (§5's reload_delta/reload_metadata).
func (e *Engine) Reload() error {
	if err := e.delta.Reload(e.paths.delta); err != nil {
		e.logger.Errorf("engine: reload delta failed: %v", err)
	}
	if err := e.metadata.Reload(e.paths.metadata); err != nil {
		e.logger.Errorf("engine: reload metadata failed: %v", err)
	}
	if err := e.urlmap.Reload(e.paths.urlmap); err != nil {
		e.logger.Errorf("engine: reload url map failed: %v", err)
	}
	return nil
}

// MergeDelta forces an immediate merge of the delta into the main
// index, bypassing the advisory cron-driven threshold check the batch
// writer otherwise applies. Exposed for the CLI's merge subcommand.
func (e *Engine) MergeDelta() error {
	if err := e.barrels.MergeDelta(e.delta); err != nil {
		return err
	}
	return e.delta.Save(e.paths.delta)
}

// Shutdown drains the ingestion pool and flushes any remaining batch
// before returning, so no submitted document is lost.
func (e *Engine) Shutdown(ctx context.Context) error {
	if err := e.pool.Shutdown(ctx); err != nil {
		return err
	}
	return e.writer.Shutdown()
}
