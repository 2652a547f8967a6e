// Package config defines the engine's single configuration surface,
// replacing the ad-hoc globals and hard-coded paths of the source
// implementation with one value passed to the engine constructor, per
// SPEC_FULL.md §9.
package config

import (
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

// ScoreWeights are the ranking scorer's per-component weights (§4.F).
// They must remain non-negative; they are not required to sum to one.
type ScoreWeights struct {
	Frequency float64 `toml:"frequency"`
	Position  float64 `toml:"position"`
	Title     float64 `toml:"title"`
	Metadata  float64 `toml:"metadata"`
}

// Config holds every tunable of the search and indexing core.
type Config struct {
	DataDir string `toml:"data_dir"`

	NumBarrels       int `toml:"num_barrels"`
	BarrelCacheLimit int `toml:"cache_limit"`

	BatchSize      int           `toml:"batch_size"`
	FlushInterval  time.Duration `toml:"-"`
	FlushIntervalS int           `toml:"flush_interval_seconds"`
	MergeThreshold int           `toml:"merge_threshold"`

	TopK          int `toml:"top_k"`
	MaxCompletion int `toml:"max_completion"`

	Weights        ScoreWeights `toml:"weights"`
	SemanticWeight float64      `toml:"semantic_weight"`

	MinDF           int    `toml:"min_df"`
	MaxDFPercentile int    `toml:"max_df_percentile"`
	StopWordsPath   string `toml:"stop_words_path"`

	NumWorkers    int    `toml:"num_workers"`
	ExtractorPath string `toml:"extractor_path"`

	// DocVectorsPath and TermVectorsPath locate the semantic scorer's
	// binary caches (§6). Either left empty disables semantic blending
	// entirely — a plain sparse-only ranking, matching §4.G's "the
	// coordinator degrades to sparse-only scoring if vectors_loaded is
	// false."
	DocVectorsPath  string `toml:"doc_vectors_path"`
	TermVectorsPath string `toml:"term_vectors_path"`

	Env string `toml:"-"`
}

// Default returns a Config with every field set to the defaults named
// in SPEC_FULL.md §3, so the engine can boot with zero configuration.
func Default() Config {
	return Config{
		DataDir: "data",

		NumBarrels:       100,
		BarrelCacheLimit: 30,

		BatchSize:      10,
		FlushInterval:  30 * time.Second,
		FlushIntervalS: 30,
		MergeThreshold: 50,

		TopK:          50,
		MaxCompletion: 50,

		Weights:        ScoreWeights{Frequency: 0.4, Position: 0.2, Title: 0.3, Metadata: 0.1},
		SemanticWeight: 0.4,

		MinDF:           1,
		MaxDFPercentile: 100,

		NumWorkers: defaultNumWorkers(),
	}
}

// defaultNumWorkers sizes the ingestion pool to the machine it runs on,
// with a floor of 4 so a single-core container still gets some
// concurrency across extractor subprocesses.
func defaultNumWorkers() int {
	if n := runtime.NumCPU(); n > 4 {
		return n
	}
	return 4
}

// Load reads a toml configuration file, applying it on top of Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.FlushIntervalS > 0 {
		cfg.FlushInterval = time.Duration(cfg.FlushIntervalS) * time.Second
	}
	if cfg.NumWorkers < 4 {
		cfg.NumWorkers = 4
	}
	return cfg, nil
}
