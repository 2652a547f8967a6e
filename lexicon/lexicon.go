// Package lexicon implements the frozen term<->id bijection and its
// prefix tree, plus the online extension that lets ingestion introduce
// new terms without ever reassigning an existing id (invariant L1/L2 of
// SPEC_FULL.md §3). Build semantics are ported from original_source's
// Lexicon::build_from_jsonl.
package lexicon

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bobinette/paperindex/errors"
	"github.com/bobinette/paperindex/internal/atomicfile"
	"github.com/bobinette/paperindex/trie"
)

// NotFound is the sentinel returned by IndexOf for an unknown term.
const NotFound = -1

// Lexicon is the canonical term->id / id->term mapping, backed by a
// prefix tree for completion. Safe for concurrent use: many readers via
// IndexOf/TermOf/Complete, one writer via ExtendWithTokens.
type Lexicon struct {
	mu sync.RWMutex

	wordToIndex map[string]int
	indexToWord []string
	tree        *trie.Trie

	stopWords       map[string]bool
	minDF           int
	maxDFPercentile int
}

// Options configures Build and online extension behavior.
type Options struct {
	MinDF           int
	MaxDFPercentile int // 1-100; 100 disables the upper cutoff
	StopWords       map[string]bool
}

func (o Options) normalize() Options {
	if o.MinDF < 1 {
		o.MinDF = 1
	}
	if o.MaxDFPercentile <= 0 || o.MaxDFPercentile > 100 {
		o.MaxDFPercentile = 100
	}
	if o.StopWords == nil {
		o.StopWords = defaultStopWordSet()
	}
	return o
}

// New returns an empty lexicon configured with opts.
func New(opts Options) *Lexicon {
	opts = opts.normalize()
	return &Lexicon{
		wordToIndex:     make(map[string]int),
		indexToWord:     make([]string, 0),
		tree:            trie.New(),
		stopWords:       opts.StopWords,
		minDF:           opts.MinDF,
		maxDFPercentile: opts.MaxDFPercentile,
	}
}

// Build constructs a lexicon from a stream of per-document token lists,
// following original_source's build_from_jsonl: document frequency is
// counted once per doc, an upper cutoff is derived from the percentile
// of *all* token frequencies (not just significant ones, matching the
// source), survivors are sorted lexicographically and assigned dense
// ids in that order.
func Build(docTokens [][]string, opts Options) *Lexicon {
	l := New(opts)

	freq := make(map[string]int)
	for _, tokens := range docTokens {
		seen := make(map[string]bool, len(tokens))
		for _, tok := range tokens {
			tok = strings.ToLower(tok)
			if seen[tok] {
				continue
			}
			seen[tok] = true
			freq[tok]++
		}
	}

	maxFreq := int(^uint(0) >> 1) // "infinite" cutoff when percentile == 100
	if l.maxDFPercentile < 100 && len(freq) > 0 {
		all := make([]int, 0, len(freq))
		for _, f := range freq {
			all = append(all, f)
		}
		sort.Ints(all)

		n := len(all)
		keepCount := n * l.maxDFPercentile / 100
		if keepCount == 0 {
			keepCount = 1
		}
		if keepCount > n {
			keepCount = n
		}
		cutoff := all[keepCount-1]
		maxFreq = cutoff + 1
	}

	type wf struct {
		word string
		freq int
	}
	significant := make([]wf, 0, len(freq))
	for word, f := range freq {
		if !l.isSignificant(word) {
			continue
		}
		if f < l.minDF {
			continue
		}
		if f >= maxFreq {
			continue
		}
		significant = append(significant, wf{word, f})
	}

	sort.Slice(significant, func(i, j int) bool { return significant[i].word < significant[j].word })

	for i, sw := range significant {
		l.wordToIndex[sw.word] = i
		l.indexToWord = append(l.indexToWord, sw.word)
		l.tree.Insert(sw.word)
	}

	return l
}

// isSignificant reports whether word survives the lexicon's inclusion
// filter: lower-cased, length >= 3, not a stop word, not wholly numeric.
func (l *Lexicon) isSignificant(word string) bool {
	if word == "" {
		return false
	}
	if len(word) < 3 {
		return false
	}
	if l.stopWords[word] {
		return false
	}
	return !isAllDigits(word)
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Size returns the number of terms currently in the lexicon.
func (l *Lexicon) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.indexToWord)
}

// Contains reports whether term is present in the lexicon.
func (l *Lexicon) Contains(term string) bool {
	return l.IndexOf(term) != NotFound
}

// IndexOf returns term's id, or NotFound if term is unknown. Never
// errors on an unknown term, per SPEC_FULL.md §4.A failure semantics.
func (l *Lexicon) IndexOf(term string) int {
	term = strings.ToLower(term)
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.wordToIndex[term]
	if !ok {
		return NotFound
	}
	return id
}

// TermOf returns the term for id, or "" if id is out of range.
func (l *Lexicon) TermOf(id int) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id < 0 || id >= len(l.indexToWord) {
		return ""
	}
	return l.indexToWord[id]
}

// Complete returns up to k terms with the given prefix, in
// lexicographic order. k is not enforced beyond what the caller passes;
// callers upstream must clamp k <= 50 per §4.A.
func (l *Lexicon) Complete(prefix string, k int) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.Complete(prefix, k)
}

// ExtendWithTokens adds any unseen significant tokens with fresh,
// strictly increasing ids and inserts them into the prefix tree. It
// does not apply the document-frequency percentile cutoff: online
// tokens have no corpus-wide document frequency to rank against. It
// returns the newly added terms (for the caller to log / persist).
//
// Callers must not observe a partially-inserted term: the whole
// extension runs under the write lock, so a concurrent IndexOf or
// Complete sees either the pre- or post-extension lexicon (§5, §8).
func (l *Lexicon) ExtendWithTokens(tokens []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := make([]string, 0)
	for _, tok := range tokens {
		tok = strings.ToLower(tok)
		if !l.isSignificant(tok) {
			continue
		}
		if _, ok := l.wordToIndex[tok]; ok {
			continue
		}

		id := len(l.indexToWord)
		l.wordToIndex[tok] = id
		l.indexToWord = append(l.indexToWord, tok)
		l.tree.Insert(tok)
		added = append(added, tok)
	}

	return added
}

// jsonForm is the on-disk shape from SPEC_FULL.md §6.
type jsonForm struct {
	WordToIndex map[string]int `json:"word_to_index"`
	IndexToWord []string       `json:"index_to_word"`
	TotalWords  int            `json:"total_words"`
}

// Save persists the lexicon to path using atomic temp-write + rename.
func (l *Lexicon) Save(path string) error {
	l.mu.RLock()
	form := jsonForm{
		WordToIndex: l.wordToIndex,
		IndexToWord: l.indexToWord,
		TotalWords:  len(l.indexToWord),
	}
	l.mu.RUnlock()

	data, err := json.Marshal(form)
	if err != nil {
		return errors.New("could not marshal lexicon", errors.WithCause(err))
	}
	return atomicfile.Write(path, data)
}

// Load reads a lexicon from path. A missing or corrupt file is treated
// as an empty lexicon with the returned error set, matching §4.A's
// "Corrupt persisted lexicon ⇒ treated as empty" — callers are expected
// to log a warning and continue with the returned (empty) lexicon.
func Load(path string, opts Options) (*Lexicon, error) {
	l := New(opts)

	f, err := os.Open(path)
	if err != nil {
		return l, err
	}
	defer f.Close()

	var form jsonForm
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&form); err != nil {
		return New(opts), err
	}

	if len(form.WordToIndex) == 0 && len(form.IndexToWord) > 0 {
		form.WordToIndex = make(map[string]int, len(form.IndexToWord))
		for i, w := range form.IndexToWord {
			form.WordToIndex[w] = i
		}
	}

	l.wordToIndex = form.WordToIndex
	l.indexToWord = form.IndexToWord
	for _, w := range l.indexToWord {
		l.tree.Insert(w)
	}

	return l, nil
}
