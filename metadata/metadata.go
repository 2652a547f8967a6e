// Package metadata implements the doc_id -> display metadata store
// (SPEC_FULL.md §4.E), loaded from JSON at startup and appended to by
// the batch writer. Grounded on original_source's DocumentMetadata,
// kept as its own store separate from the URL map, matching the
// source's own split between DocumentMetadata and DocURLMapper.
package metadata

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"

	"github.com/bobinette/paperindex/internal/atomicfile"
	"github.com/bobinette/paperindex"
)

// Store is the doc_id -> DocMetadata map, owned by the search
// coordinator and swapped whole on reload.
type Store struct {
	mu   sync.RWMutex
	byID map[int]paperindex.DocMetadata
}

// New returns an empty store.
func New() *Store {
	return &Store{byID: make(map[int]paperindex.DocMetadata)}
}

// Get returns docID's metadata, or the documented neutral defaults
// (year 0, citations 0, title "untitled") if absent.
func (s *Store) Get(docID int) paperindex.DocMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[docID]
	if !ok {
		return paperindex.DocMetadata{Title: "untitled"}
	}
	return m
}

// IDs returns every doc_id currently held, in no particular order.
func (s *Store) IDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.byID))
	for id := range s.byID {
		out = append(out, id)
	}
	return out
}

// Set records or replaces docID's metadata.
func (s *Store) Set(docID int, m paperindex.DocMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[docID] = m
}

func (s *Store) replace(m map[int]paperindex.DocMetadata) {
	s.mu.Lock()
	s.byID = m
	s.mu.Unlock()
}

func (s *Store) snapshot() map[int]paperindex.DocMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]paperindex.DocMetadata, len(s.byID))
	for id, m := range s.byID {
		out[id] = m
	}
	return out
}

// wireRecord is the per-document shape from §6's Metadata JSON.
type wireRecord struct {
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	Year      int      `json:"publication_year,omitempty"`
	Month     int      `json:"publication_month,omitempty"`
	Citations int      `json:"cited_by_count,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
}

// Load reads the metadata JSON file at path (§6: `{"<doc_id>": {...}}`).
// A missing or corrupt file yields an empty store plus the error, per
// §7's "start with empty structure, log a warning" policy.
func Load(path string) (*Store, error) {
	s := New()

	f, err := os.Open(path)
	if err != nil {
		return s, err
	}
	defer f.Close()

	var raw map[string]wireRecord
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return New(), err
	}

	m, err := fromWire(raw)
	if err != nil {
		return New(), err
	}
	s.replace(m)
	return s, nil
}

// Reload atomically swaps the store's contents with what is on disk at
// path, preserving the Store's identity so callers holding a pointer
// (the search coordinator) see the update. A missing or corrupt file
// yields an empty store plus the error, matching delta.Store.Reload.
func (s *Store) Reload(path string) error {
	f, err := os.Open(path)
	if err != nil {
		s.replace(make(map[int]paperindex.DocMetadata))
		return err
	}
	defer f.Close()

	var raw map[string]wireRecord
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		s.replace(make(map[int]paperindex.DocMetadata))
		return err
	}

	m, err := fromWire(raw)
	if err != nil {
		s.replace(make(map[int]paperindex.DocMetadata))
		return err
	}
	s.replace(m)
	return nil
}

// Save persists the store to path via atomic temp-write + rename.
func (s *Store) Save(path string) error {
	raw := toWire(s.snapshot())
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return atomicfile.Write(path, data)
}

func fromWire(raw map[string]wireRecord) (map[int]paperindex.DocMetadata, error) {
	out := make(map[int]paperindex.DocMetadata, len(raw))
	for key, r := range raw {
		docID, err := strconv.Atoi(key)
		if err != nil {
			return nil, err
		}
		out[docID] = paperindex.DocMetadata{
			Title:     r.Title,
			URL:       r.URL,
			Year:      r.Year,
			Month:     r.Month,
			Citations: r.Citations,
			Keywords:  r.Keywords,
		}
	}
	return out, nil
}

func toWire(m map[int]paperindex.DocMetadata) map[string]wireRecord {
	out := make(map[string]wireRecord, len(m))
	for docID, dm := range m {
		out[strconv.Itoa(docID)] = wireRecord{
			Title:     dm.Title,
			URL:       dm.URL,
			Year:      dm.Year,
			Month:     dm.Month,
			Citations: dm.Citations,
			Keywords:  dm.Keywords,
		}
	}
	return out
}
