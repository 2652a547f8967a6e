// Package delta implements the hot, in-memory secondary index that
// accumulates postings for documents ingested since the last merge
// (SPEC_FULL.md §4.C). Term ids in the delta may belong to any barrel's
// residue class; the barrel package's MergeDelta drains it back into
// the sharded main index.
package delta

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/bobinette/paperindex/internal/atomicfile"
	"github.com/bobinette/paperindex/internal/postingsfile"
	"github.com/bobinette/paperindex"
)

// Store is the mutex-guarded in-memory delta map, mirrored to a single
// JSON file after every batch.
type Store struct {
	mu   sync.Mutex
	byID map[int][]paperindex.Posting
}

// New returns an empty delta store.
func New() *Store {
	return &Store{byID: make(map[int][]paperindex.Posting)}
}

// Snapshot returns a copy of the postings for termID. Cheap: the delta
// is small by construction (§4.C).
func (s *Store) Snapshot(termID int) paperindex.PostingList {
	s.mu.Lock()
	defer s.mu.Unlock()

	postings := s.byID[termID]
	if len(postings) == 0 {
		return nil
	}
	out := make(paperindex.PostingList, len(postings))
	copy(out, postings)
	return out
}

// Append records a new posting for termID. Inserts append at the end,
// per §4.C.
func (s *Store) Append(termID int, p paperindex.Posting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[termID] = append(s.byID[termID], p)
}

// All returns a deep copy of the whole delta map, used by the barrel
// store's merge step so it can iterate without holding the delta's lock
// for the duration of a multi-shard disk write.
func (s *Store) All() map[int][]paperindex.Posting {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int][]paperindex.Posting, len(s.byID))
	for id, postings := range s.byID {
		cp := make([]paperindex.Posting, len(postings))
		copy(cp, postings)
		out[id] = cp
	}
	return out
}

// UniqueDocCount returns the number of distinct doc_ids present
// anywhere in the delta, used by the advisory merge policy (§4.J).
func (s *Store) UniqueDocCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make(map[int]struct{})
	for _, postings := range s.byID {
		for _, p := range postings {
			docs[p.DocID] = struct{}{}
		}
	}
	return len(docs)
}

// Clear empties the delta, used after a successful merge.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[int][]paperindex.Posting)
}

// Reload atomically swaps the whole delta map with what is on disk at
// path. A parse error yields an empty delta — never a crash — matching
// §4.C and §7's failure semantics; the error is returned so the caller
// can log it.
func (s *Store) Reload(path string) error {
	m, err := loadFile(path)
	if err != nil {
		s.mu.Lock()
		s.byID = make(map[int][]paperindex.Posting)
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.byID = m
	s.mu.Unlock()
	return nil
}

// Save mirrors the delta to path using the barrel/delta JSON format
// from §6, via atomic temp-write + rename.
func (s *Store) Save(path string) error {
	s.mu.Lock()
	form := postingsfile.FromMap(s.byID)
	s.mu.Unlock()

	data, err := json.Marshal(form)
	if err != nil {
		return err
	}
	return atomicfile.Write(path, data)
}

func loadFile(path string) (map[int][]paperindex.Posting, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[int][]paperindex.Posting), nil
		}
		return nil, err
	}
	defer f.Close()

	var form postingsfile.File
	if err := json.NewDecoder(f).Decode(&form); err != nil {
		return nil, err
	}
	m, _ := form.ToMap()
	return m, nil
}
