// Package docstats implements the resident cache that eliminates
// per-query disk reads for the two scorer inputs that depend on the
// document rather than the term: doc length and title frequency
// (SPEC_FULL.md §4.D). It loads a compact binary snapshot at startup
// and falls back to rebuilding from the forward-index JSONL when the
// snapshot is missing, corrupt, or stale.
package docstats

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/bobinette/paperindex"
)

// Cache is the doc_id -> DocStats map, swapped whole on reload.
type Cache struct {
	mu   sync.RWMutex
	byID map[int]paperindex.DocStats
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{byID: make(map[int]paperindex.DocStats)}
}

// Get returns the stats for docID and whether they were present.
func (c *Cache) Get(docID int) (paperindex.DocStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byID[docID]
	return s, ok
}

// Len reports the number of documents with stats.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Set records or replaces the stats for docID.
func (c *Cache) Set(docID int, s paperindex.DocStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[docID] = s
}

// replace swaps the whole map, used by Load/Rebuild.
func (c *Cache) replace(m map[int]paperindex.DocStats) {
	c.mu.Lock()
	c.byID = m
	c.mu.Unlock()
}

// snapshot returns a copy of the whole map for Save.
func (c *Cache) snapshot() map[int]paperindex.DocStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]paperindex.DocStats, len(c.byID))
	for id, s := range c.byID {
		out[id] = s
	}
	return out
}

// Load reads the little-endian binary cache at path (§6): u32 doc
// count, then per doc i32 doc_id, i32 length, u32 m title-frequency
// entries of (i32 term_id, i32 title_freq). Any read/decode error, or
// a cache older than the forward-index source, means the caller should
// fall back to RebuildFromForwardIndex — this function only reports
// the error, it does not rebuild itself.
func Load(path string) (*Cache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	m := make(map[int]paperindex.DocStats, n)
	for i := uint32(0); i < n; i++ {
		var docID, length int32
		if err := binary.Read(r, binary.LittleEndian, &docID); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, err
		}

		var k uint32
		if err := binary.Read(r, binary.LittleEndian, &k); err != nil {
			return nil, err
		}

		titleFreqs := make(map[int]int, k)
		for j := uint32(0); j < k; j++ {
			var termID, freq int32
			if err := binary.Read(r, binary.LittleEndian, &termID); err != nil {
				return nil, err
			}
			if err := binary.Read(r, binary.LittleEndian, &freq); err != nil {
				return nil, err
			}
			titleFreqs[int(termID)] = int(freq)
		}

		m[int(docID)] = paperindex.DocStats{Length: int(length), TitleFreqs: titleFreqs}
	}

	c := New()
	c.replace(m)
	return c, nil
}

// Save rewrites the binary cache at path in the layout Load reads,
// via a plain write (the cache is a derived artifact, rebuildable from
// the forward index, so a torn write on crash just triggers a rebuild
// on next start rather than losing data).
func (c *Cache) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	m := c.snapshot()

	if err := binary.Write(w, binary.LittleEndian, uint32(len(m))); err != nil {
		return err
	}
	for docID, s := range m {
		if err := binary.Write(w, binary.LittleEndian, int32(docID)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(s.Length)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(s.TitleFreqs))); err != nil {
			return err
		}
		for termID, freq := range s.TitleFreqs {
			if err := binary.Write(w, binary.LittleEndian, int32(termID)); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, int32(freq)); err != nil {
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// forwardIndexLine mirrors the JSONL object shape from §6.
type forwardIndexLine struct {
	DocID string `json:"doc_id"`
	Data  struct {
		DocLength int `json:"doc_length"`
		Words     map[string]struct {
			TitleFrequency int `json:"title_frequency"`
		} `json:"words"`
	} `json:"data"`
}

// RebuildFromForwardIndex streams the forward-index JSONL file line by
// line (never loading the whole file into memory: it is append-only
// and can grow arbitrarily large) and recomputes doc length and
// per-term title frequency for every document. Malformed lines are
// skipped and reported, matching §7's "corrupt entry, log and skip".
func RebuildFromForwardIndex(path string) (*Cache, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	m := make(map[int]paperindex.DocStats)
	var lineErrs []error

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec forwardIndexLine
		if err := json.Unmarshal(line, &rec); err != nil {
			lineErrs = append(lineErrs, err)
			continue
		}

		docID, err := strconv.Atoi(rec.DocID)
		if err != nil {
			lineErrs = append(lineErrs, err)
			continue
		}

		titleFreqs := make(map[int]int, len(rec.Data.Words))
		for termIDStr, w := range rec.Data.Words {
			termID, err := strconv.Atoi(termIDStr)
			if err != nil {
				continue
			}
			if w.TitleFrequency > 0 {
				titleFreqs[termID] = w.TitleFrequency
			}
		}

		m[docID] = paperindex.DocStats{Length: rec.Data.DocLength, TitleFreqs: titleFreqs}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, lineErrs, err
	}

	c := New()
	c.replace(m)
	return c, lineErrs, nil
}
