// Package barrel implements the sharded, on-disk main inverted index
// (SPEC_FULL.md §4.B). Postings for term id t live in shard
// t mod N, one JSON file per shard, decoded lazily and held in a
// bounded LRU cache. Concurrent misses for the same shard are
// collapsed with singleflight so a cold cache under load triggers one
// disk read, not one per goroutine. Grounded on original_source's
// InvertedIndex (shard_of, barrel file naming, merge-with-delta
// semantics) and on the LRU + singleflight cache shape used by
// Adithya-Monish-Kumar-K-.../internal/searcher/cache.
package barrel

import (
	"container/list"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bobinette/paperindex/delta"
	"github.com/bobinette/paperindex/internal/atomicfile"
	"github.com/bobinette/paperindex/internal/postingsfile"
	"github.com/bobinette/paperindex/log"
	"github.com/bobinette/paperindex"
)

type shardMap map[int][]paperindex.Posting

type cacheEntry struct {
	shardID int
	data    shardMap
}

// Store is the sharded main index. Safe for concurrent use.
type Store struct {
	dir        string
	n          int
	cacheLimit int
	logger     log.Logger

	group singleflight.Group

	mu    sync.Mutex
	ll    *list.List
	elems map[int]*list.Element
}

// New returns a barrel store rooted at dir with n shards and an LRU
// cache holding at most cacheLimit decoded shards.
func New(dir string, n, cacheLimit int, logger log.Logger) *Store {
	if n <= 0 {
		n = 1
	}
	if cacheLimit <= 0 {
		cacheLimit = 1
	}
	return &Store{
		dir:        dir,
		n:          n,
		cacheLimit: cacheLimit,
		logger:     logger,
		ll:         list.New(),
		elems:      make(map[int]*list.Element),
	}
}

func shardOf(termID, n int) int {
	s := termID % n
	if s < 0 {
		s += n
	}
	return s
}

func (s *Store) shardPath(shardID int) string {
	return filepath.Join(s.dir, fmt.Sprintf("inverted_barrel_%d.json", shardID))
}

// PostingsFor returns the main-index postings for termID. A term with
// no postings yet yields (nil, nil), never an error.
func (s *Store) PostingsFor(termID int) (paperindex.PostingList, error) {
	shardID := shardOf(termID, s.n)

	shard, err := s.getShard(shardID)
	if err != nil {
		return nil, err
	}
	return paperindex.PostingList(shard[termID]), nil
}

// getShard returns the decoded shard, from cache if present, else from
// disk (deduped across concurrent callers via singleflight).
func (s *Store) getShard(shardID int) (shardMap, error) {
	s.mu.Lock()
	if el, ok := s.elems[shardID]; ok {
		s.ll.MoveToFront(el)
		data := el.Value.(*cacheEntry).data
		s.mu.Unlock()
		return data, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(fmt.Sprintf("shard:%d", shardID), func() (interface{}, error) {
		data, err := s.loadShardFromDisk(shardID)
		if err != nil {
			return nil, err
		}
		s.putShard(shardID, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(shardMap), nil
}

func (s *Store) putShard(shardID int, data shardMap) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.elems[shardID]; ok {
		el.Value.(*cacheEntry).data = data
		s.ll.MoveToFront(el)
		return
	}

	el := s.ll.PushFront(&cacheEntry{shardID: shardID, data: data})
	s.elems[shardID] = el

	for s.ll.Len() > s.cacheLimit {
		back := s.ll.Back()
		if back == nil {
			break
		}
		s.ll.Remove(back)
		delete(s.elems, back.Value.(*cacheEntry).shardID)
	}
}

// invalidate drops shardID from the cache, forcing the next read to
// decode fresh bytes from disk. Used after a merge rewrites a shard.
func (s *Store) invalidate(shardID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.elems[shardID]; ok {
		s.ll.Remove(el)
		delete(s.elems, shardID)
	}
}

func (s *Store) loadShardFromDisk(shardID int) (shardMap, error) {
	path := s.shardPath(shardID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return shardMap{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var raw postingsfile.File
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		s.logger.Errorf("barrel: corrupt shard %d, treating as empty: %v", shardID, err)
		return shardMap{}, nil
	}

	m, skipped := raw.ToMap()
	for _, key := range skipped {
		s.logger.Errorf("barrel: shard %d has non-numeric term key %q, skipped", shardID, key)
	}
	return shardMap(m), nil
}

// MergeDelta drains d into the main index: postings are grouped by
// shard, appended to whatever is already on disk for that shard, and
// the merged shard is written back atomically. A (term, doc) pair
// already present in a shard is left as-is and the incoming delta
// posting is skipped with a logged warning — invariant I1 says this
// should never happen, but a violation must never crash the merge
// (§7). On success the delta is cleared and every touched shard is
// evicted from the cache.
func (s *Store) MergeDelta(d *delta.Store) error {
	all := d.All()
	if len(all) == 0 {
		return nil
	}

	byShard := make(map[int]map[int][]paperindex.Posting)
	for termID, postings := range all {
		shardID := shardOf(termID, s.n)
		if byShard[shardID] == nil {
			byShard[shardID] = make(map[int][]paperindex.Posting)
		}
		byShard[shardID][termID] = postings
	}

	for shardID, incoming := range byShard {
		if err := s.mergeShard(shardID, incoming); err != nil {
			return fmt.Errorf("merging shard %d: %w", shardID, err)
		}
	}

	d.Clear()
	return nil
}

func (s *Store) mergeShard(shardID int, incoming map[int][]paperindex.Posting) error {
	existing, err := s.loadShardFromDisk(shardID)
	if err != nil {
		return err
	}
	if existing == nil {
		existing = shardMap{}
	}

	for termID, postings := range incoming {
		have := make(map[int]bool, len(existing[termID]))
		for _, p := range existing[termID] {
			have[p.DocID] = true
		}
		for _, p := range postings {
			if have[p.DocID] {
				s.logger.Errorf("barrel: doc %d already indexed for term %d, skipping duplicate from delta", p.DocID, termID)
				continue
			}
			existing[termID] = append(existing[termID], p)
			have[p.DocID] = true
		}
	}

	data, err := json.Marshal(postingsfile.FromMap(existing))
	if err != nil {
		return err
	}
	if err := atomicfile.Write(s.shardPath(shardID), data); err != nil {
		return err
	}

	s.invalidate(shardID)
	return nil
}
