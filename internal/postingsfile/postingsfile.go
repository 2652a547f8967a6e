// Package postingsfile implements the on-disk JSON encoding shared by
// the barrel store's shard files and the delta store (SPEC_FULL.md §6):
// {"<term_id>": [[doc_id, weighted_freq, [positions...]], ...]}.
package postingsfile

import (
	"encoding/json"
	"strconv"

	"github.com/bobinette/paperindex"
)

// Entry is a single posting in its wire tuple form.
type Entry struct {
	DocID             int
	WeightedFrequency int
	Positions         []int
}

// MarshalJSON encodes the entry as the fixed-arity JSON array the wire
// format requires, rather than an object.
func (e Entry) MarshalJSON() ([]byte, error) {
	positions := e.Positions
	if positions == nil {
		positions = []int{}
	}
	return json.Marshal([3]interface{}{e.DocID, e.WeightedFrequency, positions})
}

// UnmarshalJSON decodes a [doc_id, weighted_freq, positions] tuple.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var arr [3]json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if err := json.Unmarshal(arr[0], &e.DocID); err != nil {
		return err
	}
	if err := json.Unmarshal(arr[1], &e.WeightedFrequency); err != nil {
		return err
	}
	return json.Unmarshal(arr[2], &e.Positions)
}

// File is the raw decoded shape of a barrel shard or the delta file:
// term id (as a string key) to its posting list.
type File map[string][]Entry

// ToMap converts a decoded File into the in-memory
// map[termID][]paperindex.Posting representation. Keys that are not
// valid integers are skipped and reported, matching §7's "corrupt
// entry ⇒ log and skip" policy rather than failing the whole load.
func (f File) ToMap() (map[int][]paperindex.Posting, []string) {
	out := make(map[int][]paperindex.Posting, len(f))
	var skipped []string
	for key, entries := range f {
		termID, err := strconv.Atoi(key)
		if err != nil {
			skipped = append(skipped, key)
			continue
		}
		postings := make([]paperindex.Posting, len(entries))
		for i, e := range entries {
			postings[i] = paperindex.Posting{
				DocID:             e.DocID,
				WeightedFrequency: e.WeightedFrequency,
				Positions:         e.Positions,
			}
		}
		out[termID] = postings
	}
	return out, skipped
}

// FromMap converts the in-memory representation back into the wire
// File shape for marshaling.
func FromMap(m map[int][]paperindex.Posting) File {
	f := make(File, len(m))
	for termID, postings := range m {
		entries := make([]Entry, len(postings))
		for i, p := range postings {
			entries[i] = Entry{DocID: p.DocID, WeightedFrequency: p.WeightedFrequency, Positions: p.Positions}
		}
		f[strconv.Itoa(termID)] = entries
	}
	return f
}
