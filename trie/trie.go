// Package trie implements the prefix tree behind lexicon completion:
// insert a lowercased word, then list up to k words below a prefix in
// lexicographic order. Ported from original_source's Trie.cpp, with Go
// maps standing in for the C++ node's child map and an explicit sorted
// key slice standing in for that map's built-in ordering.
package trie

import "sort"

type node struct {
	children map[byte]*node
	keys     []byte // sorted children keys, kept in sync with children
	terminal bool
	word     string
}

func newNode() *node {
	return &node{children: make(map[byte]*node)}
}

// Trie is a byte-wise prefix tree over lowercase words.
type Trie struct {
	root *node
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{root: newNode()}
}

// Insert adds word to the trie. Case is preserved in the stored word,
// but traversal is case-insensitive (the caller is expected to hand in
// already-lowercased lexicon terms; Insert lower-cases defensively).
func (t *Trie) Insert(word string) {
	if word == "" {
		return
	}

	lower := toLower(word)
	cur := t.root
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		child, ok := cur.children[c]
		if !ok {
			child = newNode()
			cur.children[c] = child
			cur.keys = insertSorted(cur.keys, c)
		}
		cur = child
	}
	cur.terminal = true
	cur.word = word
}

// Complete returns up to k words in lexicographic order that begin with
// prefix (case-folded). An empty prefix walks from the root. If any
// character of the prefix is missing from the tree, it returns nil.
func (t *Trie) Complete(prefix string, k int) []string {
	if k <= 0 {
		return nil
	}

	lower := toLower(prefix)
	cur := t.root
	for i := 0; i < len(lower); i++ {
		child, ok := cur.children[lower[i]]
		if !ok {
			return nil
		}
		cur = child
	}

	results := make([]string, 0, k)
	collect(cur, &results, k)
	return results
}

// Empty reports whether the trie has no words at all.
func (t *Trie) Empty() bool {
	return len(t.root.children) == 0
}

// Clear resets the trie to empty.
func (t *Trie) Clear() {
	t.root = newNode()
}

func collect(n *node, results *[]string, k int) {
	if len(*results) >= k {
		return
	}

	if n.terminal {
		*results = append(*results, n.word)
		if len(*results) >= k {
			return
		}
	}

	for _, c := range n.keys {
		collect(n.children[c], results, k)
		if len(*results) >= k {
			return
		}
	}
}

func insertSorted(keys []byte, c byte) []byte {
	i := sort.Search(len(keys), func(i int) bool { return keys[i] >= c })
	keys = append(keys, 0)
	copy(keys[i+1:], keys[i:])
	keys[i] = c
	return keys
}

func toLower(s string) string {
	b := []byte(s)
	changed := false
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
			changed = true
		}
	}
	if !changed {
		return s
	}
	return string(b)
}
