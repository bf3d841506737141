// Package chash implements the counting hash used by the report
// aggregators: a chained hash whose records live in a chunk arena, so
// insertion order survives and teardown is one free. Callers supply
// the hash value; the table only masks it into the bucket range.
//
// The design follows the classic ftchash layout, with chain links as
// arena indices instead of pointers and sort comparators as closures
// instead of offset globals.
package chash

import "sort"

// Rec is one hash record: the fixed key and the caller's value.
type Rec[K comparable, V any] struct {
	next int32 // arena index of the next record in this bucket, -1 ends
	Key  K
	Val  V
}

// Table is a chained counting hash.
type Table[K comparable, V any] struct {
	buckets      []int32
	mask         uint32
	chunks       [][]Rec[K, V]
	chunkEntries int
	entries      int

	sorted    []*Rec[K, V]
	hasSorted bool
}

// New creates a table with hSize buckets (rounded up to a power of
// two) allocating records chunkEntries at a time.
func New[K comparable, V any](hSize, chunkEntries int) *Table[K, V] {
	if hSize < 1 {
		hSize = 1
	}
	size := 1
	for size < hSize {
		size <<= 1
	}
	if chunkEntries < 1 {
		chunkEntries = 1
	}
	b := make([]int32, size)
	for i := range b {
		b[i] = -1
	}
	return &Table[K, V]{buckets: b, mask: uint32(size - 1), chunkEntries: chunkEntries}
}

// Entries returns the number of distinct keys stored.
func (t *Table[K, V]) Entries() int {
	return t.entries
}

func (t *Table[K, V]) rec(idx int32) *Rec[K, V] {
	return &t.chunks[int(idx)/t.chunkEntries][int(idx)%t.chunkEntries]
}

// Lookup returns the record for key, or nil. hash is the caller's
// precomputed hash of key.
func (t *Table[K, V]) Lookup(key K, hash uint32) *Rec[K, V] {
	for idx := t.buckets[hash&t.mask]; idx >= 0; {
		r := t.rec(idx)
		if r.Key == key {
			return r
		}
		idx = r.next
	}
	return nil
}

// Update returns the record for key, allocating a zeroed one if the
// key is not yet present. A new record invalidates any sort index.
func (t *Table[K, V]) Update(key K, hash uint32) *Rec[K, V] {
	h := hash & t.mask
	for idx := t.buckets[h]; idx >= 0; {
		r := t.rec(idx)
		if r.Key == key {
			return r
		}
		idx = r.next
	}
	t.hasSorted = false
	idx := t.allocRec()
	r := t.rec(idx)
	r.Key = key
	r.next = t.buckets[h]
	t.buckets[h] = idx
	t.entries++
	return r
}

// allocRec grabs the next arena slot, adding a chunk at the watermark.
func (t *Table[K, V]) allocRec() int32 {
	n := len(t.chunks)
	if n == 0 || len(t.chunks[n-1]) == t.chunkEntries {
		t.chunks = append(t.chunks, make([]Rec[K, V], 0, t.chunkEntries))
		n++
	}
	c := &t.chunks[n-1]
	*c = append(*c, Rec[K, V]{next: -1})
	return int32((n-1)*t.chunkEntries + len(*c) - 1)
}

// Sort builds the sort index ordered by less. Iteration via Do then
// follows that order until the next insert.
func (t *Table[K, V]) Sort(less func(a, b *Rec[K, V]) bool) {
	t.sorted = make([]*Rec[K, V], 0, t.entries)
	for i := range t.chunks {
		for j := range t.chunks[i] {
			t.sorted = append(t.sorted, &t.chunks[i][j])
		}
	}
	sort.Slice(t.sorted, func(i, j int) bool {
		return less(t.sorted[i], t.sorted[j])
	})
	t.hasSorted = true
}

// Do calls fn for every record: in sort order when a sort index is
// valid, otherwise in insertion order. fn returning false stops early.
func (t *Table[K, V]) Do(fn func(r *Rec[K, V]) bool) {
	if t.hasSorted {
		for _, r := range t.sorted {
			if !fn(r) {
				return
			}
		}
		return
	}
	for i := range t.chunks {
		for j := range t.chunks[i] {
			if !fn(&t.chunks[i][j]) {
				return
			}
		}
	}
}
