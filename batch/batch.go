// Package batch implements the ordered container contract the SST layer's
// merge coordinator expects from its caller: a sorted structure exposing a
// linked forward traversal starting at a header sentinel, supporting
// insertion at an arbitrary position while keeping the container sorted.
// It is a byte-keyed skip list, adapted from the generic skip list the
// memtable uses for in-memory storage, specialized to the Record shape the
// SST layer consumes (the generic `ordered` constraint a skip list usually
// keys on can't express []byte comparison, so this version compares with
// bytes.Compare directly).
package batch

import (
	"bytes"
	"iter"
	"math/rand"
)

const maxLevel = 32

// Op identifies whether a Record adds or removes a key.
type Op int

const (
	Add Op = iota
	Del
)

// Record is one operation produced by flushing a memtable or replaying a
// log: a key, the operation kind, and a reference into the external value
// log (meaningless for Del).
type Record struct {
	Key      []byte
	Op       Op
	ValueRef uint32
}

type node struct {
	rec     Record
	forward []*node
}

func newNode(rec Record, levels int) *node {
	return &node{rec: rec, forward: make([]*node, levels+1)}
}

// Batch is an ordered, byte-keyed skip list of Records with a header
// sentinel node. It is the concrete stand-in for the skiplist/memtable
// package sst treats as an external collaborator: both the records a
// caller flushes and the on-disk blocks the merge coordinator reconstructs
// from an existing SST file travel through this type.
type Batch struct {
	head   *node
	levels int
	count  int
}

// New returns an empty Batch.
func New() *Batch {
	return &Batch{head: newNode(Record{}, 0), levels: -1}
}

func getRandomLevel() int {
	level := 0
	for rand.Int31()&1 == 0 && level < maxLevel {
		level++
	}
	return level
}

func (b *Batch) adjustLevels(level int) {
	old := b.head.forward
	b.head = newNode(Record{}, level)
	b.levels = level
	copy(b.head.forward, old)
}

// Insert adds rec in ascending key order, stably after any node already
// carrying the same key. Unlike a memtable's own skiplist, this container
// never deduplicates by key: an ADD and a later DEL for the same key both
// remain as distinct nodes, since the SST writer's op-by-op handling of
// each node (persist ADDs, skip DELs) — not this container — is what
// decides which records survive a flush (§4.4.2).
func (b *Batch) Insert(rec Record) {
	level := getRandomLevel()
	if level > b.levels {
		b.adjustLevels(level)
	}

	updates := make([]*node, b.levels+1)
	x := b.head
	for l := b.levels; l >= 0; l-- {
		for x.forward[l] != nil && bytes.Compare(x.forward[l].rec.Key, rec.Key) <= 0 {
			x = x.forward[l]
		}
		updates[l] = x
	}

	n := newNode(rec, level)
	for l := 0; l <= level; l++ {
		n.forward[l] = updates[l].forward[l]
		updates[l].forward[l] = n
	}
	b.count++
}

// Len reports the number of records held, counting every inserted record
// (records sharing a key included).
func (b *Batch) Len() int { return b.count }

// All iterates Records in ascending key order — the linked forward
// traversal starting at a header sentinel the merge coordinator relies on.
func (b *Batch) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for n := b.head.forward[0]; n != nil; n = n.forward[0] {
			if !yield(n.rec) {
				return
			}
		}
	}
}

// Records materializes All into a slice, which is what the writer and
// merge coordinator operate on internally.
func (b *Batch) Records() []Record {
	out := make([]Record, 0, b.count)
	for rec := range b.All() {
		out = append(out, rec)
	}
	return out
}
