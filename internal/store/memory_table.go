package store

import "github.com/google/btree"

const btreeDegree = 32 // B-tree degree, affects node size and cache efficiency

// row is one versioned record. ver is the store version that last wrote it;
// absent rows are treated as version 0.
type row[K comparable, V any] struct {
	key K
	val V
	ver uint64
}

// table is an ordered copy-on-write map backed by a B-tree.
type table[K comparable, V any] struct {
	tree *btree.BTreeG[row[K, V]]
}

func newTable[K comparable, V any](less func(a, b K) bool) *table[K, V] {
	return &table[K, V]{
		tree: btree.NewG(btreeDegree, func(a, b row[K, V]) bool { return less(a.key, b.key) }),
	}
}

// clone is O(1); both tables may be used concurrently afterwards.
func (t *table[K, V]) clone() *table[K, V] {
	return &table[K, V]{tree: t.tree.Clone()}
}

func (t *table[K, V]) get(k K) (row[K, V], bool) {
	return t.tree.Get(row[K, V]{key: k})
}

func (t *table[K, V]) version(k K) uint64 {
	if r, ok := t.get(k); ok {
		return r.ver
	}
	return 0
}

func (t *table[K, V]) set(k K, v V, ver uint64) {
	t.tree.ReplaceOrInsert(row[K, V]{key: k, val: v, ver: ver})
}

func (t *table[K, V]) del(k K) {
	t.tree.Delete(row[K, V]{key: k})
}

// tracked wraps a transaction's private clone of a table and remembers the
// version of every row the transaction observed and every key it wrote.
type tracked[K comparable, V any] struct {
	t     *table[K, V]
	reads map[K]uint64
	dirty map[K]struct{}
}

func track[K comparable, V any](t *table[K, V]) *tracked[K, V] {
	return &tracked[K, V]{
		t:     t,
		reads: make(map[K]uint64),
		dirty: make(map[K]struct{}),
	}
}

func (tr *tracked[K, V]) observe(k K, ver uint64) {
	if _, ok := tr.dirty[k]; ok {
		return
	}
	if _, ok := tr.reads[k]; !ok {
		tr.reads[k] = ver
	}
}

func (tr *tracked[K, V]) get(k K) (V, bool) {
	r, ok := tr.t.get(k)
	tr.observe(k, r.ver)
	return r.val, ok
}

func (tr *tracked[K, V]) put(k K, v V) {
	tr.t.set(k, v, 0)
	tr.dirty[k] = struct{}{}
}

func (tr *tracked[K, V]) del(k K) {
	tr.t.del(k)
	tr.dirty[k] = struct{}{}
}

// scan visits rows in key order starting at from; fn returns false to stop.
// Every visited row counts as read.
func (tr *tracked[K, V]) scan(from *K, fn func(k K, v V) bool) {
	visit := func(r row[K, V]) bool {
		tr.observe(r.key, r.ver)
		return fn(r.key, r.val)
	}
	if from == nil {
		tr.t.tree.Ascend(visit)
		return
	}
	tr.t.tree.AscendGreaterOrEqual(row[K, V]{key: *from}, visit)
}

// valid reports whether every row the transaction read is unchanged in cur.
func (tr *tracked[K, V]) valid(cur *table[K, V]) bool {
	for k, ver := range tr.reads {
		if cur.version(k) != ver {
			return false
		}
	}
	return true
}

// apply copies the transaction's writes into next, stamped with ver.
func (tr *tracked[K, V]) apply(next *table[K, V], ver uint64) {
	for k := range tr.dirty {
		if r, ok := tr.t.get(k); ok {
			next.set(k, r.val, ver)
		} else {
			next.del(k)
		}
	}
}
