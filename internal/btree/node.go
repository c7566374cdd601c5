package btree

import "github.com/jhegemann/muonbase/internal/value"

// node is implemented by *leafNode and *innerNode. It exists so a path of
// ancestors recorded during descent can hold either shape uniformly.
type node interface {
	isLeaf() bool
}

// leafNode holds entries in sorted key order and is linked to its
// immediate neighbors to support ordered traversal without parent
// pointers.
type leafNode struct {
	keys []string
	vals []value.Value
	next *leafNode
	prev *leafNode
}

func (*leafNode) isLeaf() bool { return true }

// innerNode holds len(keys)+1 children. For child index i, every key in
// the subtree rooted at children[i] is < keys[i], and every key in
// children[i+1] is >= keys[i].
type innerNode struct {
	keys     []string
	children []node
}

func (*innerNode) isLeaf() bool { return false }

// searchLeaf returns the position of key within a sorted leaf, and
// whether it was found.
func searchLeaf(l *leafNode, key string) (int, bool) {
	lo, hi := 0, len(l.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if l.keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(l.keys) && l.keys[lo] == key {
		return lo, true
	}
	return lo, false
}

// childIndex implements the descent rule used throughout the original
// implementation this index is grounded on: below the first separator go
// left, at or past the last separator go right, otherwise binary search
// for the enclosing range.
func childIndex(in *innerNode, key string) int {
	if len(in.keys) == 0 {
		return 0
	}
	if key < in.keys[0] {
		return 0
	}
	if key >= in.keys[len(in.keys)-1] {
		return len(in.children) - 1
	}
	lo, hi := 0, len(in.keys)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if in.keys[mid] <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func insertStringAt(s []string, pos int, v string) []string {
	s = append(s, "")
	copy(s[pos+1:], s[pos:])
	s[pos] = v
	return s
}

func insertValueAt(s []value.Value, pos int, v value.Value) []value.Value {
	s = append(s, value.Value{})
	copy(s[pos+1:], s[pos:])
	s[pos] = v
	return s
}

func insertNodeAt(s []node, pos int, v node) []node {
	s = append(s, nil)
	copy(s[pos+1:], s[pos:])
	s[pos] = v
	return s
}

func removeStringAt(s []string, pos int) []string {
	return append(s[:pos], s[pos+1:]...)
}

func removeValueAt(s []value.Value, pos int) []value.Value {
	return append(s[:pos], s[pos+1:]...)
}

func removeNodeAt(s []node, pos int) []node {
	return append(s[:pos], s[pos+1:]...)
}
