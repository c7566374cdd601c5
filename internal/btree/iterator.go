package btree

import "github.com/jhegemann/muonbase/internal/value"

// Iterator walks the tree's leaf chain in ascending key order. The zero
// Iterator is not valid; obtain one from Tree.Find, Tree.Begin, or
// Tree.End.
type Iterator struct {
	leaf *leafNode
	pos  int
}

// Valid reports whether the iterator references an existing entry.
func (it Iterator) Valid() bool {
	return it.leaf != nil && it.pos >= 0 && it.pos < len(it.leaf.keys)
}

// Key returns the entry's key. Valid must be true.
func (it Iterator) Key() string { return it.leaf.keys[it.pos] }

// Value returns the entry's value. Valid must be true.
func (it Iterator) Value() value.Value { return it.leaf.vals[it.pos] }

// Next advances to the following entry, possibly crossing into the next
// leaf. The result may be invalid if there is no following entry.
func (it Iterator) Next() Iterator {
	it.pos++
	for it.leaf != nil && it.pos >= len(it.leaf.keys) {
		it.leaf = it.leaf.next
		it.pos = 0
	}
	return it
}

// Prev moves to the preceding entry, possibly crossing into the previous
// leaf. The result may be invalid if there is no preceding entry.
func (it Iterator) Prev() Iterator {
	it.pos--
	for it.pos < 0 {
		if it.leaf == nil || it.leaf.prev == nil {
			return Iterator{}
		}
		it.leaf = it.leaf.prev
		it.pos = len(it.leaf.keys) - 1
	}
	return it
}

func (t *Tree) leftmostLeaf() *leafNode {
	if t.root == nil {
		return nil
	}
	cur := t.root
	for {
		in, ok := cur.(*innerNode)
		if !ok {
			return cur.(*leafNode)
		}
		cur = in.children[0]
	}
}

func (t *Tree) rightmostLeaf() *leafNode {
	if t.root == nil {
		return nil
	}
	cur := t.root
	for {
		in, ok := cur.(*innerNode)
		if !ok {
			return cur.(*leafNode)
		}
		cur = in.children[len(in.children)-1]
	}
}

// Begin returns an iterator at the smallest key, or an invalid iterator
// if the tree is empty.
func (t *Tree) Begin() Iterator {
	leaf := t.leftmostLeaf()
	if leaf == nil || len(leaf.keys) == 0 {
		return Iterator{}
	}
	return Iterator{leaf: leaf, pos: 0}
}

// End returns an invalid iterator representing the position one past the
// largest key, matching the usual half-open range idiom: iterate with
// it := t.Begin(); it.Valid(); it = it.Next().
func (t *Tree) End() Iterator {
	return Iterator{}
}

// Last returns an iterator at the largest key, or an invalid iterator if
// the tree is empty.
func (t *Tree) Last() Iterator {
	leaf := t.rightmostLeaf()
	if leaf == nil || len(leaf.keys) == 0 {
		return Iterator{}
	}
	return Iterator{leaf: leaf, pos: len(leaf.keys) - 1}
}

// Find returns an iterator at key, or an invalid iterator if key is
// absent.
func (t *Tree) Find(key string) Iterator {
	leaf, _ := t.descend(key)
	if leaf == nil {
		return Iterator{}
	}
	pos, found := searchLeaf(leaf, key)
	if !found {
		return Iterator{}
	}
	return Iterator{leaf: leaf, pos: pos}
}

// EraseIterator removes the entry it references, returning an iterator
// to the entry that followed it (consistent with re-finding its former
// successor key, since erase may trigger redistribute/coalesce that
// relocates surviving entries across node boundaries).
func (t *Tree) EraseIterator(it Iterator) Iterator {
	if !it.Valid() {
		return Iterator{}
	}
	key := it.Key()
	successor := it.Next()
	var successorKey string
	hasSuccessor := successor.Valid()
	if hasSuccessor {
		successorKey = successor.Key()
	}
	t.Erase(key)
	if !hasSuccessor {
		return Iterator{}
	}
	return t.Find(successorKey)
}

// Keys returns every key in ascending order.
func (t *Tree) Keys() []string {
	keys := make([]string, 0, t.size)
	for it := t.Begin(); it.Valid(); it = it.Next() {
		keys = append(keys, it.Key())
	}
	return keys
}
