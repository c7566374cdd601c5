// Package btree implements the ordered string-to-document index described
// by the data model: a B+-tree with linked leaves, split/redistribute/
// coalesce maintenance, and a bulk load/serialize path for whole-tree
// snapshots.
package btree

import (
	"fmt"

	"github.com/jhegemann/muonbase/internal/value"
)

// DefaultFanout is the reference fanout used by both leaf and internal
// nodes when none is supplied.
const DefaultFanout = 32

// MinFanout is the lowest fanout the tree will accept; below this the
// split/redistribute/coalesce invariants cannot all be satisfied.
const MinFanout = 4

// Tree is an ordered map from string key to value.Value, backed by a
// B+-tree. The zero Tree is not usable; construct with New.
type Tree struct {
	root   node
	size   int
	fanout int
}

// New constructs an empty Tree with the default fanout.
func New() *Tree {
	t, err := NewWithFanout(DefaultFanout)
	if err != nil {
		panic(err)
	}
	return t
}

// NewWithFanout constructs an empty Tree with an explicit fanout, mainly
// useful for exercising split/redistribute/coalesce at small sizes in
// tests.
func NewWithFanout(fanout int) (*Tree, error) {
	if fanout < MinFanout {
		return nil, fmt.Errorf("btree: fanout must be >= %d, got %d", MinFanout, fanout)
	}
	return &Tree{fanout: fanout}, nil
}

// Fanout reports the tree's configured fanout.
func (t *Tree) Fanout() int { return t.fanout }

// Size returns the number of leaf entries.
func (t *Tree) Size() int { return t.size }

// Clear empties the tree.
func (t *Tree) Clear() {
	t.root = nil
	t.size = 0
}

func (t *Tree) minFill() int { return (t.fanout + 1) / 2 }

// ancestorFrame records one step of a root-to-leaf descent: the parent
// inner node and the index of the child that was followed. Recording this
// path as we descend lets insert/erase walk back up without parent
// pointers on the nodes themselves.
type ancestorFrame struct {
	parent     *innerNode
	childIndex int
}

// descend walks from the root to the leaf that would hold key, recording
// the path of ancestors taken.
func (t *Tree) descend(key string) (*leafNode, []ancestorFrame) {
	if t.root == nil {
		return nil, nil
	}
	var path []ancestorFrame
	cur := t.root
	for {
		in, ok := cur.(*innerNode)
		if !ok {
			break
		}
		idx := childIndex(in, key)
		path = append(path, ancestorFrame{parent: in, childIndex: idx})
		cur = in.children[idx]
	}
	return cur.(*leafNode), path
}

// Contains reports whether key is present.
func (t *Tree) Contains(key string) bool {
	leaf, _ := t.descend(key)
	if leaf == nil {
		return false
	}
	_, found := searchLeaf(leaf, key)
	return found
}

// Insert inserts key/val, or overwrites the existing value if key is
// already present. Overwriting never changes tree structure.
func (t *Tree) Insert(key string, val value.Value) {
	val = val.Clone()
	if t.root == nil {
		leaf := &leafNode{keys: []string{key}, vals: []value.Value{val}}
		t.root = leaf
		t.size = 1
		return
	}
	leaf, path := t.descend(key)
	pos, found := searchLeaf(leaf, key)
	if found {
		leaf.vals[pos] = val
		return
	}
	leaf.keys = insertStringAt(leaf.keys, pos, key)
	leaf.vals = insertValueAt(leaf.vals, pos, val)
	t.size++
	if len(leaf.keys) > t.fanout {
		sibling, upKey := t.splitLeaf(leaf)
		t.propagate(path, leaf, upKey, sibling)
	}
}

// splitLeaf splits an overflowing leaf in two, linking the new right
// sibling into the leaf chain, and returns it with the separator key
// (the right sibling's first key).
func (t *Tree) splitLeaf(l *leafNode) (*leafNode, string) {
	n := len(l.keys)
	leftCount := n / 2
	if n%2 != 0 {
		leftCount++
	}
	sibling := &leafNode{
		keys: append([]string(nil), l.keys[leftCount:]...),
		vals: append([]value.Value(nil), l.vals[leftCount:]...),
	}
	l.keys = l.keys[:leftCount]
	l.vals = l.vals[:leftCount]

	sibling.next = l.next
	sibling.prev = l
	if l.next != nil {
		l.next.prev = sibling
	}
	l.next = sibling

	return sibling, sibling.keys[0]
}

// splitInner splits an overflowing inner node, promoting its middle key.
func (t *Tree) splitInner(in *innerNode) (*innerNode, string) {
	n := len(in.keys)
	leftKeys := n / 2
	upKey := in.keys[leftKeys]

	sibling := &innerNode{
		keys:     append([]string(nil), in.keys[leftKeys+1:]...),
		children: append([]node(nil), in.children[leftKeys+1:]...),
	}
	in.keys = in.keys[:leftKeys]
	in.children = in.children[:leftKeys+1]

	return sibling, upKey
}

// propagate inserts the new separator produced by a split into the parent
// named by the last frame of path, splitting the parent in turn (and
// recursing) if it overflows, or growing a new root if path is empty.
func (t *Tree) propagate(path []ancestorFrame, left node, upKey string, right node) {
	if len(path) == 0 {
		t.root = &innerNode{
			keys:     []string{upKey},
			children: []node{left, right},
		}
		return
	}
	frame := path[len(path)-1]
	parent := frame.parent
	parent.keys = insertStringAt(parent.keys, frame.childIndex, upKey)
	parent.children = insertNodeAt(parent.children, frame.childIndex+1, right)
	if len(parent.keys) > t.fanout {
		sibling, nextUpKey := t.splitInner(parent)
		t.propagate(path[:len(path)-1], parent, nextUpKey, sibling)
	}
}

// Erase removes key, reporting whether it was present.
func (t *Tree) Erase(key string) bool {
	if t.root == nil {
		return false
	}
	leaf, path := t.descend(key)
	pos, found := searchLeaf(leaf, key)
	if !found {
		return false
	}
	leaf.keys = removeStringAt(leaf.keys, pos)
	leaf.vals = removeValueAt(leaf.vals, pos)
	t.size--

	if len(path) == 0 {
		if len(leaf.keys) == 0 {
			t.root = nil
		}
		return true
	}

	var current node = leaf
	for len(path) > 0 {
		if !t.isSparse(current) {
			return true
		}
		frame := path[len(path)-1]
		parent := frame.parent
		idx := frame.childIndex

		var left, right node
		if idx > 0 {
			left = parent.children[idx-1]
		}
		if idx < len(parent.children)-1 {
			right = parent.children[idx+1]
		}

		if left != nil && t.redistribute(left, current, parent, idx-1) {
			return true
		}
		if right != nil && t.redistribute(current, right, parent, idx) {
			return true
		}
		if left != nil && t.coalesce(left, current, parent, idx-1) {
			parent.keys = removeStringAt(parent.keys, idx-1)
			parent.children = removeNodeAt(parent.children, idx)
			current = parent
			path = path[:len(path)-1]
			continue
		}
		if right != nil && t.coalesce(current, right, parent, idx) {
			parent.keys = removeStringAt(parent.keys, idx)
			parent.children = removeNodeAt(parent.children, idx+1)
			current = parent
			path = path[:len(path)-1]
			continue
		}
		panic("btree: erase could not restore minimum fill at a non-root node")
	}

	if in, ok := current.(*innerNode); ok && len(in.keys) == 0 {
		t.root = in.children[0]
	}
	return true
}

func (t *Tree) isSparse(n node) bool {
	switch v := n.(type) {
	case *leafNode:
		return len(v.keys) < t.minFill()
	case *innerNode:
		return len(v.keys) < t.minFill()
	default:
		return false
	}
}

// redistribute tries to move one entry from whichever of left/right has
// surplus across the parent separator at sepIdx, restoring both to at
// least minFill. It returns whether a move was made.
func (t *Tree) redistribute(left, right node, parent *innerNode, sepIdx int) bool {
	switch l := left.(type) {
	case *leafNode:
		r := right.(*leafNode)
		return t.redistributeLeaves(l, r, parent, sepIdx)
	case *innerNode:
		r := right.(*innerNode)
		return t.redistributeInner(l, r, parent, sepIdx)
	default:
		return false
	}
}

func (t *Tree) redistributeLeaves(left, right *leafNode, parent *innerNode, sepIdx int) bool {
	if len(right.keys) >= len(left.keys)+2 {
		left.keys = append(left.keys, right.keys[0])
		left.vals = append(left.vals, right.vals[0])
		right.keys = removeStringAt(right.keys, 0)
		right.vals = removeValueAt(right.vals, 0)
		parent.keys[sepIdx] = right.keys[0]
		return true
	}
	if len(left.keys) >= len(right.keys)+2 {
		n := len(left.keys)
		k, v := left.keys[n-1], left.vals[n-1]
		left.keys = left.keys[:n-1]
		left.vals = left.vals[:n-1]
		right.keys = insertStringAt(right.keys, 0, k)
		right.vals = insertValueAt(right.vals, 0, v)
		parent.keys[sepIdx] = k
		return true
	}
	return false
}

func (t *Tree) redistributeInner(left, right *innerNode, parent *innerNode, sepIdx int) bool {
	if len(right.keys) >= len(left.keys)+2 {
		upKey := parent.keys[sepIdx]
		left.keys = append(left.keys, upKey)
		left.children = append(left.children, right.children[0])
		right.children = removeNodeAt(right.children, 0)
		parent.keys[sepIdx] = right.keys[0]
		right.keys = removeStringAt(right.keys, 0)
		return true
	}
	if len(left.keys) >= len(right.keys)+2 {
		upKey := parent.keys[sepIdx]
		right.keys = insertStringAt(right.keys, 0, upKey)
		n := len(left.children)
		moved := left.children[n-1]
		left.children = left.children[:n-1]
		right.children = insertNodeAt(right.children, 0, moved)
		parent.keys[sepIdx] = left.keys[len(left.keys)-1]
		left.keys = left.keys[:len(left.keys)-1]
		return true
	}
	return false
}

// coalesce merges right into left if their combined size fits within one
// node (accounting for the separator key pulled down, in the inner case).
// It returns whether the merge happened; on success right is abandoned by
// its parent (the caller removes the separator and child slot).
func (t *Tree) coalesce(left, right node, parent *innerNode, sepIdx int) bool {
	switch l := left.(type) {
	case *leafNode:
		r := right.(*leafNode)
		if len(l.keys)+len(r.keys) > t.fanout {
			return false
		}
		l.keys = append(l.keys, r.keys...)
		l.vals = append(l.vals, r.vals...)
		l.next = r.next
		if r.next != nil {
			r.next.prev = l
		}
		return true
	case *innerNode:
		r := right.(*innerNode)
		if len(l.keys)+len(r.keys)+1 > t.fanout {
			return false
		}
		upKey := parent.keys[sepIdx]
		l.keys = append(l.keys, upKey)
		l.keys = append(l.keys, r.keys...)
		l.children = append(l.children, r.children...)
		return true
	default:
		return false
	}
}
