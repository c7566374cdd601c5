package btree

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jhegemann/muonbase/internal/value"
)

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Encode writes every entry in ascending key order as a count-prefixed
// flat list. The on-disk form never mentions node boundaries: Decode
// rebuilds a tree shaped by the fanout it is given, independent of
// whatever shape produced the encoding.
func Encode(w io.Writer, t *Tree) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(t.size)); err != nil {
		return fmt.Errorf("btree: encode count: %w", err)
	}
	for it := t.Begin(); it.Valid(); it = it.Next() {
		if err := writeString(w, it.Key()); err != nil {
			return fmt.Errorf("btree: encode key: %w", err)
		}
		if err := value.Encode(w, it.Value()); err != nil {
			return fmt.Errorf("btree: encode value: %w", err)
		}
	}
	return nil
}

// findFanout is the bulk-load sizing heuristic: given a pool of `cache`
// ready items, a preferred node size `prio` and a hard ceiling
// `maximum`, it picks how many of them the next node should take. Taking
// exactly prio keeps nodes uniform as long as there are at least two
// prio's worth waiting; once the pool thins out it either empties in one
// last undersized node or, if the remainder would overflow a single
// node, splits it evenly across the last two.
func findFanout(cache, prio, maximum int) int {
	if cache >= 2*prio {
		return prio
	}
	if cache > maximum {
		return cache / 2
	}
	return cache
}

// Decode reads a flat list written by Encode and bulk-loads it into a new
// Tree with the given fanout, using the same level-by-level construction
// as the original store: leaves are packed at 3/4 capacity while enough
// entries remain to keep doing so, then inner levels are built the same
// way one layer at a time until a single root remains.
func Decode(r io.Reader, fanout int) (*Tree, error) {
	t, err := NewWithFanout(fanout)
	if err != nil {
		return nil, err
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("btree: decode count: %w", err)
	}
	t.size = int(count)
	if count == 0 {
		return t, nil
	}
	keys := make([]string, count)
	vals := make([]value.Value, count)
	for i := range keys {
		k, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("btree: decode key: %w", err)
		}
		v, err := value.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("btree: decode value: %w", err)
		}
		keys[i] = k
		vals[i] = v
	}

	leaves := bulkLeaves(keys, vals, fanout)
	if len(leaves) == 1 {
		t.root = leaves[0]
		return t, nil
	}

	level := make([]node, len(leaves))
	firstKeys := make([]string, len(leaves))
	for i, l := range leaves {
		level[i] = l
		firstKeys[i] = l.keys[0]
	}
	for len(level) > 1 {
		level, firstKeys = bulkInnerLevel(level, firstKeys, fanout)
	}
	t.root = level[0]
	return t, nil
}

// bulkLeaves packs the full sorted key/value run into leaves using
// findFanout with prio = 3*fanout/4, linking each leaf to its
// predecessor as it is built. The accounting mirrors the original
// deserializer's streaming cache, tracked here with plain index cursors
// since the whole key/value run already sits in memory rather than on a
// stream.
func bulkLeaves(keys []string, vals []value.Value, fanout int) []*leafNode {
	prio := 3 * fanout / 4
	if prio == 0 {
		prio = 1
	}
	total := len(keys)
	var leaves []*leafNode
	var prev *leafNode
	readPos := 0
	outPos := 0
	available := 0
	for available > 0 || readPos < total {
		for readPos < total && available < 2*prio {
			readPos++
			available++
		}
		n := findFanout(available, prio, fanout)
		leaf := &leafNode{
			keys: append([]string(nil), keys[outPos:outPos+n]...),
			vals: append([]value.Value(nil), vals[outPos:outPos+n]...),
		}
		if prev != nil {
			prev.next = leaf
			leaf.prev = prev
		}
		leaves = append(leaves, leaf)
		prev = leaf
		outPos += n
		available -= n
	}
	return leaves
}

// bulkInnerLevel groups the current level's nodes under a new level of
// inner nodes using findFanout with prio = innerPrio = 3*fanout/4+1
// children (the child count of a node holding 3*fanout/4 keys) and
// ceiling fanout+1 children,
// returning the new level along with the first key reachable under each
// new node (needed by the caller one level up).
func bulkInnerLevel(children []node, firstKeys []string, fanout int) ([]node, []string) {
	innerPrio := 3*fanout/4 + 1
	if innerPrio < 2 {
		innerPrio = 2
	}
	childCeiling := fanout + 1
	total := len(children)
	var level []node
	var levelFirstKeys []string
	pos := 0
	remaining := total
	for remaining > 0 {
		n := findFanout(remaining, innerPrio, childCeiling)
		group := children[pos : pos+n]
		groupFirstKeys := firstKeys[pos+1 : pos+n]
		level = append(level, &innerNode{
			keys:     append([]string(nil), groupFirstKeys...),
			children: append([]node(nil), group...),
		})
		levelFirstKeys = append(levelFirstKeys, firstKeys[pos])
		pos += n
		remaining -= n
	}
	return level, levelFirstKeys
}
