package addrspace

import "github.com/biogo/store/llrb"

// intervalKey is the llrb.Comparable stored in the physical and virtual
// interval trees, keyed by the start address of a Section's range.  Lookups
// use Tree.Floor to find the candidate whose start is <= the probed address,
// the same idiom the teacher's shard index uses (key.Compare +
// Tree.Floor/Get) to resolve a coordinate to its containing shard.
type intervalKey struct {
	start uint64
	sec   *Section
}

// Compare implements llrb.Comparable.
func (k intervalKey) Compare(c llrb.Comparable) int {
	o := c.(intervalKey)
	switch {
	case k.start < o.start:
		return -1
	case k.start > o.start:
		return 1
	default:
		return 0
	}
}

// intervalTree wraps an llrb.Tree of intervalKey and resolves an address to
// its containing Section, if any.
type intervalTree struct {
	tree llrb.Tree
}

func (t *intervalTree) insert(start uint64, sec *Section) {
	t.tree.Insert(intervalKey{start: start, sec: sec})
}

// find returns the Section whose range contains addr, using contains to
// test the candidate returned by Floor (the entry with the largest start
// that is <= addr).
func (t *intervalTree) find(addr uint64, contains func(*Section, uint64) bool) *Section {
	probe := t.tree.Floor(intervalKey{start: addr})
	if probe == nil {
		return nil
	}
	k := probe.(intervalKey)
	if !contains(k.sec, addr) {
		return nil
	}
	return k.sec
}
