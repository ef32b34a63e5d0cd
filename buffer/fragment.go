package buffer

import (
	"fmt"

	"github.com/brunokim/collabtree/clock"
)

// FragmentID is a dense, totally ordered identifier: a sequence of
// digits (base 2^16, for a large interleaving space) that lets a new
// fragment be assigned an id strictly between any two existing,
// adjacent ones without renumbering the tree. Grounded on
// FragmentId(Arc<Vec<u16>>) in the editor core's buffer.
type FragmentID []uint16

var (
	minFragmentID = FragmentID{0}
	maxFragmentID = FragmentID{0xFFFF}
)

// Compare orders two FragmentIDs lexicographically, padding the
// shorter with implicit trailing zeros.
func (id FragmentID) Compare(other FragmentID) int {
	n := len(id)
	if len(other) > n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		var a, b uint16
		if i < len(id) {
			a = id[i]
		}
		if i < len(other) {
			b = other[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (id FragmentID) String() string {
	return fmt.Sprintf("%v", []uint16(id))
}

// Between returns a new id that sorts strictly between lo and hi.
// lo may be nil to mean "start of the sequence", hi may be nil to mean
// "end of the sequence". Deterministic in lo and hi, so two replicas
// splitting at the same neighbors independently compute the same id.
func Between(lo, hi FragmentID) FragmentID {
	if lo == nil {
		lo = minFragmentID
	}
	if hi == nil {
		hi = FragmentID{0xFFFF, 0xFFFF}
	}
	out := make(FragmentID, 0, len(lo)+1)
	i := 0
	for {
		var a, b uint32 = 0, 0x10000
		if i < len(lo) {
			a = uint32(lo[i])
		}
		if i < len(hi) {
			b = uint32(hi[i])
		}
		if b-a > 1 {
			mid := a + (b-a)/2
			out = append(out, uint16(mid))
			return out
		}
		// No room at this digit; carry lo's digit forward and try the
		// next one.
		out = append(out, uint16(a))
		i++
		if i > len(lo) && i > len(hi) {
			out = append(out, 0x8000)
			return out
		}
	}
}

// NewFragmentID returns a fresh id strictly between lo and hi for a
// brand new insertion made by replica. Between alone is deterministic
// in (lo, hi) only, which is exactly the situation when two replicas
// insert into the same gap concurrently; tagging the id with the
// inserting replica keeps the two results distinct (and, since every
// replica computes the same pair independently, deterministically
// ordered) instead of colliding on the same id.
func NewFragmentID(lo, hi FragmentID, replica clock.ReplicaID) FragmentID {
	mid := Between(lo, hi)
	out := make(FragmentID, len(mid)+2)
	copy(out, mid)
	out[len(mid)] = uint16(replica >> 16)
	out[len(mid)+1] = uint16(replica)
	return out
}

// Insertion is one immutable unit of inserted text, identified by the
// clock.Local of the edit that created it.
type Insertion struct {
	ID        clock.Local
	Text      *Text
	Timestamp clock.Lamport
}

// Fragment is a contiguous slice of one Insertion's text, the item
// type stored in a Buffer's fragment tree. [StartOffset, EndOffset) is
// relative to the owning Insertion's Text. Deletions records every
// operation that has deleted this fragment (usually zero or one;
// more than one only when concurrent deletes race).
type Fragment struct {
	ID            FragmentID
	InsertionID   clock.Local
	InsertionTS   clock.Lamport
	StartOffset   int
	EndOffset     int
	InsertionText *Text
	Deletions     map[clock.Local]struct{}
}

// Len returns the fragment's code-unit length, ignoring visibility.
func (f Fragment) Len() int {
	return f.EndOffset - f.StartOffset
}

// Visible reports whether no operation has deleted this fragment.
func (f Fragment) Visible() bool {
	return len(f.Deletions) == 0
}

// CodeUnits returns the fragment's own slice of code units.
func (f Fragment) CodeUnits() []uint16 {
	return f.InsertionText.CodeUnits[f.StartOffset:f.EndOffset]
}

// WithDeletion returns a copy of f with localID added to its tombstone
// set (a no-op, structurally, if localID is already present, preserving
// btree.Item's copy-on-write contract).
func (f Fragment) WithDeletion(localID clock.Local) Fragment {
	deletions := make(map[clock.Local]struct{}, len(f.Deletions)+1)
	for id := range f.Deletions {
		deletions[id] = struct{}{}
	}
	deletions[localID] = struct{}{}
	f.Deletions = deletions
	return f
}

// split divides f at offset (relative to f.StartOffset) into two
// fragments covering [f.StartOffset,f.StartOffset+offset) and
// [f.StartOffset+offset,f.EndOffset), assigning the right half a fresh
// id strictly between f.ID and the fragment that follows it (nextID,
// possibly nil for "no fragment follows").
func (f Fragment) split(offset int, nextID FragmentID) (left, right Fragment) {
	mid := f.StartOffset + offset
	left = f
	left.EndOffset = mid
	right = f
	right.StartOffset = mid
	right.ID = Between(f.ID, nextID)
	return left, right
}

// FragmentSummary is the commutative monoid Fragment contributes to a
// btree.Tree: the visible length of the run (used for offset-based
// seeking) and MaxVersion, the componentwise max of every local
// timestamp touching the run (the fragment's own insertion plus every
// deletion), used by ChangesSince to prune subtrees that can't contain
// anything new since a given version.
type FragmentSummary struct {
	VisibleLen int
	MaxVersion clock.Global
}

func (s FragmentSummary) Add(other FragmentSummary) FragmentSummary {
	merged := s.MaxVersion.Clone()
	merged.ObserveAll(other.MaxVersion)
	return FragmentSummary{VisibleLen: s.VisibleLen + other.VisibleLen, MaxVersion: merged}
}

func (f Fragment) Summarize() FragmentSummary {
	length := 0
	if f.Visible() {
		length = f.Len()
	}
	version := clock.NewGlobal()
	version.Observe(f.InsertionID)
	for delID := range f.Deletions {
		version.Observe(delID)
	}
	return FragmentSummary{VisibleLen: length, MaxVersion: version}
}

func (f Fragment) Key() FragmentID {
	return f.ID
}

// CharOffset is the Dimension used to seek a fragment cursor by
// visible character offset.
type CharOffset int

func (o CharOffset) FromSummary(s FragmentSummary) CharOffset { return CharOffset(s.VisibleLen) }
func (o CharOffset) Add(s FragmentSummary) CharOffset         { return o + CharOffset(s.VisibleLen) }
func (o CharOffset) Compare(other CharOffset) int {
	switch {
	case o < other:
		return -1
	case o > other:
		return 1
	default:
		return 0
	}
}
