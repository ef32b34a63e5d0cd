package buffer

import (
	"sort"

	"github.com/brunokim/collabtree/btree"
	"github.com/brunokim/collabtree/clock"
)

// editBounds records an edit's boundaries, carried into the Operation
// broadcast to other replicas so they can locate the same span later.
// Boundaries are addressed by (InsertionID, offset into that
// insertion's own immutable text) rather than by FragmentID: a
// fragment can be split by a later local edit before a remote
// operation referencing it arrives, which would shrink or move the
// span a FragmentID-relative offset pointed into. Insertion text never
// changes after it's created, so this addressing survives any number
// of splits. A zero InsertionID means "the very beginning of the
// document".
//
// loID/hiID are only used locally, to assign the new fragment (if any)
// an id ordered correctly among its current neighbors; they never
// cross the wire.
type editBounds struct {
	startInsertionID clock.Local
	startOffset      int
	endInsertionID    clock.Local
	endOffset         int
	loID              FragmentID
	hiID              FragmentID
	prefixCount       int
}

// rewriteFragments walks tree in visible-offset order, splitting
// fragments at the [start,end) boundaries and tombstoning whatever
// visible content falls inside that range. It returns the rebuilt
// tree and the boundary coordinates of the range that was deleted.
//
// Time complexity: O(n)
func rewriteFragments(tree btree.Tree[Fragment, FragmentSummary], start, end int, deletedBy clock.Local) (btree.Tree[Fragment, FragmentSummary], editBounds) {
	var out []Fragment
	cur := btree.NewCursor[Fragment, FragmentSummary](tree)
	pos := 0
	var bounds editBounds
	startSet := false

	recordStart := func(id clock.Local, offset int) {
		if !startSet {
			bounds.startInsertionID = id
			bounds.startOffset = offset
			bounds.prefixCount = len(out)
			startSet = true
		}
	}
	recordEnd := func(id clock.Local, offset int) {
		bounds.endInsertionID = id
		bounds.endOffset = offset
	}

	if start == 0 {
		recordStart(clock.Local{}, 0)
	}

	for {
		item, ok := cur.Item()
		if !ok {
			break
		}
		fragLen := 0
		if item.Visible() {
			fragLen = item.Len()
		}
		fragStart, fragEnd := pos, pos+fragLen

		switch {
		case !item.Visible() || fragEnd <= start:
			out = append(out, item)
			if item.Visible() && fragEnd == start {
				recordStart(item.InsertionID, item.EndOffset)
			}
		case fragStart >= end:
			out = append(out, item)
		case fragStart >= start && fragEnd <= end:
			out = append(out, item.WithDeletion(deletedBy))
			recordEnd(item.InsertionID, item.EndOffset)
		default:
			left, mid, right := splitThree(item, start-fragStart, end-fragStart)
			if left != nil {
				out = append(out, *left)
				recordStart(left.InsertionID, left.EndOffset)
			}
			if mid != nil {
				out = append(out, mid.WithDeletion(deletedBy))
				recordEnd(mid.InsertionID, mid.EndOffset)
			}
			if right != nil {
				out = append(out, *right)
			}
		}

		pos = fragEnd
		if !cur.Next() {
			break
		}
	}

	if start == end {
		bounds.endInsertionID, bounds.endOffset = bounds.startInsertionID, bounds.startOffset
	}
	if bounds.prefixCount > 0 {
		bounds.loID = out[bounds.prefixCount-1].ID
	}
	if bounds.prefixCount < len(out) {
		bounds.hiID = out[bounds.prefixCount].ID
	}

	return btree.FromItems[Fragment, FragmentSummary](out), bounds
}

// splitThree splits fragment f into up to three pieces at byte
// offsets a and b relative to f's own start (0 <= a <= b <= f.Len()):
// a left piece before a, a middle piece covering [a,b), and a right
// piece from b onward. A piece is nil when a cut falls on its
// boundary, so the caller only sees an entry for content that
// actually exists.
func splitThree(f Fragment, a, b int) (left, mid, right *Fragment) {
	if a < 0 {
		a = 0
	}
	if b > f.Len() {
		b = f.Len()
	}
	if a >= f.Len() {
		return &f, nil, nil
	}
	rest := f
	if a > 0 {
		l, r := rest.split(a, nil)
		left = &l
		rest = r
		b -= a
	}
	switch {
	case b <= 0:
		right = &rest
	case b >= rest.Len():
		mid = &rest
	default:
		m, r := rest.split(b, nil)
		mid = &m
		right = &r
	}
	return left, mid, right
}

// spliceFragmentAt inserts frag so that it lands immediately after the
// first count fragments of tree, in order.
func spliceFragmentAt(tree btree.Tree[Fragment, FragmentSummary], count int, frag Fragment) btree.Tree[Fragment, FragmentSummary] {
	items := tree.Items()
	out := make([]Fragment, 0, len(items)+1)
	out = append(out, items[:count]...)
	out = append(out, frag)
	out = append(out, items[count:]...)
	return btree.FromItems[Fragment, FragmentSummary](out)
}

// splitPoint is one entry of an insertion's InsertionSplit index: the
// fragment that currently covers [prior entry's endOffset, endOffset)
// of that insertion's own text.
type splitPoint struct {
	endOffset int
	fragID    FragmentID
}

// insertionSplits is the InsertionSplit index: for every insertion that
// has at least one fragment in the tree, the ascending, gap-free tiling
// of (endOffset, FragmentID) pairs covering its text. A fresh local or
// remote edit can split one of an insertion's fragments into several;
// this index is what lets a later operation that still addresses the
// insertion by its own offsets find the right fragment in O(log m) (m
// being that one insertion's own split count) instead of scanning every
// fragment in the buffer.
type insertionSplits map[clock.Local][]splitPoint

// buildInsertionSplits groups items by insertion and records each
// insertion's current tiling, in ascending order. Built fresh from the
// fragment list each time a remote operation's boundaries are located,
// rather than kept and patched in place.
func buildInsertionSplits(items []Fragment) insertionSplits {
	byInsertion := make(map[clock.Local][]Fragment)
	for _, f := range items {
		byInsertion[f.InsertionID] = append(byInsertion[f.InsertionID], f)
	}
	idx := make(insertionSplits, len(byInsertion))
	for id, frags := range byInsertion {
		sort.Slice(frags, func(i, j int) bool { return frags[i].StartOffset < frags[j].StartOffset })
		points := make([]splitPoint, len(frags))
		for i, f := range frags {
			points[i] = splitPoint{endOffset: f.EndOffset, fragID: f.ID}
		}
		idx[id] = points
	}
	return idx
}

// resolve looks up the FragmentID currently covering offset off of
// insertion id's own text (off may equal a fragment's EndOffset,
// meaning the point immediately after it), via binary search over that
// insertion's own split points.
//
// Time complexity: O(log m), m the number of fragments id has been
// split into.
func (idx insertionSplits) resolve(id clock.Local, off int) (FragmentID, bool) {
	points := idx[id]
	if len(points) == 0 {
		return nil, false
	}
	i := sort.Search(len(points), func(i int) bool { return points[i].endOffset >= off })
	if i == len(points) {
		return nil, false
	}
	return points[i].fragID, true
}

// locateInsertionOffset finds the fragment in items that currently
// covers absolute offset off of insertion id's own text. It returns
// that fragment's index in items and the offset relative to its own
// start. ok is false if no fragment of that insertion covers off,
// meaning the insertion hasn't been integrated into this tree yet.
//
// Resolution is two binary searches: idx.resolve narrows (id, off) down
// to a FragmentID in O(log m), then items, which is kept sorted by
// FragmentID (Buffer's tree order), is searched for that id in
// O(log n).
//
// Time complexity: O(log m + log n)
func locateInsertionOffset(idx insertionSplits, items []Fragment, id clock.Local, off int) (index, relOffset int, ok bool) {
	fragID, ok := idx.resolve(id, off)
	if !ok {
		return 0, 0, false
	}
	i := sort.Search(len(items), func(i int) bool { return items[i].ID.Compare(fragID) >= 0 })
	if i == len(items) || items[i].ID.Compare(fragID) != 0 {
		return 0, 0, false
	}
	return i, off - items[i].StartOffset, true
}

// spliceAtInsertionPoint inserts frag immediately at the point
// (insID, offset), splitting the fragment currently covering that
// point if needed. A zero insID means "insert at the very beginning".
// ok is false if insID hasn't been integrated into tree yet.
func spliceAtInsertionPoint(tree btree.Tree[Fragment, FragmentSummary], insID clock.Local, offset int, frag Fragment) (btree.Tree[Fragment, FragmentSummary], bool) {
	if insID.IsZero() {
		return spliceFragmentAt(tree, 0, frag), true
	}
	items := tree.Items()
	idx, rel, ok := locateInsertionOffset(buildInsertionSplits(items), items, insID, offset)
	if !ok {
		return tree, false
	}
	item := items[idx]
	out := make([]Fragment, 0, len(items)+2)
	out = append(out, items[:idx]...)
	switch {
	case rel <= 0:
		out = append(out, frag, item)
	case rel >= item.Len():
		out = append(out, item)
		for idx+1 < len(items) && items[idx+1].ID.Compare(frag.ID) < 0 {
			out = append(out, items[idx+1])
			idx++
		}
		out = append(out, frag)
	default:
		left, right := item.split(rel, frag.ID)
		out = append(out, left, frag, right)
	}
	out = append(out, items[idx+1:]...)
	return btree.FromItems[Fragment, FragmentSummary](out), true
}

// deleteRange tombstones the span from (startIns,startOffset) to
// (endIns,endOffset) inclusive, splitting the boundary fragments where
// the offsets fall strictly inside them. A zero startIns means the
// range starts at the very beginning of the document. Fragments are
// located by insertion id and an offset into that insertion's own
// text rather than by FragmentID, so a concurrent split of a boundary
// fragment (by some other operation applied in between) doesn't throw
// off where this one lands. ok is false if startIns or endIns hasn't
// been integrated yet.
//
// A fragment is tombstoned only if versionInRange had already observed
// its insertion: a fragment some other replica concurrently inserted
// into this range, which the issuing replica never saw, survives
// instead of being silently dropped.
//
// Time complexity: O(n)
func deleteRange(tree btree.Tree[Fragment, FragmentSummary], startIns clock.Local, startOffset int, endIns clock.Local, endOffset int, deletedBy clock.Local, versionInRange clock.Global) (btree.Tree[Fragment, FragmentSummary], bool) {
	items := tree.Items()
	splits := buildInsertionSplits(items)

	hasStart := !startIns.IsZero()
	var startIdx, startRel int
	if hasStart {
		idx, rel, ok := locateInsertionOffset(splits, items, startIns, startOffset)
		if !ok {
			return tree, false
		}
		startIdx, startRel = idx, rel
	}
	endIdx, endRel, ok := locateInsertionOffset(splits, items, endIns, endOffset)
	if !ok {
		return tree, false
	}

	tombstone := func(f Fragment) Fragment {
		if versionInRange.Observed(f.InsertionID) {
			return f.WithDeletion(deletedBy)
		}
		return f
	}

	out := make([]Fragment, 0, len(items)+2)
	for i, item := range items {
		switch {
		case hasStart && i == startIdx && i == endIdx:
			left, mid, right := splitThree(item, startRel, endRel)
			if left != nil {
				out = append(out, *left)
			}
			if mid != nil {
				out = append(out, tombstone(*mid))
			}
			if right != nil {
				out = append(out, *right)
			}
		case hasStart && i == startIdx:
			left, right := item.split(startRel, nil)
			out = append(out, left, tombstone(right))
		case i == endIdx:
			left, right := item.split(endRel, nil)
			out = append(out, tombstone(left), right)
		case (hasStart && i > startIdx && i < endIdx) || (!hasStart && i < endIdx):
			out = append(out, tombstone(item))
		default:
			out = append(out, item)
		}
	}
	return btree.FromItems[Fragment, FragmentSummary](out), true
}
