package buffer

import (
	"github.com/brunokim/collabtree/btree"
	"github.com/brunokim/collabtree/clock"
)

// AnchorBias resolves which side of a character an anchor clings to
// when that exact position is later deleted: Before moves the anchor
// left as surrounding text vanishes, After moves it right.
type AnchorBias int

const (
	AnchorBefore AnchorBias = iota
	AnchorAfter
)

// anchorKind distinguishes the two sentinel anchors (buffer start and
// end, which never move) from an ordinary anchor pinned to a fragment.
type anchorKind int

const (
	anchorStart anchorKind = iota
	anchorEnd
	anchorMiddle
)

// Anchor is a stable reference to a position in a Buffer that survives
// concurrent edits elsewhere in the text: it's pinned to an offset
// into a specific insertion's own immutable text, rather than to a
// raw character offset or a FragmentID, so insertions before the
// anchor (and splits of the fragment it once pointed into) don't
// invalidate it.
type Anchor struct {
	kind        anchorKind
	insertionID clock.Local
	offset      int
	bias        AnchorBias
}

// AnchorStart is the anchor before the buffer's first character.
var AnchorStart = Anchor{kind: anchorStart}

// AnchorEnd is the anchor after the buffer's last character.
var AnchorEnd = Anchor{kind: anchorEnd}

// AnchorBeforeOffset returns a stable anchor at offset, biased to
// stick to the character before it.
//
// Time complexity: O(log n)
func (b *Buffer) AnchorBeforeOffset(offset int) (Anchor, error) {
	return b.anchorAtOffset(offset, AnchorBefore)
}

// AnchorAfterOffset returns a stable anchor at offset, biased to stick
// to the character after it.
//
// Time complexity: O(log n)
func (b *Buffer) AnchorAfterOffset(offset int) (Anchor, error) {
	return b.anchorAtOffset(offset, AnchorAfter)
}

func (b *Buffer) anchorAtOffset(offset int, bias AnchorBias) (Anchor, error) {
	if offset < 0 || offset > b.visibleLen() {
		return Anchor{}, ErrOffsetOutOfRange
	}
	if offset == 0 && bias == AnchorBefore {
		return AnchorStart, nil
	}
	if offset == b.visibleLen() && bias == AnchorAfter {
		return AnchorEnd, nil
	}
	cur := b.cursor()
	target := CharOffset(offset)
	seekBias := seekBiasFor(bias)
	fragmentCrossed := btree.Seek[Fragment, FragmentSummary, CharOffset](cur, target, seekBias)
	if !fragmentCrossed {
		return AnchorEnd, nil
	}
	item, _ := cur.Item()
	within := offset - cur.Summary().VisibleLen
	return Anchor{kind: anchorMiddle, insertionID: item.InsertionID, offset: item.StartOffset + within, bias: bias}, nil
}

// OffsetForAnchor resolves anchor back to a current character offset,
// which can shift as fragments before it are inserted or deleted.
//
// Time complexity: O(n). Unlike a plain offset lookup, this can't seek
// by FragmentID (the anchor's fragment may have since been split), so
// it walks the tree accumulating visible length until it finds the
// fragment that currently covers the anchor's insertion offset.
func (b *Buffer) OffsetForAnchor(a Anchor) (int, error) {
	switch a.kind {
	case anchorStart:
		return 0, nil
	case anchorEnd:
		return b.visibleLen(), nil
	}
	cur := b.cursor()
	base := 0
	for {
		item, ok := cur.Item()
		if !ok {
			return 0, ErrAnchorFragmentGone
		}
		if item.InsertionID == a.insertionID && a.offset >= item.StartOffset && a.offset <= item.EndOffset {
			if !item.Visible() {
				return base, nil
			}
			within := a.offset - item.StartOffset
			if within > item.Len() {
				within = item.Len()
			}
			return base + within, nil
		}
		if item.Visible() {
			base += item.Len()
		}
		if !cur.Next() {
			return 0, ErrAnchorFragmentGone
		}
	}
}

func seekBiasFor(bias AnchorBias) btree.SeekBias {
	if bias == AnchorBefore {
		return btree.SeekBiasRight
	}
	return btree.SeekBiasLeft
}
