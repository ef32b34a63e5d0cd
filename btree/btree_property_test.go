package btree_test

import (
	"testing"

	"github.com/brunokim/collabtree/btree"
	"pgregory.net/rapid"
)

// TestSliceSuffixRoundTrip checks the identity every splice-based
// editor relies on: slicing a tree up to some point and gluing the
// suffix from that same point back on reproduces the original
// sequence, for any split point and any sequence length.
func TestSliceSuffixRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		values := rapid.SliceOf(rapid.IntRange(0, 1000)).Draw(rt, "values")
		items := make([]IntItem, len(values))
		for i, v := range values {
			items[i] = IntItem(v)
		}
		tree := btree.FromItems[IntItem, IntSummary](items)

		splitAt := 0
		if len(items) > 0 {
			splitAt = rapid.IntRange(0, len(items)).Draw(rt, "splitAt")
		}

		cur := btree.NewCursor[IntItem, IntSummary](tree)
		prefix := btree.Slice[IntItem, IntSummary, Count](cur, Count(splitAt), btree.SeekBiasLeft)
		suffix := btree.Suffix(cur)

		got := append(append([]IntItem{}, prefix.Items()...), suffix.Items()...)
		if len(got) != len(items) {
			rt.Fatalf("roundtrip length = %d, want %d", len(got), len(items))
		}
		for i := range items {
			if got[i] != items[i] {
				rt.Fatalf("roundtrip[%d] = %v, want %v", i, got[i], items[i])
			}
		}
		if prefix.Summary().Count != splitAt {
			rt.Fatalf("prefix count = %d, want %d", prefix.Summary().Count, splitAt)
		}
	})
}

// TestPushPreservesOrderAndSummary checks that repeatedly pushing
// items (the only mutation primitive every other Tree operation is
// built from) always yields a tree whose item order matches insertion
// order and whose summary is the sum of each item's own summary.
func TestPushPreservesOrderAndSummary(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		values := rapid.SliceOf(rapid.IntRange(-500, 500)).Draw(rt, "values")
		tree := btree.New[IntItem, IntSummary]()
		wantSum := 0
		for _, v := range values {
			tree.Push(IntItem(v))
			wantSum += v
		}
		items := tree.Items()
		if len(items) != len(values) {
			rt.Fatalf("len(items) = %d, want %d", len(items), len(values))
		}
		for i, v := range values {
			if int(items[i]) != v {
				rt.Fatalf("items[%d] = %d, want %d", i, items[i], v)
			}
		}
		if tree.Summary().Count != len(values) {
			rt.Fatalf("summary.Count = %d, want %d", tree.Summary().Count, len(values))
		}
		if tree.Summary().Sum != wantSum {
			rt.Fatalf("summary.Sum = %d, want %d", tree.Summary().Sum, wantSum)
		}
	})
}
