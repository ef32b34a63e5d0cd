package btree_test

import (
	"testing"

	"github.com/brunokim/collabtree/btree"
	"github.com/stretchr/testify/require"
)

// IntItem is a minimal Item for exercising Tree mechanics: each item
// contributes 1 to Count and its own value to Sum.
type IntItem int

type IntSummary struct {
	Count int
	Sum   int
}

func (s IntSummary) Add(other IntSummary) IntSummary {
	return IntSummary{Count: s.Count + other.Count, Sum: s.Sum + other.Sum}
}

func (v IntItem) Summarize() IntSummary {
	return IntSummary{Count: 1, Sum: int(v)}
}

// Count projects a summary down to the number of items seen so far.
type Count int

func (c Count) FromSummary(s IntSummary) Count { return Count(s.Count) }
func (c Count) Add(s IntSummary) Count         { return c + Count(s.Count) }
func (c Count) Compare(other Count) int {
	switch {
	case c < other:
		return -1
	case c > other:
		return 1
	default:
		return 0
	}
}

func seqTree(values ...int) btree.Tree[IntItem, IntSummary] {
	items := make([]IntItem, len(values))
	for i, v := range values {
		items[i] = IntItem(v)
	}
	return btree.FromItems[IntItem, IntSummary](items)
}

func TestTreeItemsRoundTrip(t *testing.T) {
	tr := seqTree(1, 2, 3, 4, 5)
	require.Equal(t, []IntItem{1, 2, 3, 4, 5}, tr.Items())
	require.Equal(t, IntSummary{Count: 5, Sum: 15}, tr.Summary())
}

func TestTreeFirstLast(t *testing.T) {
	tr := seqTree(10, 20, 30)
	first, ok := tr.First()
	require.True(t, ok)
	require.Equal(t, IntItem(10), first)

	last, ok := tr.Last()
	require.True(t, ok)
	require.Equal(t, IntItem(30), last)
}

func TestTreeEmpty(t *testing.T) {
	tr := btree.New[IntItem, IntSummary]()
	require.True(t, tr.IsEmpty())
	_, ok := tr.First()
	require.False(t, ok)
}

func TestTreeSplitsAcrossManyItems(t *testing.T) {
	n := btree.TreeBase*btree.TreeBase + 7
	values := make([]int, n)
	for i := range values {
		values[i] = i
	}
	tr := seqTree(values...)
	require.Equal(t, n, tr.Summary().Count)
	items := tr.Items()
	require.Len(t, items, n)
	for i, item := range items {
		require.Equal(t, IntItem(i), item)
	}
}

func TestCursorNextWalksInOrder(t *testing.T) {
	tr := seqTree(1, 2, 3, 4, 5)
	cur := btree.NewCursor[IntItem, IntSummary](tr)
	var got []IntItem
	for {
		item, ok := cur.Item()
		if !ok {
			if !cur.Next() {
				break
			}
			continue
		}
		got = append(got, item)
		if !cur.Next() {
			break
		}
	}
	require.Equal(t, []IntItem{1, 2, 3, 4, 5}, got)
}

func TestSeekByCount(t *testing.T) {
	tr := seqTree(10, 20, 30, 40, 50)
	cur := btree.NewCursor[IntItem, IntSummary](tr)

	ok := btree.Seek[IntItem, IntSummary, Count](cur, Count(2), btree.SeekBiasLeft)
	require.True(t, ok)
	item, ok := cur.Item()
	require.True(t, ok)
	require.Equal(t, IntItem(30), item)
	require.Equal(t, IntSummary{Count: 2, Sum: 30}, cur.Summary())
}

func TestSeekPastEnd(t *testing.T) {
	tr := seqTree(1, 2, 3)
	cur := btree.NewCursor[IntItem, IntSummary](tr)
	ok := btree.Seek[IntItem, IntSummary, Count](cur, Count(100), btree.SeekBiasLeft)
	require.False(t, ok)
	require.True(t, cur.End())
}

func TestSliceReturnsPrefixAndAdvances(t *testing.T) {
	tr := seqTree(1, 2, 3, 4, 5)
	cur := btree.NewCursor[IntItem, IntSummary](tr)
	prefix := btree.Slice[IntItem, IntSummary, Count](cur, Count(3), btree.SeekBiasLeft)
	require.Equal(t, []IntItem{1, 2, 3}, prefix.Items())

	rest, ok := cur.Item()
	require.True(t, ok)
	require.Equal(t, IntItem(4), rest)
}

func TestSuffixDoesNotAdvanceCursor(t *testing.T) {
	tr := seqTree(1, 2, 3, 4, 5)
	cur := btree.NewCursor[IntItem, IntSummary](tr)
	btree.Seek[IntItem, IntSummary, Count](cur, Count(2), btree.SeekBiasLeft)

	suffix := btree.Suffix(cur)
	require.Equal(t, []IntItem{3, 4, 5}, suffix.Items())

	item, ok := cur.Item()
	require.True(t, ok)
	require.Equal(t, IntItem(3), item, "Suffix must not advance the cursor it reads from")
}

func TestPushTreeConcatenatesInOrder(t *testing.T) {
	a := seqTree(1, 2, 3)
	b := seqTree(4, 5, 6)
	a.PushTree(b)
	require.Equal(t, []IntItem{1, 2, 3, 4, 5, 6}, a.Items())
}
