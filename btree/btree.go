/*
Package btree provides a persistent, copy-on-write B+-tree generic over
any item type that can summarize itself into a commutative monoid.

Every ordered collection in this module — a text buffer's fragments, a
file tree's parent and child references, a buffer's line index — is an
instance of this one B-tree, specialized by the Item it holds and the
Summary that item contributes. A Tree is immutable: every mutating
operation returns a new Tree that shares unmodified nodes with the
old one, so a Cursor or an old Tree value keeps working after a
concurrent edit produces a new version.

  # BEGIN ASCII ART

  Internal  [  s0  |  s1  |  s2  ]
               |      |      |
  Leaf      [a,b,c] [d,e] [f,g,h,i]

  # END ASCII ART
  # ALT TEXT: A two-level tree. The internal node holds three child
              summaries s0, s1, s2, each pointing at a leaf holding a
              run of items. Concatenating the leaves in order yields
              the full sequence a through i.

Grounded on the B-tree in the editor core this module's algorithms were
distilled from (TREE_BASE = 16 branching factor, leaf/internal node
split with midpoint redistribution on overflow).
*/
package btree

import "fmt"

// TreeBase is the branching factor: every non-root node holds between
// TreeBase/2 and TreeBase children (or items, for a leaf).
const TreeBase = 16

// Summary is a commutative monoid describing the aggregate contribution
// of a run of items: concatenating two runs must be reflected by adding
// their summaries.
type Summary[S any] interface {
	Add(other S) S
}

// Item is anything a Tree can store. Summarize must be consistent with
// Summary.Add: summarizing a concatenation of items must equal adding
// their individual summaries in order.
type Item[S Summary[S]] interface {
	Summarize() S
}

// Dimension is an ordered projection of a Summary, used to seek a
// Cursor to a position described in that dimension's units (character
// offset, row number, child id, ...). D is the concrete dimension type
// implementing this interface for itself, following the same
// self-referential pattern Go's ordered-constraint packages use.
type Dimension[S any, D any] interface {
	// FromSummary projects a full-tree (or subtree) summary down to
	// this dimension.
	FromSummary(s S) D
	// Add returns the dimension value after concatenating a run with
	// this accumulated value with a run summarized by s.
	Add(s S) D
	// Compare orders two values of this dimension.
	Compare(other D) int
}

// KeyedItem is an Item that additionally exposes a sort key: a
// Dimension value used to place the item and to drive Edits'
// sorted insert/remove.
type KeyedItem[S Summary[S], K any] interface {
	Item[S]
	Key() K
}

// Node is either a leaf holding items directly or an internal node
// holding child subtrees and their summaries.
type Node[T Item[S], S Summary[S]] struct {
	height         uint8
	summary        S
	items          []T // non-nil only for leaves
	childSummaries []S // non-nil only for internal nodes
	childTrees     []Tree[T, S]
}

func (n *Node[T, S]) isLeaf() bool {
	return n.items != nil
}

// Tree is a persistent, copy-on-write sequence of items. The zero Tree
// is not valid; use New.
type Tree[T Item[S], S Summary[S]] struct {
	root *Node[T, S]
}

// New returns an empty tree.
func New[T Item[S], S Summary[S]]() Tree[T, S] {
	var zero S
	return Tree[T, S]{root: &Node[T, S]{height: 0, summary: zero, items: []T{}}}
}

// FromItems builds a tree holding items, in order, by repeatedly
// pushing them onto an empty tree.
//
// Time complexity: O(n)
func FromItems[T Item[S], S Summary[S]](items []T) Tree[T, S] {
	t := New[T, S]()
	t.Extend(items)
	return t
}

// IsEmpty reports whether the tree holds no items.
func (t Tree[T, S]) IsEmpty() bool {
	return t.root.isLeaf() && len(t.root.items) == 0
}

// Summary returns the aggregate summary of every item in the tree.
func (t Tree[T, S]) Summary() S {
	return t.root.summary
}

// Items returns every item in the tree, in order. Intended for tests
// and small trees; large trees should use a Cursor instead.
//
// Time complexity: O(n)
func (t Tree[T, S]) Items() []T {
	var out []T
	appendItems(t.root, &out)
	return out
}

func appendItems[T Item[S], S Summary[S]](n *Node[T, S], out *[]T) {
	if n.isLeaf() {
		*out = append(*out, n.items...)
		return
	}
	for i := range n.childTrees {
		appendItems(n.childTrees[i].root, out)
	}
}

// First returns the first item in the tree, if any.
func (t Tree[T, S]) First() (T, bool) {
	n := t.root
	for !n.isLeaf() {
		if len(n.childTrees) == 0 {
			var zero T
			return zero, false
		}
		n = n.childTrees[0].root
	}
	if len(n.items) == 0 {
		var zero T
		return zero, false
	}
	return n.items[0], true
}

// Last returns the last item in the tree, if any.
func (t Tree[T, S]) Last() (T, bool) {
	n := t.root
	for !n.isLeaf() {
		if len(n.childTrees) == 0 {
			var zero T
			return zero, false
		}
		n = n.childTrees[len(n.childTrees)-1].root
	}
	if len(n.items) == 0 {
		var zero T
		return zero, false
	}
	return n.items[len(n.items)-1], true
}

// Extend appends items to the tree, in order.
//
// Time complexity: O(len(items) + log(n))
func (t *Tree[T, S]) Extend(items []T) {
	for _, item := range items {
		t.Push(item)
	}
}

// Push appends a single item to the tree, replacing *t with a tree that
// shares every node unaffected by the append with the receiver's prior
// value.
//
// pushItem walks the rightmost spine of the tree, copying each node it
// touches rather than mutating it, so that any other Tree value or
// Cursor still referencing the old nodes keeps seeing the old content.
//
// Time complexity: O(log n)
func (t *Tree[T, S]) Push(item T) {
	if t.IsEmpty() {
		*t = Tree[T, S]{root: &Node[T, S]{height: 0, items: []T{item}, summary: item.Summarize()}}
		return
	}
	newRoot, extra := pushItem(t.root, item)
	if extra == nil {
		*t = Tree[T, S]{root: newRoot}
		return
	}
	*t = Tree[T, S]{root: &Node[T, S]{
		height:         newRoot.height + 1,
		childTrees:     []Tree[T, S]{{root: newRoot}, {root: extra}},
		childSummaries: []S{newRoot.summary, extra.summary},
		summary:        newRoot.summary.Add(extra.summary),
	}}
}

// pushItem returns a new version of n with item appended at the end.
// If n overflowed TreeBase as a result, it returns both halves of the
// split instead, leaving the caller to link them into its own parent.
func pushItem[T Item[S], S Summary[S]](n *Node[T, S], item T) (newNode, extra *Node[T, S]) {
	if n.isLeaf() {
		items := make([]T, len(n.items)+1)
		copy(items, n.items)
		items[len(n.items)] = item
		summary := n.summary.Add(item.Summarize())
		if len(items) <= TreeBase {
			return &Node[T, S]{height: 0, items: items, summary: summary}, nil
		}
		mid := len(items) / 2
		left := &Node[T, S]{height: 0, items: items[:mid], summary: summarizeItems(items[:mid])}
		right := &Node[T, S]{height: 0, items: items[mid:], summary: summarizeItems(items[mid:])}
		return left, right
	}

	lastIdx := len(n.childTrees) - 1
	newChildRoot, extraChild := pushItem(n.childTrees[lastIdx].root, item)

	childTrees := make([]Tree[T, S], len(n.childTrees))
	copy(childTrees, n.childTrees)
	childSummaries := make([]S, len(n.childSummaries))
	copy(childSummaries, n.childSummaries)
	childTrees[lastIdx] = Tree[T, S]{root: newChildRoot}
	childSummaries[lastIdx] = newChildRoot.summary
	if extraChild != nil {
		childTrees = append(childTrees, Tree[T, S]{root: extraChild})
		childSummaries = append(childSummaries, extraChild.summary)
	}

	summary := sumAll(childSummaries)
	if len(childTrees) <= TreeBase {
		return &Node[T, S]{height: n.height, childTrees: childTrees, childSummaries: childSummaries, summary: summary}, nil
	}
	mid := len(childTrees) / 2
	left := &Node[T, S]{height: n.height, childTrees: childTrees[:mid], childSummaries: childSummaries[:mid]}
	left.summary = sumAll(left.childSummaries)
	right := &Node[T, S]{height: n.height, childTrees: childTrees[mid:], childSummaries: childSummaries[mid:]}
	right.summary = sumAll(right.childSummaries)
	return left, right
}

// PushTree appends another tree's items to t, in order.
//
// Time complexity: O(m log n) for an m-item tree pushed onto an n-item
// tree; correctness matters more than the tighter O(log n + log m)
// bound a direct node-level merge could achieve, so this pushes item
// by item.
func (t *Tree[T, S]) PushTree(other Tree[T, S]) {
	if other.IsEmpty() {
		return
	}
	if t.IsEmpty() {
		*t = other
		return
	}
	for _, item := range other.Items() {
		t.Push(item)
	}
}

func summarizeItems[T Item[S], S Summary[S]](items []T) S {
	var sum S
	for i, item := range items {
		if i == 0 {
			sum = item.Summarize()
			continue
		}
		sum = sum.Add(item.Summarize())
	}
	return sum
}

func sumAll[S Summary[S]](summaries []S) S {
	var sum S
	for i, s := range summaries {
		if i == 0 {
			sum = s
			continue
		}
		sum = sum.Add(s)
	}
	return sum
}

func (n *Node[T, S]) String() string {
	if n.isLeaf() {
		return fmt.Sprintf("Leaf(%d items)", len(n.items))
	}
	return fmt.Sprintf("Internal(height=%d, %d children)", n.height, len(n.childTrees))
}
