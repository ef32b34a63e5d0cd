package buffer

import (
	"errors"
	"log/slog"

	"github.com/brunokim/collabtree/btree"
	"github.com/brunokim/collabtree/clock"
	"github.com/brunokim/collabtree/diff"
	"github.com/brunokim/collabtree/opqueue"
)

// Errors returned by Buffer operations.
var (
	ErrInvalidRange       = errors.New("buffer: edit range out of bounds")
	ErrOffsetOutOfRange   = errors.New("buffer: offset out of range")
	ErrAnchorFragmentGone = errors.New("buffer: anchor's fragment is no longer in this buffer")
)

// Buffer is a replicated sequence of UTF-16 code units: a sequence of
// Fragments stored in a btree.Tree, ordered by FragmentID. Local edits
// go through Edit; operations received from other replicas go through
// ApplyOp. Both converge to the same visible text regardless of
// delivery order, since fragments are never reordered or removed, only
// marked deleted.
type Buffer struct {
	Fragments btree.Tree[Fragment, FragmentSummary]
	Version   clock.Global

	store      clock.Store
	selections map[clock.ReplicaID]SelectionSet
	deferred   *opqueue.Queue[Operation]
	logger     *slog.Logger
}

// Option configures a Buffer at construction time.
type Option func(*Buffer)

// WithLogger attaches a logger that records local edits and deferred-op
// activity at Debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Buffer) { b.logger = logger }
}

// New returns an empty buffer backed by store for clock ticks.
func New(store clock.Store, opts ...Option) *Buffer {
	b := &Buffer{
		Fragments:  btree.New[Fragment, FragmentSummary](),
		Version:    clock.NewGlobal(),
		store:      store,
		selections: make(map[clock.ReplicaID]SelectionSet),
		deferred:   opqueue.New[Operation](),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Buffer) cursor() *btree.Cursor[Fragment, FragmentSummary] {
	return btree.NewCursor[Fragment, FragmentSummary](b.Fragments)
}

func (b *Buffer) visibleLen() int {
	return b.Fragments.Summary().VisibleLen
}

// Len returns the buffer's current visible length, in UTF-16 code
// units.
func (b *Buffer) Len() int {
	return b.visibleLen()
}

// String renders the buffer's current visible text.
func (b *Buffer) String() string {
	return utf16Decode(b.Units())
}

// Units returns the buffer's current visible text as UTF-16 code
// units, the representation SetText diffs against.
func (b *Buffer) Units() []uint16 {
	var units []uint16
	cur := b.cursor()
	for {
		item, ok := cur.Item()
		if !ok {
			break
		}
		if item.Visible() {
			units = append(units, item.CodeUnits()...)
		}
		if !cur.Next() {
			break
		}
	}
	return units
}

// Edit replaces the visible text in [start, end) with newText and
// returns the Operation a host should broadcast to other replicas.
//
// Time complexity: O(n) in the number of fragments, rebuilding the
// fragment tree in a single pass.
func (b *Buffer) Edit(start, end int, newText string) (Operation, error) {
	if start < 0 || end < start || end > b.visibleLen() {
		return Operation{}, ErrInvalidRange
	}
	localID := b.store.TickLocal()
	lamport := b.store.TickLamport()

	newUnits := utf16Encode(newText)
	result, bounds := rewriteFragments(b.Fragments, start, end, localID)

	var newFragID FragmentID
	if len(newUnits) > 0 {
		text := newTextFromUnits(newUnits)
		insertion := Fragment{
			ID:            NewFragmentID(bounds.loID, bounds.hiID, b.store.ReplicaID()),
			InsertionID:   localID,
			InsertionTS:   lamport,
			StartOffset:   0,
			EndOffset:     len(newUnits),
			InsertionText: text,
			Deletions:     nil,
		}
		newFragID = insertion.ID
		result = spliceFragmentAt(result, bounds.prefixCount, insertion)
	}

	b.Fragments = result
	versionInRange := b.Version.Clone()
	b.Version.Observe(localID)

	if b.logger != nil {
		b.logger.Debug("buffer.Edit", "replica", b.store.ReplicaID(), "start", start, "end", end, "inserted", len(newUnits))
	}

	op := Operation{
		ID:               localID,
		Lamport:          lamport,
		StartInsertionID: bounds.startInsertionID,
		StartOffset:      bounds.startOffset,
		EndInsertionID:   bounds.endInsertionID,
		EndOffset:        bounds.endOffset,
		VersionInRange:   versionInRange,
		NewText:          newTextFromUnits(newUnits),
		NewFragmentID:    newFragID,
	}
	b.retryDeferred()
	return op, nil
}

// ApplyOp integrates a remote Operation. If the fragments it addresses
// haven't arrived yet (because an earlier operation this one depends
// on is still in flight), it's queued and retried automatically once
// more fragments are integrated; this is not an error.
//
// Time complexity: O(n)
func (b *Buffer) ApplyOp(op Operation) error {
	if b.Version.Observed(op.ID) {
		return nil // already applied; remote echo of our own op, or a retransmit
	}

	// A zero boundary id is the sentinel for "the very start of the
	// document" (the edit that produced it found no existing insertion
	// on that side to anchor on), not a reference to an insertion that
	// must have already arrived; Global.Observed treats it as always
	// satisfied. Each boundary is checked independently, since a delete
	// starting at offset 0 has a zero start but a real end.
	pureInsertAtStart := op.StartInsertionID.IsZero() && op.EndInsertionID.IsZero()
	if !b.Version.Observed(op.StartInsertionID) || !b.Version.Observed(op.EndInsertionID) {
		b.deferred.Insert(op)
		if b.logger != nil {
			b.logger.Debug("buffer.ApplyOp deferred", "op", op.ID)
		}
		return nil
	}

	result := b.Fragments
	if !pureInsertAtStart {
		next, ok := deleteRange(result, op.StartInsertionID, op.StartOffset, op.EndInsertionID, op.EndOffset, op.ID, op.VersionInRange)
		if !ok {
			// The dependency check above passed, but the exact offset
			// hasn't landed in our tree yet (e.g. arriving out of order
			// relative to a split of the same insertion) — retry later.
			b.deferred.Insert(op)
			if b.logger != nil {
				b.logger.Debug("buffer.ApplyOp deferred", "op", op.ID)
			}
			return nil
		}
		result = next
	}
	if op.NewText.Len() > 0 {
		newFrag := Fragment{
			ID:            op.NewFragmentID,
			InsertionID:   op.ID,
			InsertionTS:   op.Lamport,
			StartOffset:   0,
			EndOffset:     op.NewText.Len(),
			InsertionText: op.NewText,
		}
		if pureInsertAtStart {
			result = spliceFragmentAt(result, 0, newFrag)
		} else {
			next, ok := spliceAtInsertionPoint(result, op.StartInsertionID, op.StartOffset, newFrag)
			if !ok {
				b.deferred.Insert(op)
				if b.logger != nil {
					b.logger.Debug("buffer.ApplyOp deferred", "op", op.ID)
				}
				return nil
			}
			result = next
		}
	}
	b.Fragments = result
	b.Version.Observe(op.ID)
	b.store.ObserveLamport(op.Lamport)

	b.retryDeferred()
	return nil
}

// retryDeferred drains the deferred queue and re-attempts every
// operation once, in Lamport order. Operations still missing a
// dependency are re-queued.
func (b *Buffer) retryDeferred() {
	pending := b.deferred.Drain()
	for _, op := range pending {
		b.ApplyOp(op)
	}
}

// ChangesSince returns every fragment whose insertion or deletion
// happened after version, letting a host compute a minimal diff to
// send a lagging observer instead of the whole buffer.
//
// Time complexity: O(k + log n), k the number of fragments touched
// since version. FilterTree prunes any subtree whose MaxVersion summary
// hasn't moved past version, so untouched regions of a large buffer are
// never visited.
func (b *Buffer) ChangesSince(version clock.Global) []Fragment {
	var out []Fragment
	btree.FilterTree[Fragment, FragmentSummary](b.Fragments, func(s FragmentSummary) bool {
		return s.MaxVersion.ChangedSince(version)
	}, func(f Fragment) {
		if !version.Observed(f.InsertionID) {
			out = append(out, f)
			return
		}
		for delID := range f.Deletions {
			if !version.Observed(delID) {
				out = append(out, f)
				return
			}
		}
	})
	return out
}

// SetText replaces the buffer's visible text with full, the
// convenience a host uses to load an externally fetched revision
// without hand-computing ranges itself. Rather than deleting and
// reinserting everything, it diffs full against the current text and
// issues one Edit per contiguous changed span, so a host replacing a
// buffer's contents with a near-identical revision produces the same
// small, mergeable operations a human editing the diff by hand would
// have.
//
// Time complexity: O(m*n) for the diff (m, n the old and new lengths
// in code units) plus O(n) per resulting Edit.
func (b *Buffer) SetText(full []uint16) ([]Operation, error) {
	ranges := diff.Ranges(diff.Units(b.Units(), full))
	ops := make([]Operation, 0, len(ranges))
	delta := 0
	for _, r := range ranges {
		start, end := r.Start+delta, r.End+delta
		op, err := b.Edit(start, end, utf16Decode(r.NewUnits))
		if err != nil {
			return ops, err
		}
		ops = append(ops, op)
		delta += len(r.NewUnits) - (r.End - r.Start)
	}
	return ops, nil
}

// SetTextString is the string convenience form of SetText, for hosts
// that haven't already encoded their revision as UTF-16.
func (b *Buffer) SetTextString(full string) ([]Operation, error) {
	return b.SetText(utf16Encode(full))
}
