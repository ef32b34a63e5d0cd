package buffer

import "github.com/brunokim/collabtree/clock"

// Operation is the wire representation of one edit: replace the
// visible text between (StartInsertionID, StartOffset) and
// (EndInsertionID, EndOffset) with NewText. Each boundary is an offset
// into the named insertion's own immutable text, not a buffer-wide
// character offset or a FragmentID — both of those can shift under a
// concurrent edit before this operation is applied remotely, but an
// insertion's own text never changes once created. A zero
// StartInsertionID/EndInsertionID means the very beginning of the
// document. Grounded on Operation in the editor core's buffer,
// simplified to a single replace (covering both the pure-insert and
// pure-delete cases as an empty range or empty NewText respectively).
type Operation struct {
	ID               clock.Local
	Lamport          clock.Lamport
	StartInsertionID clock.Local
	StartOffset      int
	EndInsertionID    clock.Local
	EndOffset         int
	// VersionInRange is the clock the issuing replica had observed at
	// the moment it computed this edit. A remote replica applying the
	// delete half of this operation only removes fragments whose
	// insertion VersionInRange already observed — a fragment inserted
	// concurrently into the deleted range, which the issuing replica
	// never saw, survives instead of being silently dropped.
	VersionInRange clock.Global
	NewText        *Text
	// NewFragmentID is the id assigned to NewText's fragment, computed
	// once by the issuing replica so every replica converges on the
	// same id instead of each computing its own from local neighbors.
	NewFragmentID FragmentID
}

// Timestamp satisfies opqueue.Timestamped, ordering deferred
// operations by Lamport value.
func (op Operation) Timestamp() uint64 {
	return op.Lamport.Value
}
