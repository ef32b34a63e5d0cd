package buffer

import "github.com/brunokim/collabtree/clock"

// Selection is a user's cursor or highlighted range, anchored so it
// survives concurrent edits elsewhere in the buffer.
type Selection struct {
	Start, End Anchor
	Reversed   bool
	GoalColumn *uint32
}

// SelectionSet is one replica's selections, tagged with the buffer
// version they were computed against.
type SelectionSet struct {
	Selections []Selection
	Version    clock.Global
}

// SetSelections records replica's current selections.
func (b *Buffer) SetSelections(replica clock.ReplicaID, selections []Selection) {
	b.selections[replica] = SelectionSet{
		Selections: append([]Selection{}, selections...),
		Version:    b.Version.Clone(),
	}
}

// SelectionsFor returns replica's last recorded selections.
func (b *Buffer) SelectionsFor(replica clock.ReplicaID) (SelectionSet, bool) {
	set, ok := b.selections[replica]
	return set, ok
}

// AllSelections returns every replica's selection set, keyed by
// replica id.
func (b *Buffer) AllSelections() map[clock.ReplicaID]SelectionSet {
	out := make(map[clock.ReplicaID]SelectionSet, len(b.selections))
	for k, v := range b.selections {
		out[k] = v
	}
	return out
}
