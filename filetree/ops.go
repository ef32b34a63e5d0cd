package filetree

import (
	"errors"
	"sort"

	"github.com/brunokim/collabtree/btree"
	"github.com/brunokim/collabtree/clock"
)

// Errors returned by Tree operations.
var (
	ErrFileNotFound     = errors.New("filetree: file not found")
	ErrNameExists       = errors.New("filetree: name already exists in parent")
	ErrWouldCreateCycle = errors.New("filetree: move would make a directory its own ancestor")
	ErrCannotLinkDir    = errors.New("filetree: cannot hard-link a directory")
)

// CreateFile inserts a new file or directory named name inside
// parentID. Local apply: checked for a name conflict up front, so a
// local CreateFile either succeeds outright or fails without mutating
// the tree — unlike a remote InsertMetadata/UpdateParent pair, which is
// always accepted and, if it races a concurrent create of the same
// name, resolved after the fact by name-conflict fix-up.
func (t *Tree) CreateFile(parentID FileID, name string, fileType FileType) (FileID, []Operation, error) {
	if len(t.visibleChildRefsAt(parentID, name)) > 0 {
		return FileID{}, nil, ErrNameExists
	}
	localID := t.store.TickLocal()
	lamport := t.store.TickLamport()
	id := NewFileID(localID)
	meta := Metadata{FileID: id, FileType: fileType}
	ref := RefID{ChildID: id}
	parent := &ParentEntry{ParentID: parentID, Name: name}

	parentOpID := t.store.TickLocal()

	metaOp := Operation{Kind: OpInsertMetadata, Metadata: meta, OpID: localID, Lamport: lamport}
	parentOp := Operation{Kind: OpUpdateParent, Ref: ref, Lamport: lamport, OpID: parentOpID, NewParent: parent}

	t.Metadata.Push(meta)
	t.applyParentRef(parentRefFromOp(parentOp))
	t.version.Observe(localID)
	t.version.Observe(parentOpID)

	return id, []Operation{metaOp, parentOp}, nil
}

// Rename moves childID to (newParentID, newName). Local apply: checked
// for the cycle and name conflicts a real filesystem would reject
// up front (mv into your own subtree, mv onto an occupied name),
// instead of creating the conflict and relying on fix-up to silently
// revert it — a deliberate local action shouldn't be undone by the
// same machinery that resolves genuine concurrent races.
func (t *Tree) Rename(childID, newParentID FileID, newName string) (Operation, error) {
	ref, ok := t.primaryRef(childID)
	if !ok {
		return Operation{}, ErrFileNotFound
	}
	if meta, ok := t.metadataFor(childID); ok && meta.FileType == Directory {
		if t.isAncestorOrSelf(childID, newParentID) {
			return Operation{}, ErrWouldCreateCycle
		}
	}
	if len(t.visibleChildRefsAt(newParentID, newName)) > 0 {
		return Operation{}, ErrNameExists
	}
	op := t.newUpdateParentOp(ref, &ParentEntry{ParentID: newParentID, Name: newName})
	t.applyParentRef(parentRefFromOp(op))
	t.version.Observe(op.OpID)
	return op, nil
}

// Remove unlinks childID from its current parent.
func (t *Tree) Remove(childID FileID) (Operation, error) {
	ref, ok := t.primaryRef(childID)
	if !ok {
		return Operation{}, ErrFileNotFound
	}
	op := t.newUpdateParentOp(ref, nil)
	t.applyParentRef(parentRefFromOp(op))
	t.version.Observe(op.OpID)
	return op, nil
}

// HardLink adds a second name for childID inside newParentID, under a
// fresh RefID (a fresh AliasID) so the new link has its own
// independent move/delete history. Directories cannot be hard-linked,
// matching POSIX and sidestepping the multi-parent cycle cases a
// directory hard link would otherwise introduce.
func (t *Tree) HardLink(childID, newParentID FileID, newName string) (Operation, error) {
	meta, ok := t.metadataFor(childID)
	if !ok {
		return Operation{}, ErrFileNotFound
	}
	if meta.FileType == Directory {
		return Operation{}, ErrCannotLinkDir
	}
	if len(t.visibleChildRefsAt(newParentID, newName)) > 0 {
		return Operation{}, ErrNameExists
	}
	ref := RefID{ChildID: childID, AliasID: t.store.TickLocal()}
	op := t.newUpdateParentOp(ref, &ParentEntry{ParentID: newParentID, Name: newName})
	t.applyParentRef(parentRefFromOp(op))
	t.version.Observe(op.OpID)
	return op, nil
}

func (t *Tree) newUpdateParentOp(ref RefID, newParent *ParentEntry) Operation {
	return Operation{
		Kind:      OpUpdateParent,
		Ref:       ref,
		Lamport:   t.store.TickLamport(),
		OpID:      t.store.TickLocal(),
		NewParent: newParent,
	}
}

func parentRefFromOp(op Operation) ParentRef {
	return ParentRef{Ref: op.Ref, Timestamp: op.Lamport, OpID: op.OpID, Parent: op.NewParent}
}

// isAncestorOrSelf reports whether walking up from start's current
// parent chain reaches candidate, or start itself is candidate — the
// check Rename uses to refuse a move that would make a directory its
// own descendant.
func (t *Tree) isAncestorOrSelf(candidate, start FileID) bool {
	if candidate == start {
		return true
	}
	visited := map[FileID]bool{start: true}
	cur := start
	for {
		if cur == RootID || cur.IsZero() {
			return false
		}
		ref, ok := t.primaryRef(cur)
		if !ok {
			return false
		}
		entry, ok := t.currentParentRef(ref)
		if !ok || entry.Parent == nil {
			return false
		}
		cur = entry.Parent.ParentID
		if cur == candidate {
			return true
		}
		if visited[cur] {
			return false // already-cyclic tree; don't loop forever
		}
		visited[cur] = true
	}
}

// ApplyOps integrates a batch of remote operations — InsertMetadata and
// UpdateParent rows produced by some other replica's local calls — and
// returns the fix-up operations this integration required, which the
// host must broadcast just like any other operation. An op whose
// referenced parent or child metadata hasn't arrived yet is deferred
// and retried once more metadata lands, mirroring Buffer.ApplyOp's
// deferred-queue discipline.
func (t *Tree) ApplyOps(ops []Operation) []Operation {
	touched := make(map[RefID]bool)
	for _, op := range ops {
		t.applyOneOp(op, touched)
	}
	t.retryDeferred(touched)
	return t.runFixups(touched)
}

func (t *Tree) applyOneOp(op Operation, touched map[RefID]bool) {
	if t.version.Observed(op.OpID) {
		return
	}
	switch op.Kind {
	case OpInsertMetadata:
		t.Metadata.Push(op.Metadata)
		t.version.Observe(op.OpID)
	case OpUpdateParent:
		if op.NewParent != nil {
			if _, ok := t.metadataFor(op.Ref.ChildID); !ok {
				t.deferred.Insert(op)
				return
			}
			if op.NewParent.ParentID != RootID {
				if _, ok := t.metadataFor(op.NewParent.ParentID); !ok {
					t.deferred.Insert(op)
					return
				}
			}
		}
		t.applyParentRef(parentRefFromOp(op))
		t.version.Observe(op.OpID)
		touched[op.Ref] = true
	}
}

func (t *Tree) retryDeferred(touched map[RefID]bool) {
	pending := t.deferred.Drain()
	for _, op := range pending {
		t.applyOneOp(op, touched)
	}
}

func (t *Tree) runFixups(touched map[RefID]bool) []Operation {
	var fixups []Operation
	for ref := range touched {
		if meta, ok := t.metadataFor(ref.ChildID); ok && meta.FileType == Directory {
			fixups = append(fixups, t.fixCycles(ref)...)
		}
	}
	for ref := range touched {
		fixups = append(fixups, t.fixNameConflicts(ref)...)
	}
	return fixups
}

// applyParentRef integrates one ParentRef row, local or remote,
// following the same rule either way: if a later-timestamped row for
// the same ref already exists, row arrives already superseded and
// contributes no new visible ChildRef; otherwise row becomes current,
// and whatever ChildRef its predecessor had made visible is tagged
// invisible. The row is appended to ParentRefs either way, preserving
// the full history fix-up needs.
func (t *Tree) applyParentRef(row ParentRef) {
	superseded := false
	for _, p := range t.ParentRefs.Items() {
		if p.Ref == row.Ref && p.Timestamp.Compare(row.Timestamp) >= 0 {
			superseded = true
			break
		}
	}
	if !superseded {
		if prev, ok := t.currentParentRef(row.Ref); ok && prev.Parent != nil {
			t.invalidateChildRef(prev.Ref, *prev.Parent, row.OpID)
		}
	}
	t.ParentRefs.Push(row)
	if superseded || row.Parent == nil {
		return
	}
	t.ChildRefs.Push(ChildRef{Parent: *row.Parent, Timestamp: row.Timestamp, OpID: row.OpID, Ref: row.Ref})
}

func (t *Tree) invalidateChildRef(ref RefID, at ParentEntry, opID clock.Local) {
	items := t.ChildRefs.Items()
	for i, c := range items {
		if c.Ref == ref && c.Parent == at && c.Visible() {
			items[i] = c.withDeletion(opID)
			t.ChildRefs = btree.FromItems[ChildRef, emptySummary](items)
			return
		}
	}
}

// fixCycles repeatedly walks ancestors from ref's current parent,
// reverting the highest-Lamport move along any cycle it finds, until no
// cycle remains. Only meaningful for a ref whose child is a directory;
// the caller gates on that.
func (t *Tree) fixCycles(ref RefID) []Operation {
	var fixups []Operation
	for {
		cycleRef, cycleTS, found := t.findCycle(ref)
		if !found {
			return fixups
		}
		revertTo := t.priorParent(cycleRef, cycleTS)
		op := t.newUpdateParentOp(cycleRef, revertTo)
		t.applyParentRef(parentRefFromOp(op))
		t.version.Observe(op.OpID)
		fixups = append(fixups, op)
		fixups = append(fixups, t.fixNameConflicts(cycleRef)...)
		if t.logger != nil {
			t.logger.Debug("filetree cycle fix-up", "ref", cycleRef.ChildID, "reverted_to", revertTo)
		}
	}
}

// findCycle walks ancestors starting from start's current parent,
// tracking every directory visited and the single highest-Lamport move
// among them. A revisit means a cycle exists; it returns the ref and
// timestamp of that highest-Lamport move, the one to revert.
func (t *Tree) findCycle(start RefID) (RefID, clock.Lamport, bool) {
	visited := map[FileID]bool{start.ChildID: true}
	var highestRef RefID
	var highestTS clock.Lamport
	haveHighest := false
	cur := start
	for {
		entry, ok := t.currentParentRef(cur)
		if !ok || entry.Parent == nil {
			return RefID{}, clock.Lamport{}, false
		}
		if !haveHighest || entry.Timestamp.Compare(highestTS) > 0 {
			highestTS = entry.Timestamp
			highestRef = cur
			haveHighest = true
		}
		parentID := entry.Parent.ParentID
		if parentID == RootID {
			return RefID{}, clock.Lamport{}, false
		}
		if visited[parentID] {
			return highestRef, highestTS, true
		}
		visited[parentID] = true
		next, ok := t.primaryRef(parentID)
		if !ok {
			return RefID{}, clock.Lamport{}, false
		}
		cur = next
	}
}

// fixNameConflicts resolves every (parent, name) slot touched by ref
// that currently has more than one visible occupant: the
// earliest-Lamport occupant keeps the name, every later one is renamed
// by appending '~' until a free name is found. Each rename is itself
// applied immediately and returned for the host to broadcast.
func (t *Tree) fixNameConflicts(ref RefID) []Operation {
	entry, ok := t.currentParentRef(ref)
	if !ok || entry.Parent == nil {
		return nil
	}
	var fixups []Operation
	parentID, name := entry.Parent.ParentID, entry.Parent.Name
	for {
		occupants := t.visibleChildRefsAt(parentID, name)
		if len(occupants) <= 1 {
			return fixups
		}
		sort.Slice(occupants, func(i, j int) bool {
			if c := occupants[i].Timestamp.Compare(occupants[j].Timestamp); c != 0 {
				return c < 0
			}
			return occupants[i].Ref.Compare(occupants[j].Ref) < 0
		})
		for _, occ := range occupants[1:] {
			newName := t.freeName(parentID, occ.Parent.Name)
			op := t.newUpdateParentOp(occ.Ref, &ParentEntry{ParentID: parentID, Name: newName})
			t.applyParentRef(parentRefFromOp(op))
			t.version.Observe(op.OpID)
			fixups = append(fixups, op)
		}
	}
}

func (t *Tree) freeName(parentID FileID, name string) string {
	for {
		name = name + "~"
		if len(t.visibleChildRefsAt(parentID, name)) == 0 {
			return name
		}
	}
}
