package filetree

import "strings"

// IDForPath walks path's components through the child-ref index,
// seeking (parent, name) at each step, starting from RootID.
//
// Time complexity: O(depth) scans of ChildRefs (each O(n) today, since
// ChildRefs isn't ordered by (ParentID, Name) — see DESIGN.md).
func (t *Tree) IDForPath(path []string) (FileID, bool) {
	cur := RootID
	for _, name := range path {
		refs := t.visibleChildRefsAt(cur, name)
		if len(refs) == 0 {
			return FileID{}, false
		}
		cur = refs[0].Ref.ChildID
	}
	return cur, true
}

// IDForPathString splits a "/"-separated path and calls IDForPath.
func (t *Tree) IDForPathString(path string) (FileID, bool) {
	path = strings.Trim(path, "/")
	if path == "" {
		return RootID, true
	}
	return t.IDForPath(strings.Split(path, "/"))
}

// PathForID walks parent refs upward from id via each ancestor's
// primary ref (see Tree.primaryRef), returning the path components from
// root to id. Cycle detection stops the walk instead of looping
// forever if the tree is transiently cyclic (between ApplyOps and its
// fix-ups having run).
func (t *Tree) PathForID(id FileID) ([]string, bool) {
	if id == RootID {
		return nil, true
	}
	var parts []string
	cur := id
	visited := map[FileID]bool{}
	for {
		if cur == RootID || cur.IsZero() {
			break
		}
		if visited[cur] {
			return nil, false
		}
		visited[cur] = true
		ref, ok := t.primaryRef(cur)
		if !ok {
			return nil, false
		}
		entry, ok := t.currentParentRef(ref)
		if !ok || entry.Parent == nil {
			return nil, false
		}
		parts = append(parts, entry.Parent.Name)
		cur = entry.Parent.ParentID
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts, true
}

// BaseEntry is one row of a host's on-disk snapshot, as a
// depth-first-preorder walk: depth 0 is a direct child of root.
type BaseEntry struct {
	Depth    int
	Name     string
	FileType FileType
}

// AppendBaseEntries ingests a depth-first-preorder snapshot, minting a
// BaseFileID for each entry at the zero Lamport timestamp so every
// entry compares older than any real edit made in this epoch. A visible
// name collision found during the scan (two snapshot entries claiming
// the same (parent, name), which a well-formed snapshot never has, but
// a concurrent local edit racing the scan might produce) is resolved by
// running name-conflict fix-up once the whole batch has been ingested.
func (t *Tree) AppendBaseEntries(entries []BaseEntry) []Operation {
	var ops []Operation
	touched := make(map[RefID]bool)
	stack := []FileID{RootID}
	for _, entry := range entries {
		if entry.Depth+1 > len(stack) {
			entry.Depth = len(stack) - 1
		}
		stack = stack[:entry.Depth+1]
		parentID := stack[entry.Depth]

		id := BaseFileID(t.nextBase)
		t.nextBase++
		meta := Metadata{FileID: id, FileType: entry.FileType}
		ref := RefID{ChildID: id}
		parent := &ParentEntry{ParentID: parentID, Name: entry.Name}

		metaOp := Operation{Kind: OpInsertMetadata, Metadata: meta}
		parentOp := Operation{Kind: OpUpdateParent, Ref: ref, NewParent: parent}
		ops = append(ops, metaOp, parentOp)

		t.Metadata.Push(meta)
		t.applyParentRef(parentRefFromOp(parentOp))
		touched[ref] = true

		stack = append(stack, id)
	}
	for ref := range touched {
		ops = append(ops, t.fixNameConflicts(ref)...)
	}
	return ops
}

// FileSystem is implemented by a host that mirrors this tree's state
// onto an external store (an on-disk filesystem, object storage, a
// remote API). This module never implements it — spec's "no on-disk
// file-system I/O" non-goal excludes a concrete mirror, and the tree
// CRDT's own convergence doesn't depend on one existing — but a host
// wiring this package into a real editor needs exactly these calls to
// project CRDT mutations onto what the user actually sees.
type FileSystem interface {
	CreateFile(path string) bool
	CreateDir(path string) bool
	HardLink(src, dst string) bool
	Remove(path string, isDir bool) bool
	Rename(from, to string) bool
	Inode(path string) (uint64, bool)
	Entries() []FSEntry
}

// FSEntry is one row a FileSystem implementation yields from Entries,
// mirroring the shape AppendBaseEntries consumes.
type FSEntry struct {
	Depth int
	Name  string
	Inode uint64
	IsDir bool
}
