/*
Package filetree implements the tree CRDT: a replicated directory tree
of files and directories, addressed by path, that converges under
concurrent moves, deletions, renames and hard links regardless of
delivery order.

Every entity lives in one of three append-only B-trees: Metadata (a
file's immutable identity and type), ParentRefs (the historical record
of where a reference has pointed, in the order rows were applied) and
ChildRefs (the redundant (parent, name) -> child reverse index that
makes path lookup fast). A "move" never mutates an old row; it appends
a new one with a later Lamport timestamp, which is what lets
ApplyOps reconstruct — and, when two replicas raced, deterministically
resolve — the history needed for cycle and name-conflict fix-up.

Grounded on the alias/hard-link tree model in the editor core this
module's algorithms were distilled from.
*/
package filetree

import (
	"fmt"
	"log/slog"

	"github.com/brunokim/collabtree/btree"
	"github.com/brunokim/collabtree/clock"
	"github.com/brunokim/collabtree/opqueue"
)

// emptySummary is the monoid for Metadata/ParentRef/ChildRef trees:
// none of the three needs a B-tree dimension to seek by (lookups go
// through explicit scans over Items(), the same rebuild idiom Buffer
// uses for its own fragment tree edits), so there's nothing to
// aggregate.
type emptySummary struct{}

func (emptySummary) Add(emptySummary) emptySummary { return emptySummary{} }

// FileType distinguishes a regular file from a directory; only a
// directory can be the target of a cycle fix-up, and only a directory
// is disallowed as a HardLink target (mirroring POSIX).
type FileType int

const (
	RegularFile FileType = iota
	Directory
)

func (t FileType) String() string {
	if t == Directory {
		return "directory"
	}
	return "file"
}

// FileID identifies a file or directory independent of where (or
// whether) it's currently linked into the tree. A Base id names a file
// enumerated from a host's on-disk snapshot at tree construction; a New
// id is minted locally by CreateFile, tagged with the creating
// operation's clock.Local so two replicas creating a file at the same
// logical moment never collide.
type FileID struct {
	isNew bool
	base  uint64
	local clock.Local
}

// BaseFileID wraps a pre-existing file's snapshot-assigned id.
func BaseFileID(id uint64) FileID { return FileID{base: id} }

// NewFileID wraps the clock.Local of the operation that created a file
// in this epoch.
func NewFileID(id clock.Local) FileID { return FileID{isNew: true, local: id} }

// RootID is the tree's implicit root directory: every other entry
// eventually resolves up to it, and it never has a ParentRef of its
// own.
var RootID = BaseFileID(0)

// IsZero reports whether id is the unset FileID. RootID is equal to the
// zero FileID, so IsZero also reports true for RootID.
func (id FileID) IsZero() bool {
	return !id.isNew && id.base == 0 && id.local.IsZero()
}

// Compare orders FileIDs: every Base id before every New id (matching
// Lamport::default() sorting older than any real timestamp), Base ids
// by their snapshot index, New ids by creation clock.Local.
func (id FileID) Compare(other FileID) int {
	if id.isNew != other.isNew {
		if !id.isNew {
			return -1
		}
		return 1
	}
	if !id.isNew {
		switch {
		case id.base < other.base:
			return -1
		case id.base > other.base:
			return 1
		default:
			return 0
		}
	}
	return id.local.Compare(other.local)
}

func (id FileID) String() string {
	if id.isNew {
		return fmt.Sprintf("New(%s)", id.local)
	}
	return fmt.Sprintf("Base(%d)", id.base)
}

// RefID names one parent-link slot for a child. A plain file or
// directory has exactly one RefID (AliasID zero, assigned at creation);
// HardLink mints additional RefIDs for the same ChildID so each link
// has its own independent move/delete history.
type RefID struct {
	ChildID FileID
	AliasID clock.Local
}

func (r RefID) Compare(other RefID) int {
	if c := r.ChildID.Compare(other.ChildID); c != 0 {
		return c
	}
	return r.AliasID.Compare(other.AliasID)
}

// ParentEntry is where a ref currently points: a name inside a parent
// directory.
type ParentEntry struct {
	ParentID FileID
	Name     string
}

// Metadata is a file's immutable identity, inserted once when the file
// is created and never mutated afterward.
type Metadata struct {
	FileID   FileID
	FileType FileType
}

func (m Metadata) Summarize() emptySummary { return emptySummary{} }

// ParentRef is one row in a ref's append-only move history: "at
// Timestamp, OpID recorded that Ref pointed at Parent" (nil Parent
// meaning removed/unlinked). Rows are kept in the order they were
// applied; the row with the highest Timestamp for a given Ref is its
// current value.
type ParentRef struct {
	Ref       RefID
	Timestamp clock.Lamport
	OpID      clock.Local
	Parent    *ParentEntry
}

func (p ParentRef) Summarize() emptySummary { return emptySummary{} }

// ChildRef is the redundant (ParentID, Name) -> child reverse index
// that makes path lookup O(depth) scans instead of walking every
// ParentRef in the tree. Like ParentRef, it's append-only: a vacated or
// superseded occupant is tagged in Deletions rather than removed, so a
// deletion echoed twice stays idempotent.
type ChildRef struct {
	Parent    ParentEntry
	Timestamp clock.Lamport
	OpID      clock.Local
	Ref       RefID
	Deletions map[clock.Local]struct{}
}

func (c ChildRef) Summarize() emptySummary { return emptySummary{} }

// Visible reports whether this child ref currently occupies its
// (ParentID, Name) slot.
func (c ChildRef) Visible() bool {
	return len(c.Deletions) == 0
}

func (c ChildRef) withDeletion(opID clock.Local) ChildRef {
	deletions := make(map[clock.Local]struct{}, len(c.Deletions)+1)
	for id := range c.Deletions {
		deletions[id] = struct{}{}
	}
	deletions[opID] = struct{}{}
	c.Deletions = deletions
	return c
}

// OpKind distinguishes the tree CRDT's two wire operations.
type OpKind int

const (
	OpInsertMetadata OpKind = iota
	OpUpdateParent
)

// Operation is the wire representation of one tree mutation:
// InsertMetadata introduces a new file's identity, UpdateParent moves,
// removes, renames or hard-links a ref. A NewParent of nil means
// "unlink" (Remove). Grounded on InsertMetadata/UpdateParent in the
// editor core's timeline.
type Operation struct {
	Kind      OpKind
	Metadata  Metadata // set when Kind == OpInsertMetadata
	Ref       RefID    // set when Kind == OpUpdateParent
	Lamport   clock.Lamport
	OpID      clock.Local
	NewParent *ParentEntry // set when Kind == OpUpdateParent; nil means unlink
}

// Timestamp satisfies opqueue.Timestamped, ordering deferred operations
// by Lamport value.
func (op Operation) Timestamp() uint64 {
	return op.Lamport.Value
}

// Tree is a replica's view of the file tree: the three B-trees above,
// plus the clock.Store used to mint new ids, and the set of operation
// ids already integrated (for idempotent remote delivery).
type Tree struct {
	Metadata   btree.Tree[Metadata, emptySummary]
	ParentRefs btree.Tree[ParentRef, emptySummary]
	ChildRefs  btree.Tree[ChildRef, emptySummary]

	store    clock.Store
	version  clock.Global
	deferred *opqueue.Queue[Operation]
	nextBase uint64
	logger   *slog.Logger
}

// Option configures a Tree at construction time.
type Option func(*Tree)

// WithLogger attaches a logger that records cycle fix-ups at Debug
// level.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tree) { t.logger = logger }
}

// New returns an empty tree (just the implicit root) backed by store
// for clock ticks.
func New(store clock.Store, opts ...Option) *Tree {
	t := &Tree{
		Metadata:   btree.New[Metadata, emptySummary](),
		ParentRefs: btree.New[ParentRef, emptySummary](),
		ChildRefs:  btree.New[ChildRef, emptySummary](),
		store:      store,
		version:    clock.NewGlobal(),
		deferred:   opqueue.New[Operation](),
		nextBase:   1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FileType reports the type of id, or false if id names nothing this
// tree knows about yet.
func (t *Tree) FileType(id FileID) (FileType, bool) {
	if id == RootID {
		return Directory, true
	}
	m, ok := t.metadataFor(id)
	return m.FileType, ok
}

func (t *Tree) metadataFor(id FileID) (Metadata, bool) {
	for _, m := range t.Metadata.Items() {
		if m.FileID == id {
			return m, true
		}
	}
	return Metadata{}, false
}

// refsForChild returns every RefID (one per hard link) that currently
// names id, i.e. whose most recent ParentRef row has a non-nil Parent.
func (t *Tree) refsForChild(id FileID) []RefID {
	var out []RefID
	seen := make(map[RefID]bool)
	items := t.ParentRefs.Items()
	for _, p := range items {
		if p.Ref.ChildID != id || seen[p.Ref] {
			continue
		}
		seen[p.Ref] = true
		if cur, ok := t.currentParentRef(p.Ref); ok && cur.Parent != nil {
			out = append(out, p.Ref)
		}
	}
	return out
}

// primaryRef returns the canonical RefID for id's ancestor-walk and
// display path: among every currently-linked ref for id (there can be
// more than one if it's hard-linked), the one with the lowest AliasID.
// A real multi-parent filesystem would track every path a hard-linked
// file has; this module simplifies to one canonical placement, which
// is sufficient for the scenarios this tree is exercised against (S3's
// directory-move cycle and S4's name conflict are both single-parent
// moves, not hard-link disambiguation).
func (t *Tree) primaryRef(id FileID) (RefID, bool) {
	refs := t.refsForChild(id)
	if len(refs) == 0 {
		return RefID{}, false
	}
	best := refs[0]
	for _, r := range refs[1:] {
		if r.AliasID.Compare(best.AliasID) < 0 {
			best = r
		}
	}
	return best, true
}

// currentParentRef returns the most recent ParentRef row for ref: the
// one with the highest Timestamp.
func (t *Tree) currentParentRef(ref RefID) (ParentRef, bool) {
	var best ParentRef
	found := false
	for _, p := range t.ParentRefs.Items() {
		if p.Ref != ref {
			continue
		}
		if !found || p.Timestamp.Compare(best.Timestamp) > 0 {
			best = p
			found = true
		}
	}
	return best, found
}

// priorParent finds the ParentEntry ref pointed at immediately before
// the row timestamped at, i.e. the highest-timestamped row for ref
// strictly below at with a non-nil Parent. Used by cycle fix-up to find
// where a reverted move should send its ref back to.
func (t *Tree) priorParent(ref RefID, at clock.Lamport) *ParentEntry {
	var best ParentRef
	found := false
	for _, p := range t.ParentRefs.Items() {
		if p.Ref != ref || p.Timestamp.Compare(at) >= 0 || p.Parent == nil {
			continue
		}
		if !found || p.Timestamp.Compare(best.Timestamp) > 0 {
			best = p
			found = true
		}
	}
	if !found {
		return nil
	}
	return best.Parent
}

// visibleChildRefsAt returns every visible ChildRef currently occupying
// (parentID, name). Name-conflict fix-up guarantees there's at most one
// once the tree has converged; more than one is the transient state
// fix-up resolves.
func (t *Tree) visibleChildRefsAt(parentID FileID, name string) []ChildRef {
	var out []ChildRef
	for _, c := range t.ChildRefs.Items() {
		if c.Parent.ParentID == parentID && c.Parent.Name == name && c.Visible() {
			out = append(out, c)
		}
	}
	return out
}
