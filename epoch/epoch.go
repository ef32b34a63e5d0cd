/*
Package epoch composes the tree CRDT (filetree) with one text CRDT
(buffer) per text file into a single replicated workspace: a directory
tree whose regular-file leaves carry live, collaboratively-edited
content. "Epoch" names one checkout of that workspace, distinguishing
it from a future epoch started from a different base commit — this
package doesn't model that history itself, only the live state of one.

A text file's buffer isn't necessarily open: a BufferOperation can
arrive (via ApplyOps) referencing a file whose content hasn't been
loaded into memory yet, just as a tree operation can arrive referencing
metadata that hasn't landed. Such operations are queued in the file's
own deferred list and replayed once Open supplies the file's base text.

Grounded on the Epoch/TextFile split in the editor core this module's
algorithms were distilled from.
*/
package epoch

import (
	"errors"
	"log/slog"

	"github.com/brunokim/collabtree/buffer"
	"github.com/brunokim/collabtree/clock"
	"github.com/brunokim/collabtree/filetree"
)

// Errors returned by Epoch operations.
var (
	ErrNotTextFile   = errors.New("epoch: file is not a regular text file")
	ErrFileNotOpened = errors.New("epoch: text file has not been opened")
)

// textFile is either buffered (content loaded, ready to Edit/ApplyOp)
// or deferred (identity known, content not yet loaded — operations
// addressed to it accumulate until Open is called).
type textFile struct {
	buf      *buffer.Buffer
	deferred []buffer.Operation
}

func (f *textFile) isOpen() bool { return f.buf != nil }

// Epoch is one replica's view of a workspace: a file tree plus the
// live buffers backing its open text files.
type Epoch struct {
	Tree *filetree.Tree

	store clock.Store
	files map[filetree.FileID]*textFile
	log   *slog.Logger
}

// Option configures an Epoch at construction time.
type Option func(*Epoch)

// WithLogger attaches a logger that records deferred-buffer-operation
// activity at Debug level, and is passed through to the underlying
// Tree.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Epoch) { e.log = logger }
}

// New returns an empty epoch (just the tree's implicit root) backed by
// store for clock ticks. The same store is shared by the tree and
// every buffer opened in this epoch, matching the single per-replica
// local/Lamport clock the original design ticks across both.
func New(store clock.Store, opts ...Option) *Epoch {
	e := &Epoch{
		store: store,
		files: make(map[filetree.FileID]*textFile),
	}
	var treeOpts []filetree.Option
	for _, opt := range opts {
		opt(e)
	}
	if e.log != nil {
		treeOpts = append(treeOpts, filetree.WithLogger(e.log))
	}
	e.Tree = filetree.New(store, treeOpts...)
	return e
}

// CreateTextFile creates a new, empty regular file named name inside
// parentID and opens it for editing in the same call — the common
// case of a user creating a new file in their editor, which the
// original splits into create_file/new_text_file/open_text_file but
// which this package's callers never need staged separately.
func (e *Epoch) CreateTextFile(parentID filetree.FileID, name string) (filetree.FileID, []Operation, error) {
	id, ops, err := e.Tree.CreateFile(parentID, name, filetree.RegularFile)
	if err != nil {
		return filetree.FileID{}, nil, err
	}
	e.files[id] = &textFile{buf: buffer.New(e.store)}
	return id, treeOps(ops), nil
}

// Open attaches baseText as id's starting content — the host's
// on-disk (or snapshot) copy — and replays any buffer operations that
// arrived for id before it was opened. baseText is loaded directly,
// not as a tracked edit, mirroring Buffer::new(base_text) in the
// original: it's a local checkout, not a change other replicas need to
// integrate.
func (e *Epoch) Open(id filetree.FileID, baseText string) error {
	ft, ok := e.Tree.FileType(id)
	if !ok {
		return filetree.ErrFileNotFound
	}
	if ft != filetree.RegularFile {
		return ErrNotTextFile
	}
	f, ok := e.files[id]
	if !ok {
		f = &textFile{}
		e.files[id] = f
	}
	if f.isOpen() {
		return nil
	}
	buf := buffer.New(e.store)
	if baseText != "" {
		if _, err := buf.Edit(0, 0, baseText); err != nil {
			return err
		}
	}
	pending := f.deferred
	f.buf = buf
	f.deferred = nil
	for _, op := range pending {
		if err := buf.ApplyOp(op); err != nil {
			return err
		}
	}
	return nil
}

// Buffer returns the live buffer backing id, if it has been opened.
func (e *Epoch) Buffer(id filetree.FileID) (*buffer.Buffer, error) {
	f, ok := e.files[id]
	if !ok || !f.isOpen() {
		return nil, ErrFileNotOpened
	}
	return f.buf, nil
}
