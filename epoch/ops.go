package epoch

import (
	"github.com/brunokim/collabtree/buffer"
	"github.com/brunokim/collabtree/filetree"
)

// OpKind distinguishes the epoch's two wire operation shapes: a tree
// mutation (create/move/remove/link) or a buffer mutation (an edit to
// one file's content).
type OpKind int

const (
	OpTree OpKind = iota
	OpBuffer
)

// Operation is the wire representation of one epoch-level mutation.
// Exactly one of Tree or Buffer is meaningful, per Kind.
type Operation struct {
	Kind   OpKind
	Tree   filetree.Operation // set when Kind == OpTree
	Buffer BufferOp           // set when Kind == OpBuffer
}

// BufferOp addresses a buffer.Operation to the text file it mutates.
type BufferOp struct {
	FileID filetree.FileID
	Op     buffer.Operation
}

// Timestamp satisfies opqueue.Timestamped, ordering deferred epoch
// operations by Lamport value.
func (op Operation) Timestamp() uint64 {
	if op.Kind == OpTree {
		return op.Tree.Timestamp()
	}
	return op.Buffer.Op.Lamport.Value
}

func treeOp(op filetree.Operation) Operation { return Operation{Kind: OpTree, Tree: op} }

func treeOps(ops []filetree.Operation) []Operation {
	out := make([]Operation, len(ops))
	for i, op := range ops {
		out[i] = treeOp(op)
	}
	return out
}

func bufferOp(fileID filetree.FileID, op buffer.Operation) Operation {
	return Operation{Kind: OpBuffer, Buffer: BufferOp{FileID: fileID, Op: op}}
}

// Rename moves childID to (newParentID, newName); see Tree.Rename.
func (e *Epoch) Rename(childID, newParentID filetree.FileID, newName string) (Operation, error) {
	op, err := e.Tree.Rename(childID, newParentID, newName)
	return treeOp(op), err
}

// Remove unlinks childID from its current parent; see Tree.Remove.
func (e *Epoch) Remove(childID filetree.FileID) (Operation, error) {
	op, err := e.Tree.Remove(childID)
	return treeOp(op), err
}

// HardLink adds a second name for childID; see Tree.HardLink.
func (e *Epoch) HardLink(childID, newParentID filetree.FileID, newName string) (Operation, error) {
	op, err := e.Tree.HardLink(childID, newParentID, newName)
	return treeOp(op), err
}

// CreateDir creates a new directory named name inside parentID.
func (e *Epoch) CreateDir(parentID filetree.FileID, name string) (filetree.FileID, []Operation, error) {
	id, ops, err := e.Tree.CreateFile(parentID, name, filetree.Directory)
	return id, treeOps(ops), err
}

// Edit applies a local edit to an open text file's content and
// returns the operation to broadcast.
func (e *Epoch) Edit(fileID filetree.FileID, start, end int, newText string) (Operation, error) {
	f, ok := e.files[fileID]
	if !ok || !f.isOpen() {
		return Operation{}, ErrFileNotOpened
	}
	op, err := f.buf.Edit(start, end, newText)
	if err != nil {
		return Operation{}, err
	}
	return bufferOp(fileID, op), nil
}

// SetText replaces an open text file's content wholesale, diffing
// against the current text and returning one operation per changed
// span; see Buffer.SetTextString.
func (e *Epoch) SetText(fileID filetree.FileID, text string) ([]Operation, error) {
	f, ok := e.files[fileID]
	if !ok || !f.isOpen() {
		return nil, ErrFileNotOpened
	}
	ops, err := f.buf.SetTextString(text)
	if err != nil {
		return nil, err
	}
	return treeOpsFromBuffer(fileID, ops), nil
}

func treeOpsFromBuffer(fileID filetree.FileID, ops []buffer.Operation) []Operation {
	out := make([]Operation, len(ops))
	for i, op := range ops {
		out[i] = bufferOp(fileID, op)
	}
	return out
}

// ApplyOps integrates a batch of remote epoch operations, routing tree
// mutations through Tree.ApplyOps and buffer mutations to their file's
// buffer (or its deferred queue, if the file isn't open yet), and
// returns every fix-up operation produced along the way for the host
// to broadcast.
func (e *Epoch) ApplyOps(ops []Operation) ([]Operation, error) {
	var treeBatch []filetree.Operation
	var bufferBatch []BufferOp
	for _, op := range ops {
		switch op.Kind {
		case OpTree:
			treeBatch = append(treeBatch, op.Tree)
		case OpBuffer:
			bufferBatch = append(bufferBatch, op.Buffer)
		}
	}

	var out []Operation
	if len(treeBatch) > 0 {
		out = append(out, treeOps(e.Tree.ApplyOps(treeBatch))...)
	}
	for _, bop := range bufferBatch {
		if err := e.routeBufferOp(bop); err != nil {
			return out, err
		}
	}
	return out, nil
}

// routeBufferOp applies a remote buffer operation to its file's open
// buffer, or queues it if the file hasn't been opened in this epoch
// yet (its Metadata may not even have arrived, in which case it's
// queued here rather than in the tree's own deferred queue, since this
// epoch has no buffer to apply it to regardless).
func (e *Epoch) routeBufferOp(bop BufferOp) error {
	f, ok := e.files[bop.FileID]
	if !ok {
		f = &textFile{}
		e.files[bop.FileID] = f
	}
	if !f.isOpen() {
		f.deferred = append(f.deferred, bop.Op)
		if e.log != nil {
			e.log.Debug("epoch buffer op deferred", "file", bop.FileID, "op", bop.Op.ID)
		}
		return nil
	}
	return f.buf.ApplyOp(bop.Op)
}
