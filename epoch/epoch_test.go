package epoch_test

import (
	"testing"

	"github.com/brunokim/collabtree/clock"
	"github.com/brunokim/collabtree/epoch"
	"github.com/brunokim/collabtree/filetree"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal clock.Store for tests: monotonic local and
// Lamport counters for one replica, no persistence.
type fakeStore struct {
	replica clock.ReplicaID
	local   clock.Local
	lamport clock.Lamport
}

func newFakeStore(replica clock.ReplicaID) *fakeStore {
	return &fakeStore{
		replica: replica,
		local:   clock.NewLocal(replica),
		lamport: clock.NewLamport(replica),
	}
}

func (s *fakeStore) ReplicaID() clock.ReplicaID { return s.replica }

func (s *fakeStore) TickLocal() clock.Local {
	s.local = s.local.Next()
	return s.local
}

func (s *fakeStore) TickLamport() clock.Lamport {
	s.lamport = s.lamport.Tick()
	return s.lamport
}

func (s *fakeStore) ObserveLamport(remote clock.Lamport) {
	s.lamport = s.lamport.Observe(remote)
}

func TestCreateAndEditTextFile(t *testing.T) {
	e := epoch.New(newFakeStore(1))

	id, _, err := e.CreateTextFile(filetree.RootID, "notes.txt")
	require.NoError(t, err)

	_, err = e.Edit(id, 0, 0, "hello")
	require.NoError(t, err)

	buf, err := e.Buffer(id)
	require.NoError(t, err)
	require.Equal(t, "hello", buf.String())
}

func TestEditBeforeOpenFails(t *testing.T) {
	e := epoch.New(newFakeStore(1))
	dirID, _, err := e.CreateDir(filetree.RootID, "dir")
	require.NoError(t, err)

	// Edit a file id that this epoch has never created or opened.
	_ = dirID
	id := filetree.NewFileID(clock.Local{})
	_, err = e.Edit(id, 0, 0, "x")
	require.ErrorIs(t, err, epoch.ErrFileNotOpened)
}

func TestApplyOpsConvergesAcrossReplicas(t *testing.T) {
	a := epoch.New(newFakeStore(1))
	b := epoch.New(newFakeStore(2))

	id, createOps, err := a.CreateTextFile(filetree.RootID, "shared.txt")
	require.NoError(t, err)

	fixups, err := b.ApplyOps(createOps)
	require.NoError(t, err)
	require.Empty(t, fixups)
	require.NoError(t, b.Open(id, ""))

	editOp, err := a.Edit(id, 0, 0, "hi")
	require.NoError(t, err)
	_, err = b.ApplyOps([]epoch.Operation{editOp})
	require.NoError(t, err)

	bufA, err := a.Buffer(id)
	require.NoError(t, err)
	bufB, err := b.Buffer(id)
	require.NoError(t, err)
	require.Equal(t, bufA.String(), bufB.String())
	require.Equal(t, "hi", bufA.String())
}

func TestBufferOpDeferredUntilOpen(t *testing.T) {
	a := epoch.New(newFakeStore(1))
	b := epoch.New(newFakeStore(2))

	id, createOps, err := a.CreateTextFile(filetree.RootID, "late.txt")
	require.NoError(t, err)
	editOp, err := a.Edit(id, 0, 0, "abc")
	require.NoError(t, err)

	// b integrates the edit before ever seeing the file's creation or
	// opening its buffer.
	_, err = b.ApplyOps([]epoch.Operation{editOp})
	require.NoError(t, err)
	_, err = b.Buffer(id)
	require.ErrorIs(t, err, epoch.ErrFileNotOpened)

	_, err = b.ApplyOps(createOps)
	require.NoError(t, err)
	require.NoError(t, b.Open(id, ""))

	buf, err := b.Buffer(id)
	require.NoError(t, err)
	require.Equal(t, "abc", buf.String())
}

func TestRenameAndRemove(t *testing.T) {
	e := epoch.New(newFakeStore(1))
	dirID, _, err := e.CreateDir(filetree.RootID, "docs")
	require.NoError(t, err)
	id, _, err := e.CreateTextFile(filetree.RootID, "a.txt")
	require.NoError(t, err)

	_, err = e.Rename(id, dirID, "a.txt")
	require.NoError(t, err)
	path, ok := e.Tree.PathForID(id)
	require.True(t, ok)
	require.Equal(t, []string{"docs", "a.txt"}, path)

	_, err = e.Remove(id)
	require.NoError(t, err)
	_, ok = e.Tree.IDForPath([]string{"docs", "a.txt"})
	require.False(t, ok)
}
