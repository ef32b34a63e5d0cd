package filetree_test

import (
	"testing"

	"github.com/brunokim/collabtree/clock"
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

func TestCreateRenameRemoveRoundTrip(t *testing.T) {
	tr := filetree.New(newFakeStore(1))

	dirID, _, err := tr.CreateFile(filetree.RootID, "docs", filetree.Directory)
	require.NoError(t, err)
	fileID, _, err := tr.CreateFile(dirID, "readme.txt", filetree.RegularFile)
	require.NoError(t, err)

	path, ok := tr.PathForID(fileID)
	require.True(t, ok)
	require.Equal(t, []string{"docs", "readme.txt"}, path)

	got, ok := tr.IDForPath([]string{"docs", "readme.txt"})
	require.True(t, ok)
	require.Equal(t, fileID, got)

	_, err = tr.Rename(fileID, dirID, "README.txt")
	require.NoError(t, err)
	path, ok = tr.PathForID(fileID)
	require.True(t, ok)
	require.Equal(t, []string{"docs", "README.txt"}, path)

	_, err = tr.Remove(fileID)
	require.NoError(t, err)
	_, ok = tr.IDForPath([]string{"docs", "README.txt"})
	require.False(t, ok)
}

func TestCreateNameConflictLocallyRejected(t *testing.T) {
	tr := filetree.New(newFakeStore(1))
	_, _, err := tr.CreateFile(filetree.RootID, "a", filetree.RegularFile)
	require.NoError(t, err)
	_, _, err = tr.CreateFile(filetree.RootID, "a", filetree.RegularFile)
	require.ErrorIs(t, err, filetree.ErrNameExists)
}

func TestRenameCycleLocallyRejected(t *testing.T) {
	tr := filetree.New(newFakeStore(1))
	a, _, err := tr.CreateFile(filetree.RootID, "a", filetree.Directory)
	require.NoError(t, err)
	b, _, err := tr.CreateFile(a, "b", filetree.Directory)
	require.NoError(t, err)

	_, err = tr.Rename(a, b, "a")
	require.ErrorIs(t, err, filetree.ErrWouldCreateCycle)
}

func TestHardLink(t *testing.T) {
	tr := filetree.New(newFakeStore(1))
	dirID, _, err := tr.CreateFile(filetree.RootID, "dir", filetree.Directory)
	require.NoError(t, err)
	fileID, _, err := tr.CreateFile(filetree.RootID, "a.txt", filetree.RegularFile)
	require.NoError(t, err)

	_, err = tr.HardLink(fileID, dirID, "b.txt")
	require.NoError(t, err)

	got, ok := tr.IDForPath([]string{"a.txt"})
	require.True(t, ok)
	require.Equal(t, fileID, got)
	got, ok = tr.IDForPath([]string{"dir", "b.txt"})
	require.True(t, ok)
	require.Equal(t, fileID, got)

	dir2, _, err := tr.CreateFile(filetree.RootID, "dir2", filetree.Directory)
	require.NoError(t, err)
	_, err = tr.HardLink(dir2, dirID, "nope")
	require.ErrorIs(t, err, filetree.ErrCannotLinkDir)
}

// TestConcurrentCreateNameConflict exercises scenario S4: two replicas
// concurrently create a file with the same name in the same directory.
// After exchanging operations, exactly one survives under the original
// name and the other is renamed with a trailing '~', deterministically
// on both replicas.
func TestConcurrentCreateNameConflict(t *testing.T) {
	a := filetree.New(newFakeStore(1))
	b := filetree.New(newFakeStore(2))

	idA, opsA, err := a.CreateFile(filetree.RootID, "notes.txt", filetree.RegularFile)
	require.NoError(t, err)
	idB, opsB, err := b.CreateFile(filetree.RootID, "notes.txt", filetree.RegularFile)
	require.NoError(t, err)

	fixupsA := a.ApplyOps(opsB)
	fixupsB := b.ApplyOps(opsA)
	// Each replica also needs the other's fix-ups for both to reach the
	// same final state.
	a.ApplyOps(fixupsB)
	b.ApplyOps(fixupsA)

	pathA1, ok := a.PathForID(idA)
	require.True(t, ok)
	pathA2, ok := a.PathForID(idB)
	require.True(t, ok)
	pathB1, ok := b.PathForID(idA)
	require.True(t, ok)
	pathB2, ok := b.PathForID(idB)
	require.True(t, ok)

	require.Equal(t, pathA1, pathB1)
	require.Equal(t, pathA2, pathB2)
	require.NotEqual(t, pathA1, pathA2)
	require.ElementsMatch(t, []string{"notes.txt", "notes.txt~"}, []string{pathA1[0], pathA2[0]})
}

// TestConcurrentDirectoryMoveCycle exercises scenario S3: replica A
// moves a into b (mv a b/a), replica B concurrently moves b into a (mv
// b a/b). After exchanging operations, exactly one move is reverted by
// the Lamport rule, both replicas converge on the same survivor, and
// the tree stays acyclic.
func TestConcurrentDirectoryMoveCycle(t *testing.T) {
	snapshot := []filetree.BaseEntry{
		{Depth: 0, Name: "a", FileType: filetree.Directory},
		{Depth: 0, Name: "b", FileType: filetree.Directory},
	}
	a := filetree.New(newFakeStore(1))
	a.AppendBaseEntries(snapshot)
	c := filetree.New(newFakeStore(2))
	c.AppendBaseEntries(snapshot)

	aID := filetree.BaseFileID(1)
	bID := filetree.BaseFileID(2)

	opA, err := a.Rename(aID, bID, "a") // replica A: mv a b/a
	require.NoError(t, err)
	opB, err := c.Rename(bID, aID, "b") // replica C: mv b a/b
	require.NoError(t, err)

	fixupsA := a.ApplyOps([]filetree.Operation{opB})
	fixupsC := c.ApplyOps([]filetree.Operation{opA})
	a.ApplyOps(fixupsC)
	c.ApplyOps(fixupsA)

	pathAa, okAa := a.PathForID(aID)
	pathAb, okAb := a.PathForID(bID)
	pathCa, okCa := c.PathForID(aID)
	pathCb, okCb := c.PathForID(bID)
	require.True(t, okAa)
	require.True(t, okAb)
	require.True(t, okCa)
	require.True(t, okCb)

	require.Equal(t, pathAa, pathCa)
	require.Equal(t, pathAb, pathCb)
	// Acyclicity: exactly one of the two directories ends up nested
	// inside the other, never both.
	nested := len(pathAa) > 1 || len(pathAb) > 1
	require.True(t, nested)
	require.False(t, len(pathAa) > 1 && len(pathAb) > 1)
}
