package clock_test

import (
	"testing"

	"github.com/brunokim/collabtree/clock"
	"github.com/stretchr/testify/require"
)

func TestLamportObserve(t *testing.T) {
	tests := []struct {
		name   string
		self   clock.Lamport
		remote clock.Lamport
		want   uint64
	}{
		{"remote behind", clock.Lamport{Value: 5, ReplicaID: 1}, clock.Lamport{Value: 2, ReplicaID: 2}, 6},
		{"remote ahead", clock.Lamport{Value: 2, ReplicaID: 1}, clock.Lamport{Value: 5, ReplicaID: 2}, 6},
		{"tie", clock.Lamport{Value: 5, ReplicaID: 1}, clock.Lamport{Value: 5, ReplicaID: 2}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.self.Observe(tt.remote)
			require.Equal(t, tt.want, got.Value)
			require.Equal(t, tt.self.ReplicaID, got.ReplicaID)
		})
	}
}

func TestLamportCompare(t *testing.T) {
	a := clock.Lamport{Value: 1, ReplicaID: 5}
	b := clock.Lamport{Value: 1, ReplicaID: 9}
	c := clock.Lamport{Value: 2, ReplicaID: 1}

	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.True(t, a.Less(c))
	require.Equal(t, 0, a.Compare(a))
}

func TestGlobalObserved(t *testing.T) {
	g := clock.NewGlobal()
	local := clock.Local{ReplicaID: 1, Seq: 3}

	require.False(t, g.Observed(local))
	g.Observe(local)
	require.True(t, g.Observed(local))
	require.True(t, g.Observed(clock.Local{ReplicaID: 1, Seq: 2}))
	require.False(t, g.Observed(clock.Local{ReplicaID: 1, Seq: 4}))
	require.True(t, g.Observed(clock.Local{})) // zero value always observed
}

func TestGlobalLessEq(t *testing.T) {
	a := clock.Global{1: 2, 2: 3}
	b := clock.Global{1: 2, 2: 4}
	c := clock.Global{1: 3, 2: 1}

	require.True(t, a.LessEq(b))
	require.False(t, b.LessEq(a))
	require.False(t, a.LessEq(c))
	require.False(t, c.LessEq(a))
}

func TestGlobalChangedSince(t *testing.T) {
	a := clock.Global{1: 5}
	b := clock.Global{1: 3}
	require.True(t, a.ChangedSince(b))
	require.False(t, b.ChangedSince(a))
	require.False(t, a.ChangedSince(a.Clone()))
}

func TestGlobalObserveAll(t *testing.T) {
	a := clock.Global{1: 2, 2: 3}
	b := clock.Global{1: 5, 3: 1}
	a.ObserveAll(b)
	require.Equal(t, clock.Global{1: 5, 2: 3, 3: 1}, a)
}
