// Package clock provides the logical-time primitives shared by every
// replicated data type in this module: a per-replica local counter, a
// Lamport timestamp for deterministic concurrent tie-breaks, and a global
// vector clock for testing operation readiness.
package clock

import "fmt"

// ReplicaID identifies a single participant. The zero value is never
// assigned to a real replica; it is reserved for sentinel timestamps.
type ReplicaID uint64

// Local is a replica-local timestamp: a monotonically increasing counter
// scoped to the replica that produced it. Together with ReplicaID it
// uniquely and totally identifies an operation within that replica.
type Local struct {
	ReplicaID ReplicaID
	Seq       uint64
}

// NewLocal returns the zero-seq timestamp for replicaID. Call Next to
// advance it.
func NewLocal(replicaID ReplicaID) Local {
	return Local{ReplicaID: replicaID}
}

// Next returns the next timestamp for the same replica.
func (l Local) Next() Local {
	return Local{ReplicaID: l.ReplicaID, Seq: l.Seq + 1}
}

// IsZero reports whether l is the default, unassigned timestamp.
func (l Local) IsZero() bool {
	return l == Local{}
}

func (l Local) String() string {
	return fmt.Sprintf("L%d@%d", l.ReplicaID, l.Seq)
}

// Compare orders two local timestamps by (replica, seq), giving a
// deterministic total order that isn't otherwise meaningful.
func (l Local) Compare(other Local) int {
	if l.ReplicaID != other.ReplicaID {
		if l.ReplicaID < other.ReplicaID {
			return -1
		}
		return 1
	}
	if l.Seq != other.Seq {
		if l.Seq < other.Seq {
			return -1
		}
		return 1
	}
	return 0
}

// Lamport is a Lamport clock value: a monotonic counter tagged with the
// replica that advanced it. Lamport values are totally ordered by Value
// then ReplicaID, which is what CRDTs use to break ties between
// concurrent operations deterministically across every replica.
type Lamport struct {
	Value     uint64
	ReplicaID ReplicaID
}

// NewLamport returns the initial Lamport value for replicaID. Real
// timestamps start at 1; 0 is reserved to mean "no timestamp".
func NewLamport(replicaID ReplicaID) Lamport {
	return Lamport{Value: 1, ReplicaID: replicaID}
}

// IsZero reports whether t is the sentinel "no timestamp" value.
func (t Lamport) IsZero() bool {
	return t.Value == 0
}

func (t Lamport) String() string {
	return fmt.Sprintf("T%d@%d", t.Value, t.ReplicaID)
}

// Compare orders two Lamport timestamps by value then replica id, which
// is the total order CRDT tie-breaks rely on.
func (t Lamport) Compare(other Lamport) int {
	if t.Value != other.Value {
		if t.Value < other.Value {
			return -1
		}
		return 1
	}
	if t.ReplicaID != other.ReplicaID {
		if t.ReplicaID < other.ReplicaID {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether t sorts strictly before other.
func (t Lamport) Less(other Lamport) bool {
	return t.Compare(other) < 0
}

// Tick advances a Lamport clock for a local event and returns the new
// timestamp.
//
//	*clock = clock.Tick()
func (t Lamport) Tick() Lamport {
	return Lamport{Value: t.Value + 1, ReplicaID: t.ReplicaID}
}

// Observe returns the Lamport clock updated after observing a remote
// timestamp, per the standard rule: max(self, other) + 1.
func (t Lamport) Observe(remote Lamport) Lamport {
	value := t.Value
	if remote.Value > value {
		value = remote.Value
	}
	return Lamport{Value: value + 1, ReplicaID: t.ReplicaID}
}

// Global is a vector clock mapping replica id to the highest Local.Seq
// observed from that replica. It supports the causal-readiness checks
// that drive deferred-operation queues throughout this module.
type Global map[ReplicaID]uint64

// NewGlobal returns an empty global clock.
func NewGlobal() Global {
	return make(Global)
}

// Clone returns an independent copy of g.
func (g Global) Clone() Global {
	out := make(Global, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}

// Observed reports whether local has been incorporated into g, i.e.
// g[local.ReplicaID] >= local.Seq. The zero Local is always observed.
func (g Global) Observed(local Local) bool {
	if local.IsZero() {
		return true
	}
	return g[local.ReplicaID] >= local.Seq
}

// Observe records local as having been applied, in place.
func (g Global) Observe(local Local) {
	if local.IsZero() {
		return
	}
	if g[local.ReplicaID] < local.Seq {
		g[local.ReplicaID] = local.Seq
	}
}

// ObserveAll merges every component of other into g, in place, taking
// the componentwise maximum.
func (g Global) ObserveAll(other Global) {
	for replica, seq := range other {
		if g[replica] < seq {
			g[replica] = seq
		}
	}
}

// LessEq reports whether g happened-before or equals other: every
// component of g is less than or equal to the matching component of
// other.
func (g Global) LessEq(other Global) bool {
	for replica, seq := range g {
		if other[replica] < seq {
			return false
		}
	}
	return true
}

// ChangedSince reports whether any component of g is strictly greater
// than the matching component of other; used to decide whether a
// subtree summarized by g needs to be visited when scanning for changes
// since other.
func (g Global) ChangedSince(other Global) bool {
	for replica, seq := range g {
		if seq > other[replica] {
			return true
		}
	}
	return false
}

// Store is implemented by the host to supply replica identity and tick
// the clocks that every mutation consumes. Grounded on ReplicaContext in
// the editor this module's algorithms were distilled from: the host owns
// clock persistence across restarts, the core only ever asks for the
// next tick.
type Store interface {
	ReplicaID() ReplicaID
	TickLocal() Local
	TickLamport() Lamport
	ObserveLamport(Lamport)
}
