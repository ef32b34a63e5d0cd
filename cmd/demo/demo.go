// This demo simulates two editors working on the same workspace: each
// creates and edits files locally, then exchanges operations with the
// other, converging on the same file tree and file contents regardless
// of delivery order.
//
// The demo assumes no message loss. Some operations are deliberately
// delivered out of order. An actual multi-replica deployment requires
// a more robust transport.
package main

import (
	"flag"
	"log"

	"github.com/brunokim/collabtree/clock"
	"github.com/brunokim/collabtree/epoch"
	"github.com/brunokim/collabtree/filetree"
)

var verbose = flag.Bool("v", false, "log every operation exchanged between replicas")

// replicaStore is a minimal clock.Store for one simulated replica:
// monotonic local and Lamport counters, no persistence.
type replicaStore struct {
	replica clock.ReplicaID
	local   clock.Local
	lamport clock.Lamport
}

func newReplicaStore(id clock.ReplicaID) *replicaStore {
	return &replicaStore{
		replica: id,
		local:   clock.NewLocal(id),
		lamport: clock.NewLamport(id),
	}
}

func (s *replicaStore) ReplicaID() clock.ReplicaID { return s.replica }

func (s *replicaStore) TickLocal() clock.Local {
	s.local = s.local.Next()
	return s.local
}

func (s *replicaStore) TickLamport() clock.Lamport {
	s.lamport = s.lamport.Tick()
	return s.lamport
}

func (s *replicaStore) ObserveLamport(remote clock.Lamport) {
	s.lamport = s.lamport.Observe(remote)
}

func main() {
	flag.Parse()

	alice := epoch.New(newReplicaStore(1))
	bob := epoch.New(newReplicaStore(2))

	// Alice creates a directory and a file inside it, then opens the
	// file and writes some content.
	docsID, dirOps, err := alice.CreateDir(filetree.RootID, "docs")
	must(err)
	fileID, createOps, err := alice.CreateTextFile(docsID, "notes.txt")
	must(err)
	must(alice.Open(fileID, ""))
	editOp, err := alice.Edit(fileID, 0, 0, "hello from alice")
	must(err)

	log.Printf("alice: created docs/notes.txt, content = %q", text(alice, fileID))

	// Bob hasn't seen any of this yet. He integrates alice's operations
	// out of order: the edit arrives before the file's own creation.
	sync(bob, []epoch.Operation{editOp})
	sync(bob, dirOps)
	sync(bob, createOps)
	must(bob.Open(fileID, ""))

	log.Printf("bob:   converged to content = %q", text(bob, fileID))

	// Both replicas concurrently append to the same file.
	aliceLen := len(text(alice, fileID))
	bobLen := len(text(bob, fileID))
	aliceOp, err := alice.Edit(fileID, aliceLen, aliceLen, " (A)")
	must(err)
	bobOp, err := bob.Edit(fileID, bobLen, bobLen, " (B)")
	must(err)

	sync(alice, []epoch.Operation{bobOp})
	sync(bob, []epoch.Operation{aliceOp})

	aliceText := text(alice, fileID)
	bobText := text(bob, fileID)
	log.Printf("alice: final content = %q", aliceText)
	log.Printf("bob:   final content = %q", bobText)
	if aliceText != bobText {
		log.Fatalf("replicas diverged: alice=%q bob=%q", aliceText, bobText)
	}
	log.Printf("replicas converged")
}

// sync applies ops to e and recursively applies whatever fix-up
// operations integrating them produced, mirroring how a real host
// would keep rebroadcasting fix-ups until a round produces none.
func sync(e *epoch.Epoch, ops []epoch.Operation) {
	fixups, err := e.ApplyOps(ops)
	must(err)
	if *verbose {
		for _, op := range ops {
			log.Printf("applied op, kind=%d", op.Kind)
		}
	}
	if len(fixups) > 0 {
		sync(e, fixups)
	}
}

func text(e *epoch.Epoch, id filetree.FileID) string {
	buf, err := e.Buffer(id)
	must(err)
	return buf.String()
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
