package nrt

import (
	"sync"
	"testing"
)

func details(id int, host string, port int) ReplicaDetails {
	return ReplicaDetails{
		ReplicaID: id,
		HostPort:  HostPort{HostName: host, Port: port},
		Client:    newMockReplicaClient(host, port),
	}
}

func TestRegistryAddDeduplicates(t *testing.T) {
	r := newReplicaRegistry()

	if !r.add(details(1, "a", 7000)) {
		t.Error("first add should succeed")
	}
	// Same identity, different client handle: a reconnect must not duplicate
	if r.add(details(1, "a", 7000)) {
		t.Error("duplicate add should be rejected")
	}
	if r.len() != 1 {
		t.Errorf("len = %d, want 1", r.len())
	}

	// Same id on a different endpoint is a distinct replica
	if !r.add(details(1, "b", 7000)) {
		t.Error("same id on different host should be accepted")
	}
	if !r.add(details(2, "a", 7000)) {
		t.Error("different id on same endpoint should be accepted")
	}
	if r.len() != 3 {
		t.Errorf("len = %d, want 3", r.len())
	}
}

func TestRegistryRemove(t *testing.T) {
	r := newReplicaRegistry()
	d1 := details(1, "a", 7000)
	d2 := details(2, "b", 7000)
	r.add(d1)
	r.add(d2)

	// Removal matches by identity, not by handle
	r.remove(ReplicaDetails{ReplicaID: 1, HostPort: HostPort{HostName: "a", Port: 7000}})
	if r.len() != 1 {
		t.Fatalf("len = %d, want 1", r.len())
	}
	if got := r.snapshot()[0].ReplicaID; got != 2 {
		t.Errorf("remaining replica = %d, want 2", got)
	}

	// Removing a missing entry is a no-op
	r.remove(d1)
	if r.len() != 1 {
		t.Errorf("len = %d, want 1", r.len())
	}
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	r := newReplicaRegistry()
	r.add(details(1, "a", 7000))

	snap := r.snapshot()
	r.add(details(2, "b", 7000))

	if len(snap) != 1 {
		t.Errorf("snapshot mutated by later add: len = %d", len(snap))
	}
}

func TestRegistryDrain(t *testing.T) {
	r := newReplicaRegistry()
	r.add(details(1, "a", 7000))
	r.add(details(2, "b", 7000))

	drained := r.drain()
	if len(drained) != 2 {
		t.Errorf("drained %d entries, want 2", len(drained))
	}
	if r.len() != 0 {
		t.Errorf("len after drain = %d, want 0", r.len())
	}
}

func TestRegistryConcurrentAdd(t *testing.T) {
	r := newReplicaRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Each goroutine repeatedly adds the same 5 identities
			for j := 0; j < 50; j++ {
				r.add(details(j%5, "host", 7000))
			}
		}(i)
	}
	wg.Wait()

	if r.len() != 5 {
		t.Errorf("len = %d, want 5 unique identities", r.len())
	}
}
