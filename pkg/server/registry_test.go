package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistryOrder(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	for _, name := range []string{"carol", "alice", "bob"} {
		if err := r.Register(name, newSession(nil)); err != nil {
			t.Fatalf("Register(%q): %v", name, err)
		}
	}

	// Insertion order, not sorted.
	want := []string{"carol", "alice", "bob"}
	if diff := cmp.Diff(want, r.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	r.Unregister("alice")
	want = []string{"carol", "bob"}
	if diff := cmp.Diff(want, r.Names()); diff != "" {
		t.Errorf("Names after Unregister mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryConflictLeavesStateUnchanged(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	first := newSession(nil)
	if err := r.Register("alice", first); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := r.Register("alice", newSession(nil)); err != ErrNameTaken {
		t.Fatalf("duplicate Register = %v, want ErrNameTaken", err)
	}

	got, ok := r.Lookup("alice")
	if !ok || got != first {
		t.Error("conflicting Register replaced the original session")
	}
	if diff := cmp.Diff([]string{"alice"}, r.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryLookupMissing(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if _, ok := r.Lookup("nobody"); ok {
		t.Error("Lookup found a session that was never registered")
	}
}

func TestRegistryConcurrentMutation(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	// Hammer register/unregister/snapshot from many goroutines; the
	// snapshot must never contain a duplicate name.
	const workers = 16
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		name := fmt.Sprintf("user%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if err := r.Register(name, newSession(nil)); err != nil {
					t.Errorf("Register(%q): %v", name, err)
					return
				}
				seen := make(map[string]bool)
				for _, n := range r.Names() {
					if seen[n] {
						t.Errorf("snapshot contains duplicate name %q", n)
						return
					}
					seen[n] = true
				}
				r.Unregister(name)
			}
		}()
	}
	wg.Wait()

	if got := r.Len(); got != 0 {
		t.Errorf("Len after all unregisters = %d, want 0", got)
	}
}

func TestRegistrySessionsSnapshot(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	a := newSession(nil)
	b := newSession(nil)
	if err := r.Register("alice", a); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("bob", b); err != nil {
		t.Fatal(err)
	}

	snap := r.Sessions()

	// Mutating the registry must not disturb an already-taken snapshot.
	r.Unregister("alice")
	if len(snap) != 2 || snap[0] != a || snap[1] != b {
		t.Error("snapshot changed under concurrent unregister")
	}
}
