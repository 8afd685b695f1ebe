package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vidwire/vidwire/internal/signaling"
)

type nopEndpoint struct{ id int }

func (nopEndpoint) Send(signaling.Message) error { return nil }

func TestRegister_DuplicateRejectedWithoutReplacement(t *testing.T) {
	r := New()
	first := &nopEndpoint{id: 1}
	second := &nopEndpoint{id: 2}

	if err := r.Register("alice", first); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register("alice", second); !errors.Is(err, ErrIDInUse) {
		t.Fatalf("second register err = %v, want ErrIDInUse", err)
	}

	ep, ok := r.Lookup("alice")
	if !ok {
		t.Fatal("alice missing after duplicate attempt")
	}
	if ep != first {
		t.Fatal("duplicate registration replaced the original endpoint")
	}
}

func TestRemove_Idempotent(t *testing.T) {
	r := New()
	if err := r.Register("bob", &nopEndpoint{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	r.Remove("bob")
	r.Remove("bob")
	r.Remove("never-registered")

	if _, ok := r.Lookup("bob"); ok {
		t.Fatal("bob still present after Remove")
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
}

func TestRegister_AfterRemoveSucceeds(t *testing.T) {
	r := New()
	if err := r.Register("carol", &nopEndpoint{id: 1}); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Remove("carol")
	if err := r.Register("carol", &nopEndpoint{id: 2}); err != nil {
		t.Fatalf("re-register after remove: %v", err)
	}
}

func TestRegister_ConcurrentDuplicateAdmitsExactlyOne(t *testing.T) {
	r := New()

	const attempts = 32
	var wg sync.WaitGroup
	var wins atomic.Int32

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := r.Register("contested", &nopEndpoint{id: n}); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins.Load())
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestConcurrentMixedOperations(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				_ = r.Register(id, &nopEndpoint{id: n})
				r.Lookup(id)
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()
}
