package wishlist

import (
	"testing"

	"wishdo/internal/kv"
)

func TestEmptyCacheYieldsEmptySet(t *testing.T) {
	c := New(kv.NewMemory())
	if ids := c.IDs("user-1"); len(ids) != 0 {
		t.Errorf("fresh cache has %d entries", len(ids))
	}
}

func TestSetStarredRoundTrip(t *testing.T) {
	c := New(kv.NewMemory())

	if err := c.Add("user-1", "a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add("user-1", "b"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !c.Has("user-1", "a") || !c.Has("user-1", "b") {
		t.Fatal("added entries missing")
	}

	if err := c.Remove("user-1", "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if c.Has("user-1", "a") {
		t.Error("removed entry still present")
	}
	if !c.Has("user-1", "b") {
		t.Error("unrelated entry removed")
	}
}

func TestUsersAreIsolated(t *testing.T) {
	c := New(kv.NewMemory())

	if err := c.Add("user-1", "a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if c.Has("user-2", "a") {
		t.Error("entry leaked across users")
	}
}

func TestAnonymousBucket(t *testing.T) {
	c := New(kv.NewMemory())

	if err := c.Add("", "a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !c.Has(AnonymousUser, "a") {
		t.Error("empty user ID did not map to the anonymous bucket")
	}
}

func TestCorruptEntryTreatedAsEmpty(t *testing.T) {
	store := kv.NewMemory()
	if err := store.Set(keyPrefix+"user-1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c := New(store)
	if ids := c.IDs("user-1"); len(ids) != 0 {
		t.Errorf("corrupt entry yielded %d ids", len(ids))
	}

	// A write through the cache replaces the corrupt entry.
	if err := c.Add("user-1", "a"); err != nil {
		t.Fatalf("add over corrupt entry: %v", err)
	}
	if !c.Has("user-1", "a") {
		t.Error("write over corrupt entry lost")
	}
}

func TestSubscribeNotifiesOnMutation(t *testing.T) {
	c := New(kv.NewMemory())

	fired := 0
	unsub := c.Subscribe(func() { fired++ })

	if err := c.Add("user-1", "a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if fired != 1 {
		t.Errorf("fired = %d after one mutation", fired)
	}

	unsub()
	if err := c.Remove("user-1", "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if fired != 1 {
		t.Errorf("unsubscribed callback still fired (%d)", fired)
	}
}
