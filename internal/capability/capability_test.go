package capability

import (
	"testing"

	"wishdo/internal/kv"
)

func TestFlagLifecycle(t *testing.T) {
	c := New(kv.NewMemory())

	if c.StarUnsupported("api.example.com") {
		t.Fatal("fresh cache reports host as flagged")
	}

	if err := c.MarkStarUnsupported("api.example.com"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !c.StarUnsupported("api.example.com") {
		t.Fatal("flag not sticky after mark")
	}
	if c.StarUnsupported("other.example.com") {
		t.Error("flag leaked to another host")
	}

	if err := c.Clear("api.example.com"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if c.StarUnsupported("api.example.com") {
		t.Error("flag survived clear")
	}
}

func TestFlagPersistsAcrossInstances(t *testing.T) {
	store := kv.NewMemory()

	if err := New(store).MarkStarUnsupported("api.example.com"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !New(store).StarUnsupported("api.example.com") {
		t.Error("flag not visible to a second cache over the same store")
	}
}
