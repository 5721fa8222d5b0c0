// Package storagetest is a conformance suite shared by the storage backends.
package storagetest

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/ggoodman/kritor-gateway/storage"
)

// Factory creates an empty storage instance for a single subtest.
type Factory func(t *testing.T) storage.Storage

// Run runs the complete storage test suite against the provided factory.
func Run(t *testing.T, factory Factory) {
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, factory(t)) })
	t.Run("GetNonExistent", func(t *testing.T) { testGetNonExistent(t, factory(t)) })
	t.Run("TTL", func(t *testing.T) { testTTL(t, factory(t)) })
	t.Run("NamespaceIsolation", func(t *testing.T) { testNamespaceIsolation(t, factory(t)) })
	t.Run("DeleteKey", func(t *testing.T) { testDeleteKey(t, factory(t)) })
	t.Run("DeleteNamespace", func(t *testing.T) { testDeleteNamespace(t, factory(t)) })
	t.Run("Keys", func(t *testing.T) { testKeys(t, factory(t)) })
	t.Run("HostileNamespaceIDs", func(t *testing.T) { testHostileNamespaceIDs(t, factory(t)) })
}

func mustGet(t *testing.T, s storage.Storage, key string, opts ...storage.Option) *storage.StorageItem {
	t.Helper()
	item, err := s.Get(context.Background(), key, opts...)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return item
}

func mustSet(t *testing.T, s storage.Storage, key, data string, opts ...storage.Option) {
	t.Helper()
	if err := s.Set(context.Background(), key, []byte(data), opts...); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

func testSetAndGet(t *testing.T, s storage.Storage) {
	mustSet(t, s, "greeting", "hello")
	item := mustGet(t, s, "greeting")
	if item == nil {
		t.Fatal("expected item to exist, got nil")
	}
	if string(item.Data) != "hello" {
		t.Fatalf("got %q, want %q", item.Data, "hello")
	}
	if item.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}
}

func testGetNonExistent(t *testing.T, s storage.Storage) {
	if item := mustGet(t, s, "missing"); item != nil {
		t.Fatalf("expected nil item, got %+v", item)
	}
}

func testTTL(t *testing.T, s storage.Storage) {
	mustSet(t, s, "short", "lived", storage.WithTTL(50*time.Millisecond))
	if item := mustGet(t, s, "short"); item == nil || item.ExpiresAt == nil {
		t.Fatal("expected item with expiry")
	}
	time.Sleep(100 * time.Millisecond)
	if item := mustGet(t, s, "short"); item != nil {
		t.Fatal("expected item to expire")
	}
}

func testNamespaceIsolation(t *testing.T, s storage.Storage) {
	scopes := [][]storage.Option{
		nil,
		{storage.WithAccount("a1")},
		{storage.WithAccount("a2")},
		{storage.WithPlugin("memo")},
		{storage.WithAccountPlugin("a1", "memo")},
		{storage.WithAccountPlugin("a1", "echo")},
	}
	for i, opts := range scopes {
		mustSet(t, s, "k", string(rune('A'+i)), opts...)
	}
	for i, opts := range scopes {
		item := mustGet(t, s, "k", opts...)
		if item == nil || string(item.Data) != string(rune('A'+i)) {
			t.Fatalf("scope %d: expected %q, got %+v", i, string(rune('A'+i)), item)
		}
	}
}

func testDeleteKey(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	mustSet(t, s, "a", "1", storage.WithPlugin("p"))
	mustSet(t, s, "b", "2", storage.WithPlugin("p"))
	if err := s.Delete(ctx, storage.WithPlugin("p"), storage.WithKey("a")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mustGet(t, s, "a", storage.WithPlugin("p")) != nil {
		t.Fatal("expected key a to be deleted")
	}
	if mustGet(t, s, "b", storage.WithPlugin("p")) == nil {
		t.Fatal("expected key b to survive")
	}
}

func testDeleteNamespace(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	mustSet(t, s, "a", "1", storage.WithAccountPlugin("acct", "p"))
	mustSet(t, s, "b", "2", storage.WithAccountPlugin("acct", "p"))
	mustSet(t, s, "a", "3", storage.WithAccount("acct"))
	if err := s.Delete(ctx, storage.WithAccountPlugin("acct", "p")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mustGet(t, s, "a", storage.WithAccountPlugin("acct", "p")) != nil || mustGet(t, s, "b", storage.WithAccountPlugin("acct", "p")) != nil {
		t.Fatal("expected namespace to be cleared")
	}
	if mustGet(t, s, "a", storage.WithAccount("acct")) == nil {
		t.Fatal("expected account namespace to survive")
	}
}

func testKeys(t *testing.T, s storage.Storage) {
	for _, k := range []string{"zeta", "alpha", "mid"} {
		mustSet(t, s, k, "v", storage.WithAccountPlugin("acct", "memo"))
	}
	mustSet(t, s, "other", "v", storage.WithAccountPlugin("acct", "echo"))

	keys, err := s.Keys(context.Background(), storage.WithAccountPlugin("acct", "memo"))
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if want := []string{"alpha", "mid", "zeta"}; !slices.Equal(keys, want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
}

// testHostileNamespaceIDs stores data under ids containing separators and
// glob metacharacters and checks no other namespace can reach it.
func testHostileNamespaceIDs(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	mustSet(t, s, "k", "secret", storage.WithAccountPlugin("a", "memo"))
	mustSet(t, s, "k", "other", storage.WithAccount("b"))

	forged := storage.WithAccount("a:plugin:memo")
	if item := mustGet(t, s, "k", forged); item != nil {
		t.Fatalf("forged account id read account+plugin data: %q", item.Data)
	}
	keys, err := s.Keys(ctx, forged)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("forged account id listed keys %v", keys)
	}

	for _, id := range []string{"*", "?", "[ab]", "a:plugin:*"} {
		keys, err := s.Keys(ctx, storage.WithAccount(id))
		if err != nil {
			t.Fatalf("Keys(%q) failed: %v", id, err)
		}
		if len(keys) != 0 {
			t.Fatalf("account %q listed foreign keys %v", id, keys)
		}
		if err := s.Delete(ctx, storage.WithAccount(id)); err != nil {
			t.Fatalf("Delete(%q) failed: %v", id, err)
		}
	}
	if item := mustGet(t, s, "k", storage.WithAccountPlugin("a", "memo")); item == nil || string(item.Data) != "secret" {
		t.Fatalf("account+plugin data lost: %+v", item)
	}
	if item := mustGet(t, s, "k", storage.WithAccount("b")); item == nil {
		t.Fatal("account b data lost")
	}

	// ids and keys with metacharacters still round-trip in their own scope
	mustSet(t, s, "x*y", "v", storage.WithAccount("*"))
	keys, err = s.Keys(ctx, storage.WithAccount("*"))
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if want := []string{"x*y"}; !slices.Equal(keys, want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
}
