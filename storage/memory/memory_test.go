package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/ggoodman/kritor-gateway/storage"
	"github.com/ggoodman/kritor-gateway/storage/storagetest"
)

func TestMemoryStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		s, err := New(100)
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNew_InvalidSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}

func TestLRUEviction(t *testing.T) {
	s, err := New(3)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.Set(ctx, fmt.Sprintf("key%d", i), []byte("v")); err != nil {
			t.Fatalf("Set() failed: %v", err)
		}
	}
	if item, _ := s.Get(ctx, "key0"); item != nil {
		t.Fatal("expected key0 to be evicted")
	}
	if item, _ := s.Get(ctx, "key4"); item == nil {
		t.Fatal("expected key4 to be present")
	}
}

func TestSetCopiesData(t *testing.T) {
	s, err := New(10)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	data := []byte("abc")
	if err := s.Set(ctx, "k", data, storage.WithAccount("a")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	data[0] = 'x'
	item, _ := s.Get(ctx, "k", storage.WithAccount("a"))
	if string(item.Data) != "abc" {
		t.Fatalf("stored data was aliased: %q", item.Data)
	}
}

func TestCloseIdempotent(t *testing.T) {
	s, err := New(10)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	_ = s.Close()
	_ = s.Close()
}
