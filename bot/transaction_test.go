package bot

import (
	"testing"
	"time"

	"github.com/ggoodman/kritor-gateway/kritor"
)

func TestTransaction_AcquireFindRelease(t *testing.T) {
	b := New(Account{UID: "u1"})
	defer b.Close(nil)
	conv := groupConv("100", "alice")

	if _, ok := b.FindTransaction(conv); ok {
		t.Fatalf("expected no transaction")
	}
	b.AcquireTransaction(testOwner("repeat"), conv, time.Minute)

	txn, ok := b.FindTransaction(conv)
	if !ok || txn.Owner.ServiceName() != "repeat" {
		t.Fatalf("expected repeat to own the conversation, got %+v", txn)
	}
	if _, ok := b.FindTransaction(groupConv("100", "bob")); ok {
		t.Fatalf("expected other senders to be unaffected")
	}

	if !b.ReleaseTransaction(conv) {
		t.Fatalf("expected first release to remove the entry")
	}
	if b.ReleaseTransaction(conv) {
		t.Fatalf("expected second release to be a no-op")
	}
	if len(b.Transactions()) != 0 {
		t.Fatalf("expected no transactions")
	}
}

func TestTransaction_AutoExpiry(t *testing.T) {
	b := New(Account{UID: "u1"})
	defer b.Close(nil)
	conv := groupConv("100", "alice")

	b.AcquireTransaction(testOwner("repeat"), conv, 20*time.Millisecond)
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := b.FindTransaction(conv); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transaction did not expire")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// release after expiry is harmless
	if b.ReleaseTransaction(conv) {
		t.Fatalf("expected release after expiry to report false")
	}
}

func TestTransaction_ReacquireCancelsOldTimer(t *testing.T) {
	b := New(Account{UID: "u1"})
	defer b.Close(nil)
	conv := groupConv("100", "alice")

	b.AcquireTransaction(testOwner("first"), conv, 20*time.Millisecond)
	b.AcquireTransaction(testOwner("second"), conv, time.Minute)

	time.Sleep(60 * time.Millisecond)
	txn, ok := b.FindTransaction(conv)
	if !ok {
		t.Fatalf("stale timer removed the replacement entry")
	}
	if txn.Owner.ServiceName() != "second" {
		t.Fatalf("expected second owner, got %q", txn.Owner.ServiceName())
	}
}

func TestTransaction_DefaultTimeout(t *testing.T) {
	b := New(Account{UID: "u1"}, WithTransactionTimeout(func() time.Duration { return 10 * time.Second }))
	defer b.Close(nil)

	before := time.Now()
	txn := b.AcquireTransaction(testOwner("x"), groupConv("1", "a"), 0)
	if d := txn.ExpiresAt.Sub(before); d < 10*time.Second || d > 11*time.Second {
		t.Fatalf("expected ~10s default timeout, got %v", d)
	}
}

func TestTransaction_KeyIncludesSubPeerAndUIN(t *testing.T) {
	b := New(Account{UID: "u1"})
	defer b.Close(nil)

	base := kritor.Conversation{
		Contact: kritor.Contact{Scene: kritor.SceneGuild, Peer: "g", SubPeer: kritor.Ptr("c1")},
		Sender:  kritor.Sender{UID: "a", UIN: kritor.Ptr[uint64](1)},
	}
	b.AcquireTransaction(testOwner("x"), base, time.Minute)

	other := base
	other.Contact.SubPeer = kritor.Ptr("c2")
	if _, ok := b.FindTransaction(other); ok {
		t.Fatalf("expected a different channel to be unlocked")
	}
}

func TestTransaction_CloseStopsTimers(t *testing.T) {
	b := New(Account{UID: "u1"})
	b.AcquireTransaction(testOwner("x"), groupConv("1", "a"), time.Minute)
	b.Close(nil)
	if len(b.Transactions()) != 0 {
		t.Fatalf("expected close to clear transactions")
	}
}

func TestTransaction_ListIsOrdered(t *testing.T) {
	b := New(Account{UID: "u1"})
	defer b.Close(nil)

	uids := []string{"carol", "alice", "bob", "dave"}
	for _, uid := range uids {
		b.AcquireTransaction(testOwner("repeat"), groupConv("100", uid), time.Minute)
	}

	first := b.Transactions()
	if len(first) != len(uids) {
		t.Fatalf("expected %d transactions, got %d", len(uids), len(first))
	}
	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		if cur.CreatedAt.Before(prev.CreatedAt) ||
			cur.CreatedAt.Equal(prev.CreatedAt) && cur.Key.String() < prev.Key.String() {
			t.Fatalf("transactions out of order at %d: %s then %s", i, prev.Key, cur.Key)
		}
	}
	for n := 0; n < 10; n++ {
		again := b.Transactions()
		for i := range first {
			if again[i].Key != first[i].Key {
				t.Fatalf("order changed between calls at %d: %s vs %s", i, first[i].Key, again[i].Key)
			}
		}
	}
}
