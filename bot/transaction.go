package bot

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ggoodman/kritor-gateway/kritor"
)

// Owner is the frozen dispatch context captured by a transaction. Events of
// the locked conversation are routed exclusively to the service it names.
type Owner interface {
	ServiceName() string
}

// Transaction is a read-only view of a lock entry.
type Transaction struct {
	Key       kritor.ConversationKey
	Owner     Owner
	CreatedAt time.Time
	ExpiresAt time.Time
}

type txnEntry struct {
	Transaction
	gen   uint64
	timer *time.Timer
}

type transactions struct {
	mu      sync.Mutex
	entries map[kritor.ConversationKey]*txnEntry
	gen     uint64
}

func (t *transactions) init() {
	t.entries = make(map[kritor.ConversationKey]*txnEntry)
}

func (t *transactions) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *transactions) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, k)
	}
}

// AcquireTransaction locks conv for owner until ReleaseTransaction or the
// timeout elapses. A non-positive timeout selects the configured default.
// Acquiring a conversation that is already locked replaces the previous
// owner and cancels its timer.
func (b *Bot) AcquireTransaction(owner Owner, conv kritor.Conversation, timeout time.Duration) Transaction {
	if timeout <= 0 {
		timeout = b.txnTimeout()
	}
	key := conv.Key()
	now := time.Now()

	t := &b.txns
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.entries[key]; ok {
		prev.timer.Stop()
		b.log.Debug("bot.transaction.replaced",
			slog.String("key", key.String()),
			slog.String("previous_owner", prev.Owner.ServiceName()),
		)
	}

	t.gen++
	gen := t.gen
	e := &txnEntry{
		Transaction: Transaction{Key: key, Owner: owner, CreatedAt: now, ExpiresAt: now.Add(timeout)},
		gen:         gen,
	}
	e.timer = time.AfterFunc(timeout, func() { b.expireTransaction(key, gen) })
	t.entries[key] = e

	b.log.Debug("bot.transaction.acquired",
		slog.String("key", key.String()),
		slog.String("owner", owner.ServiceName()),
		slog.Duration("timeout", timeout),
	)
	return e.Transaction
}

func (b *Bot) expireTransaction(key kritor.ConversationKey, gen uint64) {
	t := &b.txns
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok || e.gen != gen {
		// released or replaced since the timer was armed
		t.mu.Unlock()
		return
	}
	delete(t.entries, key)
	t.mu.Unlock()

	b.log.Info("bot.transaction.expired",
		slog.String("key", key.String()),
		slog.String("owner", e.Owner.ServiceName()),
	)
}

// ReleaseTransaction removes the lock on conv. It reports whether a lock was
// present; releasing twice is a no-op.
func (b *Bot) ReleaseTransaction(conv kritor.Conversation) bool {
	key := conv.Key()
	t := &b.txns
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.entries, key)
	return true
}

// FindTransaction returns the lock on conv, if any.
func (b *Bot) FindTransaction(conv kritor.Conversation) (Transaction, bool) {
	t := &b.txns
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[conv.Key()]
	if !ok {
		return Transaction{}, false
	}
	return e.Transaction, true
}

// Transactions returns a snapshot of every active lock.
func (b *Bot) Transactions() []Transaction {
	t := &b.txns
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Transaction, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.Transaction)
	}
	slices.SortFunc(out, func(a, b Transaction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Key.String(), b.Key.String())
	})
	return out
}
