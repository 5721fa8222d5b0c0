package bot

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Registry is the process-wide directory of live Bots keyed by account id.
// At most one Bot is registered per account; the first connection wins.
type Registry struct {
	log *slog.Logger

	mu      sync.Mutex
	bots    map[string]*Bot
	changed chan struct{}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used by the Registry.
func WithRegistryLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		log:     slog.Default(),
		bots:    make(map[string]*Bot),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the Bot registered for accountID, calling build to
// create one when none exists. created reports whether build's result was
// registered. build runs under the registry lock, so anything it attaches
// (such as event subscriptions) is in place before waiters are woken.
func (r *Registry) GetOrCreate(accountID string, build func() *Bot) (b *Bot, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.bots[accountID]; ok {
		return existing, false
	}
	b = build()
	r.bots[accountID] = b
	close(r.changed)
	r.changed = make(chan struct{})
	return b, true
}

// Get returns the Bot registered for accountID.
func (r *Registry) Get(accountID string) (*Bot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[accountID]
	return b, ok
}

// Await blocks until a Bot is registered for accountID or ctx ends.
func (r *Registry) Await(ctx context.Context, accountID string) (*Bot, error) {
	for {
		r.mu.Lock()
		b, ok := r.bots[accountID]
		changed := r.changed
		r.mu.Unlock()
		if ok {
			return b, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Remove unregisters accountID. Later Await calls block until it is created
// again.
func (r *Registry) Remove(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bots, accountID)
}

// Detach unregisters b only if it is still the Bot registered for its
// account, so a rejected duplicate connection cannot evict the winner.
func (r *Registry) Detach(b *Bot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.bots[b.AccountID()]; ok && cur == b {
		delete(r.bots, b.AccountID())
		return true
	}
	return false
}

// List returns the registered Bots ordered by account id.
func (r *Registry) List() []*Bot {
	r.mu.Lock()
	out := make([]*Bot, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, b)
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b *Bot) int { return strings.Compare(a.AccountID(), b.AccountID()) })
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bots)
}

// Close disconnects and unregisters every Bot.
func (r *Registry) Close() {
	r.mu.Lock()
	bots := r.bots
	r.bots = make(map[string]*Bot)
	r.mu.Unlock()
	for id, b := range bots {
		r.log.Debug("bot.registry.close", slog.String("account", id))
		b.Close(ErrNotConnected)
	}
}
