// Package bot models one connected core ("bot") and the process-wide
// directory of them.
//
// A Bot owns the outbound command channel drained by the gateway's reverse
// stream, the correlation table that matches responses to callers, one
// broadcast hub per event category, roster caches, counters and the
// per-conversation transaction locks. All state is reached through methods;
// readers receive snapshots.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/kritor-gateway/internal/broadcast"
	"github.com/ggoodman/kritor-gateway/internal/outbound"
	"github.com/ggoodman/kritor-gateway/internal/wire"
	"github.com/ggoodman/kritor-gateway/kritor"
	"github.com/google/uuid"
)

const (
	// DefaultOutboundCapacity bounds the queue of commands waiting for the
	// reverse stream writer.
	DefaultOutboundCapacity = 4096
	// DefaultTransactionTimeout is used when a transaction is acquired
	// without an explicit timeout.
	DefaultTransactionTimeout = 30 * time.Second
)

// Account identifies the core behind a Bot.
type Account struct {
	UID     string
	UIN     uint64
	Version string
}

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets the logger used by the Bot.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bot) {
		if log != nil {
			b.log = log
		}
	}
}

// WithOutboundCapacity overrides DefaultOutboundCapacity.
func WithOutboundCapacity(n int) Option {
	return func(b *Bot) {
		if n > 0 {
			b.outboundCap = n
		}
	}
}

// WithBroadcastCapacity sets the per-subscriber buffer of the event hubs.
func WithBroadcastCapacity(n int) Option {
	return func(b *Bot) { b.broadcastCap = n }
}

// WithTransactionTimeout overrides DefaultTransactionTimeout. The function
// is consulted on every acquisition so the value may be hot-reloaded.
func WithTransactionTimeout(fn func() time.Duration) Option {
	return func(b *Bot) {
		if fn != nil {
			b.txnTimeout = fn
		}
	}
}

// Bot is a live session with one core.
type Bot struct {
	account      Account
	connectionID string
	startedAt    time.Time
	log          *slog.Logger

	nickname atomic.Pointer[string]

	outboundCap  int
	broadcastCap int
	outbound     chan *kritor.CommandRequest
	done         chan struct{}
	closeOnce    sync.Once
	closeErr     atomic.Pointer[error]

	calls *outbound.Dispatcher
	hubs  map[kritor.EventType]*broadcast.Hub[*kritor.Event]

	roster roster
	txns   transactions

	txnTimeout func() time.Duration

	sent     atomic.Uint64
	received atomic.Uint64
}

// New creates a connected Bot for account.
func New(account Account, opts ...Option) *Bot {
	b := &Bot{
		account:      account,
		connectionID: uuid.NewString(),
		startedAt:    time.Now(),
		log:          slog.Default(),
		outboundCap:  DefaultOutboundCapacity,
		broadcastCap: broadcast.DefaultCapacity,
		done:         make(chan struct{}),
		txnTimeout:   func() time.Duration { return DefaultTransactionTimeout },
	}
	for _, opt := range opts {
		opt(b)
	}
	b.outbound = make(chan *kritor.CommandRequest, b.outboundCap)
	b.calls = outbound.New(transport{b})
	b.hubs = make(map[kritor.EventType]*broadcast.Hub[*kritor.Event], len(kritor.EventTypes))
	for _, t := range kritor.EventTypes {
		b.hubs[t] = broadcast.New[*kritor.Event](b.broadcastCap)
	}
	b.txns.init()
	return b
}

func (b *Bot) AccountID() string    { return b.account.UID }
func (b *Bot) UIN() uint64          { return b.account.UIN }
func (b *Bot) Version() string      { return b.account.Version }
func (b *Bot) ConnectionID() string { return b.connectionID }
func (b *Bot) StartedAt() time.Time { return b.startedAt }
func (b *Bot) Uptime() time.Duration {
	return time.Since(b.startedAt)
}

// Nickname returns the account display name, empty until warm-up fetched it.
func (b *Bot) Nickname() string {
	if p := b.nickname.Load(); p != nil {
		return *p
	}
	return ""
}

func (b *Bot) SetNickname(name string) { b.nickname.Store(&name) }

// Logger returns the Bot's logger.
func (b *Bot) Logger() *slog.Logger { return b.log }

func (b *Bot) IncrementSent()     { b.sent.Add(1) }
func (b *Bot) IncrementReceived() { b.received.Add(1) }
func (b *Bot) Sent() uint64       { return b.sent.Load() }
func (b *Bot) Received() uint64   { return b.received.Load() }

// Pending returns the number of commands awaiting a response.
func (b *Bot) Pending() int { return b.calls.Pending() }

// Outbound is drained by the reverse stream writer. It is never closed; use
// Done to learn when the Bot is gone.
func (b *Bot) Outbound() <-chan *kritor.CommandRequest { return b.outbound }

// Done is closed when the Bot is closed.
func (b *Bot) Done() <-chan struct{} { return b.done }

// Connected reports whether the Bot still has a live command stream.
func (b *Bot) Connected() bool {
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

// Err returns the error the Bot was closed with, or nil while connected.
func (b *Bot) Err() error {
	if p := b.closeErr.Load(); p != nil {
		return *p
	}
	return nil
}

type transport struct{ b *Bot }

func (t transport) SendCommand(ctx context.Context, req *kritor.CommandRequest) error {
	select {
	case <-t.b.done:
		return ErrNotConnected
	default:
	}
	select {
	case t.b.outbound <- req:
		t.b.IncrementSent()
		return nil
	case <-t.b.done:
		return ErrNotConnected
	case <-ctx.Done():
		return fmt.Errorf("%w: enqueue %s: %w", ErrNetwork, req.Cmd, ctx.Err())
	}
}

// SendCommand encodes payload, pushes it to the core and, when
// expectResponse is set, waits for the matching response. A disconnected
// Bot fails immediately with ErrNotConnected without registering a waiter.
// There is no built-in timeout; bound the wait with ctx.
func (b *Bot) SendCommand(ctx context.Context, cmd string, payload any, expectResponse bool) (*kritor.CommandResponse, error) {
	if !b.Connected() {
		return nil, ErrNotConnected
	}

	var buf []byte
	if payload != nil {
		var err error
		buf, err = wire.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encode %s: %w", ErrClient, cmd, err)
		}
	}

	if !expectResponse {
		if err := b.calls.Notify(ctx, cmd, buf); err != nil {
			return nil, b.classify(cmd, err)
		}
		return nil, nil
	}

	resp, err := b.calls.Call(ctx, cmd, buf)
	if err != nil {
		return nil, b.classify(cmd, err)
	}
	if resp.Failed() {
		return resp, fmt.Errorf("%w: %s: %s", ErrRemote, cmd, resp.ErrorMessage())
	}
	return resp, nil
}

func (b *Bot) classify(cmd string, err error) error {
	switch {
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrNetwork):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrNetwork, cmd, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrInternal, cmd, err)
	}
}

// CompleteResponse hands a response from the core to its waiter. Responses
// with unknown tags are logged and discarded.
func (b *Bot) CompleteResponse(ctx context.Context, resp *kritor.CommandResponse) {
	if resp == nil {
		return
	}
	if !b.calls.OnResponse(resp) {
		b.log.WarnContext(ctx, "bot.response.unmatched",
			slog.String("cmd", resp.Cmd),
			slog.Uint64("seq", uint64(resp.Seq)),
		)
	}
}

// Subscribe returns a consumer for category that observes only events
// published after this call.
func (b *Bot) Subscribe(category kritor.EventType) (*broadcast.Subscription[*kritor.Event], error) {
	hub, ok := b.hubs[category]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event category %d", ErrClient, category)
	}
	return hub.Subscribe(), nil
}

// Publish fans ev out to the subscribers of its category. Malformed events
// are rejected.
func (b *Bot) Publish(ev *kritor.Event) error {
	if !ev.Valid() {
		return fmt.Errorf("%w: malformed event", ErrClient)
	}
	b.hubs[ev.Type].Publish(ev)
	return nil
}

// Dropped returns the number of event deliveries skipped because a
// subscriber lagged.
func (b *Bot) Dropped() uint64 {
	var n uint64
	for _, h := range b.hubs {
		n += h.Dropped()
	}
	return n
}

// Close disconnects the Bot. Every pending command resolves with
// ErrNotConnected, event subscriptions end and transaction timers stop.
// Close is idempotent.
func (b *Bot) Close(err error) {
	b.closeOnce.Do(func() {
		if err == nil {
			err = ErrNotConnected
		}
		b.closeErr.Store(&err)
		close(b.done)
		b.calls.Close(ErrNotConnected)
		for _, h := range b.hubs {
			h.Close()
		}
		b.txns.stopAll()
	})
}

// Info is a point-in-time view of a Bot used by the admin surface.
type Info struct {
	AccountID    string        `json:"account_id"`
	UIN          uint64        `json:"uin"`
	Nickname     string        `json:"nickname"`
	Version      string        `json:"version"`
	ConnectionID string        `json:"connection_id"`
	StartedAt    time.Time     `json:"started_at"`
	Uptime       time.Duration `json:"uptime"`
	Sent         uint64        `json:"sent"`
	Received     uint64        `json:"received"`
	Pending      int           `json:"pending"`
	Dropped      uint64        `json:"dropped"`
	Groups       int           `json:"groups"`
	Friends      int           `json:"friends"`
	Transactions int           `json:"transactions"`
}

func (b *Bot) Info() Info {
	groups, friends := b.roster.counts()
	return Info{
		AccountID:    b.account.UID,
		UIN:          b.account.UIN,
		Nickname:     b.Nickname(),
		Version:      b.account.Version,
		ConnectionID: b.connectionID,
		StartedAt:    b.startedAt,
		Uptime:       b.Uptime(),
		Sent:         b.Sent(),
		Received:     b.Received(),
		Pending:      b.Pending(),
		Dropped:      b.Dropped(),
		Groups:       groups,
		Friends:      friends,
		Transactions: b.txns.len(),
	}
}
