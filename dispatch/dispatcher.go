// Package dispatch drains a Bot's event hubs and fans every event out to the
// registered services. Each handler invocation runs in its own goroutine;
// a panic or error in one never affects the others.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/ggoodman/kritor-gateway/bot"
	"github.com/ggoodman/kritor-gateway/internal/logctx"
	"github.com/ggoodman/kritor-gateway/kritor"
	"github.com/ggoodman/kritor-gateway/metrics"
	"github.com/ggoodman/kritor-gateway/service"
	"github.com/google/uuid"
)

// Dispatcher routes events from Bots to services. One Dispatcher serves
// every Bot in the process.
type Dispatcher struct {
	services *service.Registry
	env      *service.Env
	log      *slog.Logger
	metrics  *metrics.Metrics

	tasks sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for dispatch and handler diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithMetrics records handler outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithEnv sets the environment exposed to handlers through their Context.
func WithEnv(env *service.Env) Option {
	return func(d *Dispatcher) {
		if env != nil {
			d.env = env
		}
	}
}

func New(services *service.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		services: services,
		env:      &service.Env{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.env.Logger == nil {
		d.env.Logger = d.log
	}
	return d
}

// Attach subscribes to every event category of b before returning, then
// drains each category on its own goroutine until b is closed or ctx ends.
// Events published after Attach returns are never missed.
func (d *Dispatcher) Attach(ctx context.Context, b *bot.Bot) error {
	for _, category := range kritor.EventTypes {
		sub, err := b.Subscribe(category)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", category, err)
		}
		go func() {
			defer sub.Close()
			for {
				ev, err := sub.Next(ctx)
				if err != nil {
					if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
						d.log.WarnContext(ctx, "dispatch.loop.err",
							slog.String("category", category.String()),
							slog.String("err", err.Error()),
						)
					}
					d.log.DebugContext(ctx, "dispatch.loop.stopped", slog.String("category", category.String()))
					return
				}
				d.Dispatch(ctx, b, ev)
			}
		}()
	}
	return nil
}

// Dispatch routes one event. A message in a conversation locked by a
// registered service goes exclusively to that service's Transaction;
// everything else goes to every handler whose Match accepts it. Dispatch
// returns once the handler goroutines are spawned.
func (d *Dispatcher) Dispatch(ctx context.Context, b *bot.Bot, ev *kritor.Event) {
	if !ev.Valid() {
		d.log.WarnContext(ctx, "dispatch.event.malformed", slog.Int("type", int(ev.Type)))
		return
	}

	ctx = logctx.WithEventData(ctx, &logctx.EventData{
		DispatchID: uuid.NewString(),
		Category:   ev.Type.String(),
	})
	regs := d.services.HandlersFor(ev.Type)

	if ev.Type == kritor.EventMessage {
		d.log.InfoContext(ctx, "dispatch.message", slog.String("line", MessageLine(b, ev.Message)))

		if owner, reg, ok := d.transactionOwner(b, ev, regs); ok {
			d.spawnTransaction(ctx, reg, owner.WithEvent(ev))
			return
		}
	}

	root := service.NewContext(ev, b, d.env)
	for _, reg := range regs {
		d.spawn(ctx, reg, root.ForService(reg.Name))
	}
}

// transactionOwner finds the lock covering ev and the registration of the
// service that owns it. A lock whose owner is no longer registered is
// ignored and the event takes the normal path.
func (d *Dispatcher) transactionOwner(b *bot.Bot, ev *kritor.Event, regs []service.Registration) (*service.Context, service.Registration, bool) {
	conv, ok := kritor.ConversationOf(ev)
	if !ok {
		return nil, service.Registration{}, false
	}
	txn, ok := b.FindTransaction(conv)
	if !ok {
		return nil, service.Registration{}, false
	}
	owner, ok := txn.Owner.(*service.Context)
	if !ok {
		return nil, service.Registration{}, false
	}
	for _, reg := range regs {
		if reg.Name == owner.ServiceName() {
			return owner, reg, true
		}
	}
	return nil, service.Registration{}, false
}

func (d *Dispatcher) spawn(ctx context.Context, reg service.Registration, c *service.Context) {
	ctx = withService(ctx, reg.Name, "")
	d.tasks.Add(1)
	go func() {
		defer d.tasks.Done()
		d.run(ctx, reg.Name, c, func() (bool, error) {
			if !reg.Handler.Match(c) {
				return false, nil
			}
			return true, reg.Handler.Process(ctx, c)
		})
	}()
}

func (d *Dispatcher) spawnTransaction(ctx context.Context, reg service.Registration, c *service.Context) {
	ctx = withService(ctx, reg.Name, c.TransactionName())
	d.metrics.TransactionRouted(reg.Name)
	d.tasks.Add(1)
	go func() {
		defer d.tasks.Done()
		d.run(ctx, reg.Name, c, func() (bool, error) {
			err := reg.Transaction(ctx, c)
			if errors.Is(err, service.ErrNoTransaction) {
				d.log.WarnContext(ctx, "dispatch.transaction.unhandled")
				return true, nil
			}
			return true, err
		})
	}()
}

// run executes fn, isolating panics and recording the outcome.
func (d *Dispatcher) run(ctx context.Context, name string, c *service.Context, fn func() (ran bool, err error)) {
	start := time.Now()
	category := c.Event().Type.String()
	defer func() {
		if r := recover(); r != nil {
			d.metrics.HandlerRun(name, category, metrics.StatusPanic, time.Since(start))
			d.log.ErrorContext(ctx, "dispatch.handler.panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	ran, err := fn()
	if !ran {
		return
	}
	dur := time.Since(start)
	if err != nil {
		d.metrics.HandlerRun(name, category, metrics.StatusError, dur)
		d.log.ErrorContext(ctx, "dispatch.handler.fail",
			slog.String("err", err.Error()),
			slog.String("kind", bot.KindOf(err).String()),
			slog.Int64("dur_ms", dur.Milliseconds()),
		)
		return
	}
	d.metrics.HandlerRun(name, category, metrics.StatusOK, dur)
	d.log.DebugContext(ctx, "dispatch.handler.ok", slog.Int64("dur_ms", dur.Milliseconds()))
}

// withService annotates the log context with the handling service.
func withService(ctx context.Context, name, transaction string) context.Context {
	var ed logctx.EventData
	if cur, ok := logctx.EventDataFrom(ctx); ok {
		ed = *cur
	}
	ed.Service = name
	ed.Transaction = transaction
	return logctx.WithEventData(ctx, &ed)
}

// Wait blocks until every spawned handler has returned.
func (d *Dispatcher) Wait() { d.tasks.Wait() }

// MessageLine renders the per-message log line, resolving group and friend
// names from the Bot's rosters when they are populated.
func MessageLine(b *bot.Bot, m *kritor.PushMessageBody) string {
	content := m.Elements.RawText()
	who := m.Sender.DisplayID()

	switch m.Contact.Scene {
	case kritor.SceneGroup:
		groupID, _ := strconv.ParseUint(m.Contact.Peer, 10, 64)
		g, ok := b.Group(groupID)
		if !ok {
			return fmt.Sprintf("[Group: (%s)] (%s): %s", m.Contact.Peer, who, content)
		}
		nick := ""
		if mem, ok := b.GroupMember(groupID, m.Sender.UID); ok {
			nick = mem.Card
			if nick == "" {
				nick = mem.Nick
			}
		} else if m.Sender.Nick != nil {
			nick = *m.Sender.Nick
		}
		return fmt.Sprintf("[Group: %s(%s)] %s(%s): %s", g.GroupName, m.Contact.Peer, nick, who, content)
	case kritor.SceneFriend:
		if f, ok := b.Friend(m.Sender.UID); ok {
			return fmt.Sprintf("[Private: %s(%s)]: %s", f.Nick, who, content)
		}
		return fmt.Sprintf("[Private: (%s)]: %s", who, content)
	default:
		return fmt.Sprintf("[%s: (%s)] (%s): %s", m.Contact.Scene, m.Contact.Peer, who, content)
	}
}
