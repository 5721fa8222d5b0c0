package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/ggoodman/kritor-gateway/bot"
	"github.com/ggoodman/kritor-gateway/kritor"
	"github.com/ggoodman/kritor-gateway/storage"
)

// Env carries the process-wide dependencies every Context exposes to
// handlers.
type Env struct {
	// Storage backs the plugin key-value stores. May be nil.
	Storage storage.Storage
	// Owners returns the configured owner ids (uids or decimal uins). It is
	// consulted on every call so the list may be hot-reloaded.
	Owners func() []string
	Logger *slog.Logger
}

// Context is what a handler sees for one event: the event, the Bot it
// arrived on, and the name of the service currently handling it. Each
// handler invocation gets its own Context; a copy captured by
// StartTransaction is frozen and never mutated afterwards.
type Context struct {
	event *kritor.Event
	bot   *bot.Bot
	env   *Env

	service     string
	transaction string
	frozen      bool
}

// NewContext builds the root Context for ev. env may be nil.
func NewContext(ev *kritor.Event, b *bot.Bot, env *Env) *Context {
	if env == nil {
		env = &Env{}
	}
	return &Context{event: ev, bot: b, env: env}
}

func (c *Context) Event() *kritor.Event { return c.event }
func (c *Context) Bot() *bot.Bot        { return c.bot }

// Message returns the message payload for Message events.
func (c *Context) Message() (*kritor.PushMessageBody, bool) {
	if c.event == nil || c.event.Type != kritor.EventMessage || c.event.Message == nil {
		return nil, false
	}
	return c.event.Message, true
}

// Text returns the first text segment of a Message event, trimmed.
func (c *Context) Text() string {
	m, ok := c.Message()
	if !ok {
		return ""
	}
	s, _ := m.Elements.FirstText()
	return s
}

// ServiceName is the name of the service handling the event. It implements
// bot.Owner so a frozen Context can own a transaction.
func (c *Context) ServiceName() string { return c.service }

// TransactionName is the name given to StartTransaction, or empty.
func (c *Context) TransactionName() string { return c.transaction }

// Frozen reports whether c was captured by a transaction lock.
func (c *Context) Frozen() bool { return c.frozen }

// Logger returns the environment logger.
func (c *Context) Logger() *slog.Logger {
	if c.env.Logger != nil {
		return c.env.Logger
	}
	return slog.Default()
}

// Clone returns an unfrozen copy of c.
func (c *Context) Clone() *Context {
	cp := *c
	cp.frozen = false
	return &cp
}

// ForService returns a copy of c bound to the named service.
func (c *Context) ForService(name string) *Context {
	cp := c.Clone()
	cp.service = name
	return cp
}

// WithEvent returns an unfrozen copy of c carrying ev. The service and
// transaction names are kept; this is how a locked conversation's owner
// sees the next message.
func (c *Context) WithEvent(ev *kritor.Event) *Context {
	cp := c.Clone()
	cp.event = ev
	return cp
}

func (c *Context) freeze() *Context {
	cp := *c
	cp.frozen = true
	return &cp
}

// Conversation returns where replies to the event are routed.
func (c *Context) Conversation() (kritor.Conversation, bool) {
	return kritor.ConversationOf(c.event)
}

// IsOwner reports whether the event's sender is one of the configured
// owners, matched by uid or by decimal uin.
func (c *Context) IsOwner() bool {
	if c.env.Owners == nil {
		return false
	}
	conv, ok := c.Conversation()
	if !ok {
		return false
	}
	owners := c.env.Owners()
	if conv.Sender.UID != "" && slices.Contains(owners, conv.Sender.UID) {
		return true
	}
	if conv.Sender.UIN != nil && *conv.Sender.UIN != 0 {
		return slices.Contains(owners, strconv.FormatUint(*conv.Sender.UIN, 10))
	}
	return false
}

func (c *Context) replyTarget() (kritor.Conversation, error) {
	if c.event != nil && c.event.Type == kritor.EventRequest {
		return kritor.Conversation{}, fmt.Errorf("%w: cannot reply to a request event", bot.ErrClient)
	}
	conv, ok := c.Conversation()
	if !ok {
		return kritor.Conversation{}, fmt.Errorf("%w: event has no conversation", bot.ErrClient)
	}
	return conv, nil
}

// Reply sends elements to the event's conversation. Request events cannot
// be replied to.
func (c *Context) Reply(ctx context.Context, elements ...kritor.Element) (*kritor.SendMessageResponse, error) {
	conv, err := c.replyTarget()
	if err != nil {
		return nil, err
	}
	return c.bot.SendMessage(ctx, conv.Contact, elements)
}

// ReplyText is Reply with a single text element.
func (c *Context) ReplyText(ctx context.Context, text string) (*kritor.SendMessageResponse, error) {
	return c.Reply(ctx, kritor.Text(text))
}

// ReplyWithQuote is Reply with a quote of the triggering message prepended
// for Message events.
func (c *Context) ReplyWithQuote(ctx context.Context, elements ...kritor.Element) (*kritor.SendMessageResponse, error) {
	if m, ok := c.Message(); ok {
		elements = append([]kritor.Element{kritor.Reply(m.MessageID)}, elements...)
	}
	return c.Reply(ctx, elements...)
}

// StartTransaction routes every further message of this conversation to the
// current service's Transaction until StopTransaction or timeout. A
// non-positive timeout selects the configured default. Only Message events
// can start a transaction.
func (c *Context) StartTransaction(name string, timeout time.Duration) error {
	if _, ok := c.Message(); !ok {
		return fmt.Errorf("%w: transactions require a message event", bot.ErrClient)
	}
	if c.service == "" {
		return fmt.Errorf("%w: no service bound to context", bot.ErrClient)
	}
	conv, _ := c.Conversation()
	c.transaction = name
	c.bot.AcquireTransaction(c.freeze(), conv, timeout)
	return nil
}

// StopTransaction releases this conversation. Stopping twice is a no-op.
func (c *Context) StopTransaction() error {
	if _, ok := c.Message(); !ok {
		return fmt.Errorf("%w: transactions require a message event", bot.ErrClient)
	}
	conv, _ := c.Conversation()
	c.bot.ReleaseTransaction(conv)
	c.transaction = ""
	return nil
}

// Store returns the key-value store scoped to the current service within
// this account.
func (c *Context) Store() *KV {
	return &KV{s: c.env.Storage, opts: []storage.Option{storage.WithAccountPlugin(c.bot.AccountID(), c.service)}}
}

// SharedStore returns the key-value store scoped to the current service
// across all accounts.
func (c *Context) SharedStore() *KV {
	return &KV{s: c.env.Storage, opts: []storage.Option{storage.WithPlugin(c.service)}}
}

// AccountStore returns the key-value store shared by every service of this
// account.
func (c *Context) AccountStore() *KV {
	return &KV{s: c.env.Storage, opts: []storage.Option{storage.WithAccount(c.bot.AccountID())}}
}

var _ bot.Owner = (*Context)(nil)
