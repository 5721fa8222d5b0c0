// Package service holds the plugin surface: the Handler contract, the
// registry of named handlers per event category, and the Context handed to
// every invocation.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ggoodman/kritor-gateway/kritor"
)

var (
	// ErrNoTransaction is returned by handlers that do not continue
	// transactions. The dispatcher logs a warning and drops the event.
	ErrNoTransaction = errors.New("service: handler does not handle transactions")
	// ErrInvalidRegistration is returned for registrations without a name,
	// a handler or a valid category.
	ErrInvalidRegistration = errors.New("service: invalid registration")
)

// Handler reacts to events. Match must be cheap and side-effect free; it is
// called for every event of the handler's categories. Process runs in its
// own goroutine for every event Match accepted.
type Handler interface {
	Match(c *Context) bool
	Process(ctx context.Context, c *Context) error
}

// Transactor is implemented by handlers that own conversations through
// StartTransaction. Transaction receives every message of a locked
// conversation instead of the normal fan-out.
type Transactor interface {
	Transaction(ctx context.Context, c *Context) error
}

// HandlerFuncs adapts plain functions to Handler and Transactor. A nil
// MatchFunc matches every event; a nil TransactionFunc reports
// ErrNoTransaction.
type HandlerFuncs struct {
	MatchFunc       func(c *Context) bool
	ProcessFunc     func(ctx context.Context, c *Context) error
	TransactionFunc func(ctx context.Context, c *Context) error
}

func (h HandlerFuncs) Match(c *Context) bool {
	if h.MatchFunc == nil {
		return true
	}
	return h.MatchFunc(c)
}

func (h HandlerFuncs) Process(ctx context.Context, c *Context) error {
	if h.ProcessFunc == nil {
		return nil
	}
	return h.ProcessFunc(ctx, c)
}

func (h HandlerFuncs) Transaction(ctx context.Context, c *Context) error {
	if h.TransactionFunc == nil {
		return ErrNoTransaction
	}
	return h.TransactionFunc(ctx, c)
}

// Registration is one named handler bound to a set of categories.
type Registration struct {
	Name       string
	Categories []kritor.EventType
	Handler    Handler
}

// Transaction continues a locked conversation through the handler's
// Transactor, or reports ErrNoTransaction when it has none.
func (r Registration) Transaction(ctx context.Context, c *Context) error {
	if t, ok := r.Handler.(Transactor); ok {
		return t.Transaction(ctx, c)
	}
	return ErrNoTransaction
}

// Registry maps event categories to named handlers. It is safe to register
// at any time, including while events are being dispatched; dispatch works
// on snapshots.
type Registry struct {
	mu         sync.RWMutex
	byCategory map[kritor.EventType]map[string]Registration
}

func NewRegistry() *Registry {
	return &Registry{byCategory: make(map[kritor.EventType]map[string]Registration)}
}

// Register binds h under name to every category in categories. Registering
// an existing name replaces the previous registration in all categories.
func (r *Registry) Register(name string, categories []kritor.EventType, h Handler) error {
	if name == "" || h == nil || len(categories) == 0 {
		return ErrInvalidRegistration
	}
	for _, c := range categories {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown category %d", ErrInvalidRegistration, c)
		}
	}
	reg := Registration{Name: name, Categories: slices.Clone(categories), Handler: h}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(name)
	for _, c := range categories {
		m, ok := r.byCategory[c]
		if !ok {
			m = make(map[string]Registration)
			r.byCategory[c] = m
		}
		m[name] = reg
	}
	return nil
}

// Unregister removes name from every category.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(name)
}

func (r *Registry) removeLocked(name string) bool {
	removed := false
	for _, m := range r.byCategory {
		if _, ok := m[name]; ok {
			delete(m, name)
			removed = true
		}
	}
	return removed
}

// HandlersFor returns a snapshot of the registrations for category, ordered
// by name.
func (r *Registry) HandlersFor(category kritor.EventType) []Registration {
	r.mu.RLock()
	m := r.byCategory[category]
	out := make([]Registration, 0, len(m))
	for _, reg := range m {
		out = append(out, reg)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Registration) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	seen := make(map[string]struct{})
	for _, m := range r.byCategory {
		for name := range m {
			seen[name] = struct{}{}
		}
	}
	r.mu.RUnlock()
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
