// Package logctx provides a slog.Handler that decorates records with the
// session and event attributes carried by a context.
package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

// Wrap returns a logger whose handler adds context groups to every record.
func Wrap(log *slog.Logger) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	if _, ok := log.Handler().(Handler); ok {
		return log
	}
	return slog.New(Handler{Handler: log.Handler()})
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("account", sd.AccountID),
			slog.Uint64("uin", sd.UIN),
			slog.String("conn", sd.ConnectionID),
			slog.String("version", sd.Version),
		))
	}

	if ed, ok := ctx.Value(eventDataKey{}).(*EventData); ok {
		attrs := []any{
			slog.String("id", ed.DispatchID),
			slog.String("category", ed.Category),
		}
		if ed.Service != "" {
			attrs = append(attrs, slog.String("service", ed.Service))
		}
		if ed.Transaction != "" {
			attrs = append(attrs, slog.String("transaction", ed.Transaction))
		}
		r.AddAttrs(slog.Group("evt", attrs...))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type sessionDataKey struct{}

type SessionData struct {
	AccountID    string
	UIN          uint64
	ConnectionID string
	Version      string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type eventDataKey struct{}

type EventData struct {
	DispatchID  string
	Category    string
	Service     string
	Transaction string
}

func WithEventData(ctx context.Context, data *EventData) context.Context {
	return context.WithValue(ctx, eventDataKey{}, data)
}

// EventDataFrom returns the event data attached to ctx.
func EventDataFrom(ctx context.Context) (*EventData, bool) {
	ed, ok := ctx.Value(eventDataKey{}).(*EventData)
	return ed, ok
}
