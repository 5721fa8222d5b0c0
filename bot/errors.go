package bot

import (
	"context"
	"errors"

	"github.com/ggoodman/kritor-gateway/internal/outbound"
)

var (
	// ErrNotConnected is returned when a session has no live command stream.
	ErrNotConnected = errors.New("bot: not connected")
	// ErrInternal indicates a waiter was dropped without a response.
	ErrInternal = errors.New("bot: internal error")
	// ErrClient indicates misuse by the caller, such as replying to an event
	// that has no conversation.
	ErrClient = errors.New("bot: client error")
	// ErrNetwork indicates the round trip did not complete, for example
	// because the caller's context ended first.
	ErrNetwork = errors.New("bot: network error")
	// ErrRemote indicates the core answered with an error.
	ErrRemote = errors.New("bot: remote error")
)

// Kind classifies errors returned by this package.
type Kind int

const (
	KindNone Kind = iota
	KindNotConnected
	KindInternal
	KindClient
	KindNetwork
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotConnected:
		return "not_connected"
	case KindInternal:
		return "internal"
	case KindClient:
		return "client"
	case KindNetwork:
		return "network"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// KindOf maps err to its Kind. Errors not produced by this package report
// KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, ErrClient):
		return KindClient
	case errors.Is(err, ErrRemote):
		return KindRemote
	case errors.Is(err, ErrNetwork),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, ErrInternal), errors.Is(err, outbound.ErrDispatcherClosed):
		return KindInternal
	default:
		return KindInternal
	}
}
