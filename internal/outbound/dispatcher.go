package outbound

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/kritor-gateway/kritor"
)

// Transport abstracts how command envelopes reach the core. The dispatcher
// registers the waiter before calling SendCommand so a fast response is
// never missed.
type Transport interface {
	SendCommand(ctx context.Context, req *kritor.CommandRequest) error
}

var (
	// ErrDispatcherClosed indicates the dispatcher is closed.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

type pendingCall struct {
	cmd    string
	respCh chan *kritor.CommandResponse
	errCh  chan error
}

// Dispatcher correlates command requests with their responses by tag over a
// single duplex stream. Every waiter is removed from the table exactly once:
// by its response, by its caller's cancellation, or by Close.
type Dispatcher struct {
	t Transport

	mu      sync.Mutex
	pending map[uint32]*pendingCall

	nextTag atomic.Uint32

	closed   atomic.Bool
	closeErr error
}

// New constructs a Dispatcher using the provided transport. Tags start at a
// random offset so a reconnecting core does not see recycled tags.
func New(t Transport) *Dispatcher {
	d := &Dispatcher{t: t, pending: make(map[uint32]*pendingCall)}
	d.nextTag.Store(rand.Uint32())
	return d
}

func (d *Dispatcher) err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closeErr != nil {
		return d.closeErr
	}
	return ErrDispatcherClosed
}

// Call sends a command and waits for its response or context cancellation.
// There is no built-in deadline; callers bound the wait through ctx.
func (d *Dispatcher) Call(ctx context.Context, cmd string, buf []byte) (*kritor.CommandResponse, error) {
	if d.closed.Load() {
		return nil, d.err()
	}

	pc := &pendingCall{cmd: cmd, respCh: make(chan *kritor.CommandResponse, 1), errCh: make(chan error, 1)}

	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		return nil, d.err()
	}
	tag := d.allocateLocked()
	d.pending[tag] = pc
	d.mu.Unlock()

	req := &kritor.CommandRequest{Cmd: cmd, Seq: tag, Buf: buf}
	if err := d.t.SendCommand(ctx, req); err != nil {
		d.evict(tag)
		return nil, err
	}

	select {
	case resp := <-pc.respCh:
		return resp, nil
	case err := <-pc.errCh:
		if err != nil {
			return nil, err
		}
		return nil, ErrDispatcherClosed
	case <-ctx.Done():
		d.evict(tag)
		return nil, ctx.Err()
	}
}

// Notify sends a command the core will not answer. No waiter is registered
// but the tag is still unique among those in flight.
func (d *Dispatcher) Notify(ctx context.Context, cmd string, buf []byte) error {
	if d.closed.Load() {
		return d.err()
	}
	d.mu.Lock()
	tag := d.allocateLocked()
	d.mu.Unlock()
	return d.t.SendCommand(ctx, &kritor.CommandRequest{Cmd: cmd, Seq: tag, Buf: buf, NoResponse: true})
}

// allocateLocked returns the next tag not currently awaiting a response.
// d.mu must be held.
func (d *Dispatcher) allocateLocked() uint32 {
	for {
		tag := d.nextTag.Add(1)
		if _, busy := d.pending[tag]; !busy {
			return tag
		}
	}
}

func (d *Dispatcher) evict(tag uint32) {
	d.mu.Lock()
	delete(d.pending, tag)
	d.mu.Unlock()
}

// OnResponse delivers an incoming response to its waiter. It reports false
// for responses whose tag is unknown (already resolved, cancelled, or never
// issued); those are discarded.
func (d *Dispatcher) OnResponse(resp *kritor.CommandResponse) bool {
	if resp == nil {
		return false
	}
	d.mu.Lock()
	pc, ok := d.pending[resp.Seq]
	if ok {
		delete(d.pending, resp.Seq)
	}
	d.mu.Unlock()
	if ok {
		pc.respCh <- resp
	}
	return ok
}

// Pending returns the number of waiters currently in the table.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close resolves all pending calls with the provided error and prevents new
// calls.
func (d *Dispatcher) Close(err error) {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	if err == nil {
		err = ErrDispatcherClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeErr = err
	for tag, pc := range d.pending {
		delete(d.pending, tag)
		pc.errCh <- err
	}
}
