// Package coretest plays a kritor core against a Bot's outbound queue so
// handler and dispatch tests can run without a network stream.
package coretest

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/kritor-gateway/bot"
	"github.com/ggoodman/kritor-gateway/internal/wire"
	"github.com/ggoodman/kritor-gateway/kritor"
)

// HandlerFunc answers one command. A nil response leaves it unanswered.
type HandlerFunc func(req *kritor.CommandRequest) *kritor.CommandResponse

// Core answers commands drained from a Bot. SendMessage is acknowledged
// and recorded by default; other commands get an empty success response
// unless a handler is installed.
type Core struct {
	b        *bot.Bot
	messages chan kritor.SendMessageRequest
	nextID   atomic.Uint64

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	commands []string
}

// Attach starts serving b until it is closed.
func Attach(t testing.TB, b *bot.Bot) *Core {
	t.Helper()
	c := &Core{
		b:        b,
		messages: make(chan kritor.SendMessageRequest, 64),
		handlers: make(map[string]HandlerFunc),
	}
	go c.serve(t)
	return c
}

// Handle installs fn for cmd.
func (c *Core) Handle(cmd string, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[cmd] = fn
}

// Commands returns the names of every command received so far.
func (c *Core) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

func (c *Core) serve(t testing.TB) {
	for {
		select {
		case req := <-c.b.Outbound():
			c.mu.Lock()
			c.commands = append(c.commands, req.Cmd)
			h := c.handlers[req.Cmd]
			c.mu.Unlock()

			var resp *kritor.CommandResponse
			switch {
			case h != nil:
				resp = h(req)
			case req.Cmd == kritor.CmdSendMessage:
				resp = c.ackMessage(t, req)
			default:
				resp = &kritor.CommandResponse{}
			}
			if resp == nil || req.NoResponse {
				continue
			}
			resp.Cmd, resp.Seq = req.Cmd, req.Seq
			c.b.CompleteResponse(context.Background(), resp)
		case <-c.b.Done():
			return
		}
	}
}

func (c *Core) ackMessage(t testing.TB, req *kritor.CommandRequest) *kritor.CommandResponse {
	var body kritor.SendMessageRequest
	if err := wire.Unmarshal(req.Buf, &body); err != nil {
		t.Errorf("coretest: decode SendMessage: %v", err)
		return &kritor.CommandResponse{Msg: kritor.Ptr(err.Error())}
	}
	c.messages <- body
	buf, _ := wire.Marshal(kritor.SendMessageResponse{
		MessageID:   "sent-" + strconv.FormatUint(c.nextID.Add(1), 10),
		MessageTime: uint64(time.Now().Unix()),
	})
	return &kritor.CommandResponse{Buf: buf}
}

// NextMessage waits for the next SendMessage the Bot issued.
func (c *Core) NextMessage(t testing.TB) kritor.SendMessageRequest {
	t.Helper()
	select {
	case m := <-c.messages:
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("coretest: timed out waiting for SendMessage")
		return kritor.SendMessageRequest{}
	}
}

// ExpectNoMessage fails if a SendMessage arrives within d.
func (c *Core) ExpectNoMessage(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case m := <-c.messages:
		t.Fatalf("coretest: unexpected SendMessage: %+v", m)
	case <-time.After(d):
	}
}

// Text returns the concatenated text segments of m.
func Text(m kritor.SendMessageRequest) string {
	var s string
	for _, t := range m.Elements.Texts() {
		s += t
	}
	return s
}
