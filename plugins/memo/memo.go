// Package memo remembers short notes per account:
//
//	!remember <key> <text>   store a note
//	!recall <key>            read it back
//	!recall                  list stored keys
//	!forget <key>            delete it (owners only)
package memo

import (
	"context"
	"strings"

	"github.com/ggoodman/kritor-gateway/kritor"
	"github.com/ggoodman/kritor-gateway/service"
)

const Name = "memo"

type Handler struct{}

type command struct {
	verb string
	key  string
	text string
}

func parse(s string) (command, bool) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(s), " ")
	switch verb {
	case "!remember", "!recall", "!forget":
	default:
		return command{}, false
	}
	key, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
	return command{verb: verb, key: key, text: strings.TrimSpace(text)}, true
}

func (Handler) Match(c *service.Context) bool {
	_, ok := parse(c.Text())
	return ok
}

func (Handler) Process(ctx context.Context, c *service.Context) error {
	cmd, _ := parse(c.Text())
	store := c.Store()

	switch cmd.verb {
	case "!remember":
		if cmd.key == "" || cmd.text == "" {
			return reply(ctx, c, "usage: !remember <key> <text>")
		}
		if err := store.Set(ctx, cmd.key, []byte(cmd.text), 0); err != nil {
			return err
		}
		return reply(ctx, c, "remembered "+cmd.key)

	case "!recall":
		if cmd.key == "" {
			keys, err := store.Keys(ctx)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				return reply(ctx, c, "nothing remembered yet")
			}
			return reply(ctx, c, strings.Join(keys, ", "))
		}
		v, ok, err := store.Get(ctx, cmd.key)
		if err != nil {
			return err
		}
		if !ok {
			return reply(ctx, c, "no memo named "+cmd.key)
		}
		return reply(ctx, c, string(v))

	case "!forget":
		if !c.IsOwner() {
			return reply(ctx, c, "only owners can forget memos")
		}
		if err := store.Delete(ctx, cmd.key); err != nil {
			return err
		}
		return reply(ctx, c, "forgot "+cmd.key)
	}
	return nil
}

func reply(ctx context.Context, c *service.Context, text string) error {
	_, err := c.ReplyWithQuote(ctx, kritor.Text(text))
	return err
}

// Register adds the memo service to r.
func Register(r *service.Registry) error {
	return r.Register(Name, []kritor.EventType{kritor.EventMessage}, Handler{})
}
