// Package echo answers "!ping" with "pong". It is the smallest useful
// service and doubles as a liveness check for a connected core.
package echo

import (
	"context"

	"github.com/ggoodman/kritor-gateway/kritor"
	"github.com/ggoodman/kritor-gateway/service"
)

const Name = "echo"

type Handler struct{}

func (Handler) Match(c *service.Context) bool {
	return c.Text() == "!ping"
}

func (Handler) Process(ctx context.Context, c *service.Context) error {
	_, err := c.ReplyText(ctx, "pong")
	return err
}

// Register adds the echo service to r.
func Register(r *service.Registry) error {
	return r.Register(Name, []kritor.EventType{kritor.EventMessage}, Handler{})
}
