// Package repeat demonstrates conversation transactions: "!repeat" asks the
// sender for some text, and the sender's next message in that conversation
// is echoed back.
package repeat

import (
	"context"
	"slices"

	"github.com/ggoodman/kritor-gateway/kritor"
	"github.com/ggoodman/kritor-gateway/service"
)

const (
	Name        = "repeat"
	Trigger     = "!repeat"
	Prompt      = "please input something"
	transaction = "repeat"
)

type Handler struct{}

func (Handler) Match(c *service.Context) bool {
	m, ok := c.Message()
	if !ok {
		return false
	}
	return slices.Contains(m.Elements.Texts(), Trigger)
}

func (Handler) Process(ctx context.Context, c *service.Context) error {
	if _, err := c.ReplyWithQuote(ctx, kritor.Text(Prompt)); err != nil {
		return err
	}
	return c.StartTransaction(transaction, 0)
}

func (Handler) Transaction(ctx context.Context, c *service.Context) error {
	if c.TransactionName() != transaction {
		return nil
	}
	m, ok := c.Message()
	if !ok {
		return nil
	}
	texts := m.Elements.Texts()
	if len(texts) == 0 {
		// wait for a message with text; the lock expires on its own
		return nil
	}
	if _, err := c.Reply(ctx, kritor.Text(texts[0])); err != nil {
		return err
	}
	return c.StopTransaction()
}

// Register adds the repeat service to r.
func Register(r *service.Registry) error {
	return r.Register(Name, []kritor.EventType{kritor.EventMessage}, Handler{})
}
