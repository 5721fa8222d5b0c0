package echo_test

import (
	"context"
	"testing"
	"time"

	"github.com/ggoodman/kritor-gateway/bot"
	"github.com/ggoodman/kritor-gateway/internal/coretest"
	"github.com/ggoodman/kritor-gateway/kritor"
	"github.com/ggoodman/kritor-gateway/plugins/echo"
	"github.com/ggoodman/kritor-gateway/service"
)

func TestEcho(t *testing.T) {
	b := bot.New(bot.Account{UID: "self"})
	defer b.Close(nil)
	core := coretest.Attach(t, b)

	ev := kritor.MessageEvent(&kritor.PushMessageBody{
		Contact:  kritor.Contact{Scene: kritor.SceneFriend, Peer: "u1"},
		Sender:   kritor.Sender{UID: "u1"},
		Elements: kritor.Elements{kritor.Text(" !ping ")},
	})
	c := service.NewContext(ev, b, nil).ForService(echo.Name)

	var h echo.Handler
	if !h.Match(c) {
		t.Fatalf("expected !ping to match")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Process(ctx, c); err != nil {
		t.Fatalf("Process: %v", err)
	}
	m := core.NextMessage(t)
	if coretest.Text(m) != "pong" || m.Contact.Peer != "u1" {
		t.Fatalf("unexpected reply: %+v", m)
	}

	other := service.NewContext(kritor.MessageEvent(&kritor.PushMessageBody{
		Elements: kritor.Elements{kritor.Text("!pingpong")},
	}), b, nil)
	if h.Match(other) {
		t.Fatalf("expected only an exact !ping to match")
	}
}
