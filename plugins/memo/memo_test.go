package memo_test

import (
	"context"
	"testing"
	"time"

	"github.com/ggoodman/kritor-gateway/bot"
	"github.com/ggoodman/kritor-gateway/internal/coretest"
	"github.com/ggoodman/kritor-gateway/kritor"
	"github.com/ggoodman/kritor-gateway/plugins/memo"
	"github.com/ggoodman/kritor-gateway/service"
	"github.com/ggoodman/kritor-gateway/storage/memory"
)

type fixture struct {
	b    *bot.Bot
	core *coretest.Core
	env  *service.Env
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := memory.New(100)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	b := bot.New(bot.Account{UID: "self"})
	t.Cleanup(func() { b.Close(nil) })
	return &fixture{
		b:    b,
		core: coretest.Attach(t, b),
		env: &service.Env{
			Storage: st,
			Owners:  func() []string { return []string{"7"} },
		},
	}
}

// say runs text from sender uin through the memo handler and returns the reply.
func (f *fixture) say(t *testing.T, uin uint64, text string) string {
	t.Helper()
	ev := kritor.MessageEvent(&kritor.PushMessageBody{
		MessageID: "m",
		Contact:   kritor.Contact{Scene: kritor.SceneGroup, Peer: "1"},
		Sender:    kritor.Sender{UID: "u", UIN: kritor.Ptr(uin)},
		Elements:  kritor.Elements{kritor.Text(text)},
	})
	c := service.NewContext(ev, f.b, f.env).ForService(memo.Name)
	var h memo.Handler
	if !h.Match(c) {
		t.Fatalf("%q did not match", text)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Process(ctx, c); err != nil {
		t.Fatalf("Process(%q): %v", text, err)
	}
	return coretest.Text(f.core.NextMessage(t))
}

func TestMemo(t *testing.T) {
	f := newFixture(t)

	if got := f.say(t, 1, "!recall"); got != "nothing remembered yet" {
		t.Fatalf("unexpected empty recall: %q", got)
	}
	if got := f.say(t, 1, "!remember milk buy two litres"); got != "remembered milk" {
		t.Fatalf("unexpected remember reply: %q", got)
	}
	if got := f.say(t, 1, "!recall milk"); got != "buy two litres" {
		t.Fatalf("unexpected recall: %q", got)
	}
	if got := f.say(t, 1, "!recall"); got != "milk" {
		t.Fatalf("unexpected key list: %q", got)
	}
	if got := f.say(t, 1, "!remember nope"); got != "usage: !remember <key> <text>" {
		t.Fatalf("unexpected usage reply: %q", got)
	}

	if got := f.say(t, 1, "!forget milk"); got != "only owners can forget memos" {
		t.Fatalf("expected non-owner to be refused, got %q", got)
	}
	if got := f.say(t, 7, "!forget milk"); got != "forgot milk" {
		t.Fatalf("unexpected forget reply: %q", got)
	}
	if got := f.say(t, 1, "!recall milk"); got != "no memo named milk" {
		t.Fatalf("expected memo to be gone, got %q", got)
	}
}

func TestMemo_IgnoresOtherText(t *testing.T) {
	f := newFixture(t)
	c := service.NewContext(kritor.MessageEvent(&kritor.PushMessageBody{
		Elements: kritor.Elements{kritor.Text("remember this")},
	}), f.b, f.env)
	var h memo.Handler
	if h.Match(c) {
		t.Fatalf("expected plain text not to match")
	}
}
