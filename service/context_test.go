package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/kritor-gateway/bot"
	"github.com/ggoodman/kritor-gateway/internal/wire"
	"github.com/ggoodman/kritor-gateway/kritor"
	"github.com/ggoodman/kritor-gateway/storage/memory"
)

// answerAll plays a core that acknowledges every SendMessage and records it.
func answerAll(t *testing.T, b *bot.Bot) <-chan kritor.SendMessageRequest {
	t.Helper()
	sent := make(chan kritor.SendMessageRequest, 16)
	go func() {
		for {
			select {
			case req := <-b.Outbound():
				var body kritor.SendMessageRequest
				_ = wire.Unmarshal(req.Buf, &body)
				sent <- body
				buf, _ := wire.Marshal(kritor.SendMessageResponse{MessageID: "out"})
				b.CompleteResponse(context.Background(), &kritor.CommandResponse{Cmd: req.Cmd, Seq: req.Seq, Buf: buf})
			case <-b.Done():
				return
			}
		}
	}()
	return sent
}

func groupMessage(text string) *kritor.Event {
	return kritor.MessageEvent(&kritor.PushMessageBody{
		MessageID: "m1",
		Contact:   kritor.Contact{Scene: kritor.SceneGroup, Peer: "100"},
		Sender:    kritor.Sender{UID: "alice", UIN: kritor.Ptr[uint64](42)},
		Elements:  kritor.Elements{kritor.Text(text)},
	})
}

func TestContext_ReplyWithQuote(t *testing.T) {
	b := bot.New(bot.Account{UID: "self"})
	defer b.Close(nil)
	sent := answerAll(t, b)

	c := NewContext(groupMessage("hi"), b, nil).ForService("echo")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.ReplyWithQuote(ctx, kritor.Text("there")); err != nil {
		t.Fatalf("ReplyWithQuote: %v", err)
	}
	body := <-sent
	if body.Contact.Peer != "100" || len(body.Elements) != 2 {
		t.Fatalf("unexpected request: %+v", body)
	}
	if r, ok := body.Elements.ReplyTo(); !ok || r.MessageID != "m1" {
		t.Fatalf("expected quote of m1")
	}
}

func TestContext_ReplyToRequestIsClientError(t *testing.T) {
	b := bot.New(bot.Account{UID: "self"})
	defer b.Close(nil)

	ev := kritor.RequestOf(&kritor.RequestEvent{Type: kritor.RequestFriendApply, FriendApply: &kritor.FriendApplyRequest{ApplierUID: "x"}})
	c := NewContext(ev, b, nil)
	_, err := c.ReplyText(context.Background(), "no")
	if !errors.Is(err, bot.ErrClient) {
		t.Fatalf("expected client error, got %v", err)
	}
	if b.Sent() != 0 {
		t.Fatalf("expected nothing to be sent")
	}
}

func TestContext_ReplyToNoticeUsesConversation(t *testing.T) {
	b := bot.New(bot.Account{UID: "self"})
	defer b.Close(nil)
	sent := answerAll(t, b)

	ev := kritor.NoticeOf(&kritor.NoticeEvent{Type: kritor.NoticeGroupPoke, GroupPoke: &kritor.GroupPokeNotice{GroupID: 5, OperatorUID: "op"}})
	c := NewContext(ev, b, nil)
	if _, err := c.ReplyText(context.Background(), "ouch"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if body := <-sent; body.Contact.Scene != kritor.SceneGroup || body.Contact.Peer != "5" {
		t.Fatalf("unexpected contact: %+v", body.Contact)
	}
}

func TestContext_IsOwner(t *testing.T) {
	b := bot.New(bot.Account{UID: "self"})
	defer b.Close(nil)

	owners := []string{"42"}
	env := &Env{Owners: func() []string { return owners }}
	c := NewContext(groupMessage("x"), b, env)
	if !c.IsOwner() {
		t.Fatalf("expected uin match")
	}
	owners = []string{"alice"}
	if !c.IsOwner() {
		t.Fatalf("expected uid match")
	}
	owners = []string{"bob"}
	if c.IsOwner() {
		t.Fatalf("expected no match")
	}
	if NewContext(groupMessage("x"), b, nil).IsOwner() {
		t.Fatalf("expected no owners without configuration")
	}
}

func TestContext_Transactions(t *testing.T) {
	b := bot.New(bot.Account{UID: "self"})
	defer b.Close(nil)

	c := NewContext(groupMessage("!repeat"), b, nil).ForService("repeat")
	if err := c.StartTransaction("repeat", time.Minute); err != nil {
		t.Fatalf("StartTransaction: %v", err)
	}
	conv, _ := c.Conversation()
	txn, ok := b.FindTransaction(conv)
	if !ok {
		t.Fatalf("expected lock")
	}
	owner := txn.Owner.(*Context)
	if !owner.Frozen() || owner.ServiceName() != "repeat" || owner.TransactionName() != "repeat" {
		t.Fatalf("unexpected owner: frozen=%v svc=%q txn=%q", owner.Frozen(), owner.ServiceName(), owner.TransactionName())
	}
	next := owner.WithEvent(groupMessage("hello"))
	if next.Frozen() || next.Text() != "hello" || owner.Text() != "!repeat" {
		t.Fatalf("expected refreshed unfrozen clone and untouched owner")
	}

	if err := next.StopTransaction(); err != nil {
		t.Fatalf("StopTransaction: %v", err)
	}
	if err := next.StopTransaction(); err != nil {
		t.Fatalf("second StopTransaction: %v", err)
	}
	if _, ok := b.FindTransaction(conv); ok {
		t.Fatalf("expected lock to be released")
	}

	notice := NewContext(kritor.NoticeOf(&kritor.NoticeEvent{Type: kritor.NoticeGroupPoke, GroupPoke: &kritor.GroupPokeNotice{GroupID: 1}}), b, nil).ForService("x")
	if err := notice.StartTransaction("t", 0); !errors.Is(err, bot.ErrClient) {
		t.Fatalf("expected client error for notice, got %v", err)
	}
}

func TestContext_StoresAreScoped(t *testing.T) {
	mem, err := memory.New(100)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	defer mem.Close()
	env := &Env{Storage: mem}

	a := bot.New(bot.Account{UID: "a"})
	defer a.Close(nil)
	other := bot.New(bot.Account{UID: "other"})
	defer other.Close(nil)

	ctx := context.Background()
	memo := NewContext(groupMessage("x"), a, env).ForService("memo")
	if err := memo.Store().Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := NewContext(groupMessage("x"), other, env).ForService("memo").Store().Get(ctx, "k"); ok {
		t.Fatalf("expected per-account isolation")
	}
	if _, ok, _ := NewContext(groupMessage("x"), a, env).ForService("echo").Store().Get(ctx, "k"); ok {
		t.Fatalf("expected per-plugin isolation")
	}
	if v, ok, _ := memo.Store().Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("expected stored value")
	}

	if err := memo.SharedStore().Set(ctx, "shared", []byte("1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := NewContext(groupMessage("x"), other, env).ForService("memo").SharedStore().Get(ctx, "shared"); !ok {
		t.Fatalf("expected shared store to span accounts")
	}

	if _, _, err := NewContext(groupMessage("x"), a, nil).Store().Get(ctx, "k"); !errors.Is(err, ErrNoStorage) {
		t.Fatalf("expected ErrNoStorage, got %v", err)
	}
}
