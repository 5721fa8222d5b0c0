package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/kritor-gateway/internal/wire"
	"github.com/ggoodman/kritor-gateway/kritor"
)

func TestBot_SendMessageRoundTrip(t *testing.T) {
	b := New(Account{UID: "u1", UIN: 1})
	defer b.Close(nil)

	fakeCore(t, b, func(req *kritor.CommandRequest) *kritor.CommandResponse {
		if req.Cmd != kritor.CmdSendMessage {
			t.Errorf("unexpected command %q", req.Cmd)
		}
		var body kritor.SendMessageRequest
		if err := wire.Unmarshal(req.Buf, &body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if first, _ := body.Elements.FirstText(); first != "pong" {
			t.Errorf("unexpected text %q", first)
		}
		return &kritor.CommandResponse{Buf: encode(t, kritor.SendMessageResponse{MessageID: "m1"})}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := b.SendMessage(ctx, kritor.Contact{Scene: kritor.SceneFriend, Peer: "p"}, kritor.Elements{kritor.Text("pong")})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.MessageID != "m1" {
		t.Fatalf("unexpected message id %q", resp.MessageID)
	}
	if b.Sent() != 1 {
		t.Fatalf("expected sent=1, got %d", b.Sent())
	}
	if b.Pending() != 0 {
		t.Fatalf("expected no pending waiters")
	}
}

func TestBot_NotConnectedFailsImmediately(t *testing.T) {
	b := New(Account{UID: "u1"})
	b.Close(nil)

	_, err := b.SendCommand(context.Background(), kritor.CmdGetVersion, nil, true)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if KindOf(err) != KindNotConnected {
		t.Fatalf("unexpected kind %v", KindOf(err))
	}
	if b.Pending() != 0 {
		t.Fatalf("expected no waiter to be registered")
	}
}

func TestBot_CloseResolvesPendingWaiters(t *testing.T) {
	b := New(Account{UID: "u1"})
	// core reads requests but never answers
	fakeCore(t, b, func(*kritor.CommandRequest) *kritor.CommandResponse { return nil })

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := b.SendCommand(context.Background(), kritor.CmdGetVersion, nil, true)
			errs <- err
		}()
	}
	deadline := time.Now().Add(time.Second)
	for b.Pending() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	b.Close(errors.New("stream ended"))

	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			if !errors.Is(err, ErrNotConnected) {
				t.Fatalf("expected ErrNotConnected, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatalf("waiter not resolved after close")
		}
	}
	if b.Connected() {
		t.Fatalf("expected bot to report disconnected")
	}
	if b.Err() == nil {
		t.Fatalf("expected close error to be recorded")
	}
}

func TestBot_RemoteError(t *testing.T) {
	b := New(Account{UID: "u1"})
	defer b.Close(nil)
	fakeCore(t, b, func(*kritor.CommandRequest) *kritor.CommandResponse {
		return &kritor.CommandResponse{Msg: kritor.Ptr("no such group")}
	})

	_, err := b.GetGroupMemberList(context.Background(), 1, false)
	if KindOf(err) != KindRemote {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestBot_CancelledWaiterIsEvicted(t *testing.T) {
	b := New(Account{UID: "u1"})
	defer b.Close(nil)
	fakeCore(t, b, func(*kritor.CommandRequest) *kritor.CommandResponse { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.GetVersion(ctx)
	if KindOf(err) != KindNetwork {
		t.Fatalf("expected network kind, got %v (%v)", KindOf(err), err)
	}
	if b.Pending() != 0 {
		t.Fatalf("expected cancelled waiter to be evicted")
	}
}

func TestBot_NoResponseCommand(t *testing.T) {
	b := New(Account{UID: "u1"})
	defer b.Close(nil)

	resp, err := b.SendCommand(context.Background(), kritor.CmdRecallMessage, &kritor.RecallMessageRequest{MessageID: "m"}, false)
	if err != nil || resp != nil {
		t.Fatalf("expected nil response and error, got %v %v", resp, err)
	}
	req := <-b.Outbound()
	if !req.NoResponse || b.Pending() != 0 {
		t.Fatalf("expected fire-and-forget request")
	}
}

func TestBot_BroadcastIsolation(t *testing.T) {
	a := New(Account{UID: "a"})
	c := New(Account{UID: "c"})
	defer a.Close(nil)
	defer c.Close(nil)

	subA, err := a.Subscribe(kritor.EventMessage)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	subC, _ := c.Subscribe(kritor.EventMessage)
	notices, _ := a.Subscribe(kritor.EventNotice)

	ev := kritor.MessageEvent(&kritor.PushMessageBody{MessageID: "m"})
	if err := a.Publish(ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	got, err := subA.Next(ctx)
	if err != nil || got != ev {
		t.Fatalf("expected event on a, got %v %v", got, err)
	}
	if _, err := subC.Next(ctx); err == nil {
		t.Fatalf("expected no event on c")
	}
	if len(notices.C()) != 0 {
		t.Fatalf("expected no event on notice hub")
	}

	if err := a.Publish(&kritor.Event{Type: kritor.EventNotice}); KindOf(err) != KindClient {
		t.Fatalf("expected client error for malformed event, got %v", err)
	}
	if _, err := a.Subscribe(kritor.EventType(42)); KindOf(err) != KindClient {
		t.Fatalf("expected client error for unknown category, got %v", err)
	}
}

func TestBot_Info(t *testing.T) {
	b := New(Account{UID: "u1", UIN: 7, Version: "1.0"})
	defer b.Close(nil)
	b.SetNickname("bot")
	b.IncrementReceived()
	b.SetGroups([]kritor.GroupInfo{{GroupID: 1}, {GroupID: 2}})

	info := b.Info()
	if info.AccountID != "u1" || info.UIN != 7 || info.Nickname != "bot" || info.Received != 1 || info.Groups != 2 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.ConnectionID == "" {
		t.Fatalf("expected connection id")
	}
}
