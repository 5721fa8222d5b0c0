package bot

import (
	"context"
	"testing"

	"github.com/ggoodman/kritor-gateway/internal/wire"
	"github.com/ggoodman/kritor-gateway/kritor"
)

type testOwner string

func (o testOwner) ServiceName() string { return string(o) }

// fakeCore drains the Bot's outbound queue and answers each request with the
// result of handle. A nil response leaves the request unanswered.
func fakeCore(t *testing.T, b *Bot, handle func(req *kritor.CommandRequest) *kritor.CommandResponse) {
	t.Helper()
	go func() {
		for {
			select {
			case req := <-b.Outbound():
				if req.NoResponse {
					continue
				}
				if resp := handle(req); resp != nil {
					resp.Cmd = req.Cmd
					resp.Seq = req.Seq
					b.CompleteResponse(context.Background(), resp)
				}
			case <-b.Done():
				return
			}
		}
	}()
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	buf, err := wire.Marshal(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf
}

func groupConv(group, uid string) kritor.Conversation {
	return kritor.Conversation{
		Contact: kritor.Contact{Scene: kritor.SceneGroup, Peer: group},
		Sender:  kritor.Sender{UID: uid},
	}
}
