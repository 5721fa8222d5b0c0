package outbound

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/kritor-gateway/kritor"
)

// chanTransport records sent requests on a channel so tests can play the core.
type chanTransport struct {
	sent chan *kritor.CommandRequest
	err  error
}

func newChanTransport() *chanTransport {
	return &chanTransport{sent: make(chan *kritor.CommandRequest, 64)}
}

func (t *chanTransport) SendCommand(ctx context.Context, req *kritor.CommandRequest) error {
	if t.err != nil {
		return t.err
	}
	t.sent <- req
	return nil
}

func recvReq(t *testing.T, tr *chanTransport) *kritor.CommandRequest {
	t.Helper()
	select {
	case req := <-tr.sent:
		return req
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for request")
		return nil
	}
}

func TestDispatcher_PermutedResponses(t *testing.T) {
	tr := newChanTransport()
	d := New(tr)

	const n = 16
	type result struct {
		i    int
		resp *kritor.CommandResponse
		err  error
	}
	results := make(chan result, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			resp, err := d.Call(context.Background(), "Test.Cmd", []byte{byte(i)})
			results <- result{i, resp, err}
		}(i)
	}

	reqs := make([]*kritor.CommandRequest, 0, n)
	for i := 0; i < n; i++ {
		reqs = append(reqs, recvReq(t, tr))
	}
	seen := map[uint32]bool{}
	for _, r := range reqs {
		if seen[r.Seq] {
			t.Fatalf("duplicate tag %d", r.Seq)
		}
		seen[r.Seq] = true
	}
	// answer in reverse order, echoing the payload
	for i := len(reqs) - 1; i >= 0; i-- {
		if !d.OnResponse(&kritor.CommandResponse{Cmd: reqs[i].Cmd, Seq: reqs[i].Seq, Buf: reqs[i].Buf}) {
			t.Fatalf("response for tag %d was not matched", reqs[i].Seq)
		}
	}
	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("call %d: %v", r.i, r.err)
		}
		if len(r.resp.Buf) != 1 || int(r.resp.Buf[0]) != r.i {
			t.Fatalf("call %d received response for %v", r.i, r.resp.Buf)
		}
	}
	if p := d.Pending(); p != 0 {
		t.Fatalf("expected empty table, got %d", p)
	}
}

func TestDispatcher_CancelEvictsWaiter(t *testing.T) {
	tr := newChanTransport()
	d := New(tr)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := d.Call(ctx, "Test.Cmd", nil)
		errCh <- err
	}()
	req := recvReq(t, tr)
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p := d.Pending(); p != 0 {
		t.Fatalf("expected cancelled waiter to be evicted, %d remain", p)
	}
	// late response is discarded
	if d.OnResponse(&kritor.CommandResponse{Seq: req.Seq}) {
		t.Fatalf("expected late response to be discarded")
	}
}

func TestDispatcher_CloseResolvesAllWaiters(t *testing.T) {
	tr := newChanTransport()
	d := New(tr)
	closeErr := errors.New("gone")

	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Call(context.Background(), "Test.Cmd", nil)
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		recvReq(t, tr)
	}
	d.Close(closeErr)
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, closeErr) {
			t.Fatalf("expected close error, got %v", err)
		}
	}
	if _, err := d.Call(context.Background(), "Test.Cmd", nil); !errors.Is(err, closeErr) {
		t.Fatalf("expected calls after close to fail with close error, got %v", err)
	}
	// second close is a no-op
	d.Close(errors.New("other"))
}

func TestDispatcher_TransportFailureEvicts(t *testing.T) {
	tr := newChanTransport()
	tr.err = errors.New("broken pipe")
	d := New(tr)
	if _, err := d.Call(context.Background(), "Test.Cmd", nil); err == nil {
		t.Fatalf("expected transport error")
	}
	if d.Pending() != 0 {
		t.Fatalf("expected no pending waiters")
	}
}

func TestDispatcher_NotifyRegistersNoWaiter(t *testing.T) {
	tr := newChanTransport()
	d := New(tr)
	if err := d.Notify(context.Background(), "Test.Fire", nil); err != nil {
		t.Fatalf("notify: %v", err)
	}
	req := recvReq(t, tr)
	if !req.NoResponse {
		t.Fatalf("expected no_response flag")
	}
	if d.Pending() != 0 {
		t.Fatalf("expected no pending waiters")
	}
}

func TestDispatcher_TagSkipsInFlight(t *testing.T) {
	tr := newChanTransport()
	d := New(tr)
	d.nextTag.Store(^uint32(0) - 1)

	go func() { _, _ = d.Call(context.Background(), "Test.A", nil) }()
	first := recvReq(t, tr)

	// force the counter to collide with the in-flight tag
	d.nextTag.Store(first.Seq - 1)
	go func() { _, _ = d.Call(context.Background(), "Test.B", nil) }()
	second := recvReq(t, tr)
	if second.Seq == first.Seq {
		t.Fatalf("tag %d reused while in flight", first.Seq)
	}
	d.Close(nil)
}

func TestDispatcher_UnknownTagIgnored(t *testing.T) {
	d := New(newChanTransport())
	if d.OnResponse(&kritor.CommandResponse{Seq: 12345}) {
		t.Fatalf("expected unknown tag to be ignored")
	}
	if d.OnResponse(nil) {
		t.Fatalf("expected nil response to be ignored")
	}
}
