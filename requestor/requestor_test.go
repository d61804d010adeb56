package requestor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexusrpc/corerpc/message"
)

// fakeConn is a minimal transport.Conn that records what was sent and can
// simulate send failure.
type fakeConn struct {
	id       string
	mu       sync.Mutex
	sent     [][]byte
	sendErr  error
	closed   bool
}

func (c *fakeConn) ID() string { return c.id }
func (c *fakeConn) Send(data []byte) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	c.sent = append(c.sent, data)
	c.mu.Unlock()
	return nil
}
func (c *fakeConn) Shutdown() error              { c.closed = true; return nil }
func (c *fakeConn) Connected() bool              { return !c.closed }
func (c *fakeConn) RemoteHost() (string, int)    { return "", 0 }

func TestSendBlockingDeliversResponse(t *testing.T) {
	r := New()
	conn := &fakeConn{id: "c1"}

	req := message.NewRPCRequest()
	req.SetID("req-1")
	req.SetMethod("Add")
	req.SetParameters(map[string]interface{}{"num1": float64(1)})

	done := make(chan struct{})
	var got message.Message
	var gotErr error
	go func() {
		got, gotErr = r.SendBlocking(context.Background(), conn, req)
		close(done)
	}()

	// Give SendBlocking time to record its descriptor before responding.
	time.Sleep(10 * time.Millisecond)

	rsp := message.NewRPCResponse()
	rsp.SetID("req-1")
	rsp.SetRCode(message.OK)
	rsp.SetResult(float64(30))
	r.OnResponse(conn, rsp)

	<-done
	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
	typed, ok := got.(*message.RPCResponse)
	if !ok {
		t.Fatalf("got %T, want *message.RPCResponse", got)
	}
	if typed.RCode() != message.OK || typed.Result() != float64(30) {
		t.Fatalf("unexpected response: %+v", typed)
	}
}

func TestOnConnCloseFailsPendingWithDisconnected(t *testing.T) {
	r := New()
	conn := &fakeConn{id: "c2"}

	req := message.NewRPCRequest()
	req.SetID("req-2")
	req.SetMethod("Add")
	req.SetParameters(map[string]interface{}{})

	fut, err := r.SendFuture(context.Background(), conn, req)
	if err != nil {
		t.Fatalf("SendFuture: %v", err)
	}

	r.OnConnClose(conn.ID())

	msg, err := fut.Wait(context.Background())
	if err != ErrDisconnected {
		t.Fatalf("err = %v, want ErrDisconnected", err)
	}
	rsp, ok := msg.(*message.RPCResponse)
	if !ok {
		t.Fatalf("synthesized msg = %T, want *message.RPCResponse", msg)
	}
	if rsp.RCode() != message.Disconnected {
		t.Fatalf("rcode = %v, want Disconnected", rsp.RCode())
	}
}

func TestCallbackModeInvokedExactlyOnce(t *testing.T) {
	r := New()
	conn := &fakeConn{id: "c3"}

	req := message.NewRPCRequest()
	req.SetID("req-3")
	req.SetMethod("Add")
	req.SetParameters(map[string]interface{}{})

	var calls int
	var mu sync.Mutex
	done := make(chan struct{})
	err := r.SendCallback(context.Background(), conn, req, func(msg message.Message, err error) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(done)
	})
	if err != nil {
		t.Fatalf("SendCallback: %v", err)
	}

	rsp := message.NewRPCResponse()
	rsp.SetID("req-3")
	rsp.SetRCode(message.OK)
	rsp.SetResult(float64(7))
	r.OnResponse(conn, rsp)
	<-done

	// A disconnect drain arriving after delivery must not invoke cb again.
	r.OnConnClose(conn.ID())

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestIdempotentFutureFirstCompletionWins(t *testing.T) {
	r := New()
	conn := &fakeConn{id: "c4"}

	req := message.NewRPCRequest()
	req.SetID("req-4")
	req.SetMethod("Add")
	req.SetParameters(map[string]interface{}{})

	fut, err := r.SendFuture(context.Background(), conn, req)
	if err != nil {
		t.Fatalf("SendFuture: %v", err)
	}

	rsp := message.NewRPCResponse()
	rsp.SetID("req-4")
	rsp.SetRCode(message.OK)
	r.OnResponse(conn, rsp)

	// Response already removed the descriptor, so this is a no-op, not a
	// second completion of fut.
	r.OnConnClose(conn.ID())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := fut.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.(*message.RPCResponse).RCode() != message.OK {
		t.Fatalf("expected the real response to win, got %+v", msg)
	}
}
