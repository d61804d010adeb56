package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/nexusrpc/corerpc/frame"
	"github.com/nexusrpc/corerpc/message"
)

type recordingConn struct {
	id string
	mu sync.Mutex
	sent [][]byte
}

func (c *recordingConn) ID() string { return c.id }
func (c *recordingConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}
func (c *recordingConn) Shutdown() error           { return nil }
func (c *recordingConn) Connected() bool           { return true }
func (c *recordingConn) RemoteHost() (string, int) { return "", 0 }

func (c *recordingConn) drain(t *testing.T) []message.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	fr := frame.New()
	var out []message.Message
	for _, data := range c.sent {
		msg, n, err := fr.Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n != len(data) {
			t.Fatalf("decoded %d of %d bytes", n, len(data))
		}
		out = append(out, msg)
	}
	c.sent = nil
	return out
}

// drainAfter waits up to a second for at least n frames to arrive (online
// and offline notifications are sent from the worker pool), then drains.
func (c *recordingConn) drainAfter(t *testing.T, n int) []message.Message {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.sent)
		c.mu.Unlock()
		if got >= n {
			break
		}
		time.Sleep(time.Millisecond)
	}
	return c.drain(t)
}

func TestRegistryLifecycle(t *testing.T) {
	reg := New()

	p1 := &recordingConn{id: "p1"}
	p2 := &recordingConn{id: "p2"}
	d1 := &recordingConn{id: "d1"}

	regReq := func(conn *recordingConn, id, method string, ip string, port int) *message.ServiceRequest {
		req := message.NewServiceRequest()
		req.SetID(id)
		req.SetMethod(method)
		req.SetOptype(message.ServiceRegistry)
		req.SetHost(&message.Host{IP: ip, Port: port})
		return req
	}

	reg.HandleRequest(p1, regReq(p1, "r1", "foo", "1.2.3.4", 9000))
	p1.drain(t)

	discReq := message.NewServiceRequest()
	discReq.SetID("disc1")
	discReq.SetMethod("foo")
	discReq.SetOptype(message.ServiceDiscovery)
	reg.HandleRequest(d1, discReq)

	msgs := d1.drain(t)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	rsp := msgs[0].(*message.ServiceResponse)
	if rsp.RCode() != message.OK || len(rsp.Host()) != 1 || rsp.Host()[0] != (message.Host{IP: "1.2.3.4", Port: 9000}) {
		t.Fatalf("unexpected discovery response: %+v", rsp)
	}

	reg.HandleRequest(p2, regReq(p2, "r2", "foo", "1.2.3.4", 9001))
	p2.drain(t)

	online := d1.drainAfter(t, 1)
	if len(online) != 1 {
		t.Fatalf("got %d online notifications, want 1", len(online))
	}
	onMsg := online[0].(*message.ServiceRequest)
	if onMsg.Optype() != message.ServiceOnline || *onMsg.Host() != (message.Host{IP: "1.2.3.4", Port: 9001}) {
		t.Fatalf("unexpected online notify: %+v", onMsg)
	}

	reg.OnConnClose(p1)

	offline := d1.drainAfter(t, 1)
	if len(offline) != 1 {
		t.Fatalf("got %d offline notifications, want 1", len(offline))
	}
	offMsg := offline[0].(*message.ServiceRequest)
	if offMsg.Optype() != message.ServiceOffline || *offMsg.Host() != (message.Host{IP: "1.2.3.4", Port: 9000}) {
		t.Fatalf("unexpected offline notify: %+v", offMsg)
	}
}

func TestRegistryConnCloseRemovesProviderFromMethodIndex(t *testing.T) {
	reg := New()
	p1 := &recordingConn{id: "p1"}

	req := message.NewServiceRequest()
	req.SetID("r1")
	req.SetMethod("foo")
	req.SetOptype(message.ServiceRegistry)
	req.SetHost(&message.Host{IP: "1.1.1.1", Port: 1})
	reg.HandleRequest(p1, req)
	p1.drain(t)

	reg.OnConnClose(p1)

	reg.mu.Lock()
	_, stillThere := reg.providersByMethod["foo"]
	reg.mu.Unlock()
	if stillThere {
		t.Fatal("provider method index still has an entry for foo after close")
	}
}

func TestMethodHostRoundRobin(t *testing.T) {
	mh := &MethodHost{hosts: []message.Host{
		{IP: "h", Port: 9000}, {IP: "h", Port: 9001}, {IP: "h", Port: 9002},
	}}
	seen := map[int]int{}
	for i := 0; i < 6; i++ {
		h, ok := mh.Next()
		if !ok {
			t.Fatal("expected a host")
		}
		seen[h.Port]++
	}
	for _, port := range []int{9000, 9001, 9002} {
		if seen[port] != 2 {
			t.Fatalf("port %d selected %d times, want 2", port, seen[port])
		}
	}
}
