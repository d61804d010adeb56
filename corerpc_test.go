// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package corerpc

import (
	"context"
	"testing"
	"time"

	"github.com/nexusrpc/corerpc/message"
	"github.com/nexusrpc/corerpc/rpc"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	srv, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return srv
}

func registerAdd(srv *Server) {
	srv.Services().Register(rpc.NewService("Add").
		Param("num1", rpc.TypeNumeric).
		Param("num2", rpc.TypeNumeric).
		Returns(rpc.TypeNumeric).
		Handle(func(p map[string]interface{}) (interface{}, error) {
			return p["num1"].(float64) + p["num2"].(float64), nil
		}).Build())
}

func TestRPCRoundTrip(t *testing.T) {
	srv := startServer(t)
	registerAdd(srv)

	cli, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := cli.Caller().CallBlocking(ctx, "Add", map[string]interface{}{
		"num1": 10.0, "num2": 20.0,
	})
	if err != nil {
		t.Fatalf("CallBlocking(Add): %v", err)
	}
	if result != 30.0 {
		t.Fatalf("result = %v, want 30", result)
	}

	_, err = cli.Caller().CallBlocking(ctx, "Add", map[string]interface{}{"num1": 10.0})
	if rc, ok := err.(*message.RCodeError); !ok || rc.RCode != message.InvalidParams {
		t.Fatalf("missing-param call err = %v, want InvalidParams", err)
	}

	_, err = cli.Caller().CallBlocking(ctx, "Sub", map[string]interface{}{"num1": 1.0, "num2": 2.0})
	if rc, ok := err.(*message.RCodeError); !ok || rc.RCode != message.ServiceNotFound {
		t.Fatalf("unknown-method call err = %v, want ServiceNotFound", err)
	}
}

func TestRPCThreeModes(t *testing.T) {
	srv := startServer(t)
	registerAdd(srv)

	cli, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	params := map[string]interface{}{"num1": 10.0, "num2": 20.0}

	blocking, err := cli.Caller().CallBlocking(ctx, "Add", params)
	if err != nil || blocking != 30.0 {
		t.Fatalf("blocking: result=%v err=%v", blocking, err)
	}

	fut, err := cli.Caller().CallFuture(ctx, "Add", params)
	if err != nil {
		t.Fatalf("CallFuture: %v", err)
	}
	future, err := fut.Get(ctx)
	if err != nil || future != 30.0 {
		t.Fatalf("future: result=%v err=%v", future, err)
	}

	done := make(chan struct{})
	var calls int
	var callbackResult interface{}
	err = cli.Caller().CallCallback(ctx, "Add", params, func(result interface{}, err error) {
		calls++
		callbackResult = result
		close(done)
	})
	if err != nil {
		t.Fatalf("CallCallback: %v", err)
	}
	<-done
	if calls != 1 || callbackResult != 30.0 {
		t.Fatalf("callback invoked %d times with result=%v", calls, callbackResult)
	}
}

func TestRegistryLifecycle(t *testing.T) {
	srv := startServer(t)

	p1, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial p1: %v", err)
	}
	defer p1.Close()
	p2, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial p2: %v", err)
	}
	defer p2.Close()

	offlineSignal := make(chan struct{}, 4)
	d, err := Dial(srv.Addr().String(), WithOfflineCallback(func(method string, host message.Host) {
		offlineSignal <- struct{}{}
	}))
	if err != nil {
		t.Fatalf("Dial discoverer: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p1.RegisterMethod(ctx, "foo", message.Host{IP: "1.2.3.4", Port: 9000}); err != nil {
		t.Fatalf("p1 register: %v", err)
	}

	host, err := d.Discovery().Discover(ctx, "foo")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if host != (message.Host{IP: "1.2.3.4", Port: 9000}) {
		t.Fatalf("host = %+v", host)
	}

	if err := p2.RegisterMethod(ctx, "foo", message.Host{IP: "1.2.3.4", Port: 9001}); err != nil {
		t.Fatalf("p2 register: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // let the online notification land

	p1.Close()
	time.Sleep(50 * time.Millisecond) // let the offline notification land

	select {
	case <-offlineSignal:
	case <-time.After(time.Second):
		t.Fatal("offline callback was never invoked")
	}

	// Round-robin cursor behavior itself is exercised directly against
	// MethodHost in the registry package's own tests; here we only
	// assert the offline host is no longer served.
	seen := map[message.Host]bool{}
	for i := 0; i < 4; i++ {
		h, err := d.Discovery().Discover(ctx, "foo")
		if err != nil {
			t.Fatalf("Discover after offline: %v", err)
		}
		if h == (message.Host{IP: "1.2.3.4", Port: 9000}) {
			t.Fatalf("offline host %v still served", h)
		}
		seen[h] = true
	}
	if !seen[message.Host{IP: "1.2.3.4", Port: 9001}] {
		t.Fatalf("surviving host never observed: %+v", seen)
	}
}

func TestTopicPubSub(t *testing.T) {
	srv := startServer(t)

	a, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial a: %v", err)
	}
	defer a.Close()
	b, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial b: %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Topics().Create(ctx, "t"); err != nil {
		t.Fatalf("a create: %v", err)
	}

	received := make(chan string, 1)
	if err := a.Topics().Subscribe(ctx, "t", func(name, msg string) {
		received <- msg
	}); err != nil {
		t.Fatalf("a subscribe: %v", err)
	}

	if err := b.Topics().Create(ctx, "t"); err != nil {
		t.Fatalf("b create (no-op): %v", err)
	}
	if err := b.Topics().Publish(ctx, "t", "m1"); err != nil {
		t.Fatalf("b publish: %v", err)
	}

	select {
	case msg := <-received:
		if msg != "m1" {
			t.Fatalf("received %q, want m1", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("A's callback was never invoked")
	}

	a.Close()
	time.Sleep(50 * time.Millisecond)

	if err := b.Topics().Publish(ctx, "t", "m2"); err != nil {
		t.Fatalf("publish after subscriber disconnect: %v", err)
	}
}
