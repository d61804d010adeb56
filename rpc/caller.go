// Package rpc: client-side caller (§4.5, first half). Caller wraps a
// Requestor and a connection with the three call flavors the spec
// requires, converting the received RPC_RSP into (result, error) so
// application code never touches the wire message directly.
package rpc

import (
	"context"
	"fmt"

	"github.com/nexusrpc/corerpc/idgen"
	"github.com/nexusrpc/corerpc/message"
	"github.com/nexusrpc/corerpc/requestor"
	"github.com/nexusrpc/corerpc/transport"
)

// Caller issues RPC_REQ messages over a single connection.
type Caller struct {
	req  *requestor.Requestor
	conn transport.Conn
}

// NewCaller binds a Caller to a connection and the Requestor that will
// correlate its responses.
func NewCaller(req *requestor.Requestor, conn transport.Conn) *Caller {
	return &Caller{req: req, conn: conn}
}

func newRequest(method string, params map[string]interface{}) *message.RPCRequest {
	req := message.NewRPCRequest()
	req.SetID(idgen.New())
	req.SetMethod(method)
	if params == nil {
		params = map[string]interface{}{}
	}
	req.SetParameters(params)
	return req
}

func unwrap(msg message.Message, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	rsp, ok := msg.(*message.RPCResponse)
	if !ok {
		return nil, fmt.Errorf("rpc: unexpected response type %T", msg)
	}
	if rsp.RCode() != message.OK {
		return nil, &message.RCodeError{RCode: rsp.RCode()}
	}
	return rsp.Result(), nil
}

// CallBlocking sends method(params) and blocks for the result (§4.5 three
// call flavors, blocking).
func (c *Caller) CallBlocking(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
	req := newRequest(method, params)
	msg, err := c.req.SendBlocking(ctx, c.conn, req)
	return unwrap(msg, err)
}

// Future is a pending RPC call's eventual (result, error), mirroring
// requestor.Future but already unwrapped to the RPC_RSP's result field.
type Future struct {
	inner *requestor.Future
}

// Get blocks until the call resolves.
func (f *Future) Get(ctx context.Context) (interface{}, error) {
	msg, err := f.inner.Wait(ctx)
	return unwrap(msg, err)
}

// CallFuture sends method(params) and returns immediately with a Future
// the caller awaits on its own goroutine (§4.5 three call flavors,
// future).
func (c *Caller) CallFuture(ctx context.Context, method string, params map[string]interface{}) (*Future, error) {
	req := newRequest(method, params)
	fut, err := c.req.SendFuture(ctx, c.conn, req)
	if err != nil {
		return nil, err
	}
	return &Future{inner: fut}, nil
}

// CallCallback sends method(params) and invokes cb exactly once: on the
// worker pool goroutine delivering the RPC_RSP, on the goroutine draining
// the requestor if the connection dies first, or on the calling goroutine
// if the request cannot be written, in which case the write error is also
// returned (§4.5 three call flavors, callback).
func (c *Caller) CallCallback(ctx context.Context, method string, params map[string]interface{}, cb func(result interface{}, err error)) error {
	req := newRequest(method, params)
	return c.req.SendCallback(ctx, c.conn, req, func(msg message.Message, err error) {
		result, err := unwrap(msg, err)
		cb(result, err)
	})
}
