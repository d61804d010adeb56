// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package corerpc

import (
	"context"

	"github.com/nexusrpc/corerpc/dispatch"
	"github.com/nexusrpc/corerpc/message"
	"github.com/nexusrpc/corerpc/registry"
	"github.com/nexusrpc/corerpc/requestor"
	"github.com/nexusrpc/corerpc/rpc"
	"github.com/nexusrpc/corerpc/topic"
	"github.com/nexusrpc/corerpc/transport"
)

// Client dials a Server and owns the correlation engine, RPC caller,
// discovery cache and topic client bound to that one connection (§4.4,
// §4.5 client side, §4.7 client side, §4.9).
type Client struct {
	conn transport.Conn
	req  *requestor.Requestor

	caller    *rpc.Caller
	discovery *registry.Discovery
	topics    *topic.Client
}

// DialOption configures a Dial call.
type DialOption func(*dialOptions)

type dialOptions struct {
	onOffline func(method string, host message.Host)
}

// WithOfflineCallback registers a callback invoked whenever the
// discovery cache absorbs an offline notification (§4.7), whether or not
// the host was in the local cache, so the owning application can drop any
// pooled connection keyed on that host.
func WithOfflineCallback(cb func(method string, host message.Host)) DialOption {
	return func(o *dialOptions) { o.onOffline = cb }
}

// Dial connects to addr and blocks until the TCP handshake completes
// (§5's designed blocking site (a)); the returned Client's read loop then
// runs on its own goroutine.
func Dial(addr string, opts ...DialOption) (*Client, error) {
	o := &dialOptions{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{req: requestor.New()}
	disp := dispatch.New()
	disp.Register(message.RPCRsp, c.req.OnResponse)
	disp.Register(message.TopicRsp, c.req.OnResponse)
	disp.Register(message.ServiceRsp, c.req.OnResponse)

	ih := newIngressHandler(disp, c.onConnClose)
	conn, err := transport.Dial(addr, ih)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.caller = rpc.NewCaller(c.req, conn)
	c.discovery = registry.NewDiscovery(c.req, conn, o.onOffline)
	c.topics = topic.NewClient(c.req, conn)

	dispatch.RegisterTyped(disp, message.ServiceReq, c.discovery.HandleNotify)
	dispatch.RegisterTyped(disp, message.TopicReq, c.topics.HandleInbound)
	return c, nil
}

func (c *Client) onConnClose(_ transport.Conn) {
	c.req.OnConnClose(c.conn.ID())
}

// Close tears the underlying connection down.
func (c *Client) Close() error { return c.conn.Shutdown() }

// Caller returns the client-side RPC invocation API (§4.5).
func (c *Client) Caller() *rpc.Caller { return c.caller }

// Discovery returns the client-side service discovery cache (§4.7).
func (c *Client) Discovery() *registry.Discovery { return c.discovery }

// Topics returns the client-side topic API (§4.9).
func (c *Client) Topics() *topic.Client { return c.topics }

// RegisterMethod announces that this connection's owning process serves
// method at host, the provider side of §4.6's registry lifecycle.
func (c *Client) RegisterMethod(ctx context.Context, method string, host message.Host) error {
	return registry.RegisterMethod(ctx, c.req, c.conn, method, host)
}
