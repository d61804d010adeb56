package topic

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nexusrpc/corerpc/idgen"
	"github.com/nexusrpc/corerpc/internal/logging"
	"github.com/nexusrpc/corerpc/message"
	"github.com/nexusrpc/corerpc/requestor"
	"github.com/nexusrpc/corerpc/transport"
)

// Callback receives a publish delivered to a locally subscribed topic.
type Callback func(topicName, topicMsg string)

// Client is the client-side topic API (§4.9): create/remove/subscribe/
// cancel/publish as blocking requests, plus the inbound handler that
// delivers received publishes to locally registered callbacks.
type Client struct {
	req  *requestor.Requestor
	conn transport.Conn

	mu        sync.Mutex
	callbacks map[string]Callback

	log *zerolog.Logger
}

// NewClient binds a Client to the connection used to reach the topic
// server.
func NewClient(req *requestor.Requestor, conn transport.Conn) *Client {
	return &Client{
		req:       req,
		conn:      conn,
		callbacks: make(map[string]Callback),
		log:       logging.WithComponent("topic.client"),
	}
}

func (c *Client) request(ctx context.Context, name string, op message.TopicOptype, msg string) (message.RCode, error) {
	req := message.NewTopicRequest()
	req.SetID(idgen.New())
	req.SetTopicKey(name)
	req.SetOptype(op)
	if op == message.TopicPublish {
		req.SetTopicMsg(msg)
	}

	m, err := c.req.SendBlocking(ctx, c.conn, req)
	if err != nil {
		return 0, err
	}
	rsp, ok := m.(*message.TopicResponse)
	if !ok {
		return 0, fmt.Errorf("topic: unexpected response type %T", m)
	}
	return rsp.RCode(), nil
}

func rcodeErr(rc message.RCode) error {
	if rc == message.OK {
		return nil
	}
	return &message.RCodeError{RCode: rc}
}

// Create creates a topic, or is a no-op if it already exists.
func (c *Client) Create(ctx context.Context, name string) error {
	rc, err := c.request(ctx, name, message.TopicCreate, "")
	if err != nil {
		return err
	}
	return rcodeErr(rc)
}

// Remove deletes a topic and detaches every subscriber from it.
func (c *Client) Remove(ctx context.Context, name string) error {
	rc, err := c.request(ctx, name, message.TopicRemove, "")
	if err != nil {
		return err
	}
	return rcodeErr(rc)
}

// Subscribe registers cb as the local delivery target for name, then sends
// the subscribe request. If the request fails, cb is never invoked.
func (c *Client) Subscribe(ctx context.Context, name string, cb Callback) error {
	c.mu.Lock()
	c.callbacks[name] = cb
	c.mu.Unlock()

	rc, err := c.request(ctx, name, message.TopicSubscribe, "")
	if err != nil || rc != message.OK {
		c.mu.Lock()
		delete(c.callbacks, name)
		c.mu.Unlock()
	}
	if err != nil {
		return err
	}
	return rcodeErr(rc)
}

// Cancel unsubscribes from name and drops its local callback.
func (c *Client) Cancel(ctx context.Context, name string) error {
	c.mu.Lock()
	delete(c.callbacks, name)
	c.mu.Unlock()

	rc, err := c.request(ctx, name, message.TopicCancel, "")
	if err != nil {
		return err
	}
	return rcodeErr(rc)
}

// Publish sends msg to every current subscriber of name.
func (c *Client) Publish(ctx context.Context, name, msg string) error {
	rc, err := c.request(ctx, name, message.TopicPublish, msg)
	if err != nil {
		return err
	}
	return rcodeErr(rc)
}

// HandleInbound is the dispatcher target for TOPIC_REQ on this connection:
// the server forwards publishes as TOPIC_REQ with optype=publish, never
// expecting a response (§4.9).
func (c *Client) HandleInbound(conn transport.Conn, req *message.TopicRequest) {
	if req.Optype() != message.TopicPublish {
		return
	}
	c.mu.Lock()
	cb, ok := c.callbacks[req.TopicKey()]
	c.mu.Unlock()
	if !ok {
		c.log.Warn().Str("topic", req.TopicKey()).Msg("no local callback for published topic, dropping")
		return
	}
	cb(req.TopicKey(), req.TopicMsg())
}
