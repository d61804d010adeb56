// Package topic implements the server-side topic manager (§4.8) and the
// client-side topic client (§4.9): topic/subscriber bookkeeping, publish
// fanout with a fresh frame per recipient, and disconnect cleanup that
// keeps the topic<->subscriber invariant of §3/§8 intact.
package topic

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/nexusrpc/corerpc/frame"
	"github.com/nexusrpc/corerpc/idgen"
	"github.com/nexusrpc/corerpc/internal/logging"
	"github.com/nexusrpc/corerpc/internal/workerpool"
	"github.com/nexusrpc/corerpc/message"
	"github.com/nexusrpc/corerpc/transport"
)

// Subscriber is one connection subscribed to zero or more topics (§3).
type Subscriber struct {
	Conn transport.Conn

	mu     sync.Mutex
	topics map[string]struct{}
}

func newSubscriber(conn transport.Conn) *Subscriber {
	return &Subscriber{Conn: conn, topics: make(map[string]struct{})}
}

// Topic is a named channel and the set of subscribers currently on it
// (§3).
type Topic struct {
	Name string

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
}

func newTopic(name string) *Topic {
	return &Topic{Name: name, subscribers: make(map[*Subscriber]struct{})}
}

// Manager is the server-side topic set plus subscription graph (§3, §4.8).
type Manager struct {
	mu sync.Mutex

	topics     map[string]*Topic
	subsByConn map[string]*Subscriber

	framer *frame.Framer
	log    *zerolog.Logger
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		topics:     make(map[string]*Topic),
		subsByConn: make(map[string]*Subscriber),
		framer:     frame.New(),
		log:        logging.WithComponent("topic.manager"),
	}
}

// HandleRequest is the dispatcher target for TOPIC_REQ on the server side
// (§4.8).
func (m *Manager) HandleRequest(conn transport.Conn, req *message.TopicRequest) {
	switch req.Optype() {
	case message.TopicCreate:
		m.create(req)
		m.respond(conn, req.ID(), message.OK)
	case message.TopicRemove:
		m.respond(conn, req.ID(), m.remove(req))
	case message.TopicSubscribe:
		m.respond(conn, req.ID(), m.subscribe(conn, req))
	case message.TopicCancel:
		m.cancel(conn, req)
		m.respond(conn, req.ID(), message.OK)
	case message.TopicPublish:
		m.respond(conn, req.ID(), m.publish(req))
	default:
		m.respond(conn, req.ID(), message.InvalidOptype)
	}
}

func (m *Manager) create(req *message.TopicRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.topics[req.TopicKey()]; !ok {
		m.topics[req.TopicKey()] = newTopic(req.TopicKey())
	}
}

func (m *Manager) remove(req *message.TopicRequest) message.RCode {
	m.mu.Lock()
	t, ok := m.topics[req.TopicKey()]
	if ok {
		delete(m.topics, req.TopicKey())
	}
	m.mu.Unlock()
	if !ok {
		return message.TopicNotFound
	}

	t.mu.Lock()
	subs := make([]*Subscriber, 0, len(t.subscribers))
	for s := range t.subscribers {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		delete(s.topics, req.TopicKey())
		s.mu.Unlock()
	}
	return message.OK
}

func (m *Manager) subscribe(conn transport.Conn, req *message.TopicRequest) message.RCode {
	m.mu.Lock()
	t, ok := m.topics[req.TopicKey()]
	if !ok {
		m.mu.Unlock()
		return message.TopicNotFound
	}
	s, ok := m.subsByConn[conn.ID()]
	if !ok {
		s = newSubscriber(conn)
		m.subsByConn[conn.ID()] = s
	}
	m.mu.Unlock()

	s.mu.Lock()
	s.topics[req.TopicKey()] = struct{}{}
	s.mu.Unlock()

	t.mu.Lock()
	t.subscribers[s] = struct{}{}
	t.mu.Unlock()
	return message.OK
}

// cancel is best-effort per §4.8: a missing topic or subscriber is
// silently ok, not an error.
func (m *Manager) cancel(conn transport.Conn, req *message.TopicRequest) {
	m.mu.Lock()
	t := m.topics[req.TopicKey()]
	s := m.subsByConn[conn.ID()]
	m.mu.Unlock()

	if t != nil && s != nil {
		t.mu.Lock()
		delete(t.subscribers, s)
		t.mu.Unlock()

		s.mu.Lock()
		delete(s.topics, req.TopicKey())
		s.mu.Unlock()
	}
}

func (m *Manager) publish(req *message.TopicRequest) message.RCode {
	m.mu.Lock()
	t, ok := m.topics[req.TopicKey()]
	m.mu.Unlock()
	if !ok {
		return message.TopicNotFound
	}

	t.mu.Lock()
	targets := make([]transport.Conn, 0, len(t.subscribers))
	for s := range t.subscribers {
		targets = append(targets, s.Conn)
	}
	t.mu.Unlock()

	for _, conn := range targets {
		conn := conn
		out := message.NewTopicRequest()
		out.SetID(idgen.New())
		out.SetTopicKey(req.TopicKey())
		out.SetOptype(message.TopicPublish)
		out.SetTopicMsg(req.TopicMsg())
		if err := workerpool.Submit(func() { m.send(conn, out) }); err != nil {
			m.log.Error().Err(err).Msg("failed to submit publish fanout job")
		}
	}
	return message.OK
}

// OnConnClose implements §4.8's connection-close handler.
func (m *Manager) OnConnClose(conn transport.Conn) {
	m.mu.Lock()
	s, ok := m.subsByConn[conn.ID()]
	if ok {
		delete(m.subsByConn, conn.ID())
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	names := make([]string, 0, len(s.topics))
	for n := range s.topics {
		names = append(names, n)
	}
	s.mu.Unlock()

	for _, n := range names {
		m.mu.Lock()
		t := m.topics[n]
		m.mu.Unlock()
		if t == nil {
			continue
		}
		t.mu.Lock()
		delete(t.subscribers, s)
		t.mu.Unlock()
	}
}

// TopicInfo is a read-only snapshot of one topic, exposed to the admin
// introspection bridge (admin/httpjson); it is never sent on the core
// wire protocol.
type TopicInfo struct {
	Name            string `json:"name"`
	SubscriberCount int    `json:"subscriber_count"`
}

// Snapshot returns a point-in-time list of every topic and its current
// subscriber count.
func (m *Manager) Snapshot() []TopicInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TopicInfo, 0, len(m.topics))
	for name, t := range m.topics {
		t.mu.Lock()
		count := len(t.subscribers)
		t.mu.Unlock()
		out = append(out, TopicInfo{Name: name, SubscriberCount: count})
	}
	return out
}

func (m *Manager) respond(conn transport.Conn, id string, rc message.RCode) {
	rsp := message.NewTopicResponse()
	rsp.SetID(id)
	rsp.SetRCode(rc)
	m.send(conn, rsp)
}

func (m *Manager) send(conn transport.Conn, msg message.Message) {
	data, err := m.framer.Encode(msg)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to encode TOPIC_RSP/TOPIC_REQ")
		return
	}
	if err := conn.Send(data); err != nil {
		m.log.Warn().Err(err).Str("conn", conn.ID()).Msg("failed to send")
	}
}
