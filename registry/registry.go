// Package registry implements both halves of the directory service (§4.6,
// §4.7): the server-side Registry tracking providers and discoverers by
// connection, and the client-side Discovery cache with round-robin
// selection and online/offline absorption.
package registry

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

// Provider is one connection that has registered itself as a source for
// one or more methods (§3).
type Provider struct {
	Conn transport.Conn
	Host message.Host

	mu      sync.Mutex
	methods []string
}

func (p *Provider) hasMethod(method string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.methods {
		if m == method {
			return true
		}
	}
	return false
}

func (p *Provider) addMethod(method string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.methods = append(p.methods, method)
}

// Methods returns a snapshot of the methods this provider has registered.
func (p *Provider) Methods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.methods...)
}

// Discoverer is one connection that has queried for at least one method
// and will keep receiving online/offline notifications for it (§3).
type Discoverer struct {
	Conn transport.Conn

	mu      sync.Mutex
	methods map[string]struct{}
}

func newDiscoverer(conn transport.Conn) *Discoverer {
	return &Discoverer{Conn: conn, methods: make(map[string]struct{})}
}

// Registry is the server-side directory: two mutex-guarded index pairs
// (§3) plus the notification fanout of §4.6.
type Registry struct {
	mu sync.Mutex

	providersByConn   map[string]*Provider
	providersByMethod map[string]map[*Provider]struct{}

	discoverersByConn   map[string]*Discoverer
	discoverersByMethod map[string]map[*Discoverer]struct{}

	framer *frame.Framer
	log    *zerolog.Logger
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		providersByConn:      make(map[string]*Provider),
		providersByMethod:    make(map[string]map[*Provider]struct{}),
		discoverersByConn:    make(map[string]*Discoverer),
		discoverersByMethod:  make(map[string]map[*Discoverer]struct{}),
		framer:               frame.New(),
		log:                  logging.WithComponent("registry"),
	}
}

// HandleRequest is the dispatcher target for SERVICE_REQ on the server
// side, covering the registry optypes (§4.6). Online/offline notifications
// travel on SERVICE_REQ too but are server-originated, never received
// here.
func (r *Registry) HandleRequest(conn transport.Conn, req *message.ServiceRequest) {
	switch req.Optype() {
	case message.ServiceRegistry:
		r.register(conn, req)
	case message.ServiceDiscovery:
		r.discover(conn, req)
	default:
		rsp := message.NewServiceResponse()
		rsp.SetID(req.ID())
		rsp.SetOptype(req.Optype())
		rsp.SetRCode(message.InvalidOptype)
		r.send(conn, rsp)
	}
}

func (r *Registry) register(conn transport.Conn, req *message.ServiceRequest) {
	host := req.Host()
	if host == nil {
		rsp := message.NewServiceResponse()
		rsp.SetID(req.ID())
		rsp.SetOptype(message.ServiceRegistry)
		rsp.SetRCode(message.InvalidParams)
		r.send(conn, rsp)
		return
	}

	r.mu.Lock()
	p, ok := r.providersByConn[conn.ID()]
	if !ok {
		p = &Provider{Conn: conn, Host: *host}
		r.providersByConn[conn.ID()] = p
	}
	isNew := !p.hasMethod(req.Method())
	if isNew {
		p.addMethod(req.Method())
	}
	set, ok := r.providersByMethod[req.Method()]
	if !ok {
		set = make(map[*Provider]struct{})
		r.providersByMethod[req.Method()] = set
	}
	set[p] = struct{}{}
	r.mu.Unlock()

	rsp := message.NewServiceResponse()
	rsp.SetID(req.ID())
	rsp.SetOptype(message.ServiceRegistry)
	rsp.SetRCode(message.OK)
	r.send(conn, rsp)

	if isNew {
		r.notify(req.Method(), *host, message.ServiceOnline)
	}
}

func (r *Registry) discover(conn transport.Conn, req *message.ServiceRequest) {
	r.mu.Lock()
	d, ok := r.discoverersByConn[conn.ID()]
	if !ok {
		d = newDiscoverer(conn)
		r.discoverersByConn[conn.ID()] = d
	}
	d.mu.Lock()
	d.methods[req.Method()] = struct{}{}
	d.mu.Unlock()

	set, ok := r.discoverersByMethod[req.Method()]
	if !ok {
		set = make(map[*Discoverer]struct{})
		r.discoverersByMethod[req.Method()] = set
	}
	set[d] = struct{}{}

	var hosts []message.Host
	for p := range r.providersByMethod[req.Method()] {
		hosts = append(hosts, p.Host)
	}
	r.mu.Unlock()

	rsp := message.NewServiceResponse()
	rsp.SetID(req.ID())
	rsp.SetOptype(message.ServiceDiscovery)
	rsp.SetMethod(req.Method())
	rsp.SetHost(hosts)
	if len(hosts) == 0 {
		rsp.SetRCode(message.ServiceNotFound)
	} else {
		rsp.SetRCode(message.OK)
	}
	r.send(conn, rsp)
}

// notify sends an online/offline SERVICE_REQ to every discoverer currently
// registered for method. A snapshot of the recipient list is taken under
// the manager lock; the actual sends happen off-lock on the worker pool,
// best-effort (§4.6, §5).
func (r *Registry) notify(method string, host message.Host, op message.ServiceOptype) {
	r.mu.Lock()
	var targets []transport.Conn
	for d := range r.discoverersByMethod[method] {
		targets = append(targets, d.Conn)
	}
	r.mu.Unlock()

	for _, conn := range targets {
		conn := conn
		h := host
		notif := message.NewServiceRequest()
		notif.SetID(idgen.New())
		notif.SetMethod(method)
		notif.SetOptype(op)
		notif.SetHost(&h)
		if err := workerpool.Submit(func() { r.send(conn, notif) }); err != nil {
			r.log.Error().Err(err).Msg("failed to submit notification job")
		}
	}
}

// OnConnClose implements §4.6's connection-close handler: the provider (if
// any) is removed from both indices and its methods are offline-notified;
// the discoverer record (if any) is unconditionally removed too, since a
// single connection can be both.
func (r *Registry) OnConnClose(conn transport.Conn) {
	r.mu.Lock()
	p, wasProvider := r.providersByConn[conn.ID()]
	var offlineMethods []string
	if wasProvider {
		offlineMethods = p.Methods()
		delete(r.providersByConn, conn.ID())
		for _, m := range offlineMethods {
			if set, ok := r.providersByMethod[m]; ok {
				delete(set, p)
				if len(set) == 0 {
					delete(r.providersByMethod, m)
				}
			}
		}
	}

	if d, wasDiscoverer := r.discoverersByConn[conn.ID()]; wasDiscoverer {
		d.mu.Lock()
		methods := make([]string, 0, len(d.methods))
		for m := range d.methods {
			methods = append(methods, m)
		}
		d.mu.Unlock()
		for _, m := range methods {
			if set, ok := r.discoverersByMethod[m]; ok {
				delete(set, d)
				if len(set) == 0 {
					delete(r.discoverersByMethod, m)
				}
			}
		}
		delete(r.discoverersByConn, conn.ID())
	}
	r.mu.Unlock()

	if wasProvider {
		for _, m := range offlineMethods {
			r.notify(m, p.Host, message.ServiceOffline)
		}
	}
}

// ProviderInfo is a read-only snapshot of one provider, exposed to the
// admin introspection bridge (admin/httpjson); it is never sent on the
// core wire protocol.
type ProviderInfo struct {
	ConnID  string       `json:"conn_id"`
	Host    message.Host `json:"host"`
	Methods []string     `json:"methods"`
}

// Snapshot returns a point-in-time list of every registered provider.
func (r *Registry) Snapshot() []ProviderInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProviderInfo, 0, len(r.providersByConn))
	for connID, p := range r.providersByConn {
		out = append(out, ProviderInfo{ConnID: connID, Host: p.Host, Methods: p.Methods()})
	}
	return out
}

func (r *Registry) send(conn transport.Conn, msg message.Message) {
	data, err := r.framer.Encode(msg)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to encode SERVICE_RSP/SERVICE_REQ")
		return
	}
	if err := conn.Send(data); err != nil {
		r.log.Warn().Err(err).Str("conn", conn.ID()).Msg("failed to send")
	}
}
