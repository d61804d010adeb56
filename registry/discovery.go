package registry

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

// MethodHost is the per-method round-robin host cache (§3): the cursor
// advances atomically under its own mutex, modulo the current host count
// (§5).
type MethodHost struct {
	mu     sync.Mutex
	hosts  []message.Host
	cursor int
}

// Next returns the next host in rotation, advancing the cursor, or false
// if the cache is empty.
func (mh *MethodHost) Next() (message.Host, bool) {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	if len(mh.hosts) == 0 {
		return message.Host{}, false
	}
	h := mh.hosts[mh.cursor%len(mh.hosts)]
	mh.cursor++
	return h, true
}

// Add appends host if not already present (equality-based dedup, per the
// spec's preferred resolution of the duplicate-online open question).
func (mh *MethodHost) Add(host message.Host) {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	for _, h := range mh.hosts {
		if h == host {
			return
		}
	}
	mh.hosts = append(mh.hosts, host)
}

// Remove drops host if present, leaving the cursor's modulo arithmetic
// consistent with the new length.
func (mh *MethodHost) Remove(host message.Host) {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	for i, h := range mh.hosts {
		if h == host {
			mh.hosts = append(mh.hosts[:i], mh.hosts[i+1:]...)
			return
		}
	}
}

// Len reports the current host count.
func (mh *MethodHost) Len() int {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	return len(mh.hosts)
}

// Discovery is the client-side discovery cache and notification absorber
// (§4.7).
type Discovery struct {
	req  *requestor.Requestor
	conn transport.Conn

	mu    sync.Mutex
	cache map[string]*MethodHost

	onOffline func(method string, host message.Host)
	log       *zerolog.Logger
}

// NewDiscovery binds a Discovery to the connection used to reach the
// registry server. onOffline, if non-nil, is invoked for every offline
// notification received, cached host or not, so the owning RPC client can
// drop any pooled connection keyed on that host (§4.7).
func NewDiscovery(req *requestor.Requestor, conn transport.Conn, onOffline func(method string, host message.Host)) *Discovery {
	return &Discovery{
		req:       req,
		conn:      conn,
		cache:     make(map[string]*MethodHost),
		onOffline: onOffline,
		log:       logging.WithComponent("discovery"),
	}
}

// Discover returns the next host for method, consulting the local cache
// first and falling back to a blocking SERVICE_REQ discovery query on a
// cache miss (§4.7 step 1-2).
func (d *Discovery) Discover(ctx context.Context, method string) (message.Host, error) {
	d.mu.Lock()
	mh, ok := d.cache[method]
	d.mu.Unlock()
	if ok {
		if h, ok := mh.Next(); ok {
			return h, nil
		}
	}

	req := message.NewServiceRequest()
	req.SetID(idgen.New())
	req.SetMethod(method)
	req.SetOptype(message.ServiceDiscovery)

	msg, err := d.req.SendBlocking(ctx, d.conn, req)
	if err != nil {
		return message.Host{}, err
	}
	rsp, ok := msg.(*message.ServiceResponse)
	if !ok {
		return message.Host{}, fmt.Errorf("registry: unexpected response type %T", msg)
	}
	if rsp.RCode() != message.OK {
		return message.Host{}, &message.RCodeError{RCode: rsp.RCode()}
	}

	fresh := &MethodHost{hosts: append([]message.Host(nil), rsp.Host()...)}
	d.mu.Lock()
	d.cache[method] = fresh
	d.mu.Unlock()

	h, ok := fresh.Next()
	if !ok {
		return message.Host{}, fmt.Errorf("registry: discovery returned ok with no hosts")
	}
	return h, nil
}

// HandleNotify is the dispatcher target for SERVICE_REQ on the discovery
// connection: online appends to the cache, offline removes and invokes
// onOffline, anything else is ignored (§4.7).
func (d *Discovery) HandleNotify(conn transport.Conn, req *message.ServiceRequest) {
	switch req.Optype() {
	case message.ServiceOnline:
		host := req.Host()
		if host == nil {
			return
		}
		d.mu.Lock()
		mh, ok := d.cache[req.Method()]
		if !ok {
			mh = &MethodHost{}
			d.cache[req.Method()] = mh
		}
		d.mu.Unlock()
		mh.Add(*host)
	case message.ServiceOffline:
		host := req.Host()
		if host == nil {
			return
		}
		d.mu.Lock()
		mh, ok := d.cache[req.Method()]
		d.mu.Unlock()
		if ok {
			mh.Remove(*host)
		}
		if d.onOffline != nil {
			d.onOffline(req.Method(), *host)
		}
	default:
		d.log.Debug().Int32("optype", int32(req.Optype())).Msg("ignoring unrecognized service notification optype")
	}
}

// RegisterMethod sends a blocking SERVICE_REQ announcing that host serves
// method, for the provider side of §4.6/§4.7 wiring.
func RegisterMethod(ctx context.Context, req *requestor.Requestor, conn transport.Conn, method string, host message.Host) error {
	sr := message.NewServiceRequest()
	sr.SetID(idgen.New())
	sr.SetMethod(method)
	sr.SetOptype(message.ServiceRegistry)
	h := host
	sr.SetHost(&h)

	msg, err := req.SendBlocking(ctx, conn, sr)
	if err != nil {
		return err
	}
	rsp, ok := msg.(*message.ServiceResponse)
	if !ok {
		return fmt.Errorf("registry: unexpected response type %T", msg)
	}
	if rsp.RCode() != message.OK {
		return &message.RCodeError{RCode: rsp.RCode()}
	}
	return nil
}
