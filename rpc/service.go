// Package rpc implements the client-side invocation API and the
// server-side method table (§4.5): typed parameter/return checking,
// a builder for immutable-after-registration ServiceDescribe entries, and
// the RPC_REQ handler that drives both.
package rpc

import (
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nexusrpc/corerpc/frame"
	"github.com/nexusrpc/corerpc/internal/logging"
	"github.com/nexusrpc/corerpc/message"
	"github.com/nexusrpc/corerpc/transport"
)

// ValueType is the closed set of JSON-value shape tags a parameter or
// return value can be checked against (§4.5).
type ValueType int

const (
	TypeBool ValueType = iota
	TypeIntegral
	TypeNumeric
	TypeString
	TypeArray
	TypeObject
)

// CheckValue reports whether v's runtime JSON shape (as produced by
// encoding/json unmarshaling into interface{}) matches t.
func CheckValue(v interface{}, t ValueType) bool {
	switch t {
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeIntegral:
		f, ok := v.(float64)
		return ok && f == math.Trunc(f)
	case TypeNumeric:
		_, ok := v.(float64)
		return ok
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeArray:
		_, ok := v.([]interface{})
		return ok
	case TypeObject:
		_, ok := v.(map[string]interface{})
		return ok
	default:
		return false
	}
}

// Param is one declared, typed entry in a ServiceDescribe's parameter
// list.
type Param struct {
	Name string
	Type ValueType
}

// Handler implements a registered method's logic: given the validated
// parameters object, produce a result or an error. A returned error is
// reported to the caller as InternalError (§4.5 step 4/§7).
type Handler func(params map[string]interface{}) (interface{}, error)

// ServiceDescribe is one sealed method registration: name, ordered
// parameter shape, return shape, and the handler that implements it.
// Built only via ServiceBuilder so it is immutable once registered.
type ServiceDescribe struct {
	Method  string
	Params  []Param
	Return  ValueType
	Handler Handler
}

// ServiceBuilder accumulates a ServiceDescribe's fields before Build seals
// it (§4.5's "builder pattern... immutable-after-build").
type ServiceBuilder struct {
	sd ServiceDescribe
}

// NewService starts building a service registration for method.
func NewService(method string) *ServiceBuilder {
	return &ServiceBuilder{sd: ServiceDescribe{Method: method}}
}

// Param declares one required parameter, in call order.
func (b *ServiceBuilder) Param(name string, t ValueType) *ServiceBuilder {
	b.sd.Params = append(b.sd.Params, Param{Name: name, Type: t})
	return b
}

// Returns declares the handler's result shape.
func (b *ServiceBuilder) Returns(t ValueType) *ServiceBuilder {
	b.sd.Return = t
	return b
}

// Handle attaches the method's implementation.
func (b *ServiceBuilder) Handle(h Handler) *ServiceBuilder {
	b.sd.Handler = h
	return b
}

// Build seals and returns the ServiceDescribe.
func (b *ServiceBuilder) Build() *ServiceDescribe {
	sd := b.sd
	sd.Params = append([]Param(nil), b.sd.Params...)
	return &sd
}

// ServiceManager holds the server-side method table and implements the
// RPC_REQ handler (§4.5).
type ServiceManager struct {
	mu       sync.RWMutex
	services map[string]*ServiceDescribe

	framer *frame.Framer
	log    *zerolog.Logger
}

// NewServiceManager returns an empty ServiceManager.
func NewServiceManager() *ServiceManager {
	return &ServiceManager{
		services: make(map[string]*ServiceDescribe),
		framer:   frame.New(),
		log:      logging.WithComponent("rpc.router"),
	}
}

// Register installs sd. Registering the same method name twice replaces
// the previous entry; callers that want immutability should only call
// Register once per method during wiring.
func (m *ServiceManager) Register(sd *ServiceDescribe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[sd.Method] = sd
}

// Lookup returns the ServiceDescribe registered for method, if any.
func (m *ServiceManager) Lookup(method string) (*ServiceDescribe, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sd, ok := m.services[method]
	return sd, ok
}

// HandleRequest is the dispatcher target for RPC_REQ (§4.5 steps 1-5).
func (m *ServiceManager) HandleRequest(conn transport.Conn, req *message.RPCRequest) {
	rsp := message.NewRPCResponse()
	rsp.SetID(req.ID())
	rsp.SetResult(map[string]interface{}{})

	sd, ok := m.Lookup(req.Method())
	if !ok {
		rsp.SetRCode(message.ServiceNotFound)
		m.send(conn, rsp)
		return
	}

	params := req.Parameters()
	for _, p := range sd.Params {
		v, present := params[p.Name]
		if !present || !CheckValue(v, p.Type) {
			rsp.SetRCode(message.InvalidParams)
			m.send(conn, rsp)
			return
		}
	}

	result, err := sd.Handler(params)
	if err != nil {
		m.log.Error().Err(err).Str("method", req.Method()).Msg("handler returned an error")
		rsp.SetRCode(message.InternalError)
		m.send(conn, rsp)
		return
	}
	if !CheckValue(result, sd.Return) {
		m.log.Error().Str("method", req.Method()).Msg("handler result does not match declared return type")
		rsp.SetRCode(message.InternalError)
		m.send(conn, rsp)
		return
	}

	rsp.SetRCode(message.OK)
	rsp.SetResult(result)
	m.send(conn, rsp)
}

func (m *ServiceManager) send(conn transport.Conn, rsp *message.RPCResponse) {
	data, err := m.framer.Encode(rsp)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to encode RPC_RSP")
		return
	}
	if err := conn.Send(data); err != nil {
		m.log.Warn().Err(err).Str("conn", conn.ID()).Msg("failed to send RPC_RSP")
	}
}
