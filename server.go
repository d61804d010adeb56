// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package corerpc

import (
	"net"

	"github.com/nexusrpc/corerpc/dispatch"
	"github.com/nexusrpc/corerpc/message"
	"github.com/nexusrpc/corerpc/registry"
	"github.com/nexusrpc/corerpc/rpc"
	"github.com/nexusrpc/corerpc/topic"
	"github.com/nexusrpc/corerpc/transport"
)

// Server accepts connections and hosts the RPC method table, the
// provider/discoverer registry, and the topic manager (§4.5-§4.8,
// server side). One Server can back all three facilities at once, since
// they share nothing but the dispatcher and the connections themselves.
type Server struct {
	disp     *dispatch.Dispatcher
	services *rpc.ServiceManager
	registry *registry.Registry
	topics   *topic.Manager

	tcp *transport.TCPServer
}

// Listen binds addr and wires an empty Server. Register RPC methods on the
// returned Server's Services accessor before Serve.
func Listen(addr string) (*Server, error) {
	s := &Server{
		disp:     dispatch.New(),
		services: rpc.NewServiceManager(),
		registry: registry.New(),
		topics:   topic.NewManager(),
	}

	dispatch.RegisterTyped(s.disp, message.RPCReq, s.services.HandleRequest)
	dispatch.RegisterTyped(s.disp, message.TopicReq, s.topics.HandleRequest)
	dispatch.RegisterTyped(s.disp, message.ServiceReq, s.registry.HandleRequest)

	ih := newIngressHandler(s.disp, s.onConnClose)
	tcp, err := transport.Listen(addr, ih)
	if err != nil {
		return nil, err
	}
	s.tcp = tcp
	return s, nil
}

func (s *Server) onConnClose(c transport.Conn) {
	s.registry.OnConnClose(c)
	s.topics.OnConnClose(c)
}

// Serve accepts connections until Close is called. It blocks; run it on
// its own goroutine.
func (s *Server) Serve() error { return s.tcp.Serve() }

// Close stops accepting connections and shuts every live one down.
func (s *Server) Close() error { return s.tcp.Close() }

// Addr returns the bound address.
func (s *Server) Addr() net.Addr { return s.tcp.Addr() }

// Services returns the server's RPC method table, for registering
// ServiceDescribe entries built with rpc.NewService (§4.5).
func (s *Server) Services() *rpc.ServiceManager { return s.services }

// Registry returns the server's provider/discoverer directory (§4.6),
// exposed for admin introspection (admin/httpjson) and for embedding
// applications that want a Snapshot of current providers.
func (s *Server) Registry() *registry.Registry { return s.registry }

// Topics returns the server's topic manager (§4.8), exposed for admin
// introspection and Snapshot access.
func (s *Server) Topics() *topic.Manager { return s.topics }
