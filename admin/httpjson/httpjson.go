//go:build httpadmin

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package httpjson exposes read-only registry and topic introspection over
// JSON-RPC-over-HTTP, using the same gorilla/rpc json2 codec the teacher's
// json.go used client-side for talking to node RPC endpoints. This is an
// administrative side channel only: it never touches the core's own
// length-prefixed wire protocol, and it never mutates registry or topic
// state.
package httpjson

import (
	"net/http"

	gorillarpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/nexusrpc/corerpc/registry"
	"github.com/nexusrpc/corerpc/topic"
)

// AdminService is the JSON-RPC service registered on the bridge. Every
// method is a read-only snapshot; there is no way to mutate registry or
// topic state through this surface.
type AdminService struct {
	registry *registry.Registry
	topics   *topic.Manager
}

// Empty is the (always-empty) argument type for AdminService's
// no-parameter methods.
type Empty struct{}

// ProvidersReply carries a point-in-time provider snapshot.
type ProvidersReply struct {
	Providers []registry.ProviderInfo `json:"providers"`
}

// ListProviders returns every provider currently registered with the
// core's registry.
func (a *AdminService) ListProviders(r *http.Request, args *Empty, reply *ProvidersReply) error {
	reply.Providers = a.registry.Snapshot()
	return nil
}

// TopicsReply carries a point-in-time topic snapshot.
type TopicsReply struct {
	Topics []topic.TopicInfo `json:"topics"`
}

// ListTopics returns every topic currently known to the core's topic
// manager, with subscriber counts.
func (a *AdminService) ListTopics(r *http.Request, args *Empty, reply *TopicsReply) error {
	reply.Topics = a.topics.Snapshot()
	return nil
}

// NewHandler builds an http.Handler serving AdminService over JSON-RPC 2.0
// at a single path, following the teacher's gorilla/rpc wiring but on the
// server side rather than as a client of some other JSON-RPC endpoint.
func NewHandler(reg *registry.Registry, topics *topic.Manager) (http.Handler, error) {
	server := gorillarpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	if err := server.RegisterService(&AdminService{registry: reg, topics: topics}, "Admin"); err != nil {
		return nil, err
	}
	return server, nil
}
