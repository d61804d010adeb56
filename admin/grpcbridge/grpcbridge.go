//go:build grpc

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package grpcbridge is the optional administrative gRPC transport,
// mirroring the teacher's own build-tag-gated dial_grpc.go: it never
// carries core RPC/registry/topic traffic (that stays on the
// length-prefixed wire protocol), it only exposes the standard gRPC
// health-checking service plus server reflection so operators can point
// existing gRPC tooling
// (grpcurl, k8s gRPC probes) at a running corerpc node.
package grpcbridge

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Bridge owns the gRPC server and its health registry.
type Bridge struct {
	srv     *grpc.Server
	health  *health.Server
	ln      net.Listener
	service string
}

// Listen binds addr and constructs a Bridge whose health service reports
// service as NOT_SERVING until SetServing(true) is called, following the
// standard gRPC health-checking protocol's startup convention.
func Listen(addr, service string) (*Bridge, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer()
	h := health.NewServer()
	h.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, h)
	reflection.Register(srv)

	return &Bridge{srv: srv, health: h, ln: ln, service: service}, nil
}

// SetServing flips the health service's status for this bridge's service
// name, called by the owning application once the core Server has
// started (or stopped) accepting connections.
func (b *Bridge) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	b.health.SetServingStatus(b.service, status)
}

// Serve blocks, accepting gRPC connections until Close is called.
func (b *Bridge) Serve() error { return b.srv.Serve(b.ln) }

// Addr returns the bound address.
func (b *Bridge) Addr() net.Addr { return b.ln.Addr() }

// Close stops the gRPC server immediately.
func (b *Bridge) Close() { b.srv.Stop() }
