// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package corerpc wires the framing, message, dispatch, requestor,
// registry, and topic packages into a single Server/Client facade over the
// TCP reference transport.
//
// # Usage
//
// Server:
//
//	srv, err := corerpc.Listen(":9090")
//	srv.Services().Register(rpc.NewService("Add").
//	    Param("num1", rpc.TypeNumeric).Param("num2", rpc.TypeNumeric).
//	    Returns(rpc.TypeNumeric).
//	    Handle(func(p map[string]interface{}) (interface{}, error) {
//	        return p["num1"].(float64) + p["num2"].(float64), nil
//	    }).Build())
//	go srv.Serve()
//
// Client:
//
//	cli, err := corerpc.Dial(addr)
//	result, err := cli.Caller().CallBlocking(ctx, "Add", map[string]interface{}{
//	    "num1": 10.0, "num2": 20.0,
//	})
//
// # Architecture
//
// The package separates concerns the way the rest of the module does:
//
//   - wire.go: the shared ingress loop (§4.1) that drains frames from a
//     connection's cumulative read buffer and dispatches each one,
//     tearing the connection down past the oversized-frame cap.
//   - server.go: accepts connections, owns the registry, topic manager and
//     RPC service table.
//   - client.go: dials a server, owns the requestor, RPC caller,
//     discovery cache and topic client for that connection.
//
// Application code should depend on Server/Client rather than reaching
// into the leaf packages directly, the way the teacher's Client/Server
// interfaces kept transport selection out of application code.
package corerpc
