// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command corerpcctl is a demo CLI client: it dials a corerpcd instance
// and issues one blocking Echo call, printing the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nexusrpc/corerpc"
	"github.com/nexusrpc/corerpc/internal/logging"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9090", "corerpcd address")
	message := flag.String("message", "hello", "message to echo")
	flag.Parse()

	_ = logging.Init(logging.DefaultConfig())

	cli, err := corerpc.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := cli.Caller().CallBlocking(ctx, "Echo", map[string]interface{}{"message": *message})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Echo call failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(result)
}
