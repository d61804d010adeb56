// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command corerpcd is a demo server binding the RPC method table, the
// provider/discoverer registry, and the topic manager onto one listener.
// It registers a single "Echo" method so corerpcctl has something to call
// out of the box.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexusrpc/corerpc"
	"github.com/nexusrpc/corerpc/internal/config"
	"github.com/nexusrpc/corerpc/internal/logging"
	"github.com/nexusrpc/corerpc/internal/workerpool"
	"github.com/nexusrpc/corerpc/rpc"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.json")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := logging.Init(&logging.Config{Level: cfg.LogLevel, Format: "console", Output: "stdout"}); err != nil {
		panic(err)
	}
	if err := workerpool.Init(cfg.WorkerPoolSize); err != nil {
		panic(err)
	}
	log := logging.WithComponent("corerpcd")

	srv, err := corerpc.Listen(cfg.ListenAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("listen failed")
	}

	srv.Services().Register(rpc.NewService("Echo").
		Param("message", rpc.TypeString).
		Returns(rpc.TypeString).
		Handle(func(params map[string]interface{}) (interface{}, error) {
			return params["message"], nil
		}).Build())

	log.Info().Str("addr", srv.Addr().String()).Msg("corerpcd listening")

	go func() {
		if err := srv.Serve(); err != nil {
			log.Error().Err(err).Msg("serve exited")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")
	srv.Close()
}
