// Command ncached runs the cache engine's HTTP-addressable daemon
// (spec.md §2, SPEC_FULL.md §6.1).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"

	"github.com/ncache/ncache/internal/cmn"
	"github.com/ncache/ncache/internal/config"
	"github.com/ncache/ncache/internal/engine"
	"github.com/ncache/ncache/internal/hk"
	"github.com/ncache/ncache/internal/stats"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults to a built-in configuration)")
	flag.Parse()
	defer cmn.Flush()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			cmn.Errorln("ncached: config load failed:", err)
			os.Exit(1)
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		cmn.Errorln("ncached: default config invalid:", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		cmn.Errorln("ncached: engine init failed:", err)
		os.Exit(1)
	}
	prometheus.MustRegister(stats.NewCollector(eng.Stats))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	housekeeper := hk.New(eng, cfg)
	go housekeeper.Run(ctx)

	srv := engine.NewServer(eng)
	httpServer := &fasthttp.Server{
		Handler: srv.Handler,
		Name:    "ncached",
	}

	go func() {
		glog.Infof("ncached: listening on %s (root=%s)", cfg.ListenAddr, cfg.Root)
		if err := httpServer.ListenAndServe(cfg.ListenAddr); err != nil {
			cmn.Errorln("ncached: http server stopped:", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	glog.Infoln("ncached: shutting down")
	cancel()
	_ = httpServer.Shutdown()
}
