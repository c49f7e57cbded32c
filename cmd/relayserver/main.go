// Package main provides the dedicated relay server binary. It hosts
// the authoritative room table and routes session traffic between
// clients that cannot reach each other directly.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/WangPengPT/ActionGame-sub000/internal/config"
	"github.com/WangPengPT/ActionGame-sub000/internal/observability"
	"github.com/WangPengPT/ActionGame-sub000/internal/relay"
	"github.com/WangPengPT/ActionGame-sub000/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file, defaults apply when empty")
	flag.Parse()

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting relay server",
		zap.String("addr", cfg.Relay.Addr()),
		zap.Int("max_rooms", cfg.Relay.MaxRooms),
	)

	srv := relay.NewServer(cfg.Relay, cfg.Lobby, cfg.Liveness, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("relay", srv)
	if cfg.Relay.Console {
		console := relay.NewConsole(srv, os.Stdin, os.Stdout, cancel, logger)
		lifecycle.Add("console", console)
	}

	logger.Info("relay initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
