// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clstr-network/clstr/connection"
	"github.com/clstr-network/clstr/directory"
	"github.com/clstr-network/clstr/eligibility"
	"github.com/clstr-network/clstr/lib/clock"
	"github.com/clstr-network/clstr/lib/service"
	"github.com/clstr-network/clstr/lib/sqlitepool"
	"github.com/clstr-network/clstr/lib/version"
	"github.com/clstr-network/clstr/messaging"
	"github.com/clstr-network/clstr/policy"
	"github.com/clstr-network/clstr/realtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   string
		socketPath   string
		databasePath string
		showVersion  bool
	)

	flag.StringVar(&configPath, "config", "", "YAML config file")
	flag.StringVar(&socketPath, "socket", "", "Unix socket path (overrides config)")
	flag.StringVar(&databasePath, "database", "", "SQLite database path (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("clstr-messaging-service %s\n", version.Info())
		return nil
	}

	var config Config
	if configPath != "" {
		loaded, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		config = loaded
	}
	if socketPath != "" {
		config.Socket = socketPath
	}
	if databasePath != "" {
		config.Database = databasePath
	}
	if err := config.validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Database,
		PoolSize: config.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	ledger, err := connection.Open(ctx, connection.Config{
		Pool:   pool,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	dir, err := directory.OpenStore(ctx, directory.StoreConfig{
		Pool:   pool,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if config.Seed != "" {
		identities, err := directory.ReadSeedFile(config.Seed)
		if err != nil {
			return err
		}
		if err := dir.Provision(ctx, identities); err != nil {
			return err
		}
		logger.Info("directory seeded",
			"file", config.Seed,
			"identities", len(identities),
		)
	}

	var roles policy.RoleSet
	if config.Policy != "" {
		roles, err = policy.LoadFile(config.Policy)
		if err != nil {
			return err
		}
	}

	engine, err := eligibility.New(eligibility.Config{
		Connections: ledger,
		Directory:   dir,
		Policy:      roles,
	})
	if err != nil {
		return err
	}

	store, err := messaging.OpenStore(ctx, messaging.StoreConfig{
		Pool:   pool,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	hub := realtime.NewHub(logger)

	messagingService, err := messaging.NewService(messaging.ServiceConfig{
		Store:       store,
		Eligibility: engine,
		Directory:   dir,
		Publisher:   hub,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ms := &MessagingService{
		service:   messagingService,
		ledger:    ledger,
		directory: dir,
		hub:       hub,
		clock:     clk,
		startedAt: clk.Now(),
		heartbeat: config.Heartbeat,
		logger:    logger,
	}

	socketServer := service.NewSocketServer(config.Socket, logger)
	ms.registerActions(socketServer)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	logger.Info("messaging service running",
		"socket", config.Socket,
		"database", config.Database,
	)

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	// Wait for the socket server to drain active connections.
	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}

	return nil
}

// MessagingService is the core daemon state: the domain services plus
// what the socket handlers need to answer requests.
type MessagingService struct {
	service   *messaging.Service
	ledger    *connection.Ledger
	directory *directory.Store
	hub       *realtime.Hub
	clock     clock.Clock

	startedAt time.Time
	heartbeat time.Duration

	logger *slog.Logger
}
