package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtzanidakis/fedpipe/internal/config"
	"github.com/mtzanidakis/fedpipe/internal/engine"
	"github.com/mtzanidakis/fedpipe/internal/natsbus"
)

type localEngine struct {
	bus    *natsbus.Bus
	conn   *natsbus.Client
	server *engine.Server
}

func (e *localEngine) close() {
	e.server.Stop()
	e.conn.Close()
	e.bus.Close()
}

// startEngine serves the local engine on an embedded NATS server.
func startEngine(cfg *config.Config) (*localEngine, error) {
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return nil, fmt.Errorf("init nats: %w", err)
	}
	conn, err := natsbus.NewClient(bus)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	local := engine.NewLocal(engine.WithBackends(engine.BackendLocal, cfg.Backend))
	srv := engine.NewServer(local, conn)
	if err := srv.Start(); err != nil {
		conn.Close()
		bus.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}
	slog.Info("local engine started", "url", bus.ClientURL(), "backend", cfg.Backend)
	return &localEngine{bus: bus, conn: conn, server: srv}, nil
}

func runEngine() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("starting fedpipe engine", "version", version)

	eng, err := startEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	return nil
}
