package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/alanyoungcy/darkpool/internal/app"
)

// session is one wired instance of the client for the life of a command.
type session struct {
	ctx  context.Context
	deps *app.Dependencies
	svc  *app.Services
	m    *metadata
}

// withSession wires dependencies, runs fn and tears everything down.
func withSession(c *cli.Context, fn func(s *session) error) error {
	m := c.App.Metadata["config"].(*metadata)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := app.Wire(ctx, m.cfg, m.logger)
	if err != nil {
		return fmt.Errorf("wire: %w", err)
	}
	defer cleanup()

	return fn(&session{
		ctx:  ctx,
		deps: deps,
		svc:  app.NewServices(m.cfg, deps, m.logger),
		m:    m,
	})
}

func requireMarket(c *cli.Context) (uint64, error) {
	id := c.Uint64("market")
	if id == 0 {
		return 0, errors.New("market id is required")
	}
	return id, nil
}
