package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/plexproxy/internal/cache"
	"github.com/desertthunder/plexproxy/internal/models"
	"github.com/desertthunder/plexproxy/internal/proxy"
	"github.com/desertthunder/plexproxy/internal/server"
	"github.com/desertthunder/plexproxy/internal/shared"
	"github.com/desertthunder/plexproxy/internal/tickets"
)

const defaultShutdownTimeout = 10 * time.Second

// Serve runs the proxy until SIGINT or SIGTERM, then drains in-flight requests.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	if addr := cmd.String("addr"); addr != "" {
		if err := applyAddr(config, addr); err != nil {
			return err
		}
	}

	if err := config.Validate(); err != nil {
		return err
	}

	plex, err := r.newPlexService(config)
	if err != nil {
		return err
	}

	sweep := cache.WithJanitor(config.Tickets.SweepInterval)
	ticketStore := cache.New[string](sweep)
	defer ticketStore.Close()
	recoveryStore := cache.New[string](sweep)
	defer recoveryStore.Close()
	listingStore := cache.New[models.PlaylistsView](sweep)
	defer listingStore.Close()

	p := proxy.New(
		tickets.NewIssuer(ticketStore, config.Tickets.TTL),
		tickets.NewRecoveryIndex(recoveryStore, config.Tickets.RecoveryTTL),
		plex, plex, r.logger,
	)
	srv := server.New(server.NewAPI(p, plex, plex, listingStore, r.logger), server.Options{
		Addr:           config.Addr(),
		StaticDir:      config.Server.StaticDir,
		AllowedOrigins: config.Server.AllowedOrigins,
		Logger:         r.logger,
	})

	r.logger.Info("starting plexproxy", "config", config.String())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	r.logger.Info("shutting down", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Close(shutdownCtx)
}

// applyAddr overrides the configured host and port with a host:port string.
func applyAddr(config *shared.Config, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: --addr %q: %v", shared.ErrInvalidArgument, addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("%w: --addr port %q", shared.ErrInvalidArgument, portStr)
	}

	config.Server.Host = host
	config.Server.Port = port
	return nil
}
