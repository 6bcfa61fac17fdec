package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/rendis/macta/internal/panel"
	"github.com/rendis/macta/internal/scheduler"
	"github.com/rendis/macta/pkg/mcp"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the dashboard API and run scheduled simulations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen-addr", Usage: "TCP listen address (default :4200)"},
			&cli.IntFlag{Name: "pool-size", Usage: "concurrent replication runs"},
			&cli.BoolFlag{Name: "no-scheduler", Usage: "do not run scheduled simulations"},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched := scheduler.NewScheduler(rt.store, rt.service, rt.logger)
	if rt.cfg.Scheduler {
		if err := sched.RecoverMissed(ctx); err != nil {
			rt.logger.Warn("missed schedule recovery failed", slog.String("error", err.Error()))
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	srv := panel.NewPanelServer(panel.PanelDeps{
		Service:   rt.service,
		Scheduler: sched,
		Store:     rt.store,
		Logger:    rt.logger,
	})
	httpSrv := &http.Server{
		Addr:              rt.cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("api listening", slog.String("addr", rt.cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the analysis tools over MCP stdio",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rt, err := openRuntime(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			srv := mcp.NewMactaServer(mcp.MactaServerDeps{Service: rt.service, Logger: rt.logger})
			return srv.Serve(ctx)
		},
	}
}
