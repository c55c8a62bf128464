package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"lfsgate/pkg/app"
	"lfsgate/pkg/server"
	"lfsgate/pkg/sshd"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (and the SSH gateway when enabled)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// 1. Init Core Application
		application, err := app.NewApp(ctx, settings)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		defer application.Close()

		// 2. Setup Servers
		httpSrv := server.New(settings.Addr(), application)

		var sshSrv *sshd.Server
		if settings.SSH.Enabled {
			hostKey, err := sshd.LoadHostKey(settings.SSH.Key.Private)
			if err != nil {
				return err
			}
			sshSrv = sshd.New(hostKey, application.Authenticator, application.BaseURL)
		}

		// 3. Start (Async) + Graceful Shutdown
		g, gctx := errgroup.WithContext(ctx)
		g.Go(httpSrv.ListenAndServe)
		if sshSrv != nil {
			g.Go(func() error { return sshSrv.ListenAndServe(settings.SSHAddr()) })
		}
		g.Go(func() error {
			<-gctx.Done()
			slog.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if sshSrv != nil {
				if err := sshSrv.Shutdown(shutdownCtx); err != nil {
					slog.Warn("ssh shutdown", "err", err)
				}
			}
			return httpSrv.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			return err
		}
		slog.Info("server stopped")
		return nil
	},
}
