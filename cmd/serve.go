package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"modqueue/internal/bootstrap"
	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/errs"
	"modqueue/internal/httpapi"
	"modqueue/internal/infrastructure/cache"
	"modqueue/internal/usecase/review"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the review API, run the stale sweep and watch the review profile",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *review.Service) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		if err := app.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "initialize schema")
		}
		tokens, err := app.Tokens()
		if err != nil {
			return err
		}
		scheduler, err := review.NewSweepScheduler(svc, app.Config.Review.SweepSchedule, review.AutoHandleAge(app.Config.Review.AutoHandleQueuedAge))
		if err != nil {
			return err
		}
		scheduler.PurgeCache(cache.NewKVStore(app.DB))

		addr, _ := cmd.Flags().GetString("addr")
		if strings.TrimSpace(addr) == "" {
			addr = app.Config.HTTP.Addr
		}
		server := &http.Server{
			Addr:              addr,
			Handler:           httpapi.NewRouter(httpapi.Deps{Reviews: svc, Tokens: tokens, Gatherer: app.Metrics, Events: app.Events}),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(_ net.Listener) context.Context { return ctx },
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			logging.Info(ctx, "http server listening", slog.String("addr", addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errs.Wrap(err, "serve http")
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return errs.Wrap(err, "shutdown http")
			}
			logging.Info(ctx, "http server stopped")
			return nil
		})
		group.Go(func() error {
			return scheduler.Run(groupCtx)
		})
		if path := strings.TrimSpace(app.Config.Review.ProfileFile); path != "" {
			group.Go(func() error {
				return app.Profile.Watch(groupCtx, path)
			})
		}

		return group.Wait()
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default: http.addr)")
}
