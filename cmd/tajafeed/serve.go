package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Adda-Baaj/taja-feed/internal/api"
	"github.com/Adda-Baaj/taja-feed/internal/config"
	"github.com/Adda-Baaj/taja-feed/internal/scheduler"
	"github.com/Adda-Baaj/taja-feed/pkg/feedgen"
)

func serveCmd(opts *config.Options) *cobra.Command {
	var (
		addrFlag     string
		scheduleFlag bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve feeds over HTTP and optionally rebuild them on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *opts)
			if err != nil {
				return err
			}
			defer a.Close()

			addr := a.cfg.Server.Addr
			if addrFlag != "" {
				addr = addrFlag
			}

			if scheduleFlag || a.cfg.Scheduler.Enabled {
				sched, err := newScheduler(a)
				if err != nil {
					return err
				}
				sched.Start()
				defer func() { <-sched.Stop().Done() }()
			}

			gin.SetMode(gin.ReleaseMode)
			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewServer(a.pipeline, a.log, a.cfg.Server.RunTimeout).NewRouter(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.InfoObj("http server listening", "http_listen", map[string]any{"addr": addr})
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&scheduleFlag, "schedule", false, "run the periodic feed builder")
	return cmd
}

func newScheduler(a *app) (*scheduler.Scheduler, error) {
	format, err := feedgen.ParseFormat(a.cfg.Scheduler.Format)
	if err != nil {
		return nil, err
	}

	var pub scheduler.FeedPublisher
	if a.cfg.Scheduler.Publish && a.dispatcher != nil {
		pub = a.dispatcher
	}
	return scheduler.New(scheduler.Options{
		Spec:       a.cfg.Scheduler.Spec,
		OutputDir:  a.cfg.Scheduler.OutputDir,
		Format:     format,
		Sources:    a.cfg.Scheduler.Sources,
		RunTimeout: a.cfg.Server.RunTimeout,
	}, a.pipeline, pub, a.log)
}
