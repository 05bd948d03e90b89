package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/neurofed/axon/pkg/log"
	"github.com/neurofed/axon/pkg/metrics"
	"github.com/neurofed/axon/pkg/node"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis node",
	Long: `Start the node: catalog registry, upload store, approval machine,
job runner, reconciler, and the metrics/health endpoint. The node runs
until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	n.Start()
	defer n.Stop()

	logger := log.WithComponent("serve")
	var g run.Group

	// Signal handling.
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				logger.Info().Str("signal", sig.String()).Msg("Shutting down")
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}, func(error) {
			cancel()
		})
	}

	// Event log drain.
	{
		sub := n.Events().Subscribe()
		stop := make(chan struct{})
		g.Add(func() error {
			for {
				select {
				case ev, ok := <-sub:
					if !ok {
						return nil
					}
					logger.Info().
						Str("event", string(ev.Type)).
						Str("request_id", ev.RequestID).
						Msg(ev.Message)
				case <-stop:
					return nil
				}
			}
		}, func(error) {
			close(stop)
		})
	}

	// Metrics and health endpoint.
	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", metrics.HealthHandler())
		mux.HandleFunc("/readyz", metrics.ReadyHandler())
		srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}

		g.Add(func() error {
			logger.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("Metrics endpoint listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}

	fmt.Printf("Axon node serving from %s\n", cfg.RootDir)
	return g.Run()
}
