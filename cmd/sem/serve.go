package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/semaphore/internal/metrics"
	"github.com/zulandar/semaphore/internal/scale"
	"github.com/zulandar/semaphore/internal/server"
	"github.com/zulandar/semaphore/internal/signal"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /metrics and the scale-out API",
		Long:  "Starts the HTTP server and any configured scale schedules. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Semaphore config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	rt, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	collector, err := rt.collector()
	if err != nil {
		return err
	}
	svc, err := rt.service()
	if err != nil {
		return err
	}
	sched, err := signal.NewScheduler(svc, rt.cfg.Schedules, rt.logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer ossignal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if sched.Len() > 0 {
		sched.Start()
		defer sched.Stop()
		fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %d scale request(s)\n", sched.Len())
	}

	if port <= 0 {
		port = rt.cfg.Server.Port
	}
	rt.logger.Info("starting server", "port", port,
		"registry", rt.cfg.Registry.Backend, "dispatch", rt.cfg.Dispatch.Backend, "scale_mode", rt.cfg.Scale.Mode)

	return server.Start(ctx, server.StartOpts{
		Collector: collector,
		Exporter:  metrics.New(rt.cfg.Metrics.Prefix),
		Scaler:    svc,
		Encoder:   scale.NewEncoder(rt.cfg.Scale),
		Auth:      rt.cfg.Auth,
		Logger:    rt.logger,
		Port:      port,
		Out:       cmd.OutOrStdout(),
	})
}
