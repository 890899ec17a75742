package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/zulandar/semaphore/internal/metrics"
)

func newMetricsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print the worker metrics exposition once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetrics(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Semaphore config file")
	return cmd
}

func runMetrics(cmd *cobra.Command, configPath string) error {
	rt, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	collector, err := rt.collector()
	if err != nil {
		return err
	}
	records, err := collector.Collect(context.Background())
	if err != nil {
		return err
	}
	return metrics.New(rt.cfg.Metrics.Prefix).Write(cmd.OutOrStdout(), records)
}
