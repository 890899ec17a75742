package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/db"
	"github.com/zulandar/semaphore/internal/models"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "SQL worker registry commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBSeedCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the workers table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Semaphore config file")
	return cmd
}

func newDBSeedCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo workers for local runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBSeed(cmd, configPath, time.Now())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Semaphore config file")
	return cmd
}

func openRegistryDB(configPath string) (*runtime, error) {
	rt, err := loadRuntime(configPath)
	if err != nil {
		return nil, err
	}
	if rt.cfg.Registry.Backend != config.RegistrySQL {
		rt.Close()
		return nil, fmt.Errorf("registry.backend is %q; db commands need %q", rt.cfg.Registry.Backend, config.RegistrySQL)
	}
	return rt, nil
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	rt, err := openRegistryDB(configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	gormDB, err := rt.database()
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(db.AllModels()))
	return nil
}

// demoWorkers returns a small fleet with one busy and two idle workers.
func demoWorkers(now time.Time) []models.Worker {
	return []models.Worker{
		{Name: "worker-1", Hostname: "rq-host-a", Queues: "default,queries", State: "busy",
			SuccessfulJobs: 120, FailedJobs: 3, TotalWorkingTime: 5400.25, LastHeartbeat: now, BirthDate: now.Add(-6 * time.Hour)},
		{Name: "worker-2", Hostname: "rq-host-a", Queues: "default", State: "idle",
			SuccessfulJobs: 87, FailedJobs: 0, TotalWorkingTime: 2310.5, LastHeartbeat: now, BirthDate: now.Add(-6 * time.Hour)},
		{Name: "worker-3", Hostname: "rq-host-b", Queues: "periodic,schemas", State: "idle",
			SuccessfulJobs: 14, FailedJobs: 1, TotalWorkingTime: 96, LastHeartbeat: now.Add(-30 * time.Second), BirthDate: now.Add(-2 * time.Hour)},
	}
}

func runDBSeed(cmd *cobra.Command, configPath string, now time.Time) error {
	rt, err := openRegistryDB(configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	gormDB, err := rt.database()
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	workers := demoWorkers(now)
	for i := range workers {
		if err := db.UpsertWorker(gormDB, &workers[i]); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d workers\n", len(workers))
	return nil
}
