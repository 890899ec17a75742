package main

import (
	"context"
	"fmt"
	"os/user"

	"github.com/spf13/cobra"
	"github.com/zulandar/semaphore/internal/scale"
	"github.com/zulandar/semaphore/internal/signal"
)

func newScaleCmd() *cobra.Command {
	var (
		configPath string
		size       int
		level      string
		hours      float64
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "scale",
		Short: "Send one scale-out signal",
		Long: "Encodes a scale-out request with the configured scale mode and pushes it through the configured dispatcher.\n" +
			"Use --size in direct mode or --level in tiered mode. Omitted values use the configured defaults.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req scale.Request
			if cmd.Flags().Changed("size") {
				req.Size = &size
			}
			if cmd.Flags().Changed("hours") {
				req.Hours = &hours
			}
			req.Level = level
			return runScale(cmd, configPath, req, dryRun)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Semaphore config file")
	cmd.Flags().IntVar(&size, "size", 0, "capacity units (direct mode)")
	cmd.Flags().StringVar(&level, "level", "", "tier name (tiered mode)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "hours until the capacity expires")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the token without dispatching it")
	return cmd
}

func runScale(cmd *cobra.Command, configPath string, req scale.Request, dryRun bool) error {
	out := cmd.OutOrStdout()

	rt, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	if dryRun {
		sig, err := scale.NewEncoder(rt.cfg.Scale).Encode(req)
		if err != nil {
			return err
		}
		printSignal(cmd, sig)
		fmt.Fprintln(out, "Dry run: nothing was dispatched.")
		return nil
	}

	svc, err := rt.service()
	if err != nil {
		return err
	}
	res, err := svc.Request(context.Background(), req, signal.Origin{Source: "cli", Requester: cliRequester()})
	if err != nil {
		return err
	}
	printSignal(cmd, res.Signal)
	fmt.Fprintf(out, "Queue depth: %d\n", res.Result.QueueDepth)
	return nil
}

func printSignal(cmd *cobra.Command, sig scale.Signal) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Token:    %s\n", sig.Token)
	if sig.Level != "" {
		fmt.Fprintf(out, "Level:    %s\n", sig.Level)
	}
	fmt.Fprintf(out, "Capacity: %d\n", sig.CapacityUnits)
	fmt.Fprintf(out, "Expires:  %s (in %gh)\n", sig.ExpiresAtString(), sig.Hours)
}

func cliRequester() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}
