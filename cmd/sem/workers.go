package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/semaphore/internal/registry"
	"golang.org/x/term"
)

// fixedColumnsWidth approximates the width of every column but QUEUES.
const fixedColumnsWidth = 100

func newWorkersCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "workers",
		Short: "List workers in the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkers(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Semaphore config file")
	return cmd
}

func runWorkers(cmd *cobra.Command, configPath string) error {
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

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No workers registered.")
		return nil
	}
	writeWorkerTable(out, records, queueColumnWidth())
	return nil
}

func writeWorkerTable(out io.Writer, records []registry.Record, queueWidth int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tHOSTNAME\tSTATE\tOK\tFAILED\tWORKING\tHEARTBEAT\tQUEUES")
	for _, r := range records {
		heartbeat := "-"
		if !r.LastHeartbeat.IsZero() {
			heartbeat = r.LastHeartbeat.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.Name, r.Hostname, r.State, r.SuccessfulJobs, r.FailedJobs,
			formatSeconds(r.TotalWorkingTime), heartbeat, truncate(r.QueuesLabel(), queueWidth))
	}
	w.Flush()
}

// queueColumnWidth returns the room left for the QUEUES column on the
// attached terminal, or 0 for no limit.
func queueColumnWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= fixedColumnsWidth {
		return 0
	}
	return width - fixedColumnsWidth
}

func formatSeconds(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Second).String()
}

// truncate shortens s to n runes with a trailing ellipsis. n <= 0 means no limit.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
