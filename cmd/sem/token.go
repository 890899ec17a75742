package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/semaphore/internal/scale"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect scale tokens",
	}

	cmd.AddCommand(newTokenDecodeCmd())
	return cmd
}

func newTokenDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <token>",
		Short: "Decode a capacity#expiry token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenDecode(cmd, args[0], time.Now())
		},
	}
}

func runTokenDecode(cmd *cobra.Command, token string, now time.Time) error {
	units, expiresAt, err := scale.ParseToken(token)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Capacity: %d\n", units)
	fmt.Fprintf(out, "Expires:  %s\n", expiresAt.Format(scale.TimeLayout))
	if expiresAt.After(now) {
		fmt.Fprintf(out, "Status:   active (%s left)\n", expiresAt.Sub(now).Truncate(time.Second))
	} else {
		fmt.Fprintf(out, "Status:   expired (%s ago)\n", now.Sub(expiresAt).Truncate(time.Second))
	}
	return nil
}
