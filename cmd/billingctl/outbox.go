package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newOutboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect the transactional outbox",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show pending and dead outbox rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			backlog, err := a.components.OutboxRepo.Backlog(cmd.Context(), a.rt.Config.Outbox.MaxAttempts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pending: %d\n", backlog.Pending)
			fmt.Fprintf(out, "dead:    %d\n", backlog.Dead)
			if backlog.OldestPending != nil {
				age := time.Since(*backlog.OldestPending).Truncate(time.Second)
				fmt.Fprintf(out, "oldest pending: %s (%s ago)\n", backlog.OldestPending.Format(time.RFC3339), age)
			}
			return nil
		},
	})
	return cmd
}
