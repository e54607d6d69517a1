package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/devfurlan/cuidly-sub007/internal/pendingops"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
)

func newPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Inspect and retry queued gateway operations",
	}

	var (
		includeTerminal bool
		subscription    string
		limit           int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List queued operations, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := buildListFilter(includeTerminal, subscription, limit)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			ops, err := a.components.PendingOps.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			writeOperations(cmd, ops)
			return nil
		},
	}
	list.Flags().BoolVar(&includeTerminal, "all", false, "include terminal operations")
	list.Flags().StringVar(&subscription, "subscription", "", "only operations of this subscription id")
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows to print")

	retry := &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry one operation now, ignoring its backoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid operation id: %w", err)
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.components.PendingOps.Retry(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "retried", id)
			return nil
		},
	}

	cmd.AddCommand(list, retry)
	return cmd
}

func buildListFilter(includeTerminal bool, subscription string, limit int) (pendingops.ListFilter, error) {
	filter := pendingops.ListFilter{IncludeTerminal: includeTerminal, Limit: limit}
	if subscription != "" {
		id, err := uuid.Parse(subscription)
		if err != nil {
			return filter, fmt.Errorf("invalid --subscription: %w", err)
		}
		filter.SubscriptionID = &id
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return filter, nil
}

func writeOperations(cmd *cobra.Command, ops []models.PendingPaymentOperation) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSUBSCRIPTION\tEXTERNAL\tATTEMPTS\tSTATE\tLAST ERROR")
	for _, op := range ops {
		state := "pending"
		if op.TerminalAt != nil {
			state = "terminal"
		}
		lastErr := ""
		if op.LastError != nil {
			lastErr = *op.LastError
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n", op.ID, op.Type, op.SubscriptionID, op.ExternalID, op.AttemptCount, state, lastErr)
	}
	_ = tw.Flush()
}
