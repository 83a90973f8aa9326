package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/autobudgeter/internal/cli"
)

func auditCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the most recent audit events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			events, err := a.store.ListAudit(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list audit events: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}

			table := cli.NewTable(out, "Time", "Event", "Payload")
			for _, e := range events {
				payload, err := json.Marshal(e.Payload)
				if err != nil {
					return fmt.Errorf("failed to encode payload of %s: %w", e.ID, err)
				}
				table.Row(e.CreatedAt.In(a.cfg.Settings.Location).Format("2006-01-02 15:04:05"), e.EventType, string(payload))
			}
			return table.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of events to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON")
	return cmd
}

