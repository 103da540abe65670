package main

import (
	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Start and walk review queue sessions",
	}
	queueCmd.AddCommand(newQueueStartCommand(ctx))
	queueCmd.AddCommand(newQueueNextCommand(ctx))
	queueCmd.AddCommand(newQueueMarkCommand(ctx))
	return queueCmd
}

func newQueueStartCommand(ctx *commandContext) *cobra.Command {
	var filterFlags []string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a review queue for the given filters",
		Example: `  caseflow queue start
  caseflow queue start -f modality=CT -f region=head`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseFilterArgs(filterFlags)
			if err != nil {
				return err
			}
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			state, err := c.StartSession(cmd.Context(), filters)
			if err != nil {
				return err
			}
			return printQueueState(cmd, state, jsonFlag)
		},
	}
	cmd.Flags().StringArrayVarP(&filterFlags, "filter", "f", nil, "Filter criterion as key=value (repeatable)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Print raw JSON output")
	return cmd
}

func newQueueNextCommand(ctx *commandContext) *cobra.Command {
	var previousCase string
	var previousStatus string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "next <session-id>",
		Short: "Advance a queue session to the next case",
		Example: `  caseflow queue next 6f1c...
  caseflow queue next 6f1c... --previous-case case-12 --previous-status completed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			state, err := c.NextCase(cmd.Context(), args[0], previousCase, previousStatus)
			if err != nil {
				return err
			}
			return printQueueState(cmd, state, jsonFlag)
		},
	}
	cmd.Flags().StringVar(&previousCase, "previous-case", "", "Case being left behind")
	cmd.Flags().StringVar(&previousStatus, "previous-status", "", "Status to record for it (completed, skipped, viewed)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Print raw JSON output")
	return cmd
}

func newQueueMarkCommand(ctx *commandContext) *cobra.Command {
	var filterFlags []string
	var sessionFlag string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "mark <case-id> <status>",
		Short: "Record a completed or skipped decision for a case",
		Long: `Record a terminal decision for a case. With -f flags the decision is
scoped to that filter context; without them it applies globally and the
case stops appearing in every queue.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseFilterArgs(filterFlags)
			if err != nil {
				return err
			}
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			record, err := c.MarkCase(cmd.Context(), args[0], args[1], filters, sessionFlag)
			if err != nil {
				return err
			}
			if jsonFlag || !stdoutIsTerminal() {
				return printJSON(cmd, record)
			}
			scope := record.Scope
			if scope == "" {
				scope = "global"
			}
			cmd.Printf("Recorded %s for %s (scope %s)\n", record.Status, record.CaseID, scope)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&filterFlags, "filter", "f", nil, "Filter criterion as key=value (repeatable)")
	cmd.Flags().StringVar(&sessionFlag, "session", "", "Session id to stamp on the record")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Print raw JSON output")
	return cmd
}
