package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			status, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag || !stdoutIsTerminal() {
				return printJSON(cmd, status)
			}
			rows := [][]string{
				{"Running", yesNo(status.Running)},
				{"PID", strconv.Itoa(status.PID)},
				{"Database", status.DatabasePath},
				{"Lock file", status.LockFilePath},
				{"Cases", strconv.Itoa(status.CaseCount)},
			}
			cmd.Println(renderTable([]string{"Field", "Value"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Print raw JSON output")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
