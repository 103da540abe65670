package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"caseflow/internal/catalog"
	"caseflow/internal/storage"
)

func newCasesCommand(ctx *commandContext) *cobra.Command {
	casesCmd := &cobra.Command{
		Use:   "cases",
		Short: "Inspect and import catalog cases",
	}
	casesCmd.AddCommand(newCasesListCommand(ctx))
	casesCmd.AddCommand(newCasesShowCommand(ctx))
	casesCmd.AddCommand(newCasesImportCommand(ctx))
	return casesCmd
}

func newCasesListCommand(ctx *commandContext) *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			list, err := c.Cases(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag || !stdoutIsTerminal() {
				return printJSON(cmd, list)
			}
			rows := make([][]string, 0, len(list.Cases))
			for _, record := range list.Cases {
				rows = append(rows, []string{record.ID, record.Title, formatAttributes(record.Attributes)})
			}
			cmd.Println(renderTable([]string{"ID", "Title", "Attributes"}, rows))
			cmd.Printf("%d cases\n", list.Total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Print raw JSON output")
	return cmd
}

func newCasesShowCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <case-id>",
		Short: "Show a case with its content payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			record, err := c.Case(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, record)
		},
	}
	return cmd
}

// newCasesImportCommand loads case documents straight into the
// database. Shared WAL access means the daemon can keep running.
func newCasesImportCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import case documents from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read case file: %w", err)
			}
			records, err := catalog.Decode(data)
			if err != nil {
				return err
			}

			db, err := storage.Open(cmd.Context(), cfg.DatabasePath())
			if err != nil {
				return err
			}
			defer db.Close()

			store := catalog.NewStore(db)
			for _, record := range records {
				if err := store.Put(cmd.Context(), record); err != nil {
					return err
				}
			}
			cmd.Printf("Imported %d cases into %s\n", len(records), cfg.DatabasePath())
			return nil
		},
	}
	return cmd
}
