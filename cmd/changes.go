package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenledger/ghgstage/pkg/storage"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recent ledger changes (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, err := dbPathFrom(cmd)
		if err != nil {
			return err
		}
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("database not found: %s", dbPath)
		}
		limit, _ := cmd.Flags().GetInt("limit")

		db, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		changes, err := db.ListRecentChanges(cmd.Context(), limit)
		if err != nil {
			return err
		}
		printChanges(changes)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().Int("limit", 50, "Number of recent changes to show")
}
