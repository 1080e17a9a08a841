package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit every staged row of the project",
	Long: `Pushes rows the lookup service has not seen yet, then commits the
project's staged activities. The local ledger is cleared on success. Any
row without a resolved emission factor blocks the commit.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		l, err := openLedger(cmd, true)
		if err != nil {
			return err
		}
		defer l.close()

		if l.buf.Len() == 0 {
			fmt.Println("Nothing staged.")
			return nil
		}
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm(fmt.Sprintf("Commit %d row(s) of project %s?", l.buf.Len(), l.sess.ProjectID), false) {
			return fmt.Errorf("aborted")
		}

		n, err := l.buf.Commit(cmd.Context())
		if err != nil {
			// Rows pushed before the failure now carry server ids.
			if serr := l.save(cmd.Context()); serr != nil {
				return serr
			}
			return err
		}
		changes, err := l.db.ClearProject(cmd.Context(), l.sess.ProjectID)
		if err != nil {
			return err
		}
		printChanges(changes)
		fmt.Printf("Committed %d row(s).\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commitCmd)
	commitCmd.Flags().String("project", "", "Project id (default from session.project_id)")
	commitCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}
