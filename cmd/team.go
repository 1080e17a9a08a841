package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "List the configured project team and your role",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sess, err := newSession(cmd)
		if err != nil {
			return err
		}
		roster, err := loadRoster()
		if err != nil {
			return err
		}
		if roster == nil {
			fmt.Printf("No team configured; %q acts as %s.\n", sess.UserID, sess.Role)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, " \tID\tNAME\tEMAIL\tROLE")
		for _, m := range roster.List() {
			mark := " "
			if m.ID == viper.GetString("session.user_id") {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", mark, m.ID, m.Name, m.Email, m.Role)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if _, ok := roster.Get(sess.UserID); !ok {
			fmt.Printf("\n%q is not on the team and is read-only.\n", sess.UserID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(teamCmd)
}
