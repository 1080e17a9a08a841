package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenledger/ghgstage/pkg/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export the project's staged rows",
	Example: `  ghgstage report --format md
  ghgstage report --format html --out staged.html`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		l, err := openLedger(cmd, false)
		if err != nil {
			return err
		}
		defer l.close()

		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		var w io.Writer = os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		title := fmt.Sprintf("Staged activities: %s", l.sess.ProjectID)
		return report.Write(w, format, title, l.buf.All())
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("project", "", "Project id (default from session.project_id)")
	reportCmd.Flags().StringP("format", "f", "csv", "Output format: csv, md or html")
	reportCmd.Flags().StringP("out", "O", "", "Write to this file instead of stdout")
}
