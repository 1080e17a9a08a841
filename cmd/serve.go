package cmd

import (
	"github.com/spf13/cobra"

	"github.com/greenledger/ghgstage/internal/server"
	"github.com/greenledger/ghgstage/internal/utils"
	"github.com/greenledger/ghgstage/pkg/lookup/fixture"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an in-memory lookup service backed by a fixture hierarchy",
	Long: `Serves the lookup API from a YAML fixture. Staged and committed
activities live in memory and are lost on exit. Without --fixture the
built-in hierarchy is used.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fixturePath, _ := cmd.Flags().GetString("fixture")
		listen, _ := cmd.Flags().GetString("listen")
		legacy, _ := cmd.Flags().GetBool("legacy-sentinel")
		token, _ := cmd.Flags().GetString("token")

		tree := fixture.DefaultTree()
		if fixturePath != "" {
			var err error
			if tree, err = fixture.LoadTree(fixturePath); err != nil {
				return err
			}
		}
		if token == "" {
			utils.Log.Warn("Serving without authentication")
		}
		return server.New(fixture.New(tree), token, legacy).Start(listen)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("fixture", "", "YAML hierarchy fixture (default: built-in)")
	serveCmd.Flags().String("listen", ":8089", "Address to listen on")
	serveCmd.Flags().Bool("legacy-sentinel", true, "Encode N/A as a lone {\"name\":\"N/A\"} option")
	serveCmd.Flags().String("token", "", "Bearer token required on /api/v1")
}
