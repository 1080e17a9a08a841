package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the options of the next open level of a path",
	Long: `Applies the given path flags in order and prints the options of the first
level that is still open. Levels whose only option is N/A are filled in
automatically.`,
	Example: `  ghgstage categories --scope 1
  ghgstage categories --scope 1 --main 10 --sub "Submain 2"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		m, err := walkPath(cmd, client)
		if err != nil {
			return err
		}

		level, open := m.OpenLevel()
		if !open {
			fmt.Printf("Path complete: %s\n", m.Path())
			return nil
		}
		opts := m.Options(level)
		if len(opts) == 0 {
			fmt.Printf("No %s options under %s\n", level, m.Path())
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "%s\n", level)
		for _, o := range opts {
			if o.ID != "" && o.ID != o.Label {
				fmt.Fprintf(w, "  %s\t%s\n", o.ID, o.Label)
				continue
			}
			fmt.Fprintf(w, "  %s\n", o.Label)
		}
		return w.Flush()
	},
}

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Resolve the emission factor of a complete path",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		m, err := walkPath(cmd, client)
		if err != nil {
			return err
		}
		if !m.CanCalculate() {
			level, _ := m.OpenLevel()
			return fmt.Errorf("path is incomplete: choose a %s (see `ghgstage categories`)", level)
		}
		res, err := m.Calculate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", m.Path())
		fmt.Printf("factor: %s\n", res.Display())
		if res.Available {
			fmt.Printf("subcategory id: %s\n", res.SubcategoryID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(calcCmd)
	addPathFlags(categoriesCmd)
	addPathFlags(calcCmd)
}
