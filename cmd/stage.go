package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/staging"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Manage the staged rows of the current project",
}

var stageAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Resolve a path and stage it as a new row",
	Example: `  ghgstage stage add --scope 1 --main 10 --sub "Submain 1" --activity "Natural Gas" --unit kg --frequency monthly`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		l, err := openLedger(cmd, true)
		if err != nil {
			return err
		}
		defer l.close()

		m, err := walkPath(cmd, l.client)
		if err != nil {
			return err
		}
		if !m.CanCalculate() {
			level, _ := m.OpenLevel()
			return fmt.Errorf("path is incomplete: choose a %s", level)
		}
		if _, err := m.Calculate(cmd.Context()); err != nil {
			return err
		}
		if !m.CanAddEntry() {
			return fmt.Errorf("no emission factor available for %s", m.Path())
		}
		res, _ := m.Result()

		unit, _ := cmd.Flags().GetString("unit")
		freq, _ := cmd.Flags().GetString("frequency")
		row, err := l.buf.Confirm(cmd.Context(), res, unit, freq)
		if err != nil && !errors.Is(err, staging.ErrRemote) {
			return err
		}
		if serr := l.save(cmd.Context()); serr != nil {
			return serr
		}
		fmt.Printf("Staged %s (%s)\n", row.ID, row.Activity)
		return err
	},
}

var stageListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print staged rows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		l, err := openLedger(cmd, false)
		if err != nil {
			return err
		}
		defer l.close()

		outputFlags, _ := cmd.Flags().GetString("output")
		delimiter, _ := cmd.Flags().GetString("delimiter")
		rows := l.buf.All()
		if cmd.Flags().Changed("scope") {
			n, _ := cmd.Flags().GetInt("scope")
			rows = l.buf.Rows(ghg.Scope(n))
		}
		return staging.PrintRows(os.Stdout, rows, outputFlags, delimiter)
	},
}

var stageEditCmd = &cobra.Command{
	Use:   "edit <row-id>",
	Short: "Change a row's unit, frequency or path",
	Long: `Changes a staged row. Path flags re-choose levels of the row's path;
levels above the deepest flag given keep the row's current choices, levels
below it are chosen again (N/A-only levels fill themselves).`,
	Example: `  ghgstage stage edit <row-id> --unit t
  ghgstage stage edit <row-id> --sel1 Tonnes --sel2 "Net CV"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger(cmd, true)
		if err != nil {
			return err
		}
		defer l.close()

		row, ok := l.buf.Row(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", staging.ErrRowNotFound, args[0])
		}

		var p staging.Patch
		if cmd.Flags().Changed("unit") {
			unit, _ := cmd.Flags().GetString("unit")
			p.Unit = &unit
		}
		if cmd.Flags().Changed("frequency") {
			freq, _ := cmd.Flags().GetString("frequency")
			p.Frequency = &freq
		}
		if pathFlagsSet(cmd) {
			if err := seedPathFlags(cmd, row.Path()); err != nil {
				return err
			}
			m, err := walkPath(cmd, l.client)
			if err != nil {
				return err
			}
			if !m.CanCalculate() {
				level, _ := m.OpenLevel()
				return fmt.Errorf("path is incomplete: choose a %s", level)
			}
			res, err := m.Calculate(cmd.Context())
			if err != nil {
				return err
			}
			p.Factor = &res
		}

		row, err = l.buf.Edit(cmd.Context(), row.ID, p)
		if serr := l.save(cmd.Context()); serr != nil {
			return serr
		}
		if err != nil {
			return err
		}
		line, _ := staging.FormatRow(row, staging.DefaultOutputFlags, " | ")
		fmt.Println(line)
		return nil
	},
}

var stageRmCmd = &cobra.Command{
	Use:   "rm <row-id>...",
	Short: "Remove staged rows",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger(cmd, true)
		if err != nil {
			return err
		}
		defer l.close()

		var errs []error
		for _, id := range args {
			if err := l.buf.Remove(cmd.Context(), id); err != nil {
				errs = append(errs, err)
			}
		}
		if err := l.save(cmd.Context()); err != nil {
			return err
		}
		return errors.Join(errs...)
	},
}

var stageDupCmd = &cobra.Command{
	Use:   "dup <row-id>...",
	Short: "Duplicate staged rows",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger(cmd, true)
		if err != nil {
			return err
		}
		defer l.close()

		if _, err := l.buf.Duplicate(args...); err != nil {
			return err
		}
		return l.save(cmd.Context())
	},
}

var stageSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local ledger with the lookup service",
	Long: `Fetches the service's staged activities and merges them into the local
ledger. Rows the service has never seen are kept. Without --scope every
scope is synced.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		l, err := openLedger(cmd, true)
		if err != nil {
			return err
		}
		defer l.close()

		if cmd.Flags().Changed("scope") {
			n, _ := cmd.Flags().GetInt("scope")
			err = l.buf.SwitchScope(cmd.Context(), ghg.Scope(n))
		} else {
			err = l.buf.Refresh(cmd.Context())
		}
		if err != nil {
			return err
		}
		return l.save(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(stageCmd)
	stageCmd.PersistentFlags().String("project", "", "Project id (default from session.project_id)")
	stageCmd.AddCommand(stageAddCmd, stageListCmd, stageEditCmd, stageRmCmd, stageDupCmd, stageSyncCmd)

	addPathFlags(stageAddCmd)
	stageAddCmd.Flags().String("unit", "", "Unit of the activity quantity")
	stageAddCmd.Flags().String("frequency", "Monthly", "Reporting frequency")

	stageListCmd.Flags().IntP("scope", "s", 1, "Only rows of this scope")
	stageListCmd.Flags().StringP("output", "o", staging.DefaultOutputFlags, "Output flags. Supported: i (id), p (path), a (activity), f (factor), u (unit), q (frequency), s (subcategory id), c (scope), y (sync state)")
	stageListCmd.Flags().StringP("delimiter", "d", " | ", "Delimiter character to use for txt output format")

	addPathFlags(stageEditCmd)
	stageEditCmd.Flags().String("unit", "", "New unit")
	stageEditCmd.Flags().String("frequency", "", "New frequency")

	stageSyncCmd.Flags().IntP("scope", "s", 1, "Scope to switch to and sync")
}
