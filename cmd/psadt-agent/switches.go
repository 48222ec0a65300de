package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"psadtagent/internal/knowledge"
)

var (
	switchesFile string
	switchesTopK int
)

var switchesCmd = &cobra.Command{
	Use:   "switches <product> [installer-file]",
	Short: "Look up known silent-install switches",
	Long: `Searches the switch catalog (KB_SWITCHES_FILE or --file) for a product.
When an installer file name is given, records whose file pattern matches it
are listed first.

Example:
  psadt-agent switches VLC vlc-3.0.20-win64.exe`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSwitches,
}

func init() {
	switchesCmd.Flags().StringVar(&switchesFile, "file", "", "Switch catalog YAML (default KB_SWITCHES_FILE)")
	switchesCmd.Flags().IntVar(&switchesTopK, "top", knowledge.DefaultTopK, "Maximum records to print")
}

func runSwitches(cmd *cobra.Command, args []string) error {
	path := switchesFile
	if path == "" {
		path = cfg.Knowledge.SwitchesFile
	}
	if path == "" {
		return errors.New("no switch catalog: set KB_SWITCHES_FILE or pass --file")
	}
	catalog, err := knowledge.LoadSwitches(path)
	if err != nil {
		return err
	}

	exe := ""
	if len(args) == 2 {
		exe = args[1]
	}
	recs := catalog.FindSwitches(args[0], exe, switchesTopK)
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintf(out, "no switches known for %q\n", args[0])
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATTERN\tINSTALL\tUNINSTALL\tNOTES")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.FilePattern, r.InstallSwitches, r.UninstallSwitches, r.Notes)
	}
	return tw.Flush()
}
