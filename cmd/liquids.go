package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/doser/config"
)

var liquidsCmd = &cobra.Command{
	Use:   "liquids",
	Short: "Liquid related commands",
}

var liquidsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List configured liquids",
	RunE:  runLiquidsLs,
}

func init() {
	liquidsCmd.AddCommand(liquidsLsCmd)
	rootCmd.AddCommand(liquidsCmd)
}

func runLiquidsLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tTARGET\tVALVE")
	for i, l := range cfg.Liquids {
		fmt.Fprintf(w, "%d\t%s\t%.1f g\t%s\n", i+1, l.Name, l.Target, l.Valve)
	}
	return w.Flush()
}
