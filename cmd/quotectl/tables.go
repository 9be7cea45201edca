package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/drawing-quotes/internal/estimate"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Print the effective rate tables as YAML",
	Long: `Prints the rate tables after applying the QUOTE_TABLES file (or --file)
and QUOTE_TABLES_* environment overrides to the built-in defaults. The
output is a valid tables file and a starting point for customising rates.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			path = cfg.Quotes.TablesPath
		}
		t, err := estimate.LoadTables(path, logger)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), t)
		}
		b, err := t.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

func init() {
	tablesCmd.Flags().String("file", "", "rate tables YAML file")
	rootCmd.AddCommand(tablesCmd)
}
