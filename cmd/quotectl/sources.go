package main

import (
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List indexed reference documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		srcs := a.Service.Sources()
		out := cmd.OutOrStdout()
		if jsonOut {
			return printJSON(out, srcs)
		}
		for _, s := range srcs {
			printf(out, "%-48s pages=%-4d chunks=%d\n", s.Source, s.Pages, s.Chunks)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
