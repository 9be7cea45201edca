package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/drawing-quotes/internal/app"
	"github.com/joseph-ayodele/drawing-quotes/internal/reader"
	"github.com/joseph-ayodele/drawing-quotes/internal/signals"
)

var readCmd = &cobra.Command{
	Use:   "read [file]",
	Short: "Extract text and signals from a drawing without quoting it",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

func init() {
	readCmd.Flags().Bool("text", false, "print the extracted page text")
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	showText, _ := cmd.Flags().GetBool("text")

	rd := reader.NewReader(app.NewReaderConfig(cfg.Reader), logger)
	doc, err := rd.ReadFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	res, err := signals.NewExtractor(logger).ExtractWithProvenance(doc, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, map[string]any{
			"filename":   doc.Filename,
			"format":     doc.Format,
			"method":     doc.Method,
			"sha256":     doc.SHA256,
			"pages":      doc.Pages,
			"metadata":   doc.Metadata,
			"warnings":   doc.Warnings,
			"signals":    res.Signals,
			"provenance": res.Provenance,
		})
	}

	printf(out, "%s  format=%s method=%s pages=%d\n", doc.Filename, doc.Format, doc.Method, len(doc.Pages))
	for _, w := range doc.Warnings {
		printf(out, "  warning: %s\n", w)
	}
	printf(out, "\nSignals:\n")
	for _, name := range res.Signals.Names() {
		prov := res.Provenance[name]
		where := string(prov.Source)
		if prov.Override {
			where = "override"
		} else if prov.Page > 0 {
			where = fmt.Sprintf("%s p.%d", prov.Source, prov.Page)
		}
		printf(out, "  %-20s %-14v (%s)\n", name, res.Signals[name], where)
	}
	if showText {
		for _, p := range doc.Pages {
			printf(out, "\n--- page %d (%s) ---\n%s\n", p.Number, p.Source, p.Text)
		}
	}
	return nil
}
