package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/drawing-quotes/internal/pipeline"
	"github.com/joseph-ayodele/drawing-quotes/internal/quotes"
)

var quoteCmd = &cobra.Command{
	Use:   "quote [file]",
	Short: "Quote a drawing",
	Long: `Reads the drawing, extracts signals, applies any overrides and prints the
estimate. When required inputs are missing the estimate is INCOMPLETE and
lists them; supply them with --set and run again.`,
	Example: `  quotectl quote bracket.pdf --material aluminum --qty 10
  quotectl quote bracket.pdf --set machining_minutes=45 --set material_weight_lbs=2.5`,
	Args: cobra.ExactArgs(1),
	RunE: runQuote,
}

func init() {
	quoteCmd.Flags().String("material", "", "material override")
	quoteCmd.Flags().String("qty", "", "quantity override")
	quoteCmd.Flags().StringToString("set", nil, "signal override name=value (repeatable)")
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) error {
	material, _ := cmd.Flags().GetString("material")
	qty, _ := cmd.Flags().GetString("qty")
	overrides, _ := cmd.Flags().GetStringToString("set")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := a.Service.IngestAndQuote(ctx, pipeline.IngestRequest{
		Filename:  filepath.Base(args[0]),
		Content:   data,
		Material:  material,
		Qty:       qty,
		Overrides: overrides,
	})
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), q)
	}
	printQuote(cmd.OutOrStdout(), q)
	return nil
}

func printQuote(out io.Writer, q *quotes.Quote) {
	printf(out, "Quote %s  (%s)\n", q.ID, q.Document.Filename)
	printf(out, "\nSignals:\n")
	for _, name := range q.Signals.Names() {
		printf(out, "  %-20s %v\n", name, q.Signals[name])
	}
	for _, name := range q.Inferred.Names() {
		printf(out, "  %-20s %v (derived)\n", name, q.Inferred[name])
	}

	est := q.Estimate
	printf(out, "\nEstimate: %s\n", est.Status)
	if !est.Complete() {
		names := make([]string, len(est.Missing))
		for i, m := range est.Missing {
			names[i] = string(m)
		}
		printf(out, "  %s\n  missing: %s\n", est.Message, strings.Join(names, ", "))
	} else {
		printf(out, "  cost:       $%.2f\n", est.CostUSD)
		printf(out, "  lead time:  %d days\n", est.LeadTimeDays)
		printf(out, "  confidence: %s\n", q.Confidence)
		for _, k := range []string{"material_cost", "machining_cost", "setup_cost"} {
			printf(out, "  %-11s $%.2f\n", k+":", est.Breakdown[k])
		}
	}

	if len(q.References) > 0 {
		printf(out, "\nReferences:\n")
		for _, m := range q.References {
			printf(out, "  [%.2f] %s p.%d: %s\n", m.Score, m.Source, m.Page, m.Preview)
		}
	}
	for _, w := range q.Warnings {
		printf(out, "\nwarning: %s\n", w)
	}
}
