package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/estimate"
	"github.com/joseph-ayodele/drawing-quotes/internal/quotes"
)

// Lister yields the quotes to export, oldest first.
type Lister interface {
	List(ctx context.Context) ([]*quotes.Quote, error)
}

// Service produces XLSX bytes for quote exports.
type Service struct {
	quotes Lister
	logger *slog.Logger
}

func NewService(l Lister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{quotes: l, logger: logger}
}

const sheetName = "Quotes"

var headers = []string{
	"Quote ID",
	"File",
	"Format",
	"Status",
	"Material",
	"Qty",
	"Cost (USD)",
	"Lead Time (days)",
	"Material Cost",
	"Machining Cost",
	"Setup Cost",
	"Confidence",
	"Missing Inputs",
	"Top Reference",
	"Created At",
}

// ExportQuotesXLSX returns a workbook with one row per stored quote.
func (s *Service) ExportQuotesXLSX(ctx context.Context) ([]byte, error) {
	list, err := s.quotes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return s.QuotesXLSX(list)
}

// QuotesXLSX renders the given quotes. Incomplete quotes leave the cost
// columns empty and list what is missing instead.
func (s *Service) QuotesXLSX(list []*quotes.Quote) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if index, _ := f.GetSheetIndex(sheetName); index == -1 {
		if _, err := f.NewSheet(sheetName); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	row := 2
	for _, q := range list {
		if q == nil {
			continue
		}
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}

		write(1, q.ID)
		write(2, q.Document.Filename)
		write(3, string(q.Document.Format))
		if m, ok := q.Signals.Text(constants.SignalMaterial); ok {
			write(5, m)
		}
		if n, ok := q.Signals.Int(constants.SignalQty); ok {
			write(6, n)
		}

		est := q.Estimate
		if est != nil {
			write(4, string(est.Status))
		}
		if est.Complete() {
			write(7, est.CostUSD)
			write(8, est.LeadTimeDays)
			write(9, est.Breakdown[estimate.MaterialCost])
			write(10, est.Breakdown[estimate.MachiningCost])
			write(11, est.Breakdown[estimate.SetupCost])
			write(12, string(q.Confidence))
		} else if est != nil {
			names := make([]string, len(est.Missing))
			for i, m := range est.Missing {
				names[i] = string(m)
			}
			write(13, strings.Join(names, ", "))
		}
		if len(q.References) > 0 {
			ref := q.References[0]
			write(14, fmt.Sprintf("%s p.%d", ref.Source, ref.Page))
		}
		write(15, q.CreatedAt.UTC().Format(time.RFC3339))

		row++
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38) // id
	_ = f.SetColWidth(sheetName, "B", "B", 32) // file
	_ = f.SetColWidth(sheetName, "C", "D", 12)
	_ = f.SetColWidth(sheetName, "E", "E", 14)
	_ = f.SetColWidth(sheetName, "F", "L", 12)
	_ = f.SetColWidth(sheetName, "M", "M", 40) // missing
	_ = f.SetColWidth(sheetName, "N", "N", 32)
	_ = f.SetColWidth(sheetName, "O", "O", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
