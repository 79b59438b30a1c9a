package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/entity"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

// Row is one processed document and the file it came from.
type Row struct {
	Source string
	Result entity.DocumentResult
}

// Service renders document results as spreadsheets.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

var baseHeaders = []string{
	"Source",
	"Document ID",
	"Status",
	"Invoice Number",
	"Date",
	"Total Amount",
	"Currency",
	"Line Items",
}

// amountColumns is the sorted union of template amount fields across rows.
func amountColumns(rows []Row) []string {
	seen := map[string]struct{}{}
	for _, r := range rows {
		if r.Result.Record == nil {
			continue
		}
		for k := range r.Result.Record.Amounts {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	slices.Sort(cols)
	return cols
}

func headers(amounts []string) []string {
	h := slices.Clone(baseHeaders)
	h = append(h, amounts...)
	return append(h, "Warnings", "Errors")
}

// values returns one row of cells; numbers stay float64 so XLSX keeps them numeric.
func values(r Row, amounts []string) []any {
	res := r.Result
	out := []any{r.Source, res.DocumentID, string(res.Status)}
	rec := res.Record
	if rec == nil {
		out = append(out, "", "", "", "", "")
		for range amounts {
			out = append(out, "")
		}
	} else {
		out = append(out, rec.InvoiceNumber, rec.Date, rec.TotalAmount, rec.Currency, len(rec.LineItems))
		for _, k := range amounts {
			if v, ok := rec.Amounts[k]; ok {
				out = append(out, v)
			} else {
				out = append(out, "")
			}
		}
	}
	errs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		msg := e.Code
		if e.Page != nil {
			msg = fmt.Sprintf("page %d: %s", *e.Page, e.Code)
		}
		errs = append(errs, msg)
	}
	return append(out, truncate(strings.Join(res.Warnings, "; "), 500), truncate(strings.Join(errs, "; "), 500))
}

// WriteCSV writes a header line and one line per row.
func (s *Service) WriteCSV(w io.Writer, rows []Row) error {
	start := time.Now()
	amounts := amountColumns(rows)
	cw := csv.NewWriter(w)
	if err := cw.Write(headers(amounts)); err != nil {
		return fmt.Errorf("csv header: %w", err)
	}
	for _, r := range rows {
		vals := values(r, amounts)
		rec := make([]string, len(vals))
		for i, v := range vals {
			rec[i] = cell(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv flush: %w", err)
	}
	s.logger.Info("export.csv.ok", "rows", len(rows), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func cell(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// XLSX returns a workbook with a Results sheet (one row per document) and
// a Summary sheet of status counts and column totals.
func (s *Service) XLSX(rows []Row) ([]byte, error) {
	start := time.Now()
	amounts := amountColumns(rows)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	hdr := headers(amounts)
	for i, h := range hdr {
		c, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(resultsSheet, c, h)
	}
	for ri, r := range rows {
		for ci, v := range values(r, amounts) {
			c, _ := excelize.CoordinatesToCellName(ci+1, ri+2)
			_ = f.SetCellValue(resultsSheet, c, v)
		}
	}
	_ = f.SetColWidth(resultsSheet, "A", "A", 40)
	_ = f.SetColWidth(resultsSheet, "B", "B", 20)
	_ = f.SetColWidth(resultsSheet, "C", "H", 14)
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(hdr), 1)
		_ = f.SetCellStyle(resultsSheet, "A1", last, bold)
	}
	_ = f.SetPanes(resultsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("summary sheet: %w", err)
	}
	for i, line := range summary(rows, amounts) {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), line.label)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), line.value)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 28)
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"amount_columns", len(amounts),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

type summaryLine struct {
	label string
	value any
}

func summary(rows []Row, amounts []string) []summaryLine {
	counts := map[constants.DocumentStatus]int{}
	var total float64
	sums := make(map[string]float64, len(amounts))
	for _, r := range rows {
		counts[r.Result.Status]++
		if rec := r.Result.Record; rec != nil {
			total += rec.TotalAmount
			for k, v := range rec.Amounts {
				sums[k] += v
			}
		}
	}
	lines := []summaryLine{
		{"Documents", len(rows)},
		{"Succeeded", counts[constants.DocumentSuccess]},
		{"Partial", counts[constants.DocumentPartial]},
		{"Failed", counts[constants.DocumentFailure]},
		{"Total Amount", total},
	}
	for _, k := range amounts {
		lines = append(lines, summaryLine{"Sum of " + k, sums[k]})
	}
	return lines
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
