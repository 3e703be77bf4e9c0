package ledger

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"specsbiz/backend/internal/domain"
)

const (
	ColumnDate   = "date"
	ColumnType   = "type"
	ColumnItem   = "item"
	ColumnEntity = "entity"
	ColumnTotal  = "total"
	ColumnPaid   = "paid"
	ColumnUnpaid = "unpaid"
	ColumnStatus = "status"

	SheetName = "Ledger"
)

// AllColumns is the print column order.
var AllColumns = []string{ColumnDate, ColumnType, ColumnItem, ColumnEntity, ColumnTotal, ColumnPaid, ColumnUnpaid, ColumnStatus}

var csvHeader = []string{"Date", "Time", "Type", "Item Description", "Entity", "Total", "Paid", "Unpaid", "Status"}

var columnTitles = map[string]string{
	ColumnDate:   "Date/Time",
	ColumnType:   "Type",
	ColumnItem:   "Description",
	ColumnEntity: "Entity",
	ColumnTotal:  "Total",
	ColumnPaid:   "Paid",
	ColumnUnpaid: "Unpaid",
	ColumnStatus: "Status",
}

// ParseColumns reads a comma separated column list. An empty list selects
// every column; the result always follows AllColumns order.
func ParseColumns(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return slices.Clone(AllColumns), nil
	}
	selected := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if _, ok := columnTitles[name]; !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		selected[name] = true
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("columns must name at least one column")
	}
	out := make([]string, 0, len(selected))
	for _, name := range AllColumns {
		if selected[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

// ExportFileName is master_ledger_YYYY-MM-DD.<ext> for the export day in loc.
func ExportFileName(now time.Time, loc *time.Location, ext string) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("master_ledger_%s.%s", now.In(loc).Format(dateLayout), strings.TrimPrefix(ext, "."))
}

func WriteCSV(w io.Writer, entries []domain.LedgerEntry, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, entry := range entries {
		local := entry.Date.In(loc)
		record := []string{
			local.Format(dateLayout),
			local.Format("15:04"),
			entry.Type,
			flattenCommas(entry.Item),
			flattenCommas(entry.Counterparty),
			csvMoney(entry.Amount),
			csvMoney(entry.Paid),
			csvMoney(entry.Unpaid),
			entry.Status,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// csvMoney keeps at least two places and never drops precision, so the
// parsed column sums equal Summarize.
func csvMoney(amount decimal.Decimal) string {
	places := int32(2)
	if exp := -amount.Exponent(); exp > places {
		places = exp
	}
	return amount.StringFixed(places)
}

func flattenCommas(s string) string {
	return strings.ReplaceAll(s, ",", "|")
}

// WriteXLSX writes the CSV columns to a single sheet with numeric money cells.
func WriteXLSX(w io.Writer, entries []domain.LedgerEntry, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(csvHeader))
	for i, title := range csvHeader {
		header[i] = title
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, entry := range entries {
		local := entry.Date.In(loc)
		row := []any{
			local.Format(dateLayout),
			local.Format("15:04"),
			entry.Type,
			entry.Item,
			entry.Counterparty,
			entry.Amount.Round(2).InexactFloat64(),
			entry.Paid.Round(2).InexactFloat64(),
			entry.Unpaid.Round(2).InexactFloat64(),
			entry.Status,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	_, err := f.WriteTo(w)
	return err
}

// PrintOptions controls the printable ledger page.
type PrintOptions struct {
	ShopName    string
	Currency    string
	Columns     []string
	GeneratedAt time.Time
	Location    *time.Location
}

type printCell struct {
	Text    string
	Numeric bool
}

type printPage struct {
	ShopName    string
	GeneratedAt string
	Headers     []printCell
	Rows        [][]printCell
	Totals      []printCell
	Entries     int
}

// ledgerPrintTmpl renders the selected columns. html/template escapes every
// user supplied field.
var ledgerPrintTmpl = template.Must(template.New("ledger-print").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Master Ledger {{.GeneratedAt}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    tfoot td { font-weight: bold; }
  </style>
</head>
<body>
  <h2>{{if .ShopName}}{{.ShopName}} {{end}}Master Ledger</h2>
  <p>Generated: {{.GeneratedAt}} | Entries: {{.Entries}}</p>
  <table>
    <thead><tr>{{range .Headers}}<th>{{.Text}}</th>{{end}}</tr></thead>
    <tbody>{{range .Rows}}<tr>{{range .}}<td{{if .Numeric}} class="num"{{end}}>{{.Text}}</td>{{end}}</tr>{{end}}</tbody>
    <tfoot><tr>{{range .Totals}}<td{{if .Numeric}} class="num"{{end}}>{{.Text}}</td>{{end}}</tr></tfoot>
  </table>
</body>
</html>
`))

func WritePrint(w io.Writer, entries []domain.LedgerEntry, opts PrintOptions) error {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	columns := opts.Columns
	if len(columns) == 0 {
		columns = AllColumns
	}
	generated := opts.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	page := printPage{
		ShopName:    opts.ShopName,
		GeneratedAt: generated.In(loc).Format("2006-01-02 15:04"),
		Entries:     len(entries),
	}
	for _, column := range columns {
		page.Headers = append(page.Headers, printCell{Text: columnTitles[column]})
	}
	for _, entry := range entries {
		row := make([]printCell, 0, len(columns))
		for _, column := range columns {
			row = append(row, entryCell(entry, column, loc, opts.Currency))
		}
		page.Rows = append(page.Rows, row)
	}

	summary := Summarize(entries)
	for i, column := range columns {
		switch column {
		case ColumnTotal:
			page.Totals = append(page.Totals, moneyCell(summary.Amount, opts.Currency))
		case ColumnPaid:
			page.Totals = append(page.Totals, moneyCell(summary.Paid, opts.Currency))
		case ColumnUnpaid:
			page.Totals = append(page.Totals, moneyCell(summary.Unpaid, opts.Currency))
		default:
			label := ""
			if i == 0 {
				label = "Totals"
			}
			page.Totals = append(page.Totals, printCell{Text: label})
		}
	}

	var buf bytes.Buffer
	if err := ledgerPrintTmpl.Execute(&buf, page); err != nil {
		return fmt.Errorf("render ledger print: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func entryCell(entry domain.LedgerEntry, column string, loc *time.Location, currency string) printCell {
	switch column {
	case ColumnDate:
		return printCell{Text: entry.Date.In(loc).Format("2006-01-02 15:04")}
	case ColumnType:
		return printCell{Text: entry.Type}
	case ColumnItem:
		return printCell{Text: entry.Item}
	case ColumnEntity:
		return printCell{Text: entry.Counterparty}
	case ColumnTotal:
		return moneyCell(entry.Amount, currency)
	case ColumnPaid:
		return moneyCell(entry.Paid, currency)
	case ColumnUnpaid:
		return moneyCell(entry.Unpaid, currency)
	case ColumnStatus:
		return printCell{Text: entry.Status}
	}
	return printCell{}
}

func moneyCell(amount decimal.Decimal, currency string) printCell {
	return printCell{Text: currency + amount.StringFixed(2), Numeric: true}
}
