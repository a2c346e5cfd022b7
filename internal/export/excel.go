package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/autobidder/internal/quote"
)

const (
	leadsSheet    = "Leads"
	servicesSheet = "Services"
)

var leadColumns = []struct {
	title string
	width float64
}{
	{"Submitted", 18},
	{"Status", 14},
	{"Name", 24},
	{"Email", 28},
	{"Phone", 16},
	{"Address", 32},
	{"Services", 36},
	{"Subtotal", 12},
	{"Bundle Discount", 16},
	{"Tax", 12},
	{"Total", 12},
	{"Quote ID", 38},
}

// LeadsWorkbook renders leads as an .xlsx workbook: one row per lead on the first sheet and
// one row per priced service on the second. Amounts are written as numbers.
func LeadsWorkbook(records []quote.Record, taxLabel string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), leadsSheet); err != nil {
		return nil, fmt.Errorf("set sheet name: %w", err)
	}
	if _, err := f.NewSheet(servicesSheet); err != nil {
		return nil, fmt.Errorf("create services sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#1F3A5F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 3})
	if err != nil {
		return nil, fmt.Errorf("create money style: %w", err)
	}

	titles := make([]string, len(leadColumns))
	for i, c := range leadColumns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(leadsSheet, name, name, c.width); err != nil {
			return nil, fmt.Errorf("set col width %s: %w", name, err)
		}
		titles[i] = c.title
	}
	if label := strings.TrimSpace(taxLabel); label != "" {
		titles[9] = label
	}
	if err := writeRow(f, leadsSheet, 1, titles); err != nil {
		return nil, err
	}
	lastLeadCol, _ := excelize.ColumnNumberToName(len(leadColumns))
	_ = f.SetCellStyle(leadsSheet, "A1", lastLeadCol+"1", headerStyle)
	_ = f.SetPanes(leadsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	serviceTitles := []string{"Quote ID", "Customer", "Service", "Price"}
	if err := writeRow(f, servicesSheet, 1, serviceTitles); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(servicesSheet, "A1", "D1", headerStyle)
	_ = f.SetColWidth(servicesSheet, "A", "A", 38)
	_ = f.SetColWidth(servicesSheet, "B", "C", 28)

	serviceRow := 2
	for i, rec := range records {
		row := i + 2
		names := make([]string, 0, len(rec.Services))
		for _, s := range rec.Services {
			names = append(names, s.FormulaName)
			if err := writeRow(f, servicesSheet, serviceRow, []any{
				rec.ID,
				sanitizeCell(rec.Customer.Name),
				sanitizeCell(s.FormulaName),
				s.CalculatedPrice,
			}); err != nil {
				return nil, err
			}
			serviceRow++
		}
		if err := writeRow(f, leadsSheet, row, []any{
			rec.CreatedAt.UTC().Format("2006-01-02 15:04"),
			string(rec.Status),
			sanitizeCell(rec.Customer.Name),
			sanitizeCell(rec.Customer.Email),
			sanitizeCell(rec.Customer.Phone),
			sanitizeCell(rec.Customer.Address),
			sanitizeCell(strings.Join(names, ", ")),
			rec.Summary.Subtotal,
			rec.Summary.BundleDiscount,
			rec.Summary.TaxAmount,
			rec.Summary.Total,
			rec.ID,
		}); err != nil {
			return nil, err
		}
		_ = f.SetCellStyle(leadsSheet, fmt.Sprintf("H%d", row), fmt.Sprintf("K%d", row), moneyStyle)
	}
	if serviceRow > 2 {
		_ = f.SetCellStyle(servicesSheet, "D2", fmt.Sprintf("D%d", serviceRow-1), moneyStyle)
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow[T any](f *excelize.File, sheet string, row int, values []T) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &out); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// sanitizeCell prefixes values spreadsheet applications would interpret as formulas.
func sanitizeCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r', '|':
		return "'" + s
	}
	return s
}
