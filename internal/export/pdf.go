package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/noah-isme/autobidder/internal/pricing"
	"github.com/noah-isme/autobidder/internal/quote"
)

// EstimateOptions carries the branding printed on an estimate.
type EstimateOptions struct {
	BusinessName string
	Currency     string
	TaxLabel     string
	Footer       string
}

var (
	muted      = &props.Color{Red: 90, Green: 90, Blue: 90}
	headerFill = &props.Color{Red: 31, Green: 58, Blue: 95}
	white      = &props.Color{Red: 255, Green: 255, Blue: 255}
)

// EstimatePDF renders one lead as a customer-facing estimate.
func EstimatePDF(rec quote.Record, opts EstimateOptions) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
			Size:    7,
			Color:   muted,
		}).
		Build()

	m := maroto.New(cfg)
	addEstimateHeader(m, rec, opts)
	addCustomer(m, rec.Customer)
	addLineItems(m, rec.Services, opts.Currency)
	addTotals(m, rec.Summary, opts)
	if footer := strings.TrimSpace(opts.Footer); footer != "" {
		m.AddRows(row.New(6))
		m.AddRow(8, col.New(12).Add(text.New(footer, props.Text{Size: 8, Align: align.Center, Color: muted})))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate estimate pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func addEstimateHeader(m core.Maroto, rec quote.Record, opts EstimateOptions) {
	business := strings.TrimSpace(opts.BusinessName)
	if business == "" {
		business = "Estimate"
	}
	m.AddRows(
		row.New(12).Add(
			col.New(8).Add(text.New(business, props.Text{Size: 16, Style: fontstyle.Bold})),
			col.New(4).Add(text.New("ESTIMATE", props.Text{Size: 14, Style: fontstyle.Bold, Align: align.Right})),
		),
		row.New(6).Add(
			col.New(8),
			col.New(4).Add(text.New("Ref: "+shortID(rec.ID), props.Text{Size: 9, Align: align.Right, Color: muted})),
		),
		row.New(6).Add(
			col.New(8),
			col.New(4).Add(text.New("Date: "+rec.CreatedAt.Format("Jan 2, 2006"), props.Text{Size: 9, Align: align.Right, Color: muted})),
		),
		row.New(6),
	)
}

func addCustomer(m core.Maroto, c quote.Customer) {
	m.AddRow(7, col.New(12).Add(text.New("Prepared for", props.Text{Size: 10, Style: fontstyle.Bold})))
	for _, line := range []string{c.Name, c.Email, c.Phone, c.Address} {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m.AddRow(5, col.New(12).Add(text.New(line, props.Text{Size: 9})))
	}
	m.AddRows(row.New(6))
}

func addLineItems(m core.Maroto, services []pricing.ServicePricing, currency string) {
	head := props.Text{Size: 9, Style: fontstyle.Bold, Color: white, Top: 1.5, Left: 2}
	headRight := head
	headRight.Align = align.Right
	headRight.Right = 2
	cell := &props.Cell{BackgroundColor: headerFill}

	m.AddRows(row.New(8).Add(
		col.New(1).Add(text.New("#", head)).WithStyle(cell),
		col.New(8).Add(text.New("Service", head)).WithStyle(cell),
		col.New(3).Add(text.New("Price", headRight)).WithStyle(cell),
	))
	for i, s := range services {
		m.AddRows(row.New(7).Add(
			col.New(1).Add(text.New(strconv.Itoa(i+1), props.Text{Size: 9, Top: 1.5, Left: 2})),
			col.New(8).Add(text.New(s.FormulaName, props.Text{Size: 9, Top: 1.5, Left: 2})),
			col.New(3).Add(text.New(FormatMoney(s.CalculatedPrice, currency), props.Text{Size: 9, Top: 1.5, Align: align.Right, Right: 2})),
		))
	}
	m.AddRows(row.New(4))
}

func addTotals(m core.Maroto, sum pricing.Summary, opts EstimateOptions) {
	line := func(label string, amount string, bold bool) core.Row {
		style := fontstyle.Normal
		if bold {
			style = fontstyle.Bold
		}
		return row.New(7).Add(
			col.New(7),
			col.New(3).Add(text.New(label, props.Text{Size: 9, Style: style, Align: align.Right})),
			col.New(2).Add(text.New(amount, props.Text{Size: 9, Style: style, Align: align.Right, Right: 2})),
		)
	}
	rows := []core.Row{line("Subtotal", FormatMoney(sum.Subtotal, opts.Currency), false)}
	if sum.BundleDiscount > 0 {
		rows = append(rows, line("Bundle discount", "-"+FormatMoney(sum.BundleDiscount, opts.Currency), false))
	}
	if sum.TaxAmount > 0 {
		label := strings.TrimSpace(opts.TaxLabel)
		if label == "" {
			label = "Sales Tax"
		}
		rows = append(rows, line(label, FormatMoney(sum.TaxAmount, opts.Currency), false))
	}
	rows = append(rows, line("Total", FormatMoney(sum.Total, opts.Currency), true))
	m.AddRows(rows...)
}

// FormatMoney renders whole currency units with thousands separators, e.g. "$1,234".
func FormatMoney(amount pricing.Money, currency string) string {
	if currency == "" {
		currency = "$"
	}
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(currency)
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}
