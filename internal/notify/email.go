package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/autobidder/internal/common"
	"github.com/noah-isme/autobidder/internal/events"
	"github.com/noah-isme/autobidder/internal/export"
	"github.com/noah-isme/autobidder/internal/obs"
	"github.com/noah-isme/autobidder/internal/quote"
)

// EmailNotifier mails the business owner, and optionally the customer, when a lead arrives.
type EmailNotifier struct {
	Mail           common.EmailSender
	OwnerEmail     string
	BusinessName   string
	Currency       string
	NotifyCustomer bool
	Logger         zerolog.Logger
}

// Notify implements events.Notifier. Other topics are ignored.
func (n EmailNotifier) Notify(_ context.Context, ev events.Event) error {
	if n.Mail == nil || ev.Topic != events.TopicQuoteSubmitted {
		return nil
	}
	var rec quote.Record
	if err := json.Unmarshal(ev.Payload, &rec); err != nil {
		return fmt.Errorf("notify: decode quote payload: %w", err)
	}
	view := n.view(rec)

	var errs []error
	if owner := strings.TrimSpace(n.OwnerEmail); owner != "" {
		subject := fmt.Sprintf("New quote request from %s (%s)", rec.Customer.Name, view.Total)
		errs = append(errs, n.send(owner, subject, ownerTemplate, view, rec))
	}
	if n.NotifyCustomer && rec.Customer.Email != "" {
		subject := "Your estimate"
		if view.Business != "" {
			subject = "Your estimate from " + view.Business
		}
		errs = append(errs, n.send(rec.Customer.Email, subject, customerTemplate, view, rec))
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (n EmailNotifier) send(to, subject string, tmpl *template.Template, view emailView, rec quote.Record) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return fmt.Errorf("notify: render email: %w", err)
	}
	err := n.Mail.Send(to, subject, buf.String())
	result := "sent"
	if err != nil {
		result = "failed"
		n.Logger.Warn().Err(err).Str("tenant_id", rec.TenantID).Str("quote_id", rec.ID).Msg("notification email failed")
	}
	if obs.NotificationEmailsTotal != nil {
		obs.NotificationEmailsTotal.WithLabelValues(result).Inc()
	}
	return err
}

type emailLine struct {
	Name  string
	Price string
}

type emailView struct {
	Business string
	Customer quote.Customer
	Lines    []emailLine
	Subtotal string
	Discount string
	Tax      string
	Total    string
	QuoteID  string
}

func (n EmailNotifier) view(rec quote.Record) emailView {
	v := emailView{
		Business: strings.TrimSpace(n.BusinessName),
		Customer: rec.Customer,
		Subtotal: export.FormatMoney(rec.Summary.Subtotal, n.Currency),
		Total:    export.FormatMoney(rec.Summary.Total, n.Currency),
		QuoteID:  rec.ID,
	}
	if rec.Summary.BundleDiscount > 0 {
		v.Discount = export.FormatMoney(rec.Summary.BundleDiscount, n.Currency)
	}
	if rec.Summary.TaxAmount > 0 {
		v.Tax = export.FormatMoney(rec.Summary.TaxAmount, n.Currency)
	}
	for _, s := range rec.Services {
		v.Lines = append(v.Lines, emailLine{Name: s.FormulaName, Price: export.FormatMoney(s.CalculatedPrice, n.Currency)})
	}
	return v
}

const linesPartial = `<table cellpadding="4">
{{range .Lines}}<tr><td>{{.Name}}</td><td align="right">{{.Price}}</td></tr>
{{end}}<tr><td>Subtotal</td><td align="right">{{.Subtotal}}</td></tr>
{{if .Discount}}<tr><td>Bundle discount</td><td align="right">-{{.Discount}}</td></tr>
{{end}}{{if .Tax}}<tr><td>Tax</td><td align="right">{{.Tax}}</td></tr>
{{end}}<tr><td><strong>Total</strong></td><td align="right"><strong>{{.Total}}</strong></td></tr>
</table>`

var ownerTemplate = template.Must(template.New("owner").Parse(`<p>A new quote request arrived.</p>
<p><strong>{{.Customer.Name}}</strong><br>
{{with .Customer.Email}}{{.}}<br>{{end}}{{with .Customer.Phone}}{{.}}<br>{{end}}{{with .Customer.Address}}{{.}}<br>{{end}}</p>
{{with .Customer.Notes}}<p>{{.}}</p>{{end}}
` + linesPartial + `
<p>Reference {{.QuoteID}}</p>`))

var customerTemplate = template.Must(template.New("customer").Parse(`<p>Hi {{.Customer.Name}},</p>
<p>Thanks for your request{{with .Business}} to {{.}}{{end}}. Here is your instant estimate:</p>
` + linesPartial + `
<p>We will be in touch shortly to confirm the details.</p>`))
