package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autobidder/internal/common"
	"github.com/noah-isme/autobidder/internal/events"
	"github.com/noah-isme/autobidder/internal/pricing"
	"github.com/noah-isme/autobidder/internal/quote"
)

func submittedEvent(t *testing.T, rec quote.Record) events.Event {
	t.Helper()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	return events.Event{ID: "e1", TenantID: rec.TenantID, Topic: events.TopicQuoteSubmitted, Payload: raw}
}

func sampleQuote() quote.Record {
	return quote.Record{
		ID:       "q-123",
		TenantID: "acme",
		Customer: quote.Customer{Name: "Dana <Reyes>", Email: "dana@example.com", Phone: "555-0100"},
		Services: []pricing.ServicePricing{
			{FormulaName: "Window Cleaning", CalculatedPrice: 100},
			{FormulaName: "Gutter Cleaning", CalculatedPrice: 50},
		},
		Summary: pricing.Summary{Subtotal: 150, BundleDiscount: 15, TaxAmount: 11, Total: 146},
	}
}

func TestEmailNotifierOwnerAndCustomer(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	n := EmailNotifier{Mail: outbox, OwnerEmail: "owner@sparkle.test", BusinessName: "Sparkle Windows", NotifyCustomer: true}

	require.NoError(t, n.Notify(context.Background(), submittedEvent(t, sampleQuote())))
	require.Len(t, outbox.Outbox, 2)

	owner := outbox.Outbox[0]
	require.Equal(t, "owner@sparkle.test", owner.To)
	require.Equal(t, "New quote request from Dana <Reyes> ($146)", owner.Subject)
	require.Contains(t, owner.HTML, "Dana &lt;Reyes&gt;")
	require.Contains(t, owner.HTML, "Window Cleaning")
	require.Contains(t, owner.HTML, "-$15")
	require.Contains(t, owner.HTML, "q-123")

	customer := outbox.Outbox[1]
	require.Equal(t, "dana@example.com", customer.To)
	require.Equal(t, "Your estimate from Sparkle Windows", customer.Subject)
	require.Contains(t, customer.HTML, "$146")
}

func TestEmailNotifierSkipsWhatItShould(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	n := EmailNotifier{Mail: outbox, OwnerEmail: "owner@sparkle.test", NotifyCustomer: true}

	require.NoError(t, n.Notify(context.Background(), events.Event{Topic: events.TopicFormulaUpdated, Payload: []byte(`{}`)}))
	require.Empty(t, outbox.Outbox)

	rec := sampleQuote()
	rec.Customer.Email = ""
	require.NoError(t, n.Notify(context.Background(), submittedEvent(t, rec)))
	require.Len(t, outbox.Outbox, 1)

	require.Error(t, n.Notify(context.Background(), events.Event{Topic: events.TopicQuoteSubmitted, Payload: []byte(`nope`)}))
}

type failingMail struct{ calls int }

func (f *failingMail) Send(string, string, string) error {
	f.calls++
	return errors.New("smtp down")
}

func TestEmailNotifierReportsSendFailure(t *testing.T) {
	mail := &failingMail{}
	n := EmailNotifier{Mail: mail, OwnerEmail: "owner@sparkle.test", NotifyCustomer: true}
	err := n.Notify(context.Background(), submittedEvent(t, sampleQuote()))
	require.EqualError(t, err, "smtp down")
	require.Equal(t, 2, mail.calls)
}

func TestSMTPMailerCompose(t *testing.T) {
	m := SMTPMailer{Host: "smtp.example.com", Port: 2525, From: "quotes@sparkle.test", FromName: "Sparkle Windows", ReplyTo: "owner@sparkle.test"}
	msg, err := m.compose("dana@example.com", "Your estimate", "<p>Total $146</p>")
	require.NoError(t, err)

	buf, err := msg.MimeBuf()
	require.NoError(t, err)
	raw := buf.String()
	require.Contains(t, raw, "Subject: Your estimate")
	require.Contains(t, raw, "dana@example.com")
	require.Contains(t, raw, "quotes@sparkle.test")
	require.True(t, strings.Contains(raw, "text/html"))

	_, err = SMTPMailer{From: "x@y.z"}.compose("a@b.c", "s", "b")
	require.Error(t, err)
	_, err = m.compose(" ", "s", "b")
	require.Error(t, err)
}
