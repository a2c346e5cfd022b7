package quote

import (
	"errors"
	"time"

	"github.com/noah-isme/autobidder/internal/pricing"
)

// MaxServicesPerQuote bounds how many calculators one request may price.
const MaxServicesPerQuote = 20

var (
	// ErrNoPricedService is returned when none of the requested services produced a price.
	ErrNoPricedService = errors.New("quote: no service with an evaluated price")
	// ErrNotFound is returned when no quote matches the tenant and id.
	ErrNotFound = errors.New("quote: not found")
	// ErrInvalidStatus is returned for an unknown lead status.
	ErrInvalidStatus = errors.New("quote: invalid status")
)

// Status is the CRM stage of a lead.
type Status string

const (
	StatusNew          Status = "new"
	StatusContacted    Status = "contacted"
	StatusEstimateSent Status = "estimate_sent"
	StatusWon          Status = "won"
	StatusLost         Status = "lost"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusEstimateSent, StatusWon, StatusLost:
		return true
	}
	return false
}

// Customer carries the contact details captured with a submission.
type Customer struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email,omitempty" validate:"required_without=Phone,omitempty,email,max=254"`
	Phone   string `json:"phone,omitempty" validate:"required_without=Email,omitempty,max=40"`
	Address string `json:"address,omitempty" validate:"max=500"`
	Notes   string `json:"notes,omitempty" validate:"max=2000"`
}

// Selection is one calculator chosen by the customer together with their answers.
type Selection struct {
	FormulaID string         `json:"formulaId" validate:"required,max=64"`
	Variables map[string]any `json:"variables"`
}

// Submission is the public lead form payload.
type Submission struct {
	Customer Customer    `json:"customer"`
	Services []Selection `json:"services" validate:"required,min=1,max=20,dive"`
}

// ServiceResult is the per-service outcome of pricing a selection. CalculatedPrice is nil
// when the price is unavailable, which is distinct from a price of zero.
type ServiceResult struct {
	FormulaID       string         `json:"formulaId"`
	FormulaName     string         `json:"formulaName,omitempty"`
	Icon            string         `json:"icon,omitempty"`
	Variables       map[string]any `json:"variables,omitempty"`
	CalculatedPrice *pricing.Money `json:"calculatedPrice"`
	Reason          string         `json:"reason,omitempty"`
}

// Available reports whether the service was priced.
func (r ServiceResult) Available() bool { return r.CalculatedPrice != nil }

// Record is an assembled lead ready for persistence and notification.
type Record struct {
	ID        string                   `json:"id"`
	TenantID  string                   `json:"tenantId"`
	Customer  Customer                 `json:"customer"`
	Services  []pricing.ServicePricing `json:"services"`
	Summary   pricing.Summary          `json:"summary"`
	Status    Status                   `json:"status"`
	CreatedAt time.Time                `json:"createdAt"`
	UpdatedAt time.Time                `json:"updatedAt"`
}

// Assemble builds a lead from the priced services, dropping unavailable ones.
func Assemble(customer Customer, results []ServiceResult, cfg pricing.Config) (Record, error) {
	services := Priced(results)
	if len(services) == 0 {
		return Record{}, ErrNoPricedService
	}
	return Record{
		Customer: customer,
		Services: services,
		Summary:  pricing.Compute(services, cfg),
		Status:   StatusNew,
	}, nil
}

// Priced converts the available results into ServicePricing values, preserving order.
func Priced(results []ServiceResult) []pricing.ServicePricing {
	out := make([]pricing.ServicePricing, 0, len(results))
	for _, r := range results {
		if !r.Available() {
			continue
		}
		out = append(out, pricing.ServicePricing{
			FormulaID:       r.FormulaID,
			FormulaName:     r.FormulaName,
			Variables:       r.Variables,
			CalculatedPrice: *r.CalculatedPrice,
			Icon:            r.Icon,
		})
	}
	return out
}
