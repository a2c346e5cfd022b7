package pricing

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Money represents a monetary value in whole currency units, as formulas produce them.
type Money = int64

// ErrConfigRejected marks pricing settings outside their valid range.
var ErrConfigRejected = errors.New("pricing: configuration rejected")

// Config holds the per-tenant discount and tax options consumed by Compute.
type Config struct {
	ShowBundleDiscount    bool    `json:"showBundleDiscount"`
	BundleDiscountPercent float64 `json:"bundleDiscountPercent"`
	EnableSalesTax        bool    `json:"enableSalesTax"`
	SalesTaxRate          float64 `json:"salesTaxRate"`
	SalesTaxLabel         string  `json:"salesTaxLabel,omitempty"`
}

// Validate rejects non-finite or out-of-range percentages.
func (c Config) Validate() error {
	if err := checkPercent("bundleDiscountPercent", c.BundleDiscountPercent); err != nil {
		return err
	}
	if err := checkPercent("salesTaxRate", c.SalesTaxRate); err != nil {
		return err
	}
	if len(c.SalesTaxLabel) > 64 {
		return fmt.Errorf("%w: salesTaxLabel exceeds 64 characters", ErrConfigRejected)
	}
	return nil
}

// TaxLabel returns the configured label or "Sales Tax".
func (c Config) TaxLabel() string {
	if label := strings.TrimSpace(c.SalesTaxLabel); label != "" {
		return label
	}
	return "Sales Tax"
}

func checkPercent(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be a finite number", ErrConfigRejected, name)
	}
	if v < 0 || v > 100 {
		return fmt.Errorf("%w: %s must be between 0 and 100", ErrConfigRejected, name)
	}
	return nil
}

// ServicePricing is the evaluated price of one calculator for one set of answers.
type ServicePricing struct {
	FormulaID       string         `json:"formulaId"`
	FormulaName     string         `json:"formulaName"`
	Variables       map[string]any `json:"variables"`
	CalculatedPrice Money          `json:"calculatedPrice"`
	Icon            string         `json:"icon,omitempty"`
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal       Money `json:"subtotal"`
	BundleDiscount Money `json:"bundleDiscount"`
	TaxAmount      Money `json:"taxAmount"`
	Total          Money `json:"total"`
}

// Compute totals the services. The discount is rounded before tax is taken on the
// discounted base, and the tax is rounded again. Percents are clamped to [0, 100].
func Compute(services []ServicePricing, cfg Config) Summary {
	var subtotal Money
	for _, s := range services {
		if s.CalculatedPrice > 0 {
			subtotal = addMoney(subtotal, s.CalculatedPrice)
		}
	}
	var discount Money
	if cfg.ShowBundleDiscount && len(services) >= 2 {
		discount = percentOf(subtotal, clampPercent(cfg.BundleDiscountPercent))
	}
	base := subtotal - discount
	var tax Money
	if cfg.EnableSalesTax {
		tax = percentOf(base, clampPercent(cfg.SalesTaxRate))
	}
	return Summary{
		Subtotal:       subtotal,
		BundleDiscount: discount,
		TaxAmount:      tax,
		Total:          addMoney(base, tax),
	}
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p) || p <= 0:
		return 0
	case p >= 100:
		return 100
	default:
		return p
	}
}

// percentOf returns amount*p/100 rounded half-up, never more than amount.
func percentOf(amount Money, p float64) Money {
	if amount <= 0 || p == 0 {
		return 0
	}
	v := math.Floor(float64(amount)*p/100 + 0.5)
	if v >= float64(amount) {
		return amount
	}
	return Money(v)
}

// addMoney adds two non-negative amounts, saturating at math.MaxInt64.
func addMoney(a, b Money) Money {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
