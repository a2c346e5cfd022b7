package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func services(prices ...Money) []ServicePricing {
	out := make([]ServicePricing, len(prices))
	for i, p := range prices {
		out[i] = ServicePricing{FormulaID: string(rune('a' + i)), CalculatedPrice: p}
	}
	return out
}

func TestComputeGoldenValues(t *testing.T) {
	cases := []struct {
		name     string
		prices   []Money
		cfg      Config
		expected Summary
	}{
		{
			name:     "bundle and tax round at each stage",
			prices:   []Money{100, 50},
			cfg:      Config{ShowBundleDiscount: true, BundleDiscountPercent: 10, EnableSalesTax: true, SalesTaxRate: 8},
			expected: Summary{Subtotal: 150, BundleDiscount: 15, TaxAmount: 11, Total: 146},
		},
		{
			name:     "single service gets no bundle discount",
			prices:   []Money{200},
			cfg:      Config{ShowBundleDiscount: true, BundleDiscountPercent: 10},
			expected: Summary{Subtotal: 200, Total: 200},
		},
		{
			name:     "discount disabled",
			prices:   []Money{100, 50},
			cfg:      Config{BundleDiscountPercent: 10},
			expected: Summary{Subtotal: 150, Total: 150},
		},
		{
			name:     "discount half rounds up",
			prices:   []Money{60, 45},
			cfg:      Config{ShowBundleDiscount: true, BundleDiscountPercent: 10},
			expected: Summary{Subtotal: 105, BundleDiscount: 11, Total: 94},
		},
		{
			name:     "tax on discounted base",
			prices:   []Money{333, 333, 334},
			cfg:      Config{ShowBundleDiscount: true, BundleDiscountPercent: 15, EnableSalesTax: true, SalesTaxRate: 7.25},
			expected: Summary{Subtotal: 1000, BundleDiscount: 150, TaxAmount: 62, Total: 912},
		},
		{
			name:     "negative prices count as zero",
			prices:   []Money{-40, 90},
			cfg:      Config{EnableSalesTax: true, SalesTaxRate: 10},
			expected: Summary{Subtotal: 90, TaxAmount: 9, Total: 99},
		},
		{
			name:     "percents are clamped",
			prices:   []Money{100, 100},
			cfg:      Config{ShowBundleDiscount: true, BundleDiscountPercent: 150, EnableSalesTax: true, SalesTaxRate: -5},
			expected: Summary{Subtotal: 200, BundleDiscount: 200, Total: 0},
		},
		{
			name:     "nan percent is ignored",
			prices:   []Money{100, 100},
			cfg:      Config{ShowBundleDiscount: true, BundleDiscountPercent: math.NaN()},
			expected: Summary{Subtotal: 200, Total: 200},
		},
		{
			name:     "no services",
			cfg:      Config{ShowBundleDiscount: true, BundleDiscountPercent: 10, EnableSalesTax: true, SalesTaxRate: 8},
			expected: Summary{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Compute(services(tc.prices...), tc.cfg)
			require.Equal(t, tc.expected, got)
			require.Equal(t, got.Subtotal-got.BundleDiscount+got.TaxAmount, got.Total)
		})
	}
}

func TestComputeIsPure(t *testing.T) {
	in := services(100, 50)
	cfg := Config{ShowBundleDiscount: true, BundleDiscountPercent: 10, EnableSalesTax: true, SalesTaxRate: 8}
	first := Compute(in, cfg)
	second := Compute(in, cfg)
	require.Equal(t, first, second)
	require.Equal(t, Money(100), in[0].CalculatedPrice)
}

func TestComputeSaturatesInsteadOfWrapping(t *testing.T) {
	cfg := Config{ShowBundleDiscount: true, BundleDiscountPercent: 10, EnableSalesTax: true, SalesTaxRate: 8}

	got := Compute(services(math.MaxInt64, math.MaxInt64), Config{})
	require.Equal(t, Money(math.MaxInt64), got.Subtotal)
	require.Equal(t, Money(math.MaxInt64), got.Total)

	got = Compute(services(math.MaxInt64), Config{EnableSalesTax: true, SalesTaxRate: 8})
	require.GreaterOrEqual(t, got.TaxAmount, Money(0))
	require.Equal(t, Money(math.MaxInt64), got.Total)

	got = Compute(services(math.MaxInt64, 1), cfg)
	require.GreaterOrEqual(t, got.Total, Money(0))
	require.LessOrEqual(t, got.BundleDiscount, got.Subtotal)

	got = Compute(services(1_000_000_000_000, 1_000_000_000_000), cfg)
	require.Equal(t, Summary{Subtotal: 2_000_000_000_000, BundleDiscount: 200_000_000_000, TaxAmount: 144_000_000_000, Total: 1_944_000_000_000}, got)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, Config{BundleDiscountPercent: 0, SalesTaxRate: 100}.Validate())
	require.NoError(t, Config{BundleDiscountPercent: 12.5, SalesTaxRate: 8.875}.Validate())

	for _, cfg := range []Config{
		{BundleDiscountPercent: -1},
		{BundleDiscountPercent: 101},
		{SalesTaxRate: math.NaN()},
		{SalesTaxRate: math.Inf(1)},
	} {
		require.ErrorIs(t, cfg.Validate(), ErrConfigRejected)
	}
}

func TestTaxLabel(t *testing.T) {
	require.Equal(t, "Sales Tax", Config{}.TaxLabel())
	require.Equal(t, "GST", Config{SalesTaxLabel: " GST "}.TaxLabel())
}
