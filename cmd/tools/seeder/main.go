package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/noah-isme/autobidder/internal/db"
	"github.com/noah-isme/autobidder/internal/formula"
	"github.com/noah-isme/autobidder/internal/obs"
	"github.com/noah-isme/autobidder/internal/pricing"
)

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info")

	tenantID := flag.String("tenant", envOrDefault("DEFAULT_TENANT", "demo"), "tenant to seed")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, dbURL, db.PoolOptions{ApplicationName: "autobidder-seeder"})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	svc, err := formula.NewService(formula.ServiceConfig{Store: formula.NewStore(pool), Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise formula service")
	}

	existing, _, err := svc.List(ctx, *tenantID, 200, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("list formulas")
	}
	have := make(map[string]bool, len(existing))
	for _, f := range existing {
		have[f.Name] = true
	}

	for _, f := range sampleFormulas() {
		if have[f.Name] {
			logger.Info().Str("name", f.Name).Msg("formula exists, skipping")
			continue
		}
		created, err := svc.Create(ctx, *tenantID, f)
		if err != nil {
			logger.Error().Err(err).Str("name", f.Name).Msg("seed formula")
			continue
		}
		logger.Info().Str("name", created.Name).Str("id", created.ID).Msg("seeded formula")
	}

	settings := pricing.NewSettingsStore(pool)
	if _, err := settings.Put(ctx, *tenantID, sampleSettings()); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("seed pricing settings")
	}
	logger.Info().Str("tenant", *tenantID).Msg("seeding completed")
}

func sampleSettings() pricing.Config {
	return pricing.Config{
		ShowBundleDiscount:    true,
		BundleDiscountPercent: 10,
		EnableSalesTax:        true,
		SalesTaxRate:          8.25,
		SalesTaxLabel:         "Sales Tax",
	}
}

func sampleFormulas() []formula.Formula {
	return []formula.Formula{
		{
			Name:  "Window Cleaning",
			Title: "How many windows need cleaning?",
			Icon:  "🪟",
			Variables: []formula.Variable{
				{ID: "windows", Name: "Number of windows", Type: formula.TypeNumber, DefaultValue: 10},
				{ID: "stories", Name: "Stories", Type: formula.TypeSlider, DefaultValue: 1},
				{ID: "screens", Name: "Clean screens too", Type: formula.TypeCheckbox, DefaultValue: false},
			},
			Expression: "windows * 8 + (stories > 1 ? 25 * (stories - 1) : 0) + (screens ? windows * 2 : 0)",
		},
		{
			Name:  "Gutter Cleaning",
			Title: "Clear gutters and downspouts",
			Icon:  "🏠",
			Variables: []formula.Variable{
				{ID: "linear_feet", Name: "Linear feet of gutter", Type: formula.TypeNumber, DefaultValue: 120},
				{ID: "condition", Name: "Gutter condition", Type: formula.TypeSelect, DefaultValue: "normal", Options: []formula.Option{
					{Label: "Light debris", Value: "light", NumericValue: ptr(1)},
					{Label: "Normal", Value: "normal", NumericValue: ptr(1.2)},
					{Label: "Heavily clogged", Value: "heavy", NumericValue: ptr(1.6)},
				}},
			},
			Expression: "linear_feet * 1.1 * condition",
		},
		{
			Name:  "Pressure Washing",
			Title: "Driveways, patios and siding",
			Icon:  "💦",
			Variables: []formula.Variable{
				{ID: "sqft", Name: "Square footage", Type: formula.TypeNumber, DefaultValue: 500},
				{ID: "surfaces", Name: "Surfaces", Type: formula.TypeMultipleChoice, Options: []formula.Option{
					{Label: "Driveway", Value: "driveway", NumericValue: ptr(0.25)},
					{Label: "Patio", Value: "patio", NumericValue: ptr(0.3)},
					{Label: "Siding", Value: "siding", NumericValue: ptr(0.35)},
				}},
			},
			Expression: "sqft * (surfaces > 0 ? surfaces : 0.25) + 50",
		},
	}
}

func ptr(v float64) *float64 { return &v }

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
