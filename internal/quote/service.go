package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/autobidder/internal/common"
	"github.com/noah-isme/autobidder/internal/events"
	"github.com/noah-isme/autobidder/internal/formula"
	"github.com/noah-isme/autobidder/internal/obs"
	"github.com/noah-isme/autobidder/internal/pricing"
)

// Formulas evaluates stored calculators.
type Formulas interface {
	Evaluate(ctx context.Context, tenantID, id string, answers map[string]any) (formula.Evaluation, error)
}

// Settings supplies per-tenant pricing configuration.
type Settings interface {
	Get(ctx context.Context, tenantID string) (pricing.Config, error)
}

// Preview is the live quote shown while the customer fills in calculators.
type Preview struct {
	Services []ServiceResult `json:"services"`
	Summary  pricing.Summary `json:"summary"`
}

// Service prices selections and manages submitted leads.
type Service struct {
	formulas    Formulas
	settings    Settings
	store       Store
	events      events.Emitter
	logger      zerolog.Logger
	parallelism int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Formulas Formulas
	Settings Settings
	Store    Store
	Events   events.Emitter
	Logger   zerolog.Logger
	// Parallelism bounds concurrent evaluations per request. Defaults to 8.
	Parallelism int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Formulas == nil || cfg.Settings == nil {
		return nil, errors.New("quote: formulas and settings are required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	return &Service{
		formulas:    cfg.Formulas,
		settings:    cfg.Settings,
		store:       cfg.Store,
		events:      cfg.Events,
		logger:      cfg.Logger,
		parallelism: cfg.Parallelism,
	}, nil
}

// Preview prices every selection and totals the ones that produced a price. It has no side effects.
func (s *Service) Preview(ctx context.Context, tenantID string, selections []Selection) (Preview, error) {
	if len(selections) > MaxServicesPerQuote {
		return Preview{}, common.NewAppError("VALIDATION_ERROR", fmt.Sprintf("at most %d services per quote", MaxServicesPerQuote), http.StatusBadRequest, nil)
	}
	cfg, err := s.settings.Get(ctx, tenantID)
	if err != nil {
		return Preview{}, fmt.Errorf("quote: load pricing settings: %w", err)
	}
	results, err := s.evaluate(ctx, tenantID, selections)
	if err != nil {
		return Preview{}, err
	}
	return Preview{Services: results, Summary: pricing.Compute(Priced(results), cfg)}, nil
}

// Submit re-prices the selections server side, persists the lead and emits quote.submitted.
// Services whose evaluation failed are dropped; the submission fails only when none is priced.
func (s *Service) Submit(ctx context.Context, tenantID string, sub Submission) (Record, error) {
	if s.store == nil {
		return Record{}, errors.New("quote: store not configured")
	}
	sub.Customer = trimCustomer(sub.Customer)
	if err := common.Validate(sub); err != nil {
		s.countSubmission("invalid")
		return Record{}, err
	}
	cfg, err := s.settings.Get(ctx, tenantID)
	if err != nil {
		return Record{}, fmt.Errorf("quote: load pricing settings: %w", err)
	}
	results, err := s.evaluate(ctx, tenantID, sub.Services)
	if err != nil {
		return Record{}, err
	}
	for _, r := range results {
		if r.Available() {
			continue
		}
		if obs.QuoteServicesDroppedTotal != nil {
			obs.QuoteServicesDroppedTotal.Inc()
		}
		s.logger.Warn().
			Str("tenant_id", tenantID).
			Str("formula_id", r.FormulaID).
			Str("reason", r.Reason).
			Msg("dropping unpriced service from submission")
	}
	rec, err := Assemble(sub.Customer, results, cfg)
	if err != nil {
		s.countSubmission("rejected")
		return Record{}, err
	}
	rec.TenantID = tenantID
	saved, err := s.store.Create(ctx, rec)
	if err != nil {
		return Record{}, fmt.Errorf("quote: persist: %w", err)
	}
	s.countSubmission("accepted")
	s.emit(ctx, events.TopicQuoteSubmitted, saved, saved)
	return saved, nil
}

// Get loads one lead.
func (s *Service) Get(ctx context.Context, tenantID, id string) (Record, error) {
	if s.store == nil {
		return Record{}, errors.New("quote: store not configured")
	}
	return s.store.Get(ctx, tenantID, id)
}

// List returns a page of leads, optionally filtered by status, and the matching total.
func (s *Service) List(ctx context.Context, tenantID string, status Status, limit, offset int) ([]Record, int64, error) {
	if s.store == nil {
		return nil, 0, errors.New("quote: store not configured")
	}
	if status != "" && !status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	items, err := s.store.List(ctx, tenantID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx, tenantID, status)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateStatus moves a lead to another CRM stage and emits quote.status_changed.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, id string, status Status) (Record, error) {
	if s.store == nil {
		return Record{}, errors.New("quote: store not configured")
	}
	if !status.Valid() {
		return Record{}, ErrInvalidStatus
	}
	current, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Record{}, err
	}
	if current.Status == status {
		return current, nil
	}
	updated, err := s.store.UpdateStatus(ctx, tenantID, id, status)
	if err != nil {
		return Record{}, err
	}
	s.emit(ctx, events.TopicQuoteStatusChanged, updated, map[string]any{
		"quoteId":  updated.ID,
		"status":   updated.Status,
		"previous": current.Status,
		"customer": updated.Customer,
		"total":    updated.Summary.Total,
	})
	return updated, nil
}

func (s *Service) evaluate(ctx context.Context, tenantID string, selections []Selection) ([]ServiceResult, error) {
	results := make([]ServiceResult, len(selections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, sel := range selections {
		g.Go(func() error {
			res := ServiceResult{FormulaID: strings.TrimSpace(sel.FormulaID), Variables: sel.Variables}
			eval, err := s.formulas.Evaluate(gctx, tenantID, res.FormulaID, sel.Variables)
			switch {
			case err == nil:
				price := eval.Price
				res.CalculatedPrice = &price
				res.FormulaName = eval.FormulaName
				res.Icon = eval.Icon
			case errors.Is(err, formula.ErrNotFound):
				res.Reason = "calculator not found"
			case errors.Is(err, formula.ErrEvaluation):
				res.FormulaName = eval.FormulaName
				res.Icon = eval.Icon
				res.Reason = "price unavailable"
			default:
				return fmt.Errorf("quote: evaluate %s: %w", res.FormulaID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) emit(ctx context.Context, topic string, rec Record, payload any) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Emit(ctx, rec.TenantID, topic, rec.ID, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Str("quote_id", rec.ID).Msg("emit quote event")
	}
}

func (s *Service) countSubmission(result string) {
	if obs.QuotesSubmittedTotal != nil {
		obs.QuotesSubmittedTotal.WithLabelValues(result).Inc()
	}
}

func trimCustomer(c Customer) Customer {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	c.Notes = strings.TrimSpace(c.Notes)
	return c
}
