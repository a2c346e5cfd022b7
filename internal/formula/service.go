package formula

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/autobidder/internal/events"
	"github.com/noah-isme/autobidder/internal/obs"
)

// Evaluation is the priced outcome of one calculator for one set of answers.
type Evaluation struct {
	FormulaID   string   `json:"formulaId"`
	FormulaName string   `json:"formulaName"`
	Icon        string   `json:"icon,omitempty"`
	Price       int64    `json:"price"`
	Degraded    []string `json:"degraded,omitempty"`
}

// Service manages calculator definitions and evaluates them on behalf of tenants.
type Service struct {
	store  Store
	events events.Emitter
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store  Store
	Events events.Emitter
	Logger zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("formula: store is required")
	}
	return &Service{store: cfg.Store, events: cfg.Events, logger: cfg.Logger}, nil
}

// Get loads one definition.
func (s *Service) Get(ctx context.Context, tenantID, id string) (Formula, error) {
	return s.store.Get(ctx, tenantID, id)
}

// List returns a page of definitions and the tenant's total.
func (s *Service) List(ctx context.Context, tenantID string, limit, offset int) ([]Formula, int64, error) {
	items, err := s.store.List(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Create validates and stores a new definition.
func (s *Service) Create(ctx context.Context, tenantID string, f Formula) (Formula, error) {
	f = normalise(f)
	f.ID = ""
	f.TenantID = tenantID
	if err := prepare(f); err != nil {
		return Formula{}, err
	}
	out, err := s.store.Create(ctx, f)
	if err != nil {
		return Formula{}, err
	}
	s.emit(ctx, events.TopicFormulaUpdated, out)
	return out, nil
}

// Update replaces an existing definition in place.
func (s *Service) Update(ctx context.Context, tenantID, id string, f Formula) (Formula, error) {
	f = normalise(f)
	f.ID = id
	f.TenantID = tenantID
	if err := prepare(f); err != nil {
		return Formula{}, err
	}
	out, err := s.store.Update(ctx, f)
	if err != nil {
		return Formula{}, err
	}
	s.emit(ctx, events.TopicFormulaUpdated, out)
	return out, nil
}

// Delete removes a definition. Stored quotes keep their snapshot of the service.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.emit(ctx, events.TopicFormulaDeleted, Formula{ID: id, TenantID: tenantID})
	return nil
}

// Evaluate prices one calculator for the given answers.
func (s *Service) Evaluate(ctx context.Context, tenantID, id string, answers map[string]any) (Evaluation, error) {
	f, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Evaluation{}, err
	}
	return s.EvaluateFormula(f, answers)
}

// EvaluateFormula prices an already loaded definition, recording metrics and logging failures.
func (s *Service) EvaluateFormula(f Formula, answers map[string]any) (Evaluation, error) {
	res, err := Evaluate(f, answers)
	obs.ObserveFormulaEvaluation(err)
	out := Evaluation{FormulaID: f.ID, FormulaName: f.Name, Icon: f.Icon, Price: res.Price, Degraded: res.Degraded}
	if err != nil {
		s.logger.Warn().Err(err).
			Str("tenant_id", f.TenantID).
			Str("formula_id", f.ID).
			Str("formula_name", f.Name).
			Msg("formula evaluation failed")
		return out, err
	}
	if len(res.Degraded) > 0 {
		s.logger.Debug().
			Str("formula_id", f.ID).
			Strs("degraded", res.Degraded).
			Msg("formula answers degraded to zero")
	}
	return out, nil
}

func (s *Service) emit(ctx context.Context, topic string, f Formula) {
	if s.events == nil {
		return
	}
	payload := map[string]any{"formulaId": f.ID, "name": f.Name}
	if _, err := s.events.Emit(ctx, f.TenantID, topic, f.ID, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Str("formula_id", f.ID).Msg("emit formula event")
	}
}

func normalise(f Formula) Formula {
	f.Name = strings.TrimSpace(f.Name)
	f.Title = strings.TrimSpace(f.Title)
	f.Icon = strings.TrimSpace(f.Icon)
	vars := make([]Variable, len(f.Variables))
	for i, v := range f.Variables {
		v.ID = strings.TrimSpace(v.ID)
		v.Name = strings.TrimSpace(v.Name)
		vars[i] = v
	}
	f.Variables = vars
	return f
}

// prepare runs structural validation and a dry-run parse of the expression.
func prepare(f Formula) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := Check(f); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFormula, err)
	}
	return nil
}
