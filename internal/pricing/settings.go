package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/autobidder/internal/common"
)

// SettingsStore loads and saves per-tenant pricing configuration.
type SettingsStore interface {
	Get(ctx context.Context, tenantID string) (Config, error)
	Put(ctx context.Context, tenantID string, cfg Config) (Config, error)
}

// NewSettingsStore returns a SettingsStore backed by the pricing_settings table.
func NewSettingsStore(pool *pgxpool.Pool) SettingsStore {
	return &pgSettings{pool: pool}
}

type pgSettings struct {
	pool *pgxpool.Pool
}

// Get returns the stored config, or the zero Config (no discount, no tax) when none is saved.
func (s *pgSettings) Get(ctx context.Context, tenantID string) (Config, error) {
	if s == nil || s.pool == nil {
		return Config{}, errors.New("pricing: settings store unavailable")
	}
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT config FROM pricing_settings WHERE tenant_id = $1`, tenantID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("pricing: decode settings: %w", err)
	}
	return cfg, nil
}

// Put validates and upserts the config.
func (s *pgSettings) Put(ctx context.Context, tenantID string, cfg Config) (Config, error) {
	if s == nil || s.pool == nil {
		return Config{}, errors.New("pricing: settings store unavailable")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return Config{}, err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO pricing_settings (tenant_id, config) VALUES ($1, $2)
ON CONFLICT (tenant_id) DO UPDATE SET config = EXCLUDED.config, updated_at = NOW()`, tenantID, raw)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SettingsHandler exposes GET/PUT /api/v1/admin/pricing-settings.
type SettingsHandler struct {
	Store SettingsStore
}

// Get returns the tenant's pricing configuration.
func (h SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.TenantID(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	cfg, err := h.Store.Get(r.Context(), tenantID)
	if err != nil {
		common.WriteError(w, AppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cfg})
}

// Put replaces the tenant's pricing configuration.
func (h SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.TenantID(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var cfg Config
	if err := common.DecodeJSON(r, &cfg); err != nil {
		common.WriteError(w, err)
		return
	}
	saved, err := h.Store.Put(r.Context(), tenantID, cfg)
	if err != nil {
		common.WriteError(w, AppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": saved})
}

// AppError maps package errors onto API error codes.
func AppError(err error) error {
	switch {
	case err == nil:
		return nil
	case common.IsAppError(err):
		return err
	case errors.Is(err, ErrConfigRejected):
		return common.NewAppError("CONFIG_REJECTED", err.Error(), http.StatusUnprocessableEntity, err)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}
