package export

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/autobidder/internal/common"
	"github.com/noah-isme/autobidder/internal/pricing"
	"github.com/noah-isme/autobidder/internal/quote"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	pdfContentType  = "application/pdf"
	pageSize        = 200
)

// Quotes reads stored leads.
type Quotes interface {
	Get(ctx context.Context, tenantID, id string) (quote.Record, error)
	List(ctx context.Context, tenantID string, status quote.Status, limit, offset int) ([]quote.Record, int64, error)
}

// Settings supplies the tax label printed on exports.
type Settings interface {
	Get(ctx context.Context, tenantID string) (pricing.Config, error)
}

// Handler serves lead exports to administrators.
type Handler struct {
	Quotes       Quotes
	Settings     Settings
	BusinessName string
	Currency     string
	// MaxRows caps how many leads one workbook may contain. Defaults to 5000.
	MaxRows int
}

// ExportLeads handles GET /api/v1/admin/quotes/export.xlsx.
func (h *Handler) ExportLeads(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.TenantID(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	status := quote.Status(r.URL.Query().Get("status"))
	records, err := h.collect(r.Context(), tenantID, status)
	if err != nil {
		common.WriteError(w, quote.AppError(err))
		return
	}
	cfg := h.settings(r.Context(), tenantID)
	data, err := LeadsWorkbook(records, cfg.TaxLabel())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	name := fmt.Sprintf("leads-%s.xlsx", time.Now().UTC().Format("20060102"))
	writeFile(w, xlsxContentType, name, data)
}

// Estimate handles GET /api/v1/admin/quotes/{id}/estimate.pdf.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.TenantID(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rec, err := h.Quotes.Get(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, quote.AppError(err))
		return
	}
	cfg := h.settings(r.Context(), tenantID)
	data, err := EstimatePDF(rec, EstimateOptions{
		BusinessName: h.BusinessName,
		Currency:     h.Currency,
		TaxLabel:     cfg.TaxLabel(),
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	writeFile(w, pdfContentType, "estimate-"+shortID(rec.ID)+".pdf", data)
}

func (h *Handler) collect(ctx context.Context, tenantID string, status quote.Status) ([]quote.Record, error) {
	maxRows := h.MaxRows
	if maxRows <= 0 {
		maxRows = 5000
	}
	var out []quote.Record
	for offset := 0; offset < maxRows; offset += pageSize {
		limit := pageSize
		if rem := maxRows - offset; rem < limit {
			limit = rem
		}
		page, total, err := h.Quotes.List(ctx, tenantID, status, limit, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < limit || int64(offset+len(page)) >= total {
			break
		}
	}
	return out, nil
}

// settings falls back to defaults so a missing row never blocks an export.
func (h *Handler) settings(ctx context.Context, tenantID string) pricing.Config {
	if h.Settings == nil {
		return pricing.Config{}
	}
	cfg, err := h.Settings.Get(ctx, tenantID)
	if err != nil {
		return pricing.Config{}
	}
	return cfg
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
