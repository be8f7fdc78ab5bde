package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

const (
	maxWindowDays      = store.MaxWindowDays
	defaultExportDays  = 30
	maxBestSellerLimit = 100
)

func (a *API) handleListMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := a.store.ListAll(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicines": medicines})
}

func (a *API) handleSuggestMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := a.store.Suggest(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicines": medicines})
}

func (a *API) handleGetMedicine(w http.ResponseWriter, r *http.Request) {
	medicine, ok, err := a.store.GetMedicineByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if !ok {
		a.writeError(w, http.StatusNotFound, errors.New("medicine not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicine": medicine})
}

func (a *API) handleAddMedicine(w http.ResponseWriter, r *http.Request) {
	var req domain.MedicineInput
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	medicine, err := a.store.AddMedicine(r.Context(), req)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"medicine": medicine})
}

func (a *API) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req domain.RecordSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	sale, err := a.store.RecordSale(r.Context(), req.Items, req.PaymentMethod)
	if err != nil {
		salesRejected.WithLabelValues(rejectReason(err)).Inc()
		a.writeStoreError(w, err)
		return
	}
	salesRecorded.WithLabelValues(paymentLabel(sale.PaymentMethod)).Inc()

	if actor, ok := ActorFromContext(r.Context()); ok {
		a.logger.Info().Str("user_id", actor.UserID).Str("sale_id", sale.ID).Msg("checkout")
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	days := parsePositiveLimit(r.URL.Query().Get("days"), 0, maxWindowDays)
	sales, err := a.store.GetSales(r.Context(), days)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, ok, err := a.store.GetSaleByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if !ok {
		a.writeError(w, http.StatusNotFound, errors.New("sale not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleExportSales(w http.ResponseWriter, r *http.Request) {
	days := parsePositiveLimit(r.URL.Query().Get("days"), defaultExportDays, maxWindowDays)
	sales, err := a.store.GetSales(r.Context(), days)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := a.receipts.SalesCSV(&buf, sales); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="billing-history-%d-days.csv"`, days))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) handleInvoice(w http.ResponseWriter, r *http.Request) {
	sale, ok, err := a.store.GetSaleByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if !ok {
		a.writeError(w, http.StatusNotFound, errors.New("sale not found"))
		return
	}

	pdf, err := a.receipts.InvoicePDF(sale)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="invoice-%s.pdf"`, sale.Memo))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (a *API) handleKpis(w http.ResponseWriter, r *http.Request) {
	kpis, err := a.store.GetKpis(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kpis": kpis})
}

func (a *API) handleBestSellers(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), store.DefaultBestSellerLimit, maxBestSellerLimit)
	best, err := a.store.GetBestSellers(r.Context(), limit)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bestSellers": best})
}

func (a *API) handleTrend(w http.ResponseWriter, r *http.Request) {
	days := parsePositiveLimit(r.URL.Query().Get("days"), store.DefaultTrendDays, maxWindowDays)
	trend, err := a.store.GetSalesTrend(r.Context(), days)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trend": trend})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	medicines, err := a.store.GetLowStock(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicines": medicines})
}

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Reload(r.Context()); err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrMedicineNotFound):
		return "medicine_not_found"
	case errors.Is(err, store.ErrInvalidTransaction):
		return "invalid"
	default:
		return "error"
	}
}
