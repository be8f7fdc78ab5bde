package httpapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/kv/memory"
	"pharmapos/backend/internal/money"
	"pharmapos/backend/internal/receipt"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/users"
)

// newTestAPI builds a full API over an in-memory kv with the demo catalog
// and demo accounts, so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) (*API, *store.Store) {
	t.Helper()
	ctx := context.Background()

	blobs := memory.New()
	st := store.New(blobs, store.WithLocation(time.UTC))
	if err := st.EnsureSeed(ctx); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	dir := users.New(blobs, users.WithBcryptCost(bcrypt.MinCost))
	if err := dir.EnsureDemoUsers(ctx); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	formatter, err := money.NewFormatter("INR")
	if err != nil {
		t.Fatalf("formatter: %v", err)
	}
	receipts := receipt.NewRenderer("Test Pharmacy", formatter, time.UTC, "")
	auth := NewAuthManager("test-secret-key-with-enough-length", time.Hour)

	api := New(st, dir, auth, receipts, Options{
		AllowedOrigin: "*",
		Logger:        zerolog.Nop(),
		LoginAttempts: 100,
	})
	return api, st
}

func login(t *testing.T, handler http.Handler, email, password, role string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Email: email, Password: password, Role: role,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s expected 200, got %d (body: %s)", email, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v (raw: %s)", err, rec.Body.String())
	}
	return out
}

func findMedicine(t *testing.T, st *store.Store, query string) domain.Medicine {
	t.Helper()
	list, err := st.Suggest(context.Background(), query)
	if err != nil || len(list) == 0 {
		t.Fatalf("medicine %q not found: %v", query, err)
	}
	return list[0]
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestListAndSuggestMedicines(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "worker@shop", "worker123", "worker")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/medicines", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	all := decodeBody[map[string][]domain.Medicine](t, rec)["medicines"]
	if len(all) != 5 {
		t.Fatalf("expected 5 medicines, got %d", len(all))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/medicines/suggest?q=", token, nil)
	if got := decodeBody[map[string][]domain.Medicine](t, rec)["medicines"]; len(got) != 0 {
		t.Fatalf("expected empty suggestions for blank query, got %d", len(got))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/medicines/suggest?q=nutri", token, nil)
	got := decodeBody[map[string][]domain.Medicine](t, rec)["medicines"]
	if len(got) != 1 || got[0].Name != "Vitamin C 1000mg" {
		t.Fatalf("expected Vitamin C by supplier match, got %+v", got)
	}
}

func TestGetMedicineNotFound(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "worker@shop", "worker123", "worker")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/medicines/med_missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAddMedicineValidationReturnsFields(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "owner@shop", "owner123", "owner")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/medicines", token, domain.MedicineInput{
		Name: "Zinc", Price: 0,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody[struct {
		Fields map[string]string `json:"fields"`
	}](t, rec)
	if _, ok := body.Fields["price"]; !ok {
		t.Fatalf("expected price field error, got %v", body.Fields)
	}
	if _, ok := body.Fields["supplier"]; !ok {
		t.Fatalf("expected supplier field error, got %v", body.Fields)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/medicines", token, domain.MedicineInput{
		Name: "Zinc 50mg", Supplier: "NutriChain", WholesaleCost: 0.1, Price: 0.3, Quantity: 40, ReorderThreshold: 5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestRecordSaleFlow(t *testing.T) {
	api, st := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "worker@shop", "worker123", "worker")
	para := findMedicine(t, st, "paracetamol")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, domain.RecordSaleRequest{
		Items:         []domain.CartItem{{MedicineID: para.ID, Name: para.Name, Qty: 5, UnitPrice: 0.40, TaxRate: 15}},
		PaymentMethod: "UPI",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	sale := decodeBody[map[string]domain.Sale](t, rec)["sale"]
	if sale.PaymentMethod != domain.PaymentUPI || sale.Memo != "M-000001" {
		t.Fatalf("unexpected sale %+v", sale)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+sale.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for sale lookup, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales?days=1", token, nil)
	if got := decodeBody[map[string][]domain.Sale](t, rec)["sales"]; len(got) != 1 {
		t.Fatalf("expected 1 sale in window, got %d", len(got))
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, domain.RecordSaleRequest{
		Items: []domain.CartItem{{MedicineID: para.ID, Qty: 500, UnitPrice: 0.40}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for oversell, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	conflict := decodeBody[map[string]any](t, rec)
	if conflict["available"] != float64(195) || conflict["requested"] != float64(500) {
		t.Fatalf("unexpected conflict body %v", conflict)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, domain.RecordSaleRequest{
		Items: []domain.CartItem{{MedicineID: "med_gone", Qty: 1, UnitPrice: 1}},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown medicine, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, domain.RecordSaleRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d", rec.Code)
	}
}

func TestExportAndInvoice(t *testing.T) {
	api, st := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "worker@shop", "worker123", "worker")
	syrup := findMedicine(t, st, "cough syrup")

	sale, err := st.RecordSale(context.Background(), []domain.CartItem{
		{MedicineID: syrup.ID, Name: syrup.Name, Qty: 2, UnitPrice: 2, TaxRate: 12},
	}, "card")
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sales/export.csv?days=5", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for export, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "billing-history-5-days.csv") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 2 || rows[1][1] != sale.Memo {
		t.Fatalf("unexpected csv rows %v", rows)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sales/"+sale.ID+"/invoice.pdf", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for invoice, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Fatalf("invoice body is not a PDF")
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/sale_missing/invoice.pdf", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing invoice, got %d", rec.Code)
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	api, st := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "owner@shop", "owner123", "owner")
	syrup := findMedicine(t, st, "cough syrup")

	if _, err := st.RecordSale(context.Background(), []domain.CartItem{
		{MedicineID: syrup.ID, Name: syrup.Name, Qty: 75, UnitPrice: 2},
	}, "cash"); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/analytics/kpis", token, nil)
	kpis := decodeBody[map[string]domain.Kpis](t, rec)["kpis"]
	if kpis.TodayRevenue != 150 || kpis.MonthRevenue != 150 {
		t.Fatalf("unexpected kpis %+v", kpis)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/analytics/best-sellers?limit=3", token, nil)
	best := decodeBody[map[string][]domain.BestSeller](t, rec)["bestSellers"]
	if len(best) != 1 || best[0].MedicineID != syrup.ID || best[0].Qty != 75 {
		t.Fatalf("unexpected best sellers %+v", best)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/analytics/trend?days=7", token, nil)
	trend := decodeBody[map[string][]domain.TrendPoint](t, rec)["trend"]
	if len(trend) != 7 || trend[6].Total != 150 {
		t.Fatalf("unexpected trend %+v", trend)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/analytics/low-stock", token, nil)
	low := decodeBody[map[string][]domain.Medicine](t, rec)["medicines"]
	if len(low) != 1 || low[0].ID != syrup.ID {
		t.Fatalf("unexpected low stock %+v", low)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/admin/reload", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for reload, got %d", rec.Code)
	}
}
