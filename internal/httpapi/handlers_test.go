package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/service"
	"specsbiz/backend/internal/store/memory"
)

const testManagerPIN = "493817"

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret-key", time.Hour, testManagerPIN, repo, logger)
	svc := service.New(repo, service.Options{PIN: auth, Logger: logger})
	t.Cleanup(svc.Close)

	return New(svc, auth, Options{AllowedOrigin: "*", Logger: logger})
}

// doJSON sends a request with an optional bearer token and CSRF token.
func doJSON(t *testing.T, api *API, method string, path string, token string, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v (status %d)", err, rec.Code)
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api, http.MethodGet, "/healthz", "", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "owner",
		"password": "owner123",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody[domain.LoginResponse](t, rec)
	if body.AccessToken == "" {
		t.Fatalf("expected access_token in response, got %+v", body)
	}
	if body.OwnerID != memory.DemoOwnerID || body.Role != domain.RoleOwner {
		t.Fatalf("unexpected login response %+v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "owner",
		"password": "wrongpassword",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", "", "", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody[struct {
		Products []domain.Product `json:"products"`
	}](t, rec)
	if len(body.Products) != 4 {
		t.Fatalf("expected 4 seeded products, got %d", len(body.Products))
	}
}

func TestStaffCannotReachOwnerRoutes(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	for _, path := range []string{"/api/v1/ledger", "/api/v1/insights/health", "/api/v1/settings", "/api/v1/procurements", "/api/v1/audit-logs"} {
		rec := doJSON(t, api, http.MethodGet, path, token, "", nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for staff, got %d", path, rec.Code)
		}
	}
}

func TestProductLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "owner", "owner123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, csrf, map[string]any{
		"name":           "Sugar",
		"unit":           "kg",
		"purchase_price": "110",
		"selling_price":  "125",
		"stock":          "10",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	created := decodeBody[struct {
		Product domain.Product `json:"product"`
	}](t, rec).Product
	if !created.Stock.Equal(dec("10")) {
		t.Fatalf("expected opening stock 10, got %s", created.Stock)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/products/"+created.ID+"/restock", token, csrf, map[string]any{
		"quantity":  "5",
		"buy_price": "112",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("restock: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/products/"+created.ID, token, "", nil)
	product := decodeBody[struct {
		Product domain.Product `json:"product"`
	}](t, rec).Product
	if !product.Stock.Equal(dec("15")) || !product.PurchasePrice.Equal(dec("112")) {
		t.Fatalf("unexpected product after restock: stock=%s cost=%s", product.Stock, product.PurchasePrice)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/procurements", token, "", nil)
	procurements := decodeBody[struct {
		Procurements []domain.Procurement `json:"procurements"`
	}](t, rec).Procurements
	if len(procurements) != 2 {
		t.Fatalf("expected sync and restock procurements, got %d", len(procurements))
	}

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/products/"+created.ID, token, csrf, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete product: expected 204, got %d", rec.Code)
	}
	rec = doJSON(t, api, http.MethodGet, "/api/v1/products/"+created.ID, token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreateSaleReportsOversold(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, map[string]any{
		"items": []map[string]any{
			{"product_id": "prd-tea", "quantity": "5"},
			{"product_id": "prd-rice", "quantity": "2"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Operation-ID") == "" {
		t.Fatalf("expected operation id header")
	}
	resp := decodeBody[domain.SaleResponse](t, rec)
	if !resp.Sale.Total.Equal(dec("1240")) {
		t.Fatalf("expected total 1240, got %s", resp.Sale.Total)
	}
	if len(resp.OversoldProductIDs) != 1 || resp.OversoldProductIDs[0] != "prd-tea" {
		t.Fatalf("expected prd-tea oversold, got %v", resp.OversoldProductIDs)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/products/prd-tea", token, "", nil)
	product := decodeBody[struct {
		Product domain.Product `json:"product"`
	}](t, rec).Product
	if !product.Stock.IsZero() {
		t.Fatalf("expected stock floored at 0, got %s", product.Stock)
	}
}

func TestCreateSaleWithoutWaitingReturnsOperation(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales?wait=false", token, csrf, map[string]any{
		"items": []map[string]any{{"product_id": "prd-oil", "quantity": "1"}},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}
	accepted := decodeBody[domain.WriteStatus](t, rec)
	if accepted.OperationID == "" {
		t.Fatalf("expected operation id")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = doJSON(t, api, http.MethodGet, "/api/v1/writes/"+accepted.OperationID, token, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("write status: expected 200, got %d", rec.Code)
		}
		status := decodeBody[domain.WriteStatus](t, rec)
		if status.State == "done" {
			break
		}
		if status.State == "failed" {
			t.Fatalf("write failed: %s", status.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("write still %s after deadline", status.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/writes/unknown-op", token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown operation, got %d", rec.Code)
	}
}

func TestCustomerBakiAndPayment(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "owner", "owner123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/customers", token, csrf, map[string]any{
		"first_name": "Karim",
		"phone":      "01712345678",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create customer: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	customer := decodeBody[struct {
		Customer domain.Customer `json:"customer"`
	}](t, rec).Customer

	rec = doJSON(t, api, http.MethodPost, "/api/v1/customers/"+customer.ID+"/baki", token, csrf, map[string]any{
		"product_name": "Rice",
		"unit":         "kg",
		"quantity":     "3",
		"amount":       "210",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add baki: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/customers/"+customer.ID+"/payments", token, csrf, map[string]any{"amount": "100"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("payment: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	payment := decodeBody[struct {
		Sale domain.Sale `json:"sale"`
	}](t, rec).Sale
	if !payment.IsBakiPayment {
		t.Fatalf("expected payment recorded as baki payment sale")
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/customers/"+customer.ID, token, "", nil)
	customer = decodeBody[struct {
		Customer domain.Customer `json:"customer"`
	}](t, rec).Customer
	if !customer.TotalDue.Equal(dec("110")) {
		t.Fatalf("expected due 110, got %s", customer.TotalDue)
	}

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/customers/"+customer.ID, token, csrf, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 deleting customer with due, got %d", rec.Code)
	}
}

func TestLedgerExportFormats(t *testing.T) {
	api := newTestAPI(t)
	owner := loginAs(t, api, "owner", "owner123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", owner, csrf, map[string]any{
		"items": []map[string]any{{"product_id": "prd-rice", "quantity": "1"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/ledger", owner, "", nil)
	view := decodeBody[domain.LedgerResponse](t, rec)
	if view.Summary.Entries != 1 || !view.Summary.Amount.Equal(dec("70")) {
		t.Fatalf("unexpected ledger summary %+v", view.Summary)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/ledger?format=csv", owner, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv export: expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "master_ledger_") || !strings.HasSuffix(disposition, `.csv"`) {
		t.Fatalf("unexpected content disposition %q", disposition)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "Date,Time,Type") {
		t.Fatalf("unexpected csv body %q", rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/ledger?format=xlsx", owner, "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("xlsx export: status %d type %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/ledger?format=print&columns=date,total", owner, "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<table") {
		t.Fatalf("print export: status %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/ledger?format=print&columns=bogus", owner, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown column, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/ledger?from=2025-02-10&to=2025-02-01", owner, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", rec.Code)
	}
}

func TestLedgerDeleteWithManagerPIN(t *testing.T) {
	api := newTestAPI(t)
	owner := loginAs(t, api, "owner", "owner123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", owner, csrf, map[string]any{
		"items": []map[string]any{{"product_id": "prd-oil", "quantity": "4"}},
	})
	sale := decodeBody[domain.SaleResponse](t, rec).Sale

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/ledger/sale/"+sale.ID, owner, csrf, map[string]string{"manager_pin": "000000"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong pin, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/ledger/sale/"+sale.ID, owner, csrf, map[string]string{"manager_pin": testManagerPIN})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with manager pin, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/products/prd-oil", owner, "", nil)
	product := decodeBody[struct {
		Product domain.Product `json:"product"`
	}](t, rec).Product
	if !product.Stock.Equal(dec("24")) {
		t.Fatalf("expected stock restored to 24, got %s", product.Stock)
	}
}

func TestPublicShopAccessCode(t *testing.T) {
	api := newTestAPI(t)
	owner := loginAs(t, api, "owner", "owner123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/shop/"+memory.DemoOwnerID, "", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before the shop is activated, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPut, "/api/v1/settings", owner, csrf, map[string]any{
		"shop_name":   "Karim Store",
		"shop_active": true,
		"access_code": "7788",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update settings: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "7788") {
		t.Fatalf("settings response leaked the access code")
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/shop/"+memory.DemoOwnerID+"?code=1111", "", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong code, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/shop/"+memory.DemoOwnerID+"?code=7788", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with code, got %d", rec.Code)
	}
	catalogue := decodeBody[domain.Catalogue](t, rec)
	if catalogue.ShopName != "Karim Store" || len(catalogue.Items) != 3 {
		t.Fatalf("unexpected catalogue %+v", catalogue)
	}
	for _, item := range catalogue.Items {
		if item.ID == "prd-lentil" {
			t.Fatalf("hidden product listed in catalogue")
		}
	}
}

func TestOwnerCreatesStaffAccount(t *testing.T) {
	api := newTestAPI(t)
	owner := loginAs(t, api, "owner", "owner123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/users/staff", owner, csrf, map[string]string{
		"username": "sumon",
		"password": "pass1234",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	token := loginAs(t, api, "sumon", "pass1234")
	actor, err := api.auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.OwnerID != memory.DemoOwnerID || actor.Role != domain.RoleStaff {
		t.Fatalf("unexpected staff actor %+v", actor)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/users/staff", owner, "", nil)
	staffUsers := decodeBody[struct {
		Staff []domain.StaffUser `json:"staff"`
	}](t, rec).Staff
	if len(staffUsers) != 2 {
		t.Fatalf("expected 2 staff accounts, got %d", len(staffUsers))
	}
}

func TestAuditLogsRecordMutations(t *testing.T) {
	api := newTestAPI(t)
	owner := loginAs(t, api, "owner", "owner123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/customers", owner, csrf, map[string]any{"first_name": "Rina"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create customer: %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/audit-logs?limit=10", owner, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	logs := decodeBody[struct {
		AuditLogs []domain.AuditLog `json:"audit_logs"`
	}](t, rec).AuditLogs
	if len(logs) == 0 {
		t.Fatalf("expected audit entry for customer creation")
	}
}

func TestStaffCannotChangeCatalogue(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, csrf, map[string]any{"name": "Sugar", "selling_price": "125"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("create product as staff: expected 403, got %d", rec.Code)
	}
	rec = doJSON(t, api, http.MethodPost, "/api/v1/products/prd-rice/restock", token, csrf, map[string]any{"quantity": "5"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("restock as staff: expected 403, got %d", rec.Code)
	}
	rec = doJSON(t, api, http.MethodDelete, "/api/v1/products/prd-rice", token, csrf, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("delete product as staff: expected 403, got %d", rec.Code)
	}
}

func TestSalesAnalyticsForToday(t *testing.T) {
	api := newTestAPI(t)
	owner := loginAs(t, api, "owner", "owner123")
	staff := loginAs(t, api, "staff", "staff123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", owner, csrf, map[string]any{
		"items": []map[string]any{
			{"product_id": "prd-tea", "quantity": "5"},
			{"product_id": "prd-rice", "quantity": "2"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/analytics/sales?range=day", owner, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	report := decodeBody[domain.SalesAnalytics](t, rec)
	if report.Range != "day" || report.SaleCount != 1 || !report.Revenue.Equal(dec("1240")) {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Buckets) != 24 {
		t.Fatalf("expected hourly buckets, got %d", len(report.Buckets))
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/analytics/sales?range=decade", owner, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad range, got %d", rec.Code)
	}
	rec = doJSON(t, api, http.MethodGet, "/api/v1/analytics/sales", staff, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rec.Code)
	}
}
