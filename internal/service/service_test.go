package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/events"
	"specsbiz/backend/internal/store"
	"specsbiz/backend/internal/store/memory"
)

type pinStub string

func (p pinStub) ValidateManagerPIN(pin string) bool {
	return pin == string(p)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T) (*Service, *events.Recorder) {
	t.Helper()
	recorder := &events.Recorder{}
	svc := New(memory.NewSeeded(), Options{Events: recorder, PIN: pinStub("493817")})
	t.Cleanup(svc.Close)
	return svc, recorder
}

func ownerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "owner", Role: domain.RoleOwner, OwnerID: memory.DemoOwnerID})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff, OwnerID: memory.DemoOwnerID})
}

func stockOf(t *testing.T, svc *Service, id string) decimal.Decimal {
	t.Helper()
	product, err := svc.GetProduct(ownerCtx(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return product.Stock
}

func newDebtor(t *testing.T, svc *Service) domain.Customer {
	t.Helper()
	customer, err := svc.CreateCustomer(ownerCtx(), domain.CustomerCreateRequest{FirstName: "Karim", LastName: "Uddin", Phone: "01712345678"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	older := time.Now().UTC().Add(-48 * time.Hour)
	newer := time.Now().UTC().Add(-24 * time.Hour)
	if _, err := svc.AddDebt(staffCtx(), customer.ID, domain.DebtCreateRequest{ProductName: "Rice", Unit: "kg", Quantity: dec("2"), Amount: dec("140"), TakenDate: &older}); err != nil {
		t.Fatalf("add debt: %v", err)
	}
	if _, err := svc.AddDebt(staffCtx(), customer.ID, domain.DebtCreateRequest{ProductID: "prd-oil", Quantity: dec("1"), TakenDate: &newer}); err != nil {
		t.Fatalf("add debt: %v", err)
	}
	return customer
}

func TestCreateSaleFloorsStockAndReportsOversold(t *testing.T) {
	svc, recorder := newTestService(t)

	resp, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prd-tea", Quantity: dec("5")},
			{ProductID: "prd-rice", Quantity: dec("1.5")},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !resp.Sale.Total.Equal(dec("1205")) {
		t.Fatalf("expected total 1205, got %s", resp.Sale.Total)
	}
	if !resp.Sale.Profit.Equal(dec("162")) {
		t.Fatalf("expected profit 162, got %s", resp.Sale.Profit)
	}
	if len(resp.OversoldProductIDs) != 1 || resp.OversoldProductIDs[0] != "prd-tea" {
		t.Fatalf("expected prd-tea to be oversold, got %v", resp.OversoldProductIDs)
	}
	if stock := stockOf(t, svc, "prd-tea"); !stock.IsZero() {
		t.Fatalf("expected tea stock floored at zero, got %s", stock)
	}
	if stock := stockOf(t, svc, "prd-rice"); !stock.Equal(dec("48.5")) {
		t.Fatalf("expected rice stock 48.5, got %s", stock)
	}
	if len(recorder.OfType(events.TypeRecordCreated)) != 1 {
		t.Fatalf("expected one created event, got %+v", recorder.Events())
	}
}

func TestCreateSaleUsesPriceOverrideAndCustomer(t *testing.T) {
	svc, _ := newTestService(t)
	customer, err := svc.CreateCustomer(ownerCtx(), domain.CustomerCreateRequest{FirstName: "Rafi"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	price := dec("65")
	resp, err := svc.CreateSale(ownerCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.SaleLineRequest{{ProductID: "prd-rice", Quantity: dec("2"), UnitPrice: &price}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if resp.Sale.CustomerName != "Rafi" || !resp.Sale.Total.Equal(dec("130")) {
		t.Fatalf("unexpected sale: %+v", resp.Sale)
	}
}

func TestCreateSaleRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreateSale(context.Background(), domain.SaleCreateRequest{Items: []domain.SaleLineRequest{{ProductID: "prd-rice", Quantity: dec("1")}}}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden without a user, got %v", err)
	}
	if _, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid record for empty sale, got %v", err)
	}
	if _, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{Items: []domain.SaleLineRequest{{ProductID: "prd-missing", Quantity: dec("1")}}}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid record for unknown product, got %v", err)
	}
	if stock := stockOf(t, svc, "prd-rice"); !stock.Equal(dec("50")) {
		t.Fatalf("rejected sales must not touch stock, got %s", stock)
	}
}

func TestSubmitSaleDetachedIsTrackable(t *testing.T) {
	svc, _ := newTestService(t)

	future := svc.SubmitSale(staffCtx(), domain.SaleCreateRequest{Items: []domain.SaleLineRequest{{ProductID: "prd-oil", Quantity: dec("2")}}})
	future.Detach()

	deadline := time.Now().Add(2 * time.Second)
	for {
		status, ok := svc.WriteStatus(future.ID())
		if !ok {
			t.Fatalf("unknown operation %s", future.ID())
		}
		if status.State == "done" {
			break
		}
		if status.State == "failed" || time.Now().After(deadline) {
			t.Fatalf("write did not complete: %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if stock := stockOf(t, svc, "prd-oil"); !stock.Equal(dec("22")) {
		t.Fatalf("expected oil stock 22, got %s", stock)
	}
}

func TestStaffCannotManageProducts(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateProduct(staffCtx(), domain.ProductCreateRequest{Name: "Sugar", SellingPrice: dec("140")})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.ListProducts(staffCtx()); err != nil {
		t.Fatalf("staff must read products: %v", err)
	}
}

func TestCreateProductBooksOpeningStock(t *testing.T) {
	svc, _ := newTestService(t)

	product, err := svc.CreateProduct(ownerCtx(), domain.ProductCreateRequest{
		Name:          "Sugar",
		Unit:          "kg",
		PurchasePrice: dec("120"),
		SellingPrice:  dec("140"),
		Stock:         dec("10"),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if !product.Stock.Equal(dec("10")) {
		t.Fatalf("expected stock 10, got %s", product.Stock)
	}

	procurements, err := svc.ListProcurements(ownerCtx())
	if err != nil {
		t.Fatalf("list procurements: %v", err)
	}
	if len(procurements) != 1 || procurements[0].Type != domain.ProcurementInitial || !procurements[0].TotalCost.Equal(dec("1200")) {
		t.Fatalf("expected one opening procurement, got %+v", procurements)
	}
}

func TestRestockAddsStockAndUpdatesCost(t *testing.T) {
	svc, _ := newTestService(t)

	price := dec("200")
	entry, err := svc.Restock(ownerCtx(), "prd-tea", domain.RestockRequest{Quantity: dec("12"), BuyPrice: &price})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if entry.Type != domain.ProcurementRestock || !entry.TotalCost.Equal(dec("2400")) {
		t.Fatalf("unexpected procurement: %+v", entry)
	}
	product, err := svc.GetProduct(ownerCtx(), "prd-tea")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !product.Stock.Equal(dec("15")) || !product.PurchasePrice.Equal(price) {
		t.Fatalf("unexpected product after restock: stock=%s cost=%s", product.Stock, product.PurchasePrice)
	}

	if _, err := svc.Restock(ownerCtx(), "prd-tea", domain.RestockRequest{Quantity: dec("0")}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid quantity error, got %v", err)
	}
}

func TestCustomerOpeningDueAndPhone(t *testing.T) {
	svc, _ := newTestService(t)

	customer, err := svc.CreateCustomer(ownerCtx(), domain.CustomerCreateRequest{FirstName: "Nasrin", Phone: "01712345678", OpeningDue: dec("500")})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if customer.Phone != "+8801712345678" {
		t.Fatalf("expected E.164 phone, got %q", customer.Phone)
	}
	if customer.Segment != domain.DefaultSegment {
		t.Fatalf("expected default segment, got %q", customer.Segment)
	}
	if !customer.TotalDue.Equal(dec("500")) {
		t.Fatalf("expected opening due 500, got %s", customer.TotalDue)
	}

	if _, err := svc.CreateCustomer(ownerCtx(), domain.CustomerCreateRequest{FirstName: "Bad", Phone: "12"}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid phone error, got %v", err)
	}
}

type failingDebtRepo struct {
	store.Repository
}

func (failingDebtRepo) CreateDebtRecord(context.Context, string, domain.DebtRecord) (*domain.DebtRecord, error) {
	return nil, errors.New("disk full")
}

func TestCustomerRemovedWhenOpeningDueFails(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(failingDebtRepo{Repository: repo}, Options{PIN: pinStub("493817")})
	t.Cleanup(svc.Close)

	before, err := repo.ListCustomers(context.Background(), memory.DemoOwnerID)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if _, err := svc.CreateCustomer(ownerCtx(), domain.CustomerCreateRequest{FirstName: "Nasrin", Phone: "01712345678", OpeningDue: dec("500")}); err == nil {
		t.Fatalf("expected opening due failure")
	}
	after, err := repo.ListCustomers(context.Background(), memory.DemoOwnerID)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("expected customer to be removed, had %d now %d", len(before), len(after))
	}
}

func TestDebtPaymentSettlesOldestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	customer := newDebtor(t, svc)

	sale, err := svc.RecordDebtPayment(staffCtx(), customer.ID, domain.DebtPaymentRequest{Amount: dec("200")})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if !sale.IsBakiPayment || len(sale.Items) != 0 || !sale.Profit.IsZero() {
		t.Fatalf("unexpected payment sale: %+v", sale)
	}
	if len(sale.Settlements) != 2 || !sale.Settlements[0].Amount.Equal(dec("140")) || !sale.Settlements[1].Amount.Equal(dec("60")) {
		t.Fatalf("unexpected settlements: %+v", sale.Settlements)
	}
	if sale.BakiProductName != "" {
		t.Fatalf("payment over two records must not name a product, got %q", sale.BakiProductName)
	}

	after, err := svc.GetCustomer(ownerCtx(), customer.ID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if !after.TotalDue.Equal(dec("120")) {
		t.Fatalf("expected remaining due 120, got %s", after.TotalDue)
	}

	if _, err := svc.RecordDebtPayment(staffCtx(), customer.ID, domain.DebtPaymentRequest{Amount: dec("121")}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected overpayment to be rejected, got %v", err)
	}

	final, err := svc.RecordDebtPayment(staffCtx(), customer.ID, domain.DebtPaymentRequest{Amount: dec("120")})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if final.BakiProductName != "Soybean Oil 1L" {
		t.Fatalf("expected single settled product name, got %q", final.BakiProductName)
	}
}

func TestDeleteLedgerEntryIsGated(t *testing.T) {
	svc, recorder := newTestService(t)
	resp, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{Items: []domain.SaleLineRequest{{ProductID: "prd-rice", Quantity: dec("4")}}})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	ref := domain.LedgerRef{Category: domain.LedgerCategorySale, ID: resp.Sale.ID}

	if _, err := svc.DeleteLedgerEntry(staffCtx(), ref, "493817"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected staff to be forbidden, got %v", err)
	}
	if _, err := svc.DeleteLedgerEntry(ownerCtx(), ref, "000000"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected invalid pin, got %v", err)
	}
	if _, err := svc.GetSale(ownerCtx(), resp.Sale.ID); err != nil {
		t.Fatalf("rejected delete must keep the sale: %v", err)
	}
	if stock := stockOf(t, svc, "prd-rice"); !stock.Equal(dec("46")) {
		t.Fatalf("rejected delete must keep stock, got %s", stock)
	}

	deleted, err := svc.DeleteLedgerEntry(ownerCtx(), ref, "493817")
	if err != nil {
		t.Fatalf("delete ledger entry: %v", err)
	}
	if deleted.Ref.ID != resp.Sale.ID || deleted.DeletedAt == "" {
		t.Fatalf("unexpected delete response: %+v", deleted)
	}
	if stock := stockOf(t, svc, "prd-rice"); !stock.Equal(dec("50")) {
		t.Fatalf("expected stock restored to 50, got %s", stock)
	}
	if len(recorder.OfType(events.TypeRecordDeleted)) != 1 {
		t.Fatalf("expected a deleted event")
	}

	logs, err := svc.ListAuditLogs(ownerCtx(), "", 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "ledger_delete" && entry.EntityID == resp.Sale.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ledger_delete audit entry, got %+v", logs)
	}
}

func TestDeletingBakiPaymentRestoresDue(t *testing.T) {
	svc, _ := newTestService(t)
	customer := newDebtor(t, svc)

	payment, err := svc.RecordDebtPayment(staffCtx(), customer.ID, domain.DebtPaymentRequest{Amount: dec("100")})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if _, err := svc.DeleteLedgerEntry(ownerCtx(), domain.LedgerRef{Category: domain.LedgerCategorySale, ID: payment.ID}, "493817"); err != nil {
		t.Fatalf("delete payment: %v", err)
	}
	after, err := svc.GetCustomer(ownerCtx(), customer.ID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if !after.TotalDue.Equal(dec("320")) {
		t.Fatalf("expected due restored to 320, got %s", after.TotalDue)
	}

	records, err := svc.ListDebtRecords(ownerCtx(), customer.ID)
	if err != nil {
		t.Fatalf("list debt records: %v", err)
	}
	if _, err := svc.DeleteLedgerEntry(ownerCtx(), domain.LedgerRef{Category: domain.LedgerCategoryBaki, ID: records[0].ID}, "493817"); err != nil {
		t.Fatalf("delete debt record: %v", err)
	}
	after, _ = svc.GetCustomer(ownerCtx(), customer.ID)
	if !after.TotalDue.Equal(dec("140")) {
		t.Fatalf("expected due 140 after removing the newest record, got %s", after.TotalDue)
	}

	if err := svc.DeleteCustomer(ownerCtx(), customer.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict while customer owes money, got %v", err)
	}
}

func TestLedgerAndOverview(t *testing.T) {
	svc, _ := newTestService(t)
	newDebtor(t, svc)
	if _, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{Items: []domain.SaleLineRequest{{ProductID: "prd-oil", Quantity: dec("1")}}}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	f, err := svc.NewLedgerFilter("", "baki", "", "")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	view, err := svc.Ledger(ownerCtx(), f)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if view.Summary.Entries != 2 || !view.Summary.Unpaid.Equal(dec("320")) {
		t.Fatalf("unexpected baki summary: %+v", view.Summary)
	}

	if _, err := svc.NewLedgerFilter("", "", "yesterday", ""); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid date error, got %v", err)
	}
	if _, err := svc.Ledger(staffCtx(), f); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ledger must be owner only, got %v", err)
	}

	overview, err := svc.LedgerOverview(ownerCtx())
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if !overview.TotalCashIn.Equal(dec("180")) || !overview.TotalOwed.Equal(dec("320")) {
		t.Fatalf("unexpected overview: %+v", overview)
	}

	health, err := svc.Health(ownerCtx())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.HealthScore < 1 || health.HealthScore > 100 || len(health.LowStock) != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestSettingsAndPublicCatalogue(t *testing.T) {
	svc, _ := newTestService(t)

	settings, err := svc.GetSettings(ownerCtx())
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.Currency != DefaultCurrency || settings.Language != DefaultLanguage {
		t.Fatalf("unexpected defaults: %+v", settings)
	}
	if _, err := svc.PublicCatalogue(context.Background(), memory.DemoOwnerID, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown shop before settings exist, got %v", err)
	}

	active := true
	code := "bazar42"
	if _, err := svc.UpdateSettings(ownerCtx(), domain.SettingsUpdateRequest{ShopActive: &active, AccessCode: &code}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	if _, err := svc.PublicCatalogue(context.Background(), memory.DemoOwnerID, "wrong"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for wrong code, got %v", err)
	}
	catalogue, err := svc.PublicCatalogue(context.Background(), memory.DemoOwnerID, code)
	if err != nil {
		t.Fatalf("catalogue: %v", err)
	}
	if len(catalogue.Items) != 3 {
		t.Fatalf("expected three visible products, got %+v", catalogue.Items)
	}

	bad := "xx"
	if _, err := svc.UpdateSettings(ownerCtx(), domain.SettingsUpdateRequest{Language: &bad}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid language, got %v", err)
	}
}

func TestSalesAnalyticsUsesShopPeriod(t *testing.T) {
	svc, _ := newTestService(t)
	svc.now = func() time.Time { return time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC) }

	if _, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: "prd-tea", Quantity: dec("5")},
			{ProductID: "prd-rice", Quantity: dec("1.5")},
		},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	report, err := svc.SalesAnalytics(ownerCtx(), "day")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if report.SaleCount != 1 || !report.Revenue.Equal(dec("1205")) || !report.Profit.Equal(dec("162")) {
		t.Fatalf("unexpected day report: %+v", report)
	}
	if !report.AverageTicket.Equal(dec("1205")) || len(report.Buckets) != 24 {
		t.Fatalf("unexpected day buckets: %+v", report)
	}

	svc.now = func() time.Time { return time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC) }
	report, err = svc.SalesAnalytics(ownerCtx(), "")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if report.Range != "month" || report.SaleCount != 0 || len(report.Buckets) != 30 {
		t.Fatalf("expected empty April report, got %+v", report)
	}

	if _, err := svc.SalesAnalytics(ownerCtx(), "decade"); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid range error, got %v", err)
	}
	if _, err := svc.SalesAnalytics(staffCtx(), "day"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("analytics must be owner only, got %v", err)
	}
}
