package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/store"
	"specsbiz/backend/internal/xid"
)

// DemoOwnerID is the namespace the seeded demo data and accounts belong to.
const DemoOwnerID = "demo"

type tenant struct {
	products     map[string]domain.Product
	sales        map[string]domain.Sale
	customers    map[string]domain.Customer
	debts        map[string]domain.DebtRecord
	procurements map[string]domain.Procurement
	settings     *domain.ShopSettings
}

func newTenant() *tenant {
	return &tenant{
		products:     make(map[string]domain.Product),
		sales:        make(map[string]domain.Sale),
		customers:    make(map[string]domain.Customer),
		debts:        make(map[string]domain.DebtRecord),
		procurements: make(map[string]domain.Procurement),
	}
}

type Store struct {
	mu              sync.RWMutex
	tenants         map[string]*tenant
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		tenants:         make(map[string]*tenant),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the demo owner and staff accounts. Passwords come from
// SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD, with dev defaults when unset.
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logrus.WithField("module", "memory-store").Warn("using default dev credentials; set SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"owner", ownerPwd, domain.RoleOwner},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithField("module", "memory-store").Fatalf("failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			OwnerID:   DemoOwnerID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo accounts and a small catalogue for DemoOwnerID.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	t := newTenant()
	for _, p := range []domain.Product{
		{ID: "prd-rice", Name: "Miniket Rice", Category: "grocery", Unit: "kg", PurchasePrice: decimal.NewFromInt(62), SellingPrice: decimal.NewFromInt(70), Stock: decimal.NewFromInt(50), ShowInShop: true},
		{ID: "prd-oil", Name: "Soybean Oil 1L", Category: "grocery", Unit: "pcs", PurchasePrice: decimal.NewFromInt(165), SellingPrice: decimal.NewFromInt(180), Stock: decimal.NewFromInt(24), ShowInShop: true},
		{ID: "prd-lentil", Name: "Red Lentil", Category: "grocery", Unit: "kg", PurchasePrice: decimal.NewFromInt(105), SellingPrice: decimal.NewFromInt(120), Stock: decimal.RequireFromString("18.5")},
		{ID: "prd-tea", Name: "Tea Leaves 400g", Category: "beverage", Unit: "pcs", PurchasePrice: decimal.NewFromInt(190), SellingPrice: decimal.NewFromInt(220), Stock: decimal.NewFromInt(3), ShowInShop: true},
	} {
		p.CreatedAt = now
		p.UpdatedAt = now
		t.products[p.ID] = p
	}
	s.tenants[DemoOwnerID] = t
	return s
}

func (s *Store) tenant(ownerID string) *tenant {
	t, ok := s.tenants[ownerID]
	if !ok {
		t = newTenant()
		s.tenants[ownerID] = t
	}
	return t
}

func (s *Store) peek(ownerID string) *tenant {
	if t, ok := s.tenants[ownerID]; ok {
		return t
	}
	return newTenant()
}

func (s *Store) ListProducts(_ context.Context, ownerID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(ownerID)
	products := make([]domain.Product, 0, len(t.products))
	for _, p := range t.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, ownerID string, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.peek(ownerID).products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, ownerID string, product domain.Product) (*domain.Product, error) {
	if err := store.Check(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(ownerID)
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := t.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	t.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, ownerID string, product domain.Product) (*domain.Product, error) {
	if err := store.Check(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(ownerID)
	existing, ok := t.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	t.products[product.ID] = product
	return &product, nil
}

func (s *Store) DeleteProduct(_ context.Context, ownerID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(ownerID)
	if _, ok := t.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.products, id)
	return nil
}

func (s *Store) ListSales(_ context.Context, ownerID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(ownerID)
	sales := make([]domain.Sale, 0, len(t.sales))
	for _, sale := range t.sales {
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := b.SaleDate.Compare(a.SaleDate); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, ownerID string, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.peek(ownerID).sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneSale(sale)
	return &cloned, nil
}

func (s *Store) CreateSale(_ context.Context, ownerID string, sale domain.Sale) (*domain.Sale, error) {
	if err := store.Check(sale); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(ownerID)
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := t.sales[sale.ID]; exists {
		return nil, store.ErrConflict
	}

	// Check everything first so a rejected sale leaves no partial updates.
	for _, item := range sale.Items {
		if _, ok := t.products[item.ProductID]; !ok {
			return nil, fmt.Errorf("%w: product %s does not exist", store.ErrInvalidRecord, item.ProductID)
		}
	}
	pending := make(map[string]decimal.Decimal, len(sale.Settlements))
	for _, settlement := range sale.Settlements {
		record, ok := t.debts[settlement.RecordID]
		if !ok || record.CustomerID != sale.CustomerID {
			return nil, fmt.Errorf("%w: debt record %s does not belong to customer", store.ErrInvalidRecord, settlement.RecordID)
		}
		applied := pending[record.ID].Add(settlement.Amount)
		if applied.GreaterThan(record.Unpaid()) {
			return nil, fmt.Errorf("%w: settlement exceeds unpaid amount of %s", store.ErrInvalidRecord, record.ID)
		}
		pending[record.ID] = applied
	}

	now := time.Now().UTC()
	for _, item := range sale.Items {
		product := t.products[item.ProductID]
		product.Stock = floorZero(product.Stock.Sub(item.Quantity))
		product.UpdatedAt = now
		t.products[product.ID] = product
	}
	for _, settlement := range sale.Settlements {
		record := t.debts[settlement.RecordID]
		record.PaidAmount = record.PaidAmount.Add(settlement.Amount)
		record.SettleStatus()
		t.debts[record.ID] = record
	}

	t.sales[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) DeleteSale(_ context.Context, ownerID string, id string, opts store.DeleteOptions) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(ownerID)
	sale, ok := t.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	now := time.Now().UTC()
	if opts.ReverseStock {
		for _, item := range sale.Items {
			product, exists := t.products[item.ProductID]
			if !exists {
				continue
			}
			product.Stock = product.Stock.Add(item.Quantity)
			product.UpdatedAt = now
			t.products[product.ID] = product
		}
	}
	if opts.ReverseSettlements {
		for _, settlement := range sale.Settlements {
			record, exists := t.debts[settlement.RecordID]
			if !exists {
				continue
			}
			record.PaidAmount = floorZero(record.PaidAmount.Sub(settlement.Amount))
			record.SettleStatus()
			t.debts[record.ID] = record
		}
	}

	delete(t.sales, id)
	deleted := cloneSale(sale)
	return &deleted, nil
}

func (s *Store) ListCustomers(_ context.Context, ownerID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(ownerID)
	customers := make([]domain.Customer, 0, len(t.customers))
	for _, c := range t.customers {
		customers = append(customers, t.withDue(c))
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if c := cmpString(a.FirstName, b.FirstName); c != 0 {
			return c
		}
		if c := cmpString(a.LastName, b.LastName); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, ownerID string, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(ownerID)
	customer, ok := t.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	withDue := t.withDue(customer)
	return &withDue, nil
}

func (s *Store) CreateCustomer(_ context.Context, ownerID string, customer domain.Customer) (*domain.Customer, error) {
	if err := store.Check(customer); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(ownerID)
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if _, exists := t.customers[customer.ID]; exists {
		return nil, store.ErrConflict
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	customer.TotalDue = decimal.Zero
	t.customers[customer.ID] = customer
	created := t.withDue(customer)
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, ownerID string, customer domain.Customer) (*domain.Customer, error) {
	if err := store.Check(customer); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(ownerID)
	existing, ok := t.customers[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.CreatedAt = existing.CreatedAt
	customer.TotalDue = decimal.Zero
	t.customers[customer.ID] = customer
	updated := t.withDue(customer)
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, ownerID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(ownerID)
	customer, ok := t.customers[id]
	if !ok {
		return store.ErrNotFound
	}
	if t.withDue(customer).TotalDue.IsPositive() {
		return fmt.Errorf("%w: customer has outstanding baki", store.ErrConflict)
	}
	for recordID, record := range t.debts {
		if record.CustomerID == id {
			delete(t.debts, recordID)
		}
	}
	delete(t.customers, id)
	return nil
}

func (s *Store) ListDebtRecords(_ context.Context, ownerID string, customerID string) ([]domain.DebtRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(ownerID)
	records := make([]domain.DebtRecord, 0, len(t.debts))
	for _, record := range t.debts {
		if customerID != "" && record.CustomerID != customerID {
			continue
		}
		records = append(records, t.withCustomerName(record))
	}
	slices.SortFunc(records, func(a, b domain.DebtRecord) int {
		if c := b.TakenDate.Compare(a.TakenDate); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	return records, nil
}

func (s *Store) CreateDebtRecord(_ context.Context, ownerID string, record domain.DebtRecord) (*domain.DebtRecord, error) {
	record.SettleStatus()
	if err := store.Check(record); err != nil {
		return nil, err
	}
	if record.PaidAmount.GreaterThan(record.Amount) {
		return nil, fmt.Errorf("%w: paid amount exceeds amount", store.ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(ownerID)
	if _, ok := t.customers[record.CustomerID]; !ok {
		return nil, store.ErrNotFound
	}
	if record.ID == "" {
		record.ID = xid.New("baki")
	}
	if _, exists := t.debts[record.ID]; exists {
		return nil, store.ErrConflict
	}
	record.CustomerName = ""
	t.debts[record.ID] = record
	created := t.withCustomerName(record)
	return &created, nil
}

func (s *Store) DeleteDebtRecord(_ context.Context, ownerID string, customerID string, id string) (*domain.DebtRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(ownerID)
	record, ok := t.debts[id]
	if !ok || (customerID != "" && record.CustomerID != customerID) {
		return nil, store.ErrNotFound
	}
	deleted := t.withCustomerName(record)
	delete(t.debts, id)
	return &deleted, nil
}

func (s *Store) ListProcurements(_ context.Context, ownerID string) ([]domain.Procurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(ownerID)
	entries := make([]domain.Procurement, 0, len(t.procurements))
	for _, p := range t.procurements {
		entries = append(entries, p)
	}
	slices.SortFunc(entries, func(a, b domain.Procurement) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	return entries, nil
}

func (s *Store) CreateProcurement(_ context.Context, ownerID string, procurement domain.Procurement) (*domain.Procurement, error) {
	if err := store.Check(procurement); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(ownerID)
	if procurement.ID == "" {
		procurement.ID = xid.New("proc")
	}
	if _, exists := t.procurements[procurement.ID]; exists {
		return nil, store.ErrConflict
	}
	if procurement.ProductID != "" {
		product, ok := t.products[procurement.ProductID]
		if !ok {
			return nil, store.ErrNotFound
		}
		product.Stock = product.Stock.Add(procurement.Quantity)
		product.UpdatedAt = time.Now().UTC()
		t.products[product.ID] = product
	}
	t.procurements[procurement.ID] = procurement
	return &procurement, nil
}

func (s *Store) DeleteProcurement(_ context.Context, ownerID string, id string, opts store.DeleteOptions) (*domain.Procurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(ownerID)
	procurement, ok := t.procurements[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if opts.ReverseStock && procurement.ProductID != "" {
		if product, exists := t.products[procurement.ProductID]; exists {
			product.Stock = floorZero(product.Stock.Sub(procurement.Quantity))
			product.UpdatedAt = time.Now().UTC()
			t.products[product.ID] = product
		}
	}
	delete(t.procurements, id)
	return &procurement, nil
}

func (s *Store) GetSettings(_ context.Context, ownerID string) (*domain.ShopSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(ownerID)
	if t.settings == nil {
		return nil, store.ErrNotFound
	}
	settings := *t.settings
	return &settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.ShopSettings) error {
	if err := store.Check(settings); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = time.Now().UTC()
	s.tenant(settings.OwnerID).settings = &settings
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, ownerID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.OwnerID != ownerID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
		if len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (t *tenant) withDue(customer domain.Customer) domain.Customer {
	due := decimal.Zero
	for _, record := range t.debts {
		if record.CustomerID == customer.ID {
			due = due.Add(record.Unpaid())
		}
	}
	customer.TotalDue = due
	return customer
}

func (t *tenant) withCustomerName(record domain.DebtRecord) domain.DebtRecord {
	if customer, ok := t.customers[record.CustomerID]; ok {
		record.CustomerName = customer.FullName()
	}
	return record
}

func cloneSale(sale domain.Sale) domain.Sale {
	sale.Items = slices.Clone(sale.Items)
	sale.Settlements = slices.Clone(sale.Settlements)
	return sale
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
