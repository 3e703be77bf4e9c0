package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name" validate:"required,max=160"`
	Category      string          `json:"category" validate:"max=80"`
	Unit          string          `json:"unit" validate:"max=20"`
	Description   string          `json:"description,omitempty" validate:"max=1000"`
	PurchasePrice decimal.Decimal `json:"purchase_price" validate:"gte=0"`
	SellingPrice  decimal.Decimal `json:"selling_price" validate:"gte=0"`
	Stock         decimal.Decimal `json:"stock" validate:"gte=0"`
	ShowInShop    bool            `json:"show_in_shop"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Unit          string          `json:"unit"`
	Description   string          `json:"description"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	Stock         decimal.Decimal `json:"stock"`
	ShowInShop    bool            `json:"show_in_shop"`
}

type ProductUpdateRequest struct {
	Name          *string          `json:"name,omitempty"`
	Category      *string          `json:"category,omitempty"`
	Unit          *string          `json:"unit,omitempty"`
	Description   *string          `json:"description,omitempty"`
	PurchasePrice *decimal.Decimal `json:"purchase_price,omitempty"`
	SellingPrice  *decimal.Decimal `json:"selling_price,omitempty"`
	Stock         *decimal.Decimal `json:"stock,omitempty"`
	ShowInShop    *bool            `json:"show_in_shop,omitempty"`
}

type SaleItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Unit      string          `json:"unit"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
	UnitCost  decimal.Decimal `json:"unit_cost" validate:"gte=0"`
}

// DebtSettlement is the part of a baki payment applied to one debt record.
type DebtSettlement struct {
	RecordID string          `json:"record_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
}

type Sale struct {
	ID              string           `json:"id"`
	SaleDate        time.Time        `json:"sale_date" validate:"required"`
	Items           []SaleItem       `json:"items" validate:"dive"`
	Total           decimal.Decimal  `json:"total" validate:"gte=0"`
	Profit          decimal.Decimal  `json:"profit"`
	CustomerID      string           `json:"customer_id,omitempty"`
	CustomerName    string           `json:"customer_name,omitempty"`
	IsBakiPayment   bool             `json:"is_baki_payment"`
	BakiProductName string           `json:"baki_product_name,omitempty"`
	Settlements     []DebtSettlement `json:"settlements,omitempty" validate:"dive"`
}

type SaleLineRequest struct {
	ProductID string           `json:"product_id"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type SaleCreateRequest struct {
	CustomerID   string            `json:"customer_id,omitempty"`
	CustomerName string            `json:"customer_name,omitempty"`
	Items        []SaleLineRequest `json:"items"`
}

type SaleResponse struct {
	Sale               Sale     `json:"sale"`
	OversoldProductIDs []string `json:"oversold_product_ids,omitempty"`
}

type Customer struct {
	ID        string          `json:"id"`
	FirstName string          `json:"first_name" validate:"required,max=80"`
	LastName  string          `json:"last_name" validate:"max=80"`
	Email     string          `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string          `json:"phone,omitempty" validate:"omitempty,phone"`
	Address   string          `json:"address,omitempty" validate:"max=300"`
	Segment   string          `json:"segment" validate:"max=40"`
	TotalDue  decimal.Decimal `json:"total_due"`
	CreatedAt time.Time       `json:"created_at"`
}

func (c Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type CustomerCreateRequest struct {
	FirstName  string          `json:"first_name"`
	LastName   string          `json:"last_name"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone"`
	Address    string          `json:"address"`
	Segment    string          `json:"segment"`
	OpeningDue decimal.Decimal `json:"opening_due"`
}

// CustomerUpdateRequest has no total due field: the balance is derived from debt records.
type CustomerUpdateRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
	Segment   *string `json:"segment,omitempty"`
}

type DebtRecord struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customer_id" validate:"required"`
	CustomerName string          `json:"customer_name,omitempty"`
	ProductName  string          `json:"product_name" validate:"required,max=160"`
	Unit         string          `json:"unit,omitempty"`
	Quantity     decimal.Decimal `json:"quantity" validate:"gte=0"`
	Amount       decimal.Decimal `json:"amount" validate:"gt=0"`
	PaidAmount   decimal.Decimal `json:"paid_amount" validate:"gte=0"`
	Status       string          `json:"status" validate:"oneof=unpaid paid"`
	TakenDate    time.Time       `json:"taken_date" validate:"required"`
	Note         string          `json:"note,omitempty" validate:"max=300"`
}

func (r DebtRecord) Unpaid() decimal.Decimal {
	unpaid := r.Amount.Sub(r.PaidAmount)
	if unpaid.IsNegative() {
		return decimal.Zero
	}
	return unpaid
}

// SettleStatus derives Status from the paid amount.
func (r *DebtRecord) SettleStatus() {
	if r.Unpaid().IsZero() {
		r.Status = DebtStatusPaid
		return
	}
	r.Status = DebtStatusUnpaid
}

type DebtCreateRequest struct {
	ProductID   string          `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	TakenDate   *time.Time      `json:"taken_date,omitempty"`
	Note        string          `json:"note"`
}

type DebtPaymentRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	RecordID string          `json:"record_id,omitempty"`
}

type Procurement struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id,omitempty"`
	ProductName string          `json:"product_name" validate:"required"`
	Unit        string          `json:"unit,omitempty"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	BuyPrice    decimal.Decimal `json:"buy_price" validate:"gte=0"`
	TotalCost   decimal.Decimal `json:"total_cost" validate:"gte=0"`
	Date        time.Time       `json:"date" validate:"required"`
	Type        string          `json:"type" validate:"oneof=sync restock"`
}

type RestockRequest struct {
	Quantity decimal.Decimal  `json:"quantity"`
	BuyPrice *decimal.Decimal `json:"buy_price,omitempty"`
	Date     *time.Time       `json:"date,omitempty"`
}

type ShopSettings struct {
	OwnerID        string    `json:"owner_id"`
	ShopName       string    `json:"shop_name" validate:"max=120"`
	Currency       string    `json:"currency" validate:"required,max=8"`
	Language       string    `json:"language" validate:"oneof=en bn"`
	ShopActive     bool      `json:"shop_active"`
	AccessCodeHash string    `json:"-"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type SettingsUpdateRequest struct {
	ShopName   *string `json:"shop_name,omitempty"`
	Currency   *string `json:"currency,omitempty"`
	Language   *string `json:"language,omitempty"`
	ShopActive *bool   `json:"shop_active,omitempty"`
	AccessCode *string `json:"access_code,omitempty"`
}

type CatalogueItem struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Unit         string          `json:"unit"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Stock        decimal.Decimal `json:"stock"`
}

type Catalogue struct {
	ShopName string          `json:"shop_name"`
	Currency string          `json:"currency"`
	Items    []CatalogueItem `json:"items"`
}

// LedgerEntry is a derived, read-only projection of one financial event.
type LedgerEntry struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	Type         string          `json:"type"`
	Category     string          `json:"category"`
	Item         string          `json:"item"`
	Amount       decimal.Decimal `json:"amount"`
	Paid         decimal.Decimal `json:"paid"`
	Unpaid       decimal.Decimal `json:"unpaid"`
	Status       string          `json:"status"`
	Color        string          `json:"color"`
	Counterparty string          `json:"counterparty"`
	CustomerID   string          `json:"customer_id,omitempty"`
}

func (e LedgerEntry) Ref() LedgerRef {
	return LedgerRef{Category: e.Category, ID: e.ID, CustomerID: e.CustomerID}
}

// LedgerRef points back at the source record of a ledger entry.
type LedgerRef struct {
	Category   string `json:"category"`
	ID         string `json:"id"`
	CustomerID string `json:"customer_id,omitempty"`
}

type LedgerDeleteRequest struct {
	ManagerPIN string `json:"manager_pin"`
	CustomerID string `json:"customer_id,omitempty"`
}

type LedgerDeleteResponse struct {
	Ref       LedgerRef `json:"ref"`
	DeletedAt string    `json:"deleted_at"`
}

type LedgerSummary struct {
	Entries int             `json:"entries"`
	Amount  decimal.Decimal `json:"amount"`
	Paid    decimal.Decimal `json:"paid"`
	Unpaid  decimal.Decimal `json:"unpaid"`
}

type LedgerOverview struct {
	TotalCashIn     decimal.Decimal `json:"total_cash_in"`
	TotalOwed       decimal.Decimal `json:"total_owed"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
}

// AnalyticsBucket is one hour, day or month of a sales analytics period.
type AnalyticsBucket struct {
	Label   string          `json:"label"`
	Start   time.Time       `json:"start"`
	Revenue decimal.Decimal `json:"revenue"`
	Profit  decimal.Decimal `json:"profit"`
}

type SalesAnalytics struct {
	Range         string            `json:"range"`
	From          time.Time         `json:"from"`
	To            time.Time         `json:"to"`
	Revenue       decimal.Decimal   `json:"revenue"`
	Profit        decimal.Decimal   `json:"profit"`
	SaleCount     int               `json:"sale_count"`
	AverageTicket decimal.Decimal   `json:"average_ticket"`
	Buckets       []AnalyticsBucket `json:"buckets"`
}

type LedgerResponse struct {
	Entries []LedgerEntry `json:"entries"`
	Summary LedgerSummary `json:"summary"`
}

type ProductAlert struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Stock     decimal.Decimal `json:"stock"`
}

type DebtorAlert struct {
	CustomerID string          `json:"customer_id"`
	Name       string          `json:"name"`
	TotalDue   decimal.Decimal `json:"total_due"`
}

type Finding struct {
	Code     string  `json:"code"`
	Severity string  `json:"severity"`
	Weight   float64 `json:"weight"`
}

type BusinessHealth struct {
	OwnerID         string          `json:"owner_id"`
	HealthScore     int             `json:"health_score"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalProfit     decimal.Decimal `json:"total_profit"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
	PotentialProfit decimal.Decimal `json:"potential_profit"`
	TotalOwed       decimal.Decimal `json:"total_owed"`
	LowStock        []ProductAlert  `json:"low_stock"`
	HighDebt        []DebtorAlert   `json:"high_debt"`
	Findings        []Finding       `json:"findings"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	OwnerID     string `json:"owner_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
	OwnerID  string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	OwnerID   string    `json:"owner_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	OwnerID   string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type WriteStatus struct {
	OperationID string `json:"operation_id"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	Result      any    `json:"result,omitempty"`
}

const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

const (
	DebtStatusUnpaid = "unpaid"
	DebtStatusPaid   = "paid"
)

const (
	ProcurementInitial = "sync"
	ProcurementRestock = "restock"
)

const (
	LedgerCategorySale      = "sale"
	LedgerCategoryBaki      = "baki"
	LedgerCategoryInventory = "inventory"
)

const (
	LedgerTypeDirectSale   = "Direct Sale"
	LedgerTypeBakiPayment  = "Baki Payment"
	LedgerTypeNewBaki      = "New Baki"
	LedgerTypeInitialStock = "Initial Stock"
	LedgerTypeRestock      = "Restock Entry"
)

const (
	LedgerStatusComplete = "Complete"
	LedgerStatusPaid     = "Paid"
	LedgerStatusUnpaid   = "Unpaid"
	LedgerStatusInStock  = "In Stock"
)

const DefaultSegment = "Baki User"
