package sqlstore

import (
	"time"

	"github.com/shopspring/decimal"

	"specsbiz/backend/internal/domain"
)

type productRow struct {
	ID            string          `db:"id"`
	OwnerID       string          `db:"owner_id"`
	Name          string          `db:"name"`
	Category      string          `db:"category"`
	Unit          string          `db:"unit"`
	Description   string          `db:"description"`
	PurchasePrice decimal.Decimal `db:"purchase_price"`
	SellingPrice  decimal.Decimal `db:"selling_price"`
	Stock         decimal.Decimal `db:"stock"`
	ShowInShop    bool            `db:"show_in_shop"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		ID:            r.ID,
		Name:          r.Name,
		Category:      r.Category,
		Unit:          r.Unit,
		Description:   r.Description,
		PurchasePrice: r.PurchasePrice,
		SellingPrice:  r.SellingPrice,
		Stock:         r.Stock,
		ShowInShop:    r.ShowInShop,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type saleRow struct {
	ID              string          `db:"id"`
	SaleDate        time.Time       `db:"sale_date"`
	Total           decimal.Decimal `db:"total"`
	Profit          decimal.Decimal `db:"profit"`
	CustomerID      string          `db:"customer_id"`
	CustomerName    string          `db:"customer_name"`
	IsBakiPayment   bool            `db:"is_baki_payment"`
	BakiProductName string          `db:"baki_product_name"`
}

func (r saleRow) toDomain() domain.Sale {
	return domain.Sale{
		ID:              r.ID,
		SaleDate:        r.SaleDate.UTC(),
		Total:           r.Total,
		Profit:          r.Profit,
		CustomerID:      r.CustomerID,
		CustomerName:    r.CustomerName,
		IsBakiPayment:   r.IsBakiPayment,
		BakiProductName: r.BakiProductName,
	}
}

type saleItemRow struct {
	SaleID    string          `db:"sale_id"`
	Position  int             `db:"position"`
	ProductID string          `db:"product_id"`
	Name      string          `db:"name"`
	Unit      string          `db:"unit"`
	Quantity  decimal.Decimal `db:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	UnitCost  decimal.Decimal `db:"unit_cost"`
}

type settlementRow struct {
	SaleID   string          `db:"sale_id"`
	RecordID string          `db:"record_id"`
	Amount   decimal.Decimal `db:"amount"`
}

type customerRow struct {
	ID        string    `db:"id"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	Email     string    `db:"email"`
	Phone     string    `db:"phone"`
	Address   string    `db:"address"`
	Segment   string    `db:"segment"`
	CreatedAt time.Time `db:"created_at"`
}

func (r customerRow) toDomain() domain.Customer {
	return domain.Customer{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Phone:     r.Phone,
		Address:   r.Address,
		Segment:   r.Segment,
		TotalDue:  decimal.Zero,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type debtRow struct {
	ID          string          `db:"id"`
	CustomerID  string          `db:"customer_id"`
	ProductName string          `db:"product_name"`
	Unit        string          `db:"unit"`
	Quantity    decimal.Decimal `db:"quantity"`
	Amount      decimal.Decimal `db:"amount"`
	PaidAmount  decimal.Decimal `db:"paid_amount"`
	Status      string          `db:"status"`
	TakenDate   time.Time       `db:"taken_date"`
	Note        string          `db:"note"`
}

func (r debtRow) toDomain() domain.DebtRecord {
	return domain.DebtRecord{
		ID:          r.ID,
		CustomerID:  r.CustomerID,
		ProductName: r.ProductName,
		Unit:        r.Unit,
		Quantity:    r.Quantity,
		Amount:      r.Amount,
		PaidAmount:  r.PaidAmount,
		Status:      r.Status,
		TakenDate:   r.TakenDate.UTC(),
		Note:        r.Note,
	}
}

type procurementRow struct {
	ID          string          `db:"id"`
	ProductID   string          `db:"product_id"`
	ProductName string          `db:"product_name"`
	Unit        string          `db:"unit"`
	Quantity    decimal.Decimal `db:"quantity"`
	BuyPrice    decimal.Decimal `db:"buy_price"`
	TotalCost   decimal.Decimal `db:"total_cost"`
	ProcuredAt  time.Time       `db:"procured_at"`
	Kind        string          `db:"kind"`
}

func (r procurementRow) toDomain() domain.Procurement {
	return domain.Procurement{
		ID:          r.ID,
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		Unit:        r.Unit,
		Quantity:    r.Quantity,
		BuyPrice:    r.BuyPrice,
		TotalCost:   r.TotalCost,
		Date:        r.ProcuredAt.UTC(),
		Type:        r.Kind,
	}
}

type settingsRow struct {
	OwnerID        string    `db:"owner_id"`
	ShopName       string    `db:"shop_name"`
	Currency       string    `db:"currency"`
	Language       string    `db:"language"`
	ShopActive     bool      `db:"shop_active"`
	AccessCodeHash string    `db:"access_code_hash"`
	UpdatedAt      time.Time `db:"updated_at"`
}

type auditRow struct {
	ID            string    `db:"id"`
	OwnerID       string    `db:"owner_id"`
	ActorUsername string    `db:"actor_username"`
	ActorRole     string    `db:"actor_role"`
	Action        string    `db:"action"`
	EntityType    string    `db:"entity_type"`
	EntityID      string    `db:"entity_id"`
	Detail        string    `db:"detail"`
	CreatedAt     time.Time `db:"created_at"`
}

type userRow struct {
	Username  string    `db:"username"`
	Password  string    `db:"password"`
	Role      string    `db:"role"`
	OwnerID   string    `db:"owner_id"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}
