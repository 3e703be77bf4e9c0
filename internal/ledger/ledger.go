// Package ledger merges sales, baki records and procurements into one
// chronological view and exports it.
package ledger

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"specsbiz/backend/internal/domain"
)

const (
	colorPayment   = "text-blue-600"
	colorSale      = "text-green-600"
	colorUnpaid    = "text-destructive"
	colorInventory = "text-primary"

	walkingCustomer = "Walking Customer"
	supplier        = "Supplier"
)

var categoryRank = map[string]int{
	domain.LedgerCategorySale:      0,
	domain.LedgerCategoryBaki:      1,
	domain.LedgerCategoryInventory: 2,
}

// Build projects the three record collections into ledger entries, newest first.
func Build(sales []domain.Sale, debts []domain.DebtRecord, procurements []domain.Procurement) []domain.LedgerEntry {
	entries := make([]domain.LedgerEntry, 0, len(sales)+len(debts)+len(procurements))
	for _, sale := range sales {
		entries = append(entries, fromSale(sale))
	}
	for _, record := range debts {
		entries = append(entries, fromDebt(record))
	}
	for _, procurement := range procurements {
		entries = append(entries, fromProcurement(procurement))
	}
	slices.SortStableFunc(entries, func(a, b domain.LedgerEntry) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(categoryRank[a.Category], categoryRank[b.Category]); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return entries
}

func fromSale(sale domain.Sale) domain.LedgerEntry {
	entry := domain.LedgerEntry{
		ID:           sale.ID,
		Date:         sale.SaleDate,
		Type:         domain.LedgerTypeDirectSale,
		Category:     domain.LedgerCategorySale,
		Item:         saleItemText(sale),
		Amount:       sale.Total,
		Paid:         sale.Total,
		Unpaid:       decimal.Zero,
		Status:       domain.LedgerStatusComplete,
		Color:        colorSale,
		Counterparty: orDefault(sale.CustomerName, walkingCustomer),
		CustomerID:   sale.CustomerID,
	}
	if sale.IsBakiPayment {
		entry.Type = domain.LedgerTypeBakiPayment
		entry.Color = colorPayment
	}
	return entry
}

func saleItemText(sale domain.Sale) string {
	if sale.IsBakiPayment {
		return "Payment: " + orDefault(sale.BakiProductName, "Baki Settlement")
	}
	if len(sale.Items) == 0 {
		return "Sale #" + lastN(sale.ID, 4)
	}
	parts := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		parts = append(parts, quantityText(item.Name, item.Quantity, item.Unit, "pcs"))
	}
	return strings.Join(parts, ", ")
}

func fromDebt(record domain.DebtRecord) domain.LedgerEntry {
	unpaid := record.Unpaid()
	entry := domain.LedgerEntry{
		ID:           record.ID,
		Date:         record.TakenDate,
		Type:         domain.LedgerTypeNewBaki,
		Category:     domain.LedgerCategoryBaki,
		Item:         quantityText(record.ProductName, record.Quantity, record.Unit, "pcs"),
		Amount:       record.Amount,
		Paid:         record.PaidAmount,
		Unpaid:       unpaid,
		Status:       domain.LedgerStatusUnpaid,
		Color:        colorUnpaid,
		Counterparty: record.CustomerName,
		CustomerID:   record.CustomerID,
	}
	if unpaid.IsZero() {
		entry.Status = domain.LedgerStatusPaid
		entry.Color = colorSale
	}
	return entry
}

func fromProcurement(procurement domain.Procurement) domain.LedgerEntry {
	entryType := domain.LedgerTypeRestock
	if procurement.Type == domain.ProcurementInitial {
		entryType = domain.LedgerTypeInitialStock
	}
	return domain.LedgerEntry{
		ID:           procurement.ID,
		Date:         procurement.Date,
		Type:         entryType,
		Category:     domain.LedgerCategoryInventory,
		Item:         "Bought: " + quantityText(procurement.ProductName, procurement.Quantity, procurement.Unit, "units"),
		Amount:       procurement.TotalCost,
		Paid:         procurement.TotalCost,
		Unpaid:       decimal.Zero,
		Status:       domain.LedgerStatusInStock,
		Color:        colorInventory,
		Counterparty: supplier,
	}
}

func quantityText(name string, qty decimal.Decimal, unit string, defaultUnit string) string {
	return fmt.Sprintf("%s (%s %s)", name, qty.String(), orDefault(unit, defaultUnit))
}

func orDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Overview computes the three dashboard totals.
func Overview(sales []domain.Sale, customers []domain.Customer, products []domain.Product) domain.LedgerOverview {
	overview := domain.LedgerOverview{}
	for _, sale := range sales {
		overview.TotalCashIn = overview.TotalCashIn.Add(sale.Total)
	}
	for _, customer := range customers {
		overview.TotalOwed = overview.TotalOwed.Add(customer.TotalDue)
	}
	for _, product := range products {
		overview.TotalInvestment = overview.TotalInvestment.Add(product.PurchasePrice.Mul(product.Stock))
	}
	return overview
}

// LoadLocation resolves the shop time zone, defaulting to Asia/Dhaka.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = "Asia/Dhaka"
	}
	return time.LoadLocation(name)
}
