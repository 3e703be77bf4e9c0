// Package storetest is a conformance suite every store.Repository backend runs.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/store"
	"specsbiz/backend/internal/xid"
)

// Run executes the suite against repositories built by newRepo. newRepo is
// called once per test; backends that share state between calls are fine
// because every test works in its own owner namespace.
func Run(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	suite.Run(t, &repositorySuite{newRepo: newRepo})
}

type repositorySuite struct {
	suite.Suite
	newRepo func(t *testing.T) store.Repository

	ctx   context.Context
	repo  store.Repository
	owner string
}

func (s *repositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.newRepo(s.T())
	s.owner = xid.New("owner")
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (s *repositorySuite) product(name string, stock string) *domain.Product {
	created, err := s.repo.CreateProduct(s.ctx, s.owner, domain.Product{
		Name:          name,
		Unit:          "kg",
		PurchasePrice: dec("60"),
		SellingPrice:  dec("75"),
		Stock:         dec(stock),
	})
	s.Require().NoError(err)
	return created
}

func (s *repositorySuite) customer(first string) *domain.Customer {
	created, err := s.repo.CreateCustomer(s.ctx, s.owner, domain.Customer{FirstName: first, LastName: "Test", Segment: domain.DefaultSegment})
	s.Require().NoError(err)
	return created
}

func (s *repositorySuite) debt(customerID string, amount string) *domain.DebtRecord {
	created, err := s.repo.CreateDebtRecord(s.ctx, s.owner, domain.DebtRecord{
		CustomerID:  customerID,
		ProductName: "Soybean Oil",
		Unit:        "pcs",
		Quantity:    dec("1"),
		Amount:      dec(amount),
		TakenDate:   time.Now().UTC().Add(-time.Hour),
	})
	s.Require().NoError(err)
	return created
}

func (s *repositorySuite) stockOf(id string) decimal.Decimal {
	product, err := s.repo.GetProduct(s.ctx, s.owner, id)
	s.Require().NoError(err)
	return product.Stock
}

func (s *repositorySuite) dueOf(id string) decimal.Decimal {
	customer, err := s.repo.GetCustomer(s.ctx, s.owner, id)
	s.Require().NoError(err)
	return customer.TotalDue
}

func (s *repositorySuite) TestProductRoundTrip() {
	created := s.product("Red Lentil", "2.75")
	s.NotEmpty(created.ID)

	got, err := s.repo.GetProduct(s.ctx, s.owner, created.ID)
	s.Require().NoError(err)
	s.Equal("Red Lentil", got.Name)
	s.True(got.Stock.Equal(dec("2.75")), "stock %s", got.Stock)
	s.True(got.SellingPrice.Equal(dec("75")))

	got.SellingPrice = dec("80.50")
	updated, err := s.repo.UpdateProduct(s.ctx, s.owner, *got)
	s.Require().NoError(err)
	s.True(updated.SellingPrice.Equal(dec("80.5")))

	s.product("Atta", "1")
	products, err := s.repo.ListProducts(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Require().Len(products, 2)
	s.Equal("Atta", products[0].Name)

	s.Require().NoError(s.repo.DeleteProduct(s.ctx, s.owner, created.ID))
	_, err = s.repo.GetProduct(s.ctx, s.owner, created.ID)
	s.ErrorIs(err, store.ErrNotFound)
	s.ErrorIs(s.repo.DeleteProduct(s.ctx, s.owner, created.ID), store.ErrNotFound)
}

func (s *repositorySuite) TestCreateProductRejectsDuplicateAndInvalid() {
	created := s.product("Sugar", "5")
	_, err := s.repo.CreateProduct(s.ctx, s.owner, *created)
	s.ErrorIs(err, store.ErrConflict)

	_, err = s.repo.CreateProduct(s.ctx, s.owner, domain.Product{Name: "Broken", PurchasePrice: dec("-1")})
	s.ErrorIs(err, store.ErrInvalidRecord)
}

func (s *repositorySuite) TestOwnersAreIsolated() {
	created := s.product("Tea", "3")
	other := xid.New("owner")

	_, err := s.repo.GetProduct(s.ctx, other, created.ID)
	s.ErrorIs(err, store.ErrNotFound)
	products, err := s.repo.ListProducts(s.ctx, other)
	s.Require().NoError(err)
	s.Empty(products)
}

func (s *repositorySuite) TestSaleFloorsStockAtZero() {
	rice := s.product("Rice", "3")
	sale, err := s.repo.CreateSale(s.ctx, s.owner, domain.Sale{
		SaleDate: time.Now().UTC(),
		Items: []domain.SaleItem{
			{ProductID: rice.ID, Name: rice.Name, Unit: "kg", Quantity: dec("5"), UnitPrice: dec("75"), UnitCost: dec("60")},
		},
		Total:  dec("375"),
		Profit: dec("75"),
	})
	s.Require().NoError(err)
	s.True(s.stockOf(rice.ID).IsZero(), "stock %s", s.stockOf(rice.ID))

	stored, err := s.repo.GetSale(s.ctx, s.owner, sale.ID)
	s.Require().NoError(err)
	s.Require().Len(stored.Items, 1)
	s.True(stored.Items[0].Quantity.Equal(dec("5")))
	s.True(stored.Total.Equal(dec("375")))
}

func (s *repositorySuite) TestRejectedSaleLeavesNoPartialUpdate() {
	rice := s.product("Rice", "10")
	_, err := s.repo.CreateSale(s.ctx, s.owner, domain.Sale{
		SaleDate: time.Now().UTC(),
		Items: []domain.SaleItem{
			{ProductID: rice.ID, Name: rice.Name, Quantity: dec("2"), UnitPrice: dec("75"), UnitCost: dec("60")},
			{ProductID: "missing", Name: "Ghost", Quantity: dec("1"), UnitPrice: dec("1"), UnitCost: dec("1")},
		},
		Total: dec("151"),
	})
	s.ErrorIs(err, store.ErrInvalidRecord)
	s.True(s.stockOf(rice.ID).Equal(dec("10")))

	sales, err := s.repo.ListSales(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Empty(sales)
}

func (s *repositorySuite) TestDeleteSaleRestoresStockOfExistingProducts() {
	rice := s.product("Rice", "10")
	oil := s.product("Oil", "4")
	sale, err := s.repo.CreateSale(s.ctx, s.owner, domain.Sale{
		SaleDate: time.Now().UTC(),
		Items: []domain.SaleItem{
			{ProductID: rice.ID, Name: rice.Name, Quantity: dec("2.5"), UnitPrice: dec("75"), UnitCost: dec("60")},
			{ProductID: oil.ID, Name: oil.Name, Quantity: dec("1"), UnitPrice: dec("75"), UnitCost: dec("60")},
		},
		Total: dec("262.5"),
	})
	s.Require().NoError(err)
	s.True(s.stockOf(rice.ID).Equal(dec("7.5")))

	s.Require().NoError(s.repo.DeleteProduct(s.ctx, s.owner, oil.ID))
	deleted, err := s.repo.DeleteSale(s.ctx, s.owner, sale.ID, store.DeleteOptions{ReverseStock: true})
	s.Require().NoError(err)
	s.Equal(sale.ID, deleted.ID)
	s.True(s.stockOf(rice.ID).Equal(dec("10")))

	_, err = s.repo.GetSale(s.ctx, s.owner, sale.ID)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *repositorySuite) TestSettlementsDriveDerivedDue() {
	customer := s.customer("Karim")
	record := s.debt(customer.ID, "500")
	s.True(s.dueOf(customer.ID).Equal(dec("500")))

	payment := func(amount string) *domain.Sale {
		sale, err := s.repo.CreateSale(s.ctx, s.owner, domain.Sale{
			SaleDate:      time.Now().UTC(),
			Total:         dec(amount),
			CustomerID:    customer.ID,
			CustomerName:  customer.FullName(),
			IsBakiPayment: true,
			Settlements:   []domain.DebtSettlement{{RecordID: record.ID, Amount: dec(amount)}},
		})
		s.Require().NoError(err)
		return sale
	}

	payment("200")
	s.True(s.dueOf(customer.ID).Equal(dec("300")))

	last := payment("300")
	s.True(s.dueOf(customer.ID).IsZero())
	records, err := s.repo.ListDebtRecords(s.ctx, s.owner, customer.ID)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(domain.DebtStatusPaid, records[0].Status)
	s.Equal("Karim Test", records[0].CustomerName)

	_, err = s.repo.DeleteSale(s.ctx, s.owner, last.ID, store.DeleteOptions{ReverseSettlements: true})
	s.Require().NoError(err)
	s.True(s.dueOf(customer.ID).Equal(dec("300")))
}

func (s *repositorySuite) TestSettlementBeyondUnpaidIsRejected() {
	customer := s.customer("Rahim")
	record := s.debt(customer.ID, "100")
	_, err := s.repo.CreateSale(s.ctx, s.owner, domain.Sale{
		SaleDate:      time.Now().UTC(),
		Total:         dec("150"),
		CustomerID:    customer.ID,
		IsBakiPayment: true,
		Settlements:   []domain.DebtSettlement{{RecordID: record.ID, Amount: dec("150")}},
	})
	s.ErrorIs(err, store.ErrInvalidRecord)
	s.True(s.dueOf(customer.ID).Equal(dec("100")))
}

func (s *repositorySuite) TestCustomerDeleteGuardsOutstandingDue() {
	customer := s.customer("Salma")
	record := s.debt(customer.ID, "80")

	s.ErrorIs(s.repo.DeleteCustomer(s.ctx, s.owner, customer.ID), store.ErrConflict)

	deleted, err := s.repo.DeleteDebtRecord(s.ctx, s.owner, customer.ID, record.ID)
	s.Require().NoError(err)
	s.True(deleted.Amount.Equal(dec("80")))
	s.True(s.dueOf(customer.ID).IsZero())

	s.Require().NoError(s.repo.DeleteCustomer(s.ctx, s.owner, customer.ID))
	_, err = s.repo.GetCustomer(s.ctx, s.owner, customer.ID)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *repositorySuite) TestDebtRecordRequiresCustomer() {
	_, err := s.repo.CreateDebtRecord(s.ctx, s.owner, domain.DebtRecord{
		CustomerID:  "nobody",
		ProductName: "Rice",
		Amount:      dec("10"),
		TakenDate:   time.Now().UTC(),
	})
	s.ErrorIs(err, store.ErrNotFound)

	customer := s.customer("Nadia")
	record := s.debt(customer.ID, "10")
	_, err = s.repo.DeleteDebtRecord(s.ctx, s.owner, "someone-else", record.ID)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *repositorySuite) TestProcurementAdjustsStock() {
	rice := s.product("Rice", "0")
	entry, err := s.repo.CreateProcurement(s.ctx, s.owner, domain.Procurement{
		ProductID:   rice.ID,
		ProductName: rice.Name,
		Unit:        "kg",
		Quantity:    dec("10"),
		BuyPrice:    dec("60"),
		TotalCost:   dec("600"),
		Date:        time.Now().UTC(),
		Type:        domain.ProcurementRestock,
	})
	s.Require().NoError(err)
	s.True(s.stockOf(rice.ID).Equal(dec("10")))

	_, err = s.repo.CreateSale(s.ctx, s.owner, domain.Sale{
		SaleDate: time.Now().UTC(),
		Items:    []domain.SaleItem{{ProductID: rice.ID, Name: rice.Name, Quantity: dec("6"), UnitPrice: dec("75"), UnitCost: dec("60")}},
		Total:    dec("450"),
	})
	s.Require().NoError(err)

	_, err = s.repo.DeleteProcurement(s.ctx, s.owner, entry.ID, store.DeleteOptions{ReverseStock: true})
	s.Require().NoError(err)
	s.True(s.stockOf(rice.ID).IsZero(), "stock %s", s.stockOf(rice.ID))

	entries, err := s.repo.ListProcurements(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *repositorySuite) TestSettingsUpsert() {
	_, err := s.repo.GetSettings(s.ctx, s.owner)
	s.ErrorIs(err, store.ErrNotFound)

	settings := domain.ShopSettings{OwnerID: s.owner, ShopName: "Rahman Store", Currency: "BDT", Language: "bn"}
	s.Require().NoError(s.repo.SaveSettings(s.ctx, settings))
	settings.ShopActive = true
	settings.AccessCodeHash = "hash"
	s.Require().NoError(s.repo.SaveSettings(s.ctx, settings))

	got, err := s.repo.GetSettings(s.ctx, s.owner)
	s.Require().NoError(err)
	s.True(got.ShopActive)
	s.Equal("hash", got.AccessCodeHash)
	s.Equal("Rahman Store", got.ShopName)
}

func (s *repositorySuite) TestAuditLogWindow() {
	now := time.Now().UTC().Truncate(time.Second)
	for i, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Hour), now} {
		s.Require().NoError(s.repo.CreateAuditLog(s.ctx, domain.AuditLog{
			ID:            xid.New("audit"),
			OwnerID:       s.owner,
			ActorUsername: "owner",
			ActorRole:     domain.RoleOwner,
			Action:        "product.create",
			EntityType:    "product",
			EntityID:      string(rune('a' + i)),
			CreatedAt:     at,
		}))
	}
	logs, err := s.repo.ListAuditLogs(s.ctx, s.owner, now.Add(-24*time.Hour), now.Add(time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(logs, 2)
	s.Equal("c", logs[0].EntityID)
}

func (s *repositorySuite) TestUsers() {
	username := xid.New("staff")
	user := domain.UserAccount{Username: username, Password: "hash-1", Role: domain.RoleStaff, OwnerID: s.owner, Active: true, CreatedAt: time.Now().UTC()}
	s.Require().NoError(s.repo.CreateUser(s.ctx, user))
	s.ErrorIs(s.repo.CreateUser(s.ctx, user), store.ErrConflict)
	s.Require().NoError(s.repo.UpdateUserPassword(s.ctx, username, "hash-2"))
	s.ErrorIs(s.repo.UpdateUserPassword(s.ctx, xid.New("ghost"), "x"), store.ErrNotFound)

	users, err := s.repo.ListUsers(s.ctx)
	s.Require().NoError(err)
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == username {
			found = &users[i]
		}
	}
	require.NotNil(s.T(), found)
	s.Equal("hash-2", found.Password)
	s.Equal(s.owner, found.OwnerID)
}
