package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"specsbiz/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
	ErrConflict      = errors.New("conflict")
)

// DeleteOptions selects the compensating updates applied together with a delete.
type DeleteOptions struct {
	// ReverseStock undoes the record's effect on product stock: a sale gives its
	// quantities back, a procurement takes its quantity away (floored at zero).
	ReverseStock bool
	// ReverseSettlements subtracts a baki payment's settlements from the paid
	// amount of the debt records it settled.
	ReverseSettlements bool
}

// Repository is the record store adapter. Every method is scoped to one owner namespace.
type Repository interface {
	ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error)
	GetProduct(ctx context.Context, ownerID string, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, ownerID string, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, ownerID string, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, ownerID string, id string) error

	ListSales(ctx context.Context, ownerID string) ([]domain.Sale, error)
	GetSale(ctx context.Context, ownerID string, id string) (*domain.Sale, error)
	// CreateSale stores the sale, lowers each product's stock by the sold quantity
	// (never below zero) and applies debt settlements.
	CreateSale(ctx context.Context, ownerID string, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, ownerID string, id string, opts DeleteOptions) (*domain.Sale, error)

	ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, ownerID string, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, ownerID string, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, ownerID string, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, ownerID string, id string) error

	// ListDebtRecords returns one customer's records, or every record when customerID is empty.
	ListDebtRecords(ctx context.Context, ownerID string, customerID string) ([]domain.DebtRecord, error)
	CreateDebtRecord(ctx context.Context, ownerID string, record domain.DebtRecord) (*domain.DebtRecord, error)
	DeleteDebtRecord(ctx context.Context, ownerID string, customerID string, id string) (*domain.DebtRecord, error)

	ListProcurements(ctx context.Context, ownerID string) ([]domain.Procurement, error)
	// CreateProcurement appends the entry and raises the linked product's stock.
	CreateProcurement(ctx context.Context, ownerID string, procurement domain.Procurement) (*domain.Procurement, error)
	DeleteProcurement(ctx context.Context, ownerID string, id string, opts DeleteOptions) (*domain.Procurement, error)

	GetSettings(ctx context.Context, ownerID string) (*domain.ShopSettings, error)
	SaveSettings(ctx context.Context, settings domain.ShopSettings) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, ownerID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Check validates a record at the adapter boundary.
func Check(record any) error {
	if err := domain.Validate(record); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}
