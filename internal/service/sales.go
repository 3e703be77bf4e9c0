package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"specsbiz/backend/internal/async"
	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/events"
)

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, actor.OwnerID)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, actor.OwnerID, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// SubmitSale queues CreateSale on the write pool. The caller waits on or
// detaches from the returned future.
func (s *Service) SubmitSale(ctx context.Context, req domain.SaleCreateRequest) *async.Future[domain.SaleResponse] {
	return async.Submit(ctx, s.writer, "sale", func(ctx context.Context) (domain.SaleResponse, error) {
		return s.CreateSale(ctx, req)
	})
}

// CreateSale prices the lines, records the sale and lowers stock. Selling
// more than is on hand is allowed; those products come back in
// OversoldProductIDs.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleResponse, error) {
	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleStaff)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if len(req.Items) == 0 {
		return domain.SaleResponse{}, invalid("sale needs at least one item")
	}

	sale := domain.Sale{
		SaleDate:     s.now(),
		Items:        make([]domain.SaleItem, 0, len(req.Items)),
		Total:        decimal.Zero,
		Profit:       decimal.Zero,
		CustomerName: strings.TrimSpace(req.CustomerName),
	}
	if req.CustomerID != "" {
		customer, err := s.repo.GetCustomer(ctx, actor.OwnerID, req.CustomerID)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		sale.CustomerID = customer.ID
		sale.CustomerName = customer.FullName()
	}

	products := map[string]domain.Product{}
	demand := map[string]decimal.Decimal{}
	for i, line := range req.Items {
		if !line.Quantity.IsPositive() {
			return domain.SaleResponse{}, invalid("item %d quantity must be greater than zero", i+1)
		}
		product, ok := products[line.ProductID]
		if !ok {
			found, err := s.repo.GetProduct(ctx, actor.OwnerID, line.ProductID)
			if err != nil {
				return domain.SaleResponse{}, invalid("item %d: product %q not found", i+1, line.ProductID)
			}
			product = *found
			products[product.ID] = product
		}

		unitPrice := product.SellingPrice
		if line.UnitPrice != nil {
			if line.UnitPrice.IsNegative() {
				return domain.SaleResponse{}, invalid("item %d unit price must not be negative", i+1)
			}
			unitPrice = *line.UnitPrice
		}

		sale.Items = append(sale.Items, domain.SaleItem{
			ProductID: product.ID,
			Name:      product.Name,
			Unit:      product.Unit,
			Quantity:  line.Quantity,
			UnitPrice: unitPrice,
			UnitCost:  product.PurchasePrice,
		})
		sale.Total = sale.Total.Add(unitPrice.Mul(line.Quantity))
		sale.Profit = sale.Profit.Add(unitPrice.Sub(product.PurchasePrice).Mul(line.Quantity))
		demand[product.ID] = demand[product.ID].Add(line.Quantity)
	}

	oversold := make([]string, 0)
	for productID, qty := range demand {
		if qty.GreaterThan(products[productID].Stock) {
			oversold = append(oversold, productID)
		}
	}
	sort.Strings(oversold)

	created, err := s.repo.CreateSale(ctx, actor.OwnerID, sale)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if len(oversold) > 0 {
		s.logger.WithField("sale_id", created.ID).WithField("products", oversold).Warn("sale exceeded stock on hand; stock floored at zero")
	}

	s.logAudit(ctx, actor, "sale_create", "sale", created.ID, fmt.Sprintf("items=%d,total=%s", len(created.Items), created.Total))
	s.changed(ctx, actor, events.TypeRecordCreated, "sale", created.ID, created.Total.StringFixed(2))
	return domain.SaleResponse{Sale: *created, OversoldProductIDs: oversold}, nil
}
