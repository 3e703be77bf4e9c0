package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/events"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, actor.OwnerID)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, actor.OwnerID, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// CreateProduct stores the product and books any opening stock as an
// Initial Stock procurement.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.Product{}, err
	}
	if req.Stock.IsNegative() {
		return domain.Product{}, invalid("stock must not be negative")
	}

	now := s.now()
	product := domain.Product{
		Name:          strings.TrimSpace(req.Name),
		Category:      strings.TrimSpace(req.Category),
		Unit:          strings.TrimSpace(req.Unit),
		Description:   strings.TrimSpace(req.Description),
		PurchasePrice: req.PurchasePrice,
		SellingPrice:  req.SellingPrice,
		Stock:         decimal.Zero,
		ShowInShop:    req.ShowInShop,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := s.repo.CreateProduct(ctx, actor.OwnerID, product)
	if err != nil {
		return domain.Product{}, err
	}

	if req.Stock.IsPositive() {
		if _, err := s.repo.CreateProcurement(ctx, actor.OwnerID, domain.Procurement{
			ProductID:   created.ID,
			ProductName: created.Name,
			Unit:        created.Unit,
			Quantity:    req.Stock,
			BuyPrice:    created.PurchasePrice,
			TotalCost:   req.Stock.Mul(created.PurchasePrice),
			Date:        now,
			Type:        domain.ProcurementInitial,
		}); err != nil {
			if delErr := s.repo.DeleteProduct(ctx, actor.OwnerID, created.ID); delErr != nil {
				s.logger.WithError(delErr).WithField("product_id", created.ID).Warn("failed to remove product after opening stock error")
			}
			return domain.Product{}, err
		}
		if created, err = s.repo.GetProduct(ctx, actor.OwnerID, created.ID); err != nil {
			return domain.Product{}, err
		}
	}

	s.logAudit(ctx, actor, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%s,stock=%s", created.Name, created.SellingPrice, created.Stock))
	s.changed(ctx, actor, events.TypeRecordCreated, "product", created.ID, created.Name)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.Product{}, err
	}
	current, err := s.repo.GetProduct(ctx, actor.OwnerID, id)
	if err != nil {
		return domain.Product{}, err
	}

	product := *current
	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.Unit != nil {
		product.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.Description != nil {
		product.Description = strings.TrimSpace(*req.Description)
	}
	if req.PurchasePrice != nil {
		product.PurchasePrice = *req.PurchasePrice
	}
	if req.SellingPrice != nil {
		product.SellingPrice = *req.SellingPrice
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}
	if req.ShowInShop != nil {
		product.ShowInShop = *req.ShowInShop
	}
	product.UpdatedAt = s.now()

	saved, err := s.repo.UpdateProduct(ctx, actor.OwnerID, product)
	if err != nil {
		return domain.Product{}, err
	}

	detail := fmt.Sprintf("price=%s,cost=%s", saved.SellingPrice, saved.PurchasePrice)
	if !saved.Stock.Equal(current.Stock) {
		detail += fmt.Sprintf(",stock=%s->%s", current.Stock, saved.Stock)
	}
	s.logAudit(ctx, actor, "product_update", "product", saved.ID, detail)
	s.changed(ctx, actor, events.TypeRecordUpdated, "product", saved.ID, detail)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, actor.OwnerID, id); err != nil {
		return err
	}
	s.logAudit(ctx, actor, "product_delete", "product", id, "")
	s.changed(ctx, actor, events.TypeRecordDeleted, "product", id, "")
	return nil
}

// Restock adds stock and appends a Restock Entry. A given buy price also
// becomes the product's purchase price.
func (s *Service) Restock(ctx context.Context, productID string, req domain.RestockRequest) (domain.Procurement, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.Procurement{}, err
	}
	if !req.Quantity.IsPositive() {
		return domain.Procurement{}, invalid("quantity must be greater than zero")
	}
	product, err := s.repo.GetProduct(ctx, actor.OwnerID, productID)
	if err != nil {
		return domain.Procurement{}, err
	}

	buyPrice := product.PurchasePrice
	if req.BuyPrice != nil {
		if req.BuyPrice.IsNegative() {
			return domain.Procurement{}, invalid("buy price must not be negative")
		}
		buyPrice = *req.BuyPrice
	}
	date := s.now()
	if req.Date != nil && !req.Date.IsZero() {
		date = req.Date.UTC()
	}

	created, err := s.repo.CreateProcurement(ctx, actor.OwnerID, domain.Procurement{
		ProductID:   product.ID,
		ProductName: product.Name,
		Unit:        product.Unit,
		Quantity:    req.Quantity,
		BuyPrice:    buyPrice,
		TotalCost:   req.Quantity.Mul(buyPrice),
		Date:        date,
		Type:        domain.ProcurementRestock,
	})
	if err != nil {
		return domain.Procurement{}, err
	}

	if !buyPrice.Equal(product.PurchasePrice) {
		refreshed, err := s.repo.GetProduct(ctx, actor.OwnerID, product.ID)
		if err == nil {
			refreshed.PurchasePrice = buyPrice
			refreshed.UpdatedAt = s.now()
			_, err = s.repo.UpdateProduct(ctx, actor.OwnerID, *refreshed)
		}
		if err != nil {
			s.logger.WithError(err).WithField("product_id", product.ID).Warn("failed to update purchase price after restock")
		}
	}

	s.logAudit(ctx, actor, "product_restock", "procurement", created.ID, fmt.Sprintf("product=%s,qty=%s,cost=%s", product.ID, created.Quantity, created.TotalCost))
	s.changed(ctx, actor, events.TypeRecordCreated, "procurement", created.ID, product.ID)
	return *created, nil
}

func (s *Service) ListProcurements(ctx context.Context) ([]domain.Procurement, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProcurements(ctx, actor.OwnerID)
}
