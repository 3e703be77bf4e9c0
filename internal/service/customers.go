package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/events"
	"specsbiz/backend/internal/store"
)

const openingBalanceName = "Opening balance"

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx, actor.OwnerID)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.repo.GetCustomer(ctx, actor.OwnerID, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

// CreateCustomer stores the customer; a positive opening due becomes their
// first debt record.
func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.Customer{}, err
	}
	if req.OpeningDue.IsNegative() {
		return domain.Customer{}, invalid("opening due must not be negative")
	}

	customer := domain.Customer{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.TrimSpace(req.Email),
		Address:   strings.TrimSpace(req.Address),
		Segment:   strings.TrimSpace(req.Segment),
		CreatedAt: s.now(),
	}
	if customer.Segment == "" {
		customer.Segment = domain.DefaultSegment
	}
	if customer.Phone, err = normalizePhone(req.Phone); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, actor.OwnerID, customer)
	if err != nil {
		return domain.Customer{}, err
	}

	if req.OpeningDue.IsPositive() {
		if _, err := s.repo.CreateDebtRecord(ctx, actor.OwnerID, domain.DebtRecord{
			CustomerID:  created.ID,
			ProductName: openingBalanceName,
			Quantity:    decimal.NewFromInt(1),
			Amount:      req.OpeningDue,
			PaidAmount:  decimal.Zero,
			TakenDate:   created.CreatedAt,
		}); err != nil {
			if delErr := s.repo.DeleteCustomer(ctx, actor.OwnerID, created.ID); delErr != nil {
				s.logger.WithError(delErr).WithField("customer_id", created.ID).Warn("failed to remove customer after opening due error")
			}
			return domain.Customer{}, err
		}
		if created, err = s.repo.GetCustomer(ctx, actor.OwnerID, created.ID); err != nil {
			return domain.Customer{}, err
		}
	}

	s.logAudit(ctx, actor, "customer_create", "customer", created.ID, fmt.Sprintf("name=%s,opening_due=%s", created.FullName(), req.OpeningDue))
	s.changed(ctx, actor, events.TypeRecordCreated, "customer", created.ID, created.FullName())
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.Customer{}, err
	}
	current, err := s.repo.GetCustomer(ctx, actor.OwnerID, id)
	if err != nil {
		return domain.Customer{}, err
	}

	customer := *current
	if req.FirstName != nil {
		customer.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		customer.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		customer.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		if customer.Phone, err = normalizePhone(*req.Phone); err != nil {
			return domain.Customer{}, err
		}
	}
	if req.Address != nil {
		customer.Address = strings.TrimSpace(*req.Address)
	}
	if req.Segment != nil {
		customer.Segment = strings.TrimSpace(*req.Segment)
	}

	saved, err := s.repo.UpdateCustomer(ctx, actor.OwnerID, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, actor, "customer_update", "customer", saved.ID, saved.FullName())
	s.changed(ctx, actor, events.TypeRecordUpdated, "customer", saved.ID, saved.FullName())
	return *saved, nil
}

// DeleteCustomer fails with store.ErrConflict while the customer still owes money.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, actor.OwnerID, id); err != nil {
		return err
	}
	s.logAudit(ctx, actor, "customer_delete", "customer", id, "")
	s.changed(ctx, actor, events.TypeRecordDeleted, "customer", id, "")
	return nil
}

func (s *Service) ListDebtRecords(ctx context.Context, customerID string) ([]domain.DebtRecord, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetCustomer(ctx, actor.OwnerID, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListDebtRecords(ctx, actor.OwnerID, customerID)
}

// AddDebt records goods taken on credit. With a product and no amount the
// amount is quantity times the product's selling price.
func (s *Service) AddDebt(ctx context.Context, customerID string, req domain.DebtCreateRequest) (domain.DebtRecord, error) {
	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleStaff)
	if err != nil {
		return domain.DebtRecord{}, err
	}
	if _, err := s.repo.GetCustomer(ctx, actor.OwnerID, customerID); err != nil {
		return domain.DebtRecord{}, err
	}

	record := domain.DebtRecord{
		CustomerID:  customerID,
		ProductName: strings.TrimSpace(req.ProductName),
		Unit:        strings.TrimSpace(req.Unit),
		Quantity:    req.Quantity,
		Amount:      req.Amount,
		PaidAmount:  req.PaidAmount,
		TakenDate:   s.now(),
		Note:        strings.TrimSpace(req.Note),
	}
	if req.TakenDate != nil && !req.TakenDate.IsZero() {
		record.TakenDate = req.TakenDate.UTC()
	}
	if req.ProductID != "" {
		product, err := s.repo.GetProduct(ctx, actor.OwnerID, req.ProductID)
		if err != nil {
			return domain.DebtRecord{}, invalid("product %q not found", req.ProductID)
		}
		if record.ProductName == "" {
			record.ProductName = product.Name
		}
		if record.Unit == "" {
			record.Unit = product.Unit
		}
		if record.Amount.IsZero() {
			record.Amount = product.SellingPrice.Mul(record.Quantity)
		}
	}
	if record.PaidAmount.GreaterThan(record.Amount) {
		return domain.DebtRecord{}, invalid("paid amount exceeds amount")
	}

	created, err := s.repo.CreateDebtRecord(ctx, actor.OwnerID, record)
	if err != nil {
		return domain.DebtRecord{}, err
	}
	s.logAudit(ctx, actor, "baki_create", "debt_record", created.ID, fmt.Sprintf("customer=%s,amount=%s,paid=%s", customerID, created.Amount, created.PaidAmount))
	s.changed(ctx, actor, events.TypeRecordCreated, "debt_record", created.ID, customerID)
	return *created, nil
}

// RecordDebtPayment settles unpaid records oldest first, or only RecordID
// when given, and books the payment as a baki payment sale.
func (s *Service) RecordDebtPayment(ctx context.Context, customerID string, req domain.DebtPaymentRequest) (domain.Sale, error) {
	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleStaff)
	if err != nil {
		return domain.Sale{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.Sale{}, invalid("amount must be greater than zero")
	}
	customer, err := s.repo.GetCustomer(ctx, actor.OwnerID, customerID)
	if err != nil {
		return domain.Sale{}, err
	}
	if req.Amount.GreaterThan(customer.TotalDue) {
		return domain.Sale{}, invalid("amount %s exceeds total due %s", req.Amount.StringFixed(2), customer.TotalDue.StringFixed(2))
	}

	records, err := s.repo.ListDebtRecords(ctx, actor.OwnerID, customerID)
	if err != nil {
		return domain.Sale{}, err
	}
	settlements, names, err := allocatePayment(records, req.Amount, req.RecordID)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		SaleDate:      s.now(),
		Total:         req.Amount,
		Profit:        decimal.Zero,
		CustomerID:    customer.ID,
		CustomerName:  customer.FullName(),
		IsBakiPayment: true,
		Settlements:   settlements,
	}
	if len(names) == 1 {
		sale.BakiProductName = names[0]
	}
	created, err := s.repo.CreateSale(ctx, actor.OwnerID, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, actor, "baki_payment", "sale", created.ID, fmt.Sprintf("customer=%s,amount=%s,records=%d", customerID, created.Total, len(settlements)))
	s.changed(ctx, actor, events.TypeRecordCreated, "sale", created.ID, "baki payment")
	return *created, nil
}

// allocatePayment spreads amount over unpaid records, oldest taken first.
func allocatePayment(records []domain.DebtRecord, amount decimal.Decimal, recordID string) ([]domain.DebtSettlement, []string, error) {
	candidates := make([]domain.DebtRecord, 0, len(records))
	for _, record := range records {
		if recordID != "" && record.ID != recordID {
			continue
		}
		if record.Unpaid().IsPositive() {
			candidates = append(candidates, record)
		}
	}
	if recordID != "" && len(candidates) == 0 {
		return nil, nil, fmt.Errorf("%w: no unpaid debt record %s", store.ErrNotFound, recordID)
	}
	// Records arrive newest first.
	for i, j := 0, len(candidates)-1; i < j; i, j = i+1, j-1 {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}

	remaining := amount
	settlements := make([]domain.DebtSettlement, 0, len(candidates))
	names := make([]string, 0, len(candidates))
	for _, record := range candidates {
		if !remaining.IsPositive() {
			break
		}
		part := decimal.Min(remaining, record.Unpaid())
		settlements = append(settlements, domain.DebtSettlement{RecordID: record.ID, Amount: part})
		names = append(names, record.ProductName)
		remaining = remaining.Sub(part)
	}
	if remaining.IsPositive() {
		return nil, nil, invalid("amount exceeds the unpaid balance")
	}
	return settlements, names, nil
}

func normalizePhone(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	phone, err := domain.NormalizePhone(raw)
	if err != nil {
		return "", invalid("phone: %v", err)
	}
	return phone, nil
}
