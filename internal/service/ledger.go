package service

import (
	"context"
	"fmt"
	"time"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/events"
	"specsbiz/backend/internal/insight"
	"specsbiz/backend/internal/ledger"
	"specsbiz/backend/internal/store"
)

// NewLedgerFilter parses query parameters with the shop's time zone.
func (s *Service) NewLedgerFilter(query string, entryType string, from string, to string) (ledger.Filter, error) {
	f, err := ledger.NewFilter(query, entryType, from, to, s.loc)
	if err != nil {
		return ledger.Filter{}, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	return f, nil
}

func (s *Service) Ledger(ctx context.Context, f ledger.Filter) (domain.LedgerResponse, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.LedgerResponse{}, err
	}
	entries, err := s.ledgerEntries(ctx, actor.OwnerID)
	if err != nil {
		return domain.LedgerResponse{}, err
	}
	entries = ledger.Apply(entries, f)
	return domain.LedgerResponse{Entries: entries, Summary: ledger.Summarize(entries)}, nil
}

func (s *Service) ledgerEntries(ctx context.Context, ownerID string) ([]domain.LedgerEntry, error) {
	sales, err := s.repo.ListSales(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	debts, err := s.repo.ListDebtRecords(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}
	procurements, err := s.repo.ListProcurements(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return ledger.Build(sales, debts, procurements), nil
}

func (s *Service) LedgerOverview(ctx context.Context) (domain.LedgerOverview, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.LedgerOverview{}, err
	}
	snapshot, err := s.snapshot(ctx, actor.OwnerID)
	if err != nil {
		return domain.LedgerOverview{}, err
	}
	return ledger.Overview(snapshot.Sales, snapshot.Customers, snapshot.Products), nil
}

// SalesAnalytics reports revenue and profit for the current day, week, month
// or year in the shop's time zone.
func (s *Service) SalesAnalytics(ctx context.Context, period string) (domain.SalesAnalytics, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.SalesAnalytics{}, err
	}
	period, err = ledger.ParseRange(period)
	if err != nil {
		return domain.SalesAnalytics{}, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	sales, err := s.repo.ListSales(ctx, actor.OwnerID)
	if err != nil {
		return domain.SalesAnalytics{}, err
	}
	return ledger.SalesAnalytics(sales, period, s.now(), s.loc), nil
}

// DeleteLedgerEntry removes the record behind a ledger entry and applies its
// compensating updates. Only an owner holding the manager PIN may do this;
// a rejected request changes nothing.
func (s *Service) DeleteLedgerEntry(ctx context.Context, ref domain.LedgerRef, pin string) (domain.LedgerDeleteResponse, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.LedgerDeleteResponse{}, err
	}
	if s.pin == nil || !s.pin.ValidateManagerPIN(pin) {
		s.logger.WithField("owner_id", actor.OwnerID).WithField("entry", ref.Category+"/"+ref.ID).Warn("ledger delete rejected: invalid manager pin")
		return domain.LedgerDeleteResponse{}, ErrInvalidPIN
	}

	var detail string
	switch ref.Category {
	case domain.LedgerCategorySale:
		sale, err := s.repo.DeleteSale(ctx, actor.OwnerID, ref.ID, store.DeleteOptions{ReverseStock: true, ReverseSettlements: true})
		if err != nil {
			return domain.LedgerDeleteResponse{}, err
		}
		ref.CustomerID = sale.CustomerID
		detail = fmt.Sprintf("total=%s,items=%d,settlements=%d", sale.Total, len(sale.Items), len(sale.Settlements))
	case domain.LedgerCategoryBaki:
		record, err := s.repo.DeleteDebtRecord(ctx, actor.OwnerID, ref.CustomerID, ref.ID)
		if err != nil {
			return domain.LedgerDeleteResponse{}, err
		}
		ref.CustomerID = record.CustomerID
		detail = fmt.Sprintf("customer=%s,unpaid=%s", record.CustomerID, record.Unpaid())
	case domain.LedgerCategoryInventory:
		procurement, err := s.repo.DeleteProcurement(ctx, actor.OwnerID, ref.ID, store.DeleteOptions{ReverseStock: true})
		if err != nil {
			return domain.LedgerDeleteResponse{}, err
		}
		detail = fmt.Sprintf("product=%s,qty=%s", procurement.ProductID, procurement.Quantity)
	default:
		return domain.LedgerDeleteResponse{}, invalid("unknown ledger category %q", ref.Category)
	}

	s.logAudit(ctx, actor, "ledger_delete", ref.Category, ref.ID, detail)
	s.changed(ctx, actor, events.TypeRecordDeleted, ref.Category, ref.ID, detail)
	return domain.LedgerDeleteResponse{Ref: ref, DeletedAt: s.now().Format(time.RFC3339)}, nil
}

func (s *Service) Health(ctx context.Context) (domain.BusinessHealth, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.BusinessHealth{}, err
	}
	return s.insight.Analyze(ctx, actor.OwnerID, func(ctx context.Context) (insight.Snapshot, error) {
		return s.snapshot(ctx, actor.OwnerID)
	})
}

func (s *Service) snapshot(ctx context.Context, ownerID string) (insight.Snapshot, error) {
	var snapshot insight.Snapshot
	var err error
	if snapshot.Sales, err = s.repo.ListSales(ctx, ownerID); err != nil {
		return insight.Snapshot{}, err
	}
	if snapshot.Products, err = s.repo.ListProducts(ctx, ownerID); err != nil {
		return insight.Snapshot{}, err
	}
	if snapshot.Customers, err = s.repo.ListCustomers(ctx, ownerID); err != nil {
		return insight.Snapshot{}, err
	}
	return snapshot, nil
}
