package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/events"
	"specsbiz/backend/internal/store"
)

const (
	DefaultCurrency = "৳"
	DefaultLanguage = "en"

	minAccessCodeLength = 4
)

func defaultSettings(ownerID string) domain.ShopSettings {
	return domain.ShopSettings{OwnerID: ownerID, Currency: DefaultCurrency, Language: DefaultLanguage}
}

func (s *Service) loadSettings(ctx context.Context, ownerID string) (domain.ShopSettings, error) {
	settings, err := s.repo.GetSettings(ctx, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return defaultSettings(ownerID), nil
	}
	if err != nil {
		return domain.ShopSettings{}, err
	}
	return *settings, nil
}

func (s *Service) GetSettings(ctx context.Context) (domain.ShopSettings, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.ShopSettings{}, err
	}
	return s.loadSettings(ctx, actor.OwnerID)
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.ShopSettings, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return domain.ShopSettings{}, err
	}
	settings, err := s.loadSettings(ctx, actor.OwnerID)
	if err != nil {
		return domain.ShopSettings{}, err
	}

	if req.ShopName != nil {
		settings.ShopName = strings.TrimSpace(*req.ShopName)
	}
	if req.Currency != nil {
		settings.Currency = strings.TrimSpace(*req.Currency)
	}
	if req.Language != nil {
		settings.Language = strings.ToLower(strings.TrimSpace(*req.Language))
	}
	if req.ShopActive != nil {
		settings.ShopActive = *req.ShopActive
	}
	if req.AccessCode != nil {
		code := strings.TrimSpace(*req.AccessCode)
		switch {
		case code == "":
			settings.AccessCodeHash = ""
		case len(code) < minAccessCodeLength:
			return domain.ShopSettings{}, invalid("access code must be at least %d characters", minAccessCodeLength)
		default:
			hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
			if err != nil {
				return domain.ShopSettings{}, fmt.Errorf("hash access code: %w", err)
			}
			settings.AccessCodeHash = string(hash)
		}
	}
	settings.OwnerID = actor.OwnerID
	settings.UpdatedAt = s.now()

	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return domain.ShopSettings{}, err
	}
	s.logAudit(ctx, actor, "settings_update", "settings", actor.OwnerID, fmt.Sprintf("active=%t,language=%s", settings.ShopActive, settings.Language))
	s.changed(ctx, actor, events.TypeRecordUpdated, "settings", actor.OwnerID, "")
	return settings, nil
}

// PublicCatalogue lists the shop's visible in-stock products for visitors
// holding the access code. An inactive shop looks like a missing one.
func (s *Service) PublicCatalogue(ctx context.Context, ownerID string, code string) (domain.Catalogue, error) {
	settings, err := s.repo.GetSettings(ctx, ownerID)
	if err != nil {
		return domain.Catalogue{}, err
	}
	if !settings.ShopActive {
		return domain.Catalogue{}, store.ErrNotFound
	}
	if settings.AccessCodeHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(settings.AccessCodeHash), []byte(strings.TrimSpace(code))) != nil {
			return domain.Catalogue{}, fmt.Errorf("%w: invalid access code", ErrForbidden)
		}
	}

	products, err := s.repo.ListProducts(ctx, ownerID)
	if err != nil {
		return domain.Catalogue{}, err
	}
	catalogue := domain.Catalogue{ShopName: settings.ShopName, Currency: settings.Currency, Items: []domain.CatalogueItem{}}
	for _, product := range products {
		if !product.ShowInShop || !product.Stock.IsPositive() {
			continue
		}
		catalogue.Items = append(catalogue.Items, domain.CatalogueItem{
			ID:           product.ID,
			Name:         product.Name,
			Category:     product.Category,
			Unit:         product.Unit,
			SellingPrice: product.SellingPrice,
			Stock:        product.Stock,
		})
	}
	return catalogue, nil
}
