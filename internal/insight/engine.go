// Package insight scores the business from its own records: margins, stock
// coverage, receivables and recent activity.
package insight

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"specsbiz/backend/internal/cache"
	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/logging"
)

const (
	LowStockThreshold = 5

	FindingRestockLowStock    = "restock_low_stock"
	FindingCollectReceivables = "collect_receivables"
	FindingThinMargin         = "thin_margin"
	FindingIdleInventory      = "idle_inventory"
	FindingNoRecentSales      = "no_recent_sales"

	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

var highDebtThreshold = decimal.NewFromInt(1000)

// Snapshot is the record set one analysis runs over.
type Snapshot struct {
	Sales     []domain.Sale
	Products  []domain.Product
	Customers []domain.Customer
}

// Loader fetches a fresh snapshot when the cache misses.
type Loader func(ctx context.Context) (Snapshot, error)

type Engine struct {
	cache    cache.HealthCache
	cacheTTL time.Duration
	lockTTL  time.Duration
	now      func() time.Time
	logger   logrus.FieldLogger
}

func NewEngine(cacheStore cache.HealthCache, cacheTTL time.Duration, logger logrus.FieldLogger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopHealthCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		lockTTL:  5 * time.Second,
		now:      time.Now,
		logger:   logger.WithField("module", "insight"),
	}
}

// Analyze returns the cached snapshot for ownerID or rebuilds it under the
// cache lock. Cache failures degrade to an uncached rebuild.
func (e *Engine) Analyze(ctx context.Context, ownerID string, load Loader) (domain.BusinessHealth, error) {
	if cached, ok, err := e.cache.Get(ctx, ownerID); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		logging.LogError(e.logger, "insight", "Analyze", "cache get", ownerID, err)
	}

	unlock, err := e.cache.Lock(ctx, ownerID, e.lockTTL)
	switch {
	case errors.Is(err, cache.ErrLocked):
		// Another instance is rebuilding; its result is usually there by now.
		if cached, ok, getErr := e.cache.Get(ctx, ownerID); getErr == nil && ok {
			return *cached, nil
		}
		unlock = func() {}
	case err != nil:
		logging.LogError(e.logger, "insight", "Analyze", "cache lock", ownerID, err)
		unlock = func() {}
	}
	defer unlock()

	snapshot, err := load(ctx)
	if err != nil {
		return domain.BusinessHealth{}, err
	}
	health := Compute(ownerID, snapshot, e.now())
	if err := e.cache.Set(ctx, ownerID, &health, e.cacheTTL); err != nil {
		logging.LogError(e.logger, "insight", "Analyze", "cache set", ownerID, err)
	}
	return health, nil
}

// Invalidate drops the cached snapshot after a write.
func (e *Engine) Invalidate(ctx context.Context, ownerID string) {
	if err := e.cache.Invalidate(ctx, ownerID); err != nil {
		logging.LogError(e.logger, "insight", "Invalidate", "cache invalidate", ownerID, err)
	}
}

// Compute is the pure scoring step.
func Compute(ownerID string, snapshot Snapshot, now time.Time) domain.BusinessHealth {
	health := domain.BusinessHealth{
		OwnerID:     ownerID,
		LowStock:    []domain.ProductAlert{},
		HighDebt:    []domain.DebtorAlert{},
		Findings:    []domain.Finding{},
		GeneratedAt: now.UTC(),
	}

	weekAgo := now.Add(-7 * 24 * time.Hour)
	monthAgo := now.Add(-30 * 24 * time.Hour)
	recentSales := 0
	soldRecently := map[string]bool{}
	for _, sale := range snapshot.Sales {
		// Baki payments collect earlier revenue.
		if sale.IsBakiPayment {
			continue
		}
		health.TotalRevenue = health.TotalRevenue.Add(sale.Total)
		health.TotalProfit = health.TotalProfit.Add(sale.Profit)
		if !sale.SaleDate.Before(weekAgo) {
			recentSales++
		}
		if !sale.SaleDate.Before(monthAgo) {
			for _, item := range sale.Items {
				soldRecently[item.ProductID] = true
			}
		}
	}

	idleInvestment := decimal.Zero
	for _, product := range snapshot.Products {
		investment := product.PurchasePrice.Mul(product.Stock)
		health.TotalInvestment = health.TotalInvestment.Add(investment)
		health.PotentialProfit = health.PotentialProfit.Add(product.SellingPrice.Sub(product.PurchasePrice).Mul(product.Stock))
		if product.Stock.LessThan(decimal.NewFromInt(LowStockThreshold)) {
			health.LowStock = append(health.LowStock, domain.ProductAlert{ProductID: product.ID, Name: product.Name, Stock: product.Stock})
		}
		if product.Stock.IsPositive() && !soldRecently[product.ID] {
			idleInvestment = idleInvestment.Add(investment)
		}
	}
	sort.Slice(health.LowStock, func(i, j int) bool {
		if !health.LowStock[i].Stock.Equal(health.LowStock[j].Stock) {
			return health.LowStock[i].Stock.LessThan(health.LowStock[j].Stock)
		}
		return health.LowStock[i].Name < health.LowStock[j].Name
	})

	for _, customer := range snapshot.Customers {
		health.TotalOwed = health.TotalOwed.Add(customer.TotalDue)
		if customer.TotalDue.GreaterThan(highDebtThreshold) {
			health.HighDebt = append(health.HighDebt, domain.DebtorAlert{CustomerID: customer.ID, Name: customer.FullName(), TotalDue: customer.TotalDue})
		}
	}
	sort.Slice(health.HighDebt, func(i, j int) bool {
		if !health.HighDebt[i].TotalDue.Equal(health.HighDebt[j].TotalDue) {
			return health.HighDebt[i].TotalDue.GreaterThan(health.HighDebt[j].TotalDue)
		}
		return health.HighDebt[i].Name < health.HighDebt[j].Name
	})

	revenue := health.TotalRevenue.InexactFloat64()
	owed := health.TotalOwed.InexactFloat64()

	marginRate := 0.0
	marginScore := 0.5
	if revenue > 0 {
		marginRate = health.TotalProfit.InexactFloat64() / revenue
		marginScore = clamp(marginRate/0.30, 0, 1)
	}
	stockScore := 0.5
	if len(snapshot.Products) > 0 {
		stockScore = 1 - float64(len(health.LowStock))/float64(len(snapshot.Products))
	}
	owedShare := 0.0
	if revenue+owed > 0 {
		owedShare = clamp(owed/(revenue+owed), 0, 1)
	}
	activityScore := clamp(float64(recentSales)/7.0, 0, 1)

	score :=
		0.35*marginScore +
			0.25*stockScore +
			0.25*(1-owedShare) +
			0.15*activityScore
	health.HealthScore = int(clamp(math.Round(score*100), 1, 100))

	if len(health.LowStock) > 0 {
		weight := 1 - stockScore
		health.Findings = append(health.Findings, domain.Finding{Code: FindingRestockLowStock, Severity: severity(weight), Weight: round2(weight)})
	}
	if owedShare > 0.2 {
		health.Findings = append(health.Findings, domain.Finding{Code: FindingCollectReceivables, Severity: severity(owedShare), Weight: round2(owedShare)})
	}
	if revenue > 0 && marginRate < 0.10 {
		weight := clamp(1-marginRate/0.10, 0, 1)
		health.Findings = append(health.Findings, domain.Finding{Code: FindingThinMargin, Severity: severity(weight), Weight: round2(weight)})
	}
	if health.TotalInvestment.IsPositive() {
		idleShare := idleInvestment.InexactFloat64() / health.TotalInvestment.InexactFloat64()
		if idleShare > 0.5 {
			health.Findings = append(health.Findings, domain.Finding{Code: FindingIdleInventory, Severity: severity(idleShare), Weight: round2(idleShare)})
		}
	}
	if recentSales == 0 {
		health.Findings = append(health.Findings, domain.Finding{Code: FindingNoRecentSales, Severity: SeverityHigh, Weight: 1})
	}
	sort.SliceStable(health.Findings, func(i, j int) bool {
		if health.Findings[i].Weight != health.Findings[j].Weight {
			return health.Findings[i].Weight > health.Findings[j].Weight
		}
		return health.Findings[i].Code < health.Findings[j].Code
	})
	return health
}

func severity(weight float64) string {
	switch {
	case weight >= 0.5:
		return SeverityHigh
	case weight >= 0.25:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func clamp(val float64, minVal float64, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
