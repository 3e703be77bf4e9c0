package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"specsbiz/backend/internal/domain"
)

const (
	RangeDay   = "day"
	RangeWeek  = "week"
	RangeMonth = "month"
	RangeYear  = "year"
)

// ParseRange normalises an analytics period. Empty means month.
func ParseRange(raw string) (string, error) {
	switch period := strings.ToLower(strings.TrimSpace(raw)); period {
	case "":
		return RangeMonth, nil
	case RangeDay, RangeWeek, RangeMonth, RangeYear:
		return period, nil
	default:
		return "", fmt.Errorf("range must be one of day, week, month, year")
	}
}

// PeriodBounds returns the first and last instant of the calendar period
// containing now in loc. Weeks start on Sunday.
func PeriodBounds(period string, now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()
	var start, next time.Time
	switch period {
	case RangeDay:
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		next = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	case RangeWeek:
		first := d - int(local.Weekday())
		start = time.Date(y, m, first, 0, 0, 0, 0, loc)
		next = time.Date(y, m, first+7, 0, 0, 0, 0, loc)
	case RangeYear:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		next = time.Date(y+1, time.January, 1, 0, 0, 0, 0, loc)
	default:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		next = time.Date(y, m+1, 1, 0, 0, 0, 0, loc)
	}
	return start, next.Add(-time.Nanosecond)
}

// SalesAnalytics totals the sales of the period containing now. Day periods
// are bucketed by hour, week and month periods by day, years by month.
func SalesAnalytics(sales []domain.Sale, period string, now time.Time, loc *time.Location) domain.SalesAnalytics {
	if loc == nil {
		loc = time.UTC
	}
	from, to := PeriodBounds(period, now, loc)
	out := domain.SalesAnalytics{
		Range:         period,
		From:          from,
		To:            to,
		Revenue:       decimal.Zero,
		Profit:        decimal.Zero,
		AverageTicket: decimal.Zero,
		Buckets:       analyticsBuckets(period, from, to, loc),
	}

	for _, sale := range sales {
		if sale.SaleDate.Before(from) || sale.SaleDate.After(to) {
			continue
		}
		out.SaleCount++
		out.Revenue = out.Revenue.Add(sale.Total)
		out.Profit = out.Profit.Add(sale.Profit)

		idx := bucketIndex(period, sale.SaleDate.In(loc))
		if idx >= 0 && idx < len(out.Buckets) {
			out.Buckets[idx].Revenue = out.Buckets[idx].Revenue.Add(sale.Total)
			out.Buckets[idx].Profit = out.Buckets[idx].Profit.Add(sale.Profit)
		}
	}
	if out.SaleCount > 0 {
		out.AverageTicket = out.Revenue.DivRound(decimal.NewFromInt(int64(out.SaleCount)), 2)
	}
	return out
}

func analyticsBuckets(period string, from time.Time, to time.Time, loc *time.Location) []domain.AnalyticsBucket {
	y, m, d := from.Date()
	var buckets []domain.AnalyticsBucket
	add := func(label string, start time.Time) {
		buckets = append(buckets, domain.AnalyticsBucket{Label: label, Start: start, Revenue: decimal.Zero, Profit: decimal.Zero})
	}
	switch period {
	case RangeDay:
		for h := 0; h < 24; h++ {
			add(fmt.Sprintf("%d:00", h), time.Date(y, m, d, h, 0, 0, 0, loc))
		}
	case RangeYear:
		for month := time.January; month <= time.December; month++ {
			start := time.Date(y, month, 1, 0, 0, 0, 0, loc)
			add(start.Format("Jan"), start)
		}
	default:
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			add(day.Format("Jan 02"), day)
		}
	}
	return buckets
}

func bucketIndex(period string, local time.Time) int {
	switch period {
	case RangeDay:
		return local.Hour()
	case RangeWeek:
		return int(local.Weekday())
	case RangeYear:
		return int(local.Month()) - 1
	default:
		return local.Day() - 1
	}
}
