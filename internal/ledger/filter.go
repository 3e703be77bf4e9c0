package ledger

import (
	"fmt"
	"strings"
	"time"

	"specsbiz/backend/internal/domain"
)

const dateLayout = "2006-01-02"

type Filter struct {
	Query string
	Type  string
	From  *time.Time
	To    *time.Time
}

// NewFilter parses calendar-day bounds in loc. From starts at 00:00 of its day
// and To ends at the last instant of its day; both are inclusive.
func NewFilter(query string, entryType string, from string, to string, loc *time.Location) (Filter, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := Filter{Query: strings.TrimSpace(query), Type: strings.TrimSpace(entryType)}
	if strings.TrimSpace(from) != "" {
		day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(from), loc)
		if err != nil {
			return Filter{}, fmt.Errorf("from must use YYYY-MM-DD")
		}
		f.From = &day
	}
	if strings.TrimSpace(to) != "" {
		day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(to), loc)
		if err != nil {
			return Filter{}, fmt.Errorf("to must use YYYY-MM-DD")
		}
		end := day.AddDate(0, 0, 1).Add(-time.Nanosecond)
		f.To = &end
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return Filter{}, fmt.Errorf("from must not be after to")
	}
	return f, nil
}

func (f Filter) Match(entry domain.LedgerEntry) bool {
	if f.Query != "" {
		haystack := strings.ToLower(entry.Item + " " + entry.Counterparty)
		if !strings.Contains(haystack, strings.ToLower(f.Query)) {
			return false
		}
	}
	if !f.matchType(entry) {
		return false
	}
	if f.From != nil && entry.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && entry.Date.After(*f.To) {
		return false
	}
	return true
}

func (f Filter) matchType(entry domain.LedgerEntry) bool {
	want := strings.ToLower(f.Type)
	if want == "" || want == "all" {
		return true
	}
	if want == entry.Category {
		return true
	}
	return strings.Contains(strings.ToLower(entry.Type), want)
}

func Apply(entries []domain.LedgerEntry, f Filter) []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, 0, len(entries))
	for _, entry := range entries {
		if f.Match(entry) {
			out = append(out, entry)
		}
	}
	return out
}

func Summarize(entries []domain.LedgerEntry) domain.LedgerSummary {
	summary := domain.LedgerSummary{Entries: len(entries)}
	for _, entry := range entries {
		summary.Amount = summary.Amount.Add(entry.Amount)
		summary.Paid = summary.Paid.Add(entry.Paid)
		summary.Unpaid = summary.Unpaid.Add(entry.Unpaid)
	}
	return summary
}
