// Package analytics summarizes a user's spending. Only money out (negative
// amounts) counts as spending; sums are kept in decimal and rounded at the end.
package analytics

import (
	"errors"
	"sort"
	"time"

	"fincil-server/src/models"

	"github.com/shopspring/decimal"
)

const DefaultDays = 30

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

var ErrInvalidPeriod = errors.New("period must be daily, weekly or monthly")

func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", Daily:
		return Daily, nil
	case Weekly, Monthly:
		return Period(s), nil
	}
	return "", ErrInvalidPeriod
}

type Summary struct {
	TotalSpent       float64 `json:"total_spent"`
	DailyAverage     float64 `json:"daily_average"`
	TransactionCount int     `json:"transaction_count"`
	TopCategory      *string `json:"top_category"`
	DateRangeDays    int     `json:"date_range_days"`
}

type CategoryTotal struct {
	Category   string  `json:"category"`
	Total      float64 `json:"total"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
}

type TrendPoint struct {
	Period string  `json:"period"`
	Amount float64 `json:"amount"`
}

func spent(t models.Transaction) (decimal.Decimal, bool) {
	if t.Amount >= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(t.Amount).Abs(), true
}

func toFloat(d decimal.Decimal, places int32) float64 {
	f, _ := d.Round(places).Float64()
	return f
}

// Summarize reports spending over a window of days. The caller selects the
// transactions in the window; days only sets the daily average's divisor.
func Summarize(txns []models.Transaction, days int) Summary {
	s := Summary{DateRangeDays: days}
	total := decimal.Zero
	byCategory := map[string]decimal.Decimal{}
	for _, t := range txns {
		amount, ok := spent(t)
		if !ok {
			continue
		}
		s.TransactionCount++
		total = total.Add(amount)
		byCategory[t.Category] = byCategory[t.Category].Add(amount)
	}
	if s.TransactionCount == 0 {
		return s
	}

	s.TotalSpent = toFloat(total, 2)
	if days > 0 {
		s.DailyAverage = toFloat(total.Div(decimal.NewFromInt(int64(days))), 2)
	}
	var top string
	best := decimal.Zero
	for category, sum := range byCategory {
		// ties go to the alphabetically first category so output is stable
		if sum.GreaterThan(best) || (sum.Equal(best) && category < top) {
			top, best = category, sum
		}
	}
	s.TopCategory = &top
	return s
}

// Categories breaks spending down by category, largest first.
func Categories(txns []models.Transaction) []CategoryTotal {
	type acc struct {
		total decimal.Decimal
		count int
	}
	byCategory := map[string]*acc{}
	total := decimal.Zero
	for _, t := range txns {
		amount, ok := spent(t)
		if !ok {
			continue
		}
		a := byCategory[t.Category]
		if a == nil {
			a = &acc{}
			byCategory[t.Category] = a
		}
		a.total = a.total.Add(amount)
		a.count++
		total = total.Add(amount)
	}

	out := make([]CategoryTotal, 0, len(byCategory))
	for category, a := range byCategory {
		pct := decimal.Zero
		if total.IsPositive() {
			pct = a.total.Div(total).Mul(decimal.NewFromInt(100))
		}
		out = append(out, CategoryTotal{
			Category:   category,
			Total:      toFloat(a.total, 2),
			Percentage: toFloat(pct, 1),
			Count:      a.count,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Trends buckets spending by day, by week (keyed on the Monday) or by month,
// oldest first.
func Trends(txns []models.Transaction, period Period) []TrendPoint {
	buckets := map[string]decimal.Decimal{}
	for _, t := range txns {
		amount, ok := spent(t)
		if !ok {
			continue
		}
		key := bucketKey(t.Date.UTC(), period)
		buckets[key] = buckets[key].Add(amount)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]TrendPoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, TrendPoint{Period: k, Amount: toFloat(buckets[k], 2)})
	}
	return out
}

func bucketKey(d time.Time, period Period) string {
	switch period {
	case Weekly:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset).Format("2006-01-02")
	case Monthly:
		return d.Format("2006-01")
	}
	return d.Format("2006-01-02")
}
