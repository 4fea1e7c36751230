package council

import "github.com/shopspring/decimal"

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func percent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}

func ratio(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
