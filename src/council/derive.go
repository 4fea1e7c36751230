// Package council produces the three advisor opinions and the verdict for a
// financial query. Everything here is a pure function of its input.
package council

import (
	"fincil-server/src/models"
)

const (
	LowBufferSavingsRate     = 20.0
	RejectRatio              = 1.5
	ConditionalRatio         = 0.8
	ConditionalSavingsRate   = 15.0
	DiscretionaryCutFraction = 0.30
	SavingsRateCommitment    = 5.0
)

// Derived holds the figures every opinion is computed from.
type Derived struct {
	Income             float64 `json:"income"`
	Expenses           float64 `json:"expenses"`
	Surplus            float64 `json:"surplus"`
	SavingsRate        float64 `json:"savings_rate"`
	HasAmount          bool    `json:"has_amount"`
	Amount             float64 `json:"amount"`
	AffordabilityRatio float64 `json:"affordability_ratio"`
	// Unfunded is set when a positive amount meets a surplus of zero or less,
	// where the ratio is undefined.
	Unfunded bool `json:"unfunded"`
}

// Derive computes surplus, savings rate and affordability ratio. A zero
// income yields a savings rate of 0.
func Derive(p models.Profile, amount *float64) Derived {
	d := Derived{
		Income:   p.MonthlyIncome,
		Expenses: p.MonthlyExpenses,
		Surplus:  p.MonthlyIncome - p.MonthlyExpenses,
	}
	if d.Income != 0 {
		d.SavingsRate = d.Surplus / d.Income * 100
	}
	if amount == nil {
		return d
	}
	d.HasAmount = true
	d.Amount = *amount
	if d.Surplus > 0 {
		d.AffordabilityRatio = d.Amount / d.Surplus
	} else if d.Amount > 0 {
		d.Unfunded = true
	}
	return d
}

func decide(d Derived) models.Outcome {
	switch {
	case !d.HasAmount:
		return models.OutcomeAdvice
	case d.Unfunded:
		return models.OutcomeRejected
	case d.AffordabilityRatio > RejectRatio:
		return models.OutcomeRejected
	case d.AffordabilityRatio > ConditionalRatio && d.SavingsRate < ConditionalSavingsRate:
		return models.OutcomeConditional
	default:
		return models.OutcomeApproved
	}
}
