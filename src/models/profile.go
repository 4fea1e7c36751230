package models

import "time"

type IncomeType string

const (
	IncomeVariable IncomeType = "variable"
	IncomeFixed    IncomeType = "fixed"
)

type RiskTolerance string

const (
	RiskLow    RiskTolerance = "low"
	RiskMedium RiskTolerance = "medium"
	RiskHigh   RiskTolerance = "high"
)

type Profile struct {
	UserID          int64         `json:"user_id"`
	IncomeType      IncomeType    `json:"income_type"`
	RiskTolerance   RiskTolerance `json:"risk_tolerance"`
	FinancialGoal   string        `json:"financial_goal"`
	MonthlyIncome   float64       `json:"monthly_income"`
	MonthlyExpenses float64       `json:"monthly_expenses"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Surplus may be negative.
func (p Profile) Surplus() float64 {
	return p.MonthlyIncome - p.MonthlyExpenses
}
