package util

import (
	"errors"
	"math"
	"regexp"
	"strings"

	"fincil-server/src/models"
)

var (
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	lowerPattern   = regexp.MustCompile("[a-z]")
	upperPattern   = regexp.MustCompile("[A-Z]")
	digitPattern   = regexp.MustCompile("[0-9]")
	specialPattern = regexp.MustCompile(`[^A-Za-z0-9]`)
)

const (
	MaxGoalLength        = 500
	MaxDescriptionLength = 500
	MaxCategoryLength    = 100
)

func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func ValidateUsername(username string) bool {
	return len(username) >= 3 && len(username) <= 30
}

func ValidatePassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	return lowerPattern.MatchString(password) &&
		upperPattern.MatchString(password) &&
		digitPattern.MatchString(password) &&
		specialPattern.MatchString(password)
}

// ValidMoney reports whether v is a finite, non-negative amount.
func ValidMoney(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// ValidateProfile checks the user-editable profile fields and trims the goal.
func ValidateProfile(p *models.Profile) error {
	switch p.IncomeType {
	case models.IncomeFixed, models.IncomeVariable:
	default:
		return errors.New("income_type must be fixed or variable")
	}
	switch p.RiskTolerance {
	case models.RiskLow, models.RiskMedium, models.RiskHigh:
	default:
		return errors.New("risk_tolerance must be low, medium or high")
	}
	p.FinancialGoal = strings.TrimSpace(p.FinancialGoal)
	if p.FinancialGoal == "" || len(p.FinancialGoal) > MaxGoalLength {
		return errors.New("financial_goal is required and must be at most 500 characters")
	}
	if !ValidMoney(p.MonthlyIncome) || !ValidMoney(p.MonthlyExpenses) {
		return errors.New("monthly_income and monthly_expenses must be non-negative numbers")
	}
	return nil
}

// ValidateImportedTransaction checks one row of a bulk import and trims its
// text fields.
func ValidateImportedTransaction(t *models.Transaction) error {
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return errors.New("amount must be a number")
	}
	t.Description = strings.TrimSpace(t.Description)
	t.Category = strings.TrimSpace(t.Category)
	if len(t.Description) > MaxDescriptionLength {
		return errors.New("description must be at most 500 characters")
	}
	if len(t.Category) > MaxCategoryLength {
		return errors.New("category must be at most 100 characters")
	}
	return nil
}
