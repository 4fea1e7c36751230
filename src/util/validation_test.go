package util

import (
	"math"
	"strings"
	"testing"

	"fincil-server/src/models"
)

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"email ok", ValidateEmail("priya@example.com"), true},
		{"email no tld", ValidateEmail("priya@example"), false},
		{"username short", ValidateUsername("ab"), false},
		{"username ok", ValidateUsername("abc"), true},
		{"username long", ValidateUsername(strings.Repeat("a", 31)), false},
		{"password ok", ValidatePassword("Secr3t!pw"), true},
		{"password no special", ValidatePassword("Secr3tpw1"), false},
		{"password short", ValidatePassword("S3c!r"), false},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestValidateProfile(t *testing.T) {
	valid := func() models.Profile {
		return models.Profile{
			IncomeType:      models.IncomeVariable,
			RiskTolerance:   models.RiskLow,
			FinancialGoal:   "  retire early ",
			MonthlyIncome:   0,
			MonthlyExpenses: 100,
		}
	}

	p := valid()
	if err := ValidateProfile(&p); err != nil {
		t.Fatalf("ValidateProfile() error = %v", err)
	}
	if p.FinancialGoal != "retire early" {
		t.Errorf("goal not trimmed: %q", p.FinancialGoal)
	}

	bad := []func(*models.Profile){
		func(p *models.Profile) { p.IncomeType = "salaried" },
		func(p *models.Profile) { p.RiskTolerance = "" },
		func(p *models.Profile) { p.FinancialGoal = "   " },
		func(p *models.Profile) { p.MonthlyIncome = -1 },
		func(p *models.Profile) { p.MonthlyExpenses = math.Inf(1) },
	}
	for i, mutate := range bad {
		p := valid()
		mutate(&p)
		if err := ValidateProfile(&p); err == nil {
			t.Errorf("case %d: expected an error", i)
		}
	}
}

func TestValidateImportedTransaction(t *testing.T) {
	txn := models.Transaction{Amount: -5, Description: " coffee ", Category: " "}
	if err := ValidateImportedTransaction(&txn); err != nil {
		t.Fatalf("error = %v", err)
	}
	if txn.Description != "coffee" || txn.Category != "" {
		t.Errorf("fields not trimmed: %+v", txn)
	}
	if err := ValidateImportedTransaction(&models.Transaction{Amount: math.NaN()}); err == nil {
		t.Error("NaN amount accepted")
	}
	if err := ValidateImportedTransaction(&models.Transaction{Description: strings.Repeat("x", 501)}); err == nil {
		t.Error("long description accepted")
	}
}
