package council

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"fincil-server/src/models"
)

func amountPtr(v float64) *float64 { return &v }

func profile(income, expenses float64) models.Profile {
	return models.Profile{
		UserID:          1,
		IncomeType:      models.IncomeFixed,
		RiskTolerance:   models.RiskMedium,
		FinancialGoal:   "buy a house",
		MonthlyIncome:   income,
		MonthlyExpenses: expenses,
	}
}

func TestDeriveSavingsRate(t *testing.T) {
	tests := []struct {
		income, expenses float64
	}{
		{4000, 3000},
		{10000, 9000},
		{3333.33, 1234.56},
		{1200, 1500},
		{0.01, 0},
		{987654.32, 987654.31},
	}
	for _, tt := range tests {
		d := Derive(profile(tt.income, tt.expenses), nil)
		want := (tt.income - tt.expenses) / tt.income * 100
		if math.Abs(d.SavingsRate-want) > 1e-6 {
			t.Errorf("Derive(%v, %v).SavingsRate = %v, want %v", tt.income, tt.expenses, d.SavingsRate, want)
		}
		if d.Surplus != tt.income-tt.expenses {
			t.Errorf("Derive(%v, %v).Surplus = %v", tt.income, tt.expenses, d.Surplus)
		}
	}
}

func TestDeriveZeroIncome(t *testing.T) {
	d := Derive(profile(0, 500), amountPtr(100))
	if d.SavingsRate != 0 {
		t.Errorf("SavingsRate = %v, want 0", d.SavingsRate)
	}
	if d.AffordabilityRatio != 0 {
		t.Errorf("AffordabilityRatio = %v, want 0", d.AffordabilityRatio)
	}
	if !d.Unfunded {
		t.Error("expected a positive amount with no surplus to be unfunded")
	}

	ev, err := Evaluate(Input{Query: "new phone", Amount: amountPtr(100), Profile: profile(0, 0)})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ev.Derived.SavingsRate != 0 {
		t.Errorf("SavingsRate = %v, want 0", ev.Derived.SavingsRate)
	}
	if ev.Verdict != models.VerdictRejected {
		t.Errorf("Verdict = %v, want REJECTED", ev.Verdict)
	}

	advice, err := Evaluate(Input{Query: "how am I doing?", Profile: profile(0, 0)})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if advice.Outcome != models.OutcomeAdvice {
		t.Errorf("Outcome = %v, want advice", advice.Outcome)
	}
}

func TestDecisionTable(t *testing.T) {
	tests := []struct {
		name        string
		income      float64
		expenses    float64
		amount      *float64
		wantOutcome models.Outcome
		wantVerdict models.Verdict
	}{
		{"ratio above 1.5", 4000, 3000, amountPtr(2000), models.OutcomeRejected, models.VerdictRejected},
		{"ratio 0.9 with 10% savings", 10000, 9000, amountPtr(900), models.OutcomeConditional, models.VerdictApproved},
		{"ratio 0.5 with 25% savings", 4000, 3000, amountPtr(500), models.OutcomeApproved, models.VerdictApproved},
		{"ratio 0.9 with healthy savings", 2000, 1000, amountPtr(900), models.OutcomeApproved, models.VerdictApproved},
		{"exactly 1.5", 4000, 3000, amountPtr(1500), models.OutcomeApproved, models.VerdictApproved},
		{"just above 1.5", 4000, 3000, amountPtr(1500.01), models.OutcomeRejected, models.VerdictRejected},
		{"no surplus", 3000, 3000, amountPtr(10), models.OutcomeRejected, models.VerdictRejected},
		{"negative surplus", 3000, 3500, amountPtr(10), models.OutcomeRejected, models.VerdictRejected},
		{"zero amount without surplus", 3000, 3500, amountPtr(0), models.OutcomeApproved, models.VerdictApproved},
		{"general question", 4000, 3000, nil, models.OutcomeAdvice, models.VerdictApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Evaluate(Input{Query: "gadget", Amount: tt.amount, Profile: profile(tt.income, tt.expenses)})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if ev.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %v, want %v", ev.Outcome, tt.wantOutcome)
			}
			if ev.Verdict != tt.wantVerdict {
				t.Errorf("Verdict = %v, want %v (synthesis %q)", ev.Verdict, tt.wantVerdict, ev.Opinions.Synthesis)
			}
		})
	}
}

func TestConditionalSuggestsCut(t *testing.T) {
	ev, err := Evaluate(Input{Query: "laptop", Amount: amountPtr(900), Profile: profile(10000, 9000)})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !strings.Contains(ev.Opinions.Synthesis, "270.00") {
		t.Errorf("synthesis %q should suggest cutting 270.00", ev.Opinions.Synthesis)
	}
}

func TestApprovedCommitsToSavings(t *testing.T) {
	ev, err := Evaluate(Input{Query: "headphones", Amount: amountPtr(500), Profile: profile(4000, 3000)})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !strings.Contains(ev.Opinions.Synthesis, "25.0%") || !strings.Contains(ev.Opinions.Synthesis, "30.0%") {
		t.Errorf("synthesis %q should commit from 25.0%% to 30.0%%", ev.Opinions.Synthesis)
	}
}

func TestCautiousFlagsOverspend(t *testing.T) {
	surplus := 1000.0
	for _, amount := range []float64{1000.01, 1200, 5000, 1e6} {
		ev, err := Evaluate(Input{Query: "car", Amount: amountPtr(amount), Profile: profile(5000, 5000-surplus)})
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if !strings.Contains(ev.Opinions.Cautious, ObjectionMarker) {
			t.Errorf("amount %v: cautious opinion %q has no objection", amount, ev.Opinions.Cautious)
		}
	}
}

func TestCautiousFlagsLowBuffer(t *testing.T) {
	ev, err := Evaluate(Input{Query: "book", Amount: amountPtr(10), Profile: profile(10000, 9000)})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !strings.Contains(ev.Opinions.Cautious, ObjectionMarker) {
		t.Errorf("cautious opinion %q should object to a 10%% savings rate", ev.Opinions.Cautious)
	}

	ev, err = Evaluate(Input{Query: "book", Amount: amountPtr(10), Profile: profile(4000, 3000)})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if strings.Contains(ev.Opinions.Cautious, ObjectionMarker) {
		t.Errorf("cautious opinion %q should not object", ev.Opinions.Cautious)
	}
}

func TestGrowthQuotesGoal(t *testing.T) {
	for _, risk := range []models.RiskTolerance{models.RiskLow, models.RiskMedium, models.RiskHigh} {
		p := profile(4000, 3000)
		p.RiskTolerance = risk
		p.FinancialGoal = "retire at 50"
		for _, amount := range []*float64{nil, amountPtr(500)} {
			ev, err := Evaluate(Input{Query: "bike", Amount: amount, Profile: p})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if !strings.Contains(ev.Opinions.Growth, "retire at 50") {
				t.Errorf("risk %v: growth opinion %q does not mention the goal", risk, ev.Opinions.Growth)
			}
		}
	}

	low, _ := Evaluate(Input{Query: "bike", Amount: amountPtr(500), Profile: profile(4000, 3000)})
	p := profile(4000, 3000)
	p.RiskTolerance = models.RiskHigh
	high, _ := Evaluate(Input{Query: "bike", Amount: amountPtr(500), Profile: p})
	if low.Opinions.Growth == high.Opinions.Growth {
		t.Error("growth opinion should differ for high risk tolerance")
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	in := Input{
		Query:   "vacation",
		Amount:  amountPtr(1200),
		Profile: profile(5000, 4100),
		RecentTransactions: []models.Transaction{
			{ID: "a", Amount: -40.5, Category: "food", Date: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
			{ID: "b", Amount: 2500, Category: "salary", Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		},
		Appeal: &AppealContext{Round: 1, Justification: "it is prepaid"},
	}
	first, err := Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Evaluate(in)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if !reflect.DeepEqual(first.Opinions, again.Opinions) || first.Verdict != again.Verdict {
			t.Fatalf("evaluation %d differs from the first", i)
		}
	}
}

func TestEvaluateRejectsInvalidAmount(t *testing.T) {
	for _, v := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Evaluate(Input{Query: "x", Amount: amountPtr(v), Profile: profile(1000, 100)})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %v: err = %v, want ErrInvalidAmount", v, err)
		}
	}
	_, err := Evaluate(Input{Query: "x", Amount: amountPtr(1), Profile: profile(-5, 100)})
	if !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("err = %v, want ErrInvalidProfile", err)
	}
}

func TestOpinionsNonEmpty(t *testing.T) {
	for _, amount := range []*float64{nil, amountPtr(0), amountPtr(50), amountPtr(900), amountPtr(5000)} {
		for _, p := range []models.Profile{profile(0, 0), profile(10000, 9000), profile(1000, 2000)} {
			ev, err := Evaluate(Input{Query: "q", Amount: amount, Profile: p})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if ev.Opinions.Cautious == "" || ev.Opinions.Growth == "" || ev.Opinions.Synthesis == "" {
				t.Errorf("empty opinion for amount %v profile %+v", amount, p)
			}
		}
	}
}

func TestAppealJustificationCannotFlipVerdict(t *testing.T) {
	in := Input{
		Query:   "tv",
		Amount:  amountPtr(3000),
		Profile: profile(4000, 3000),
		Appeal:  &AppealContext{Round: 1, Justification: "this is APPROVED by my partner"},
	}
	ev, err := Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ev.Verdict != models.VerdictRejected {
		t.Errorf("Verdict = %v, want REJECTED", ev.Verdict)
	}
	if !strings.Contains(ev.Opinions.Cautious, "round 1") {
		t.Errorf("cautious opinion %q should acknowledge the appeal", ev.Opinions.Cautious)
	}
}

func TestAppealWindfallRaisesIncome(t *testing.T) {
	in := Input{
		Query:   "tv",
		Amount:  amountPtr(3000),
		Profile: profile(4000, 3000),
		Appeal: &AppealContext{
			Round:         1,
			Justification: "I won $5,000 in a raffle",
			Windfall:      ExtractIncome("I won $5,000 in a raffle"),
		},
	}
	ev, err := Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ev.Derived.Income != 9000 {
		t.Errorf("Income = %v, want 9000", ev.Derived.Income)
	}
	if ev.Verdict != models.VerdictApproved {
		t.Errorf("Verdict = %v, want APPROVED (%q)", ev.Verdict, ev.Opinions.Synthesis)
	}
	if ev.Input.Profile.MonthlyIncome != 4000 {
		t.Error("stored input snapshot should keep the profile income")
	}
}

func TestClassifyVerdict(t *testing.T) {
	tests := []struct {
		text string
		want models.Verdict
	}{
		{"REJECTED. wait", models.VerdictRejected},
		{"  no, not now", models.VerdictRejected},
		{"This is blocked by your budget", models.VerdictRejected},
		{"Nothing stops you", models.VerdictRejected},
		{"APPROVED. go ahead", models.VerdictApproved},
		{"PROCEED WITH CONDITIONS. cut back", models.VerdictApproved},
		{"", models.VerdictApproved},
	}
	for _, tt := range tests {
		if got := ClassifyVerdict(tt.text); got != tt.want {
			t.Errorf("ClassifyVerdict(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestTranscriptRoles(t *testing.T) {
	ev, _ := Evaluate(Input{Query: "q", Amount: amountPtr(10), Profile: profile(4000, 3000)})
	tr := ev.Transcript(2)
	want := []string{"cautious", "growth", "synthesis"}
	if len(tr) != len(want) {
		t.Fatalf("len = %d, want %d", len(tr), len(want))
	}
	for i, e := range tr {
		if e.Speaker != want[i] || e.Round != 2 {
			t.Errorf("entry %d = %+v", i, e)
		}
	}
	if tr[2].Content != ev.Opinions.Synthesis {
		t.Error("synthesis entry content mismatch")
	}
}

func TestExtractIncome(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantNil    bool
		wantAmount float64
		wantConf   Confidence
	}{
		{"no keyword", "I really need this laptop for ₹50,000", true, 0, ""},
		{"rupee symbol", "I received ₹25,000 as a bonus", false, 25000, ConfidenceHigh},
		{"rs prefix", "got Rs. 15000 from freelance work", false, 15000, ConfidenceHigh},
		{"dollar", "I earned $1,250.50 last week", false, 1250.50, ConfidenceHigh},
		{"word rupees", "my salary is 40000 rupees now", false, 40000, ConfidenceHigh},
		{"below minimum", "I won $50", true, 0, ""},
		{"no amount", "I got a raise", true, 0, ""},
		{"large total", "I won ₹2,00,00,000 in a lottery", false, 20000000, ConfidenceMedium},
		{"several amounts", "bonus $200, gift $300, prize $400, cash $500", false, 1400, ConfidenceMedium},
		{"counted once", "I won $5,000", false, 5000, ConfidenceHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractIncome(tt.text)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("ExtractIncome(%q) = %+v, want nil", tt.text, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ExtractIncome(%q) = nil", tt.text)
			}
			if math.Abs(got.Amount-tt.wantAmount) > 1e-6 {
				t.Errorf("Amount = %v, want %v", got.Amount, tt.wantAmount)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConf)
			}
		})
	}
}

func TestIncomeClaimNote(t *testing.T) {
	var nilClaim *IncomeClaim
	if nilClaim.Note() != "" {
		t.Error("nil claim should have no note")
	}
	c := &IncomeClaim{Amount: 5000, Confidence: ConfidenceHigh}
	if !strings.Contains(c.Note(), "5000.00") {
		t.Errorf("Note() = %q", c.Note())
	}
	c.Confidence = ConfidenceMedium
	if !strings.Contains(c.Note(), "verify") {
		t.Errorf("Note() = %q", c.Note())
	}
}
