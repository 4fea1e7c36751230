package council

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"fincil-server/src/models"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidProfile = errors.New("invalid profile figures")
)

// AppealContext is the extra context an appeal round feeds to the council.
type AppealContext struct {
	Round           int                      `json:"round"`
	Justification   string                   `json:"justification"`
	PriorTranscript []models.TranscriptEntry `json:"prior_transcript"`
	Windfall        *IncomeClaim             `json:"windfall,omitempty"`
}

type Input struct {
	Query              string               `json:"query"`
	Amount             *float64             `json:"amount,omitempty"`
	Profile            models.Profile       `json:"profile"`
	RecentTransactions []models.Transaction `json:"recent_transactions,omitempty"`
	Appeal             *AppealContext       `json:"appeal,omitempty"`
}

type Evaluation struct {
	Opinions models.Opinions `json:"opinions"`
	Verdict  models.Verdict  `json:"verdict"`
	Outcome  models.Outcome  `json:"outcome"`
	Derived  Derived         `json:"derived"`
	Input    Input           `json:"input"`
}

// Evaluate runs the three advisors over a single snapshot of the input. A
// windfall detected in an appeal is added to the snapshot's income before
// anything is derived.
func Evaluate(in Input) (Evaluation, error) {
	if err := ValidateAmount(in.Amount); err != nil {
		return Evaluation{}, err
	}
	if !validMoney(in.Profile.MonthlyIncome) || !validMoney(in.Profile.MonthlyExpenses) {
		return Evaluation{}, fmt.Errorf("%w: income %v, expenses %v",
			ErrInvalidProfile, in.Profile.MonthlyIncome, in.Profile.MonthlyExpenses)
	}

	snapshot := in.Profile
	if in.Appeal != nil && in.Appeal.Windfall != nil {
		snapshot.MonthlyIncome += in.Appeal.Windfall.Amount
	}
	effective := in
	effective.Profile = snapshot

	d := Derive(snapshot, in.Amount)
	outcome := decide(d)
	opinions := models.Opinions{
		Cautious:  cautiousOpinion(effective, d),
		Growth:    growthOpinion(effective, d),
		Synthesis: synthesisOpinion(effective, d, outcome),
	}

	return Evaluation{
		Opinions: opinions,
		Verdict:  ClassifyVerdict(opinions.Synthesis),
		Outcome:  outcome,
		Derived:  d,
		Input:    in,
	}, nil
}

// ValidateAmount accepts a missing amount (a general question) or a finite,
// non-negative one.
func ValidateAmount(amount *float64) error {
	if amount == nil {
		return nil
	}
	if !validMoney(*amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, *amount)
	}
	return nil
}

func validMoney(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// ClassifyVerdict reads the synthesis text the way the client does.
func ClassifyVerdict(synthesis string) models.Verdict {
	upper := strings.ToUpper(strings.TrimSpace(synthesis))
	if strings.Contains(upper, "REJECTED") || strings.HasPrefix(upper, "NO") || strings.Contains(upper, "BLOCKED") {
		return models.VerdictRejected
	}
	return models.VerdictApproved
}

// Transcript returns the opinions as transcript entries for the given round.
func (e Evaluation) Transcript(round int) []models.TranscriptEntry {
	return []models.TranscriptEntry{
		{Speaker: "cautious", Round: round, Content: e.Opinions.Cautious},
		{Speaker: "growth", Round: round, Content: e.Opinions.Growth},
		{Speaker: "synthesis", Round: round, Content: e.Opinions.Synthesis},
	}
}
