package models

import (
	"encoding/json"
	"time"
)

type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictRejected Verdict = "REJECTED"
)

// Outcome is the synthesis branch that produced a verdict. A conditional
// outcome still classifies as APPROVED.
type Outcome string

const (
	OutcomeApproved    Outcome = "approved"
	OutcomeConditional Outcome = "conditional"
	OutcomeRejected    Outcome = "rejected"
	OutcomeAdvice      Outcome = "advice"
)

type WorkflowState string

const (
	StateSubmitted        WorkflowState = "submitted"
	StateEvaluated        WorkflowState = "evaluated"
	StateAwaitingDecision WorkflowState = "awaiting_decision"
	StateAppealSubmitted  WorkflowState = "appeal_submitted"
	StateBought           WorkflowState = "bought"
	StateSaved            WorkflowState = "saved"
)

type Opinions struct {
	Cautious  string `json:"cautious"`
	Growth    string `json:"growth"`
	Synthesis string `json:"synthesis"`
}

type Conversation struct {
	ID          string          `json:"id"`
	UserID      int64           `json:"user_id"`
	Query       string          `json:"query"`
	Amount      *float64        `json:"amount"`
	Opinions    Opinions        `json:"opinions"`
	Verdict     Verdict         `json:"verdict"`
	Outcome     Outcome         `json:"outcome"`
	AppealCount int             `json:"appeal_count"`
	LastVerdict Verdict         `json:"last_verdict"`
	State       WorkflowState   `json:"state"`
	Context     json.RawMessage `json:"context"` // JSONB
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
