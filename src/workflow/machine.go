package workflow

import (
	"fmt"

	"fincil-server/src/models"
)

type Event string

const (
	EventEvaluate Event = "evaluate"
	EventPresent  Event = "present"
	EventBuy      Event = "buy"
	EventSave     Event = "save"
	EventAppeal   Event = "appeal"
)

// Transition returns the state that follows state on event. verdict is the
// verdict currently shown to the user; only a REJECTED one can be appealed.
func Transition(state models.WorkflowState, event Event, verdict models.Verdict) (models.WorkflowState, error) {
	switch {
	case event == EventEvaluate && (state == models.StateSubmitted || state == models.StateAppealSubmitted):
		return models.StateEvaluated, nil
	case event == EventPresent && state == models.StateEvaluated:
		return models.StateAwaitingDecision, nil
	case event == EventBuy && state == models.StateAwaitingDecision:
		return models.StateBought, nil
	case event == EventSave && state == models.StateAwaitingDecision:
		return models.StateSaved, nil
	case event == EventAppeal && state == models.StateAwaitingDecision:
		if verdict != models.VerdictRejected {
			return state, ErrAppealNotAllowed
		}
		return models.StateAppealSubmitted, nil
	}
	return state, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, state)
}

// Machine tracks one conversation's position in the workflow.
type Machine struct {
	State   models.WorkflowState
	Verdict models.Verdict
	Round   int
}

func NewMachine() *Machine {
	return &Machine{State: models.StateSubmitted}
}

// Resume rebuilds the machine for a stored conversation.
func Resume(c models.Conversation) *Machine {
	return &Machine{State: c.State, Verdict: c.LastVerdict, Round: c.AppealCount}
}

func (m *Machine) fire(event Event) error {
	next, err := Transition(m.State, event, m.Verdict)
	if err != nil {
		return err
	}
	m.State = next
	return nil
}

// Evaluate records the verdict of a finished evaluation.
func (m *Machine) Evaluate(v models.Verdict) error {
	if err := m.fire(EventEvaluate); err != nil {
		return err
	}
	m.Verdict = v
	return nil
}

func (m *Machine) Present() error { return m.fire(EventPresent) }
func (m *Machine) Buy() error     { return m.fire(EventBuy) }
func (m *Machine) Save() error    { return m.fire(EventSave) }

// Appeal opens the next appeal round.
func (m *Machine) Appeal() error {
	if err := m.fire(EventAppeal); err != nil {
		return err
	}
	m.Round++
	return nil
}

func (m *Machine) Terminal() bool {
	return m.State == models.StateBought || m.State == models.StateSaved
}
