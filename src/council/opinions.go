package council

import (
	"fmt"
	"strings"

	"fincil-server/src/models"

	"github.com/shopspring/decimal"
)

const ObjectionMarker = "OBJECTION"

const defaultGoal = "long-term financial security"

func cautiousOpinion(in Input, d Derived) string {
	var concerns []string
	if d.HasAmount && d.Amount > d.Surplus {
		concerns = append(concerns, fmt.Sprintf(
			"spending %s overspends your monthly surplus of %s",
			money(d.Amount), money(d.Surplus)))
	}
	if d.SavingsRate < LowBufferSavingsRate {
		concerns = append(concerns, fmt.Sprintf(
			"your savings rate of %s%% leaves less than the %s%% buffer you need for emergencies",
			percent(d.SavingsRate), percent(LowBufferSavingsRate)))
	}

	var b strings.Builder
	if len(concerns) > 0 {
		b.WriteString(ObjectionMarker)
		b.WriteString(": ")
		b.WriteString(strings.Join(concerns, ", and "))
		b.WriteString(".")
	} else if d.HasAmount {
		fmt.Fprintf(&b, "This fits inside your surplus of %s, but every purchase is money that stops compounding. "+
			"Make sure %s is a need and not an impulse.", money(d.Surplus), money(d.Amount))
	} else {
		fmt.Fprintf(&b, "Your %s%% savings rate is healthy. Protect it before you add any new recurring cost.",
			percent(d.SavingsRate))
	}

	if in.Profile.IncomeType == models.IncomeVariable {
		b.WriteString(" Your income is variable, so keep three months of expenses in reserve before discretionary spending.")
	}
	if note := spendingNote(in.RecentTransactions); note != "" {
		b.WriteString(" ")
		b.WriteString(note)
	}
	if in.Appeal != nil {
		fmt.Fprintf(&b, " I have weighed your appeal (round %d): %q.", in.Appeal.Round, in.Appeal.Justification)
	}
	return b.String()
}

// spendingNote summarises outflows among the recent transactions.
func spendingNote(txns []models.Transaction) string {
	out := decimal.Zero
	count := 0
	for _, t := range txns {
		if t.Amount < 0 {
			out = out.Add(decimal.NewFromFloat(t.Amount).Abs())
			count++
		}
	}
	if count == 0 {
		return ""
	}
	return fmt.Sprintf("Your last %d expenses already took %s out of your account.", count, out.StringFixed(2))
}

func growthOpinion(in Input, d Derived) string {
	goal := strings.TrimSpace(in.Profile.FinancialGoal)
	if goal == "" {
		goal = defaultGoal
	}
	high := in.Profile.RiskTolerance == models.RiskHigh

	if !d.HasAmount {
		if high {
			return fmt.Sprintf("You can afford to be bold. Put your surplus of %s to work and keep every move pointed at %q.",
				money(d.Surplus), goal)
		}
		return fmt.Sprintf("Steady progress wins. Route a fixed share of your %s surplus toward %q every month.",
			money(d.Surplus), goal)
	}

	var sizing string
	if d.Surplus > 0 {
		sizing = fmt.Sprintf("%s is %s months of your surplus", money(d.Amount), ratio(d.AffordabilityRatio))
	} else {
		sizing = fmt.Sprintf("%s has to come from savings right now", money(d.Amount))
	}
	if high {
		return fmt.Sprintf("You are comfortable with risk, so judge this by its return. %s, and if it moves you toward %q "+
			"it can pay for itself faster than cash sitting idle.", capitalize(sizing), goal)
	}
	return fmt.Sprintf("Measure this against your goal of %q. %s, so buy it only if it clearly serves that goal "+
		"and does not delay it.", goal, capitalize(sizing))
}

func synthesisOpinion(in Input, d Derived, outcome models.Outcome) string {
	switch outcome {
	case models.OutcomeAdvice:
		if d.SavingsRate < LowBufferSavingsRate {
			return fmt.Sprintf("ADVICE. Your monthly surplus is %s and your savings rate is %s%%. "+
				"Raise the savings rate toward %s%% before taking on new spending.",
				money(d.Surplus), percent(d.SavingsRate), percent(LowBufferSavingsRate))
		}
		return fmt.Sprintf("ADVICE. Your monthly surplus is %s and your savings rate is %s%%. "+
			"You have room to pursue your goals; review your plan again next quarter.",
			money(d.Surplus), percent(d.SavingsRate))
	case models.OutcomeRejected:
		if d.Unfunded {
			return fmt.Sprintf("REJECTED. Your expenses of %s already meet or exceed your income of %s, "+
				"so there is no surplus to fund %s. Wait until your budget runs a surplus.",
				money(d.Expenses), money(d.Income), money(d.Amount))
		}
		return fmt.Sprintf("REJECTED. At %sx your monthly surplus of %s this would take about %s months to cover. "+
			"Wait and set the surplus aside until you can pay for it without touching your buffer.",
			ratio(d.AffordabilityRatio), money(d.Surplus), ratio(d.AffordabilityRatio))
	case models.OutcomeConditional:
		cut := decimal.NewFromFloat(d.Amount).Mul(decimal.NewFromFloat(DiscretionaryCutFraction))
		return fmt.Sprintf("PROCEED WITH CONDITIONS. The price is %sx your monthly surplus and your savings rate is %s%%. "+
			"Cut %s (%s%% of the price) from discretionary spending first so this does not come out of savings.",
			ratio(d.AffordabilityRatio), percent(d.SavingsRate), cut.StringFixed(2), percent(DiscretionaryCutFraction*100))
	default:
		return fmt.Sprintf("APPROVED. At %sx your monthly surplus this is affordable. "+
			"Commit to raising your savings rate by %s%% next quarter, from %s%% to %s%%.",
			ratio(d.AffordabilityRatio), percent(SavingsRateCommitment),
			percent(d.SavingsRate), percent(d.SavingsRate+SavingsRateCommitment))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
