package council

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	minIncomeClaim       = 100.0
	maxIncomeClaim       = 100_000_000.0
	mediumConfidenceOver = 10_000_000.0
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// IncomeClaim is money the user says they received, read out of appeal text.
type IncomeClaim struct {
	Amount      float64    `json:"amount"`
	Confidence  Confidence `json:"confidence"`
	MatchedText string     `json:"matched_text"`
}

var incomeKeywords = []string{
	"won", "earned", "received", "got", "prize", "salary",
	"bonus", "award", "winning", "income", "freelance", "gift",
	"paid", "payment", "cash",
}

const amountPattern = `([0-9][0-9,]*(?:\.[0-9]{1,2})?)`

var incomePatterns = []*regexp.Regexp{
	regexp.MustCompile(`₹\s*` + amountPattern),
	regexp.MustCompile(`\$\s*` + amountPattern),
	regexp.MustCompile(`(?i)\brs\.?\s*` + amountPattern),
	regexp.MustCompile(`(?i)` + amountPattern + `\s*rupees?`),
	regexp.MustCompile(`(?i)\binr\s*` + amountPattern),
	regexp.MustCompile(`(?i)\b(?:won|earned|received|got|prize)\s+` + amountPattern),
}

// ExtractIncome looks for income amounts in free text. It returns nil when
// the text mentions no income or no usable amount. Each number is counted
// once even when several patterns match it.
func ExtractIncome(text string) *IncomeClaim {
	lower := strings.ToLower(text)
	hasKeyword := false
	for _, k := range incomeKeywords {
		if strings.Contains(lower, k) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return nil
	}

	seen := make(map[int]bool)
	var amounts []float64
	var matched []string
	for _, re := range incomePatterns {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2], loc[3]
			if seen[start] {
				continue
			}
			v, err := strconv.ParseFloat(strings.ReplaceAll(text[start:end], ",", ""), 64)
			if err != nil || v < minIncomeClaim || v > maxIncomeClaim {
				continue
			}
			seen[start] = true
			amounts = append(amounts, v)
			matched = append(matched, text[loc[0]:loc[1]])
		}
	}
	if len(amounts) == 0 {
		return nil
	}

	total := 0.0
	distinct := make(map[float64]struct{})
	for _, a := range amounts {
		total += a
		distinct[a] = struct{}{}
	}
	confidence := ConfidenceHigh
	if total > mediumConfidenceOver || len(distinct) > 3 {
		confidence = ConfidenceMedium
	}
	return &IncomeClaim{
		Amount:      total,
		Confidence:  confidence,
		MatchedText: strings.Join(matched, ", "),
	}
}

// Note is the message shown to the user once a claim has been applied.
func (c *IncomeClaim) Note() string {
	if c == nil {
		return ""
	}
	if c.Confidence == ConfidenceHigh {
		return fmt.Sprintf("Added %s to your available funds based on your appeal.", money(c.Amount))
	}
	return fmt.Sprintf("Added %s to your available funds (please verify this amount is correct).", money(c.Amount))
}
