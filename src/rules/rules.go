// Package rules assigns categories to imported transactions using the
// user's stored transaction rules.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fincil-server/src/models"
)

var ErrInvalidCondition = errors.New("invalid rule condition")

var validOps = map[string]bool{
	"equals": true, "contains": true, "in": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
}

var validFields = map[string]bool{
	"description": true, "category": true, "amount": true, "source": true,
}

// Parse decodes a rule's JSON conditions and checks every node.
func Parse(raw json.RawMessage) (models.Condition, error) {
	var cond models.Condition
	if err := json.Unmarshal(raw, &cond); err != nil {
		return cond, fmt.Errorf("%w: %w", ErrInvalidCondition, err)
	}
	if err := Validate(cond); err != nil {
		return cond, err
	}
	return cond, nil
}

func Validate(cond models.Condition) error {
	children := cond.And
	if len(cond.Or) > 0 {
		if len(cond.And) > 0 {
			return fmt.Errorf("%w: and/or on the same node", ErrInvalidCondition)
		}
		children = cond.Or
	}
	if len(children) > 0 {
		for _, c := range children {
			if err := Validate(c); err != nil {
				return err
			}
		}
		return nil
	}
	if !validFields[cond.Field] {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidCondition, cond.Field)
	}
	if !validOps[cond.Op] {
		return fmt.Errorf("%w: unknown op %q", ErrInvalidCondition, cond.Op)
	}
	if cond.Value == nil {
		return fmt.Errorf("%w: missing value", ErrInvalidCondition)
	}
	return nil
}

// Matches reports whether txn satisfies cond.
func Matches(cond models.Condition, txn models.Transaction) bool {
	if len(cond.And) > 0 {
		for _, c := range cond.And {
			if !Matches(c, txn) {
				return false
			}
		}
		return true
	}
	if len(cond.Or) > 0 {
		for _, c := range cond.Or {
			if Matches(c, txn) {
				return true
			}
		}
		return false
	}

	var fieldValue interface{}
	switch cond.Field {
	case "description":
		fieldValue = txn.Description
	case "category":
		fieldValue = txn.Category
	case "amount":
		fieldValue = txn.Amount
	case "source":
		fieldValue = string(txn.Source)
	default:
		return false
	}

	switch cond.Op {
	case "equals":
		switch v := fieldValue.(type) {
		case string:
			val, ok := cond.Value.(string)
			return ok && strings.EqualFold(v, val)
		case float64:
			val, ok := cond.Value.(float64)
			return ok && v == val
		}
		return false
	case "contains":
		s, ok := fieldValue.(string)
		val, ok2 := cond.Value.(string)
		return ok && ok2 && strings.Contains(strings.ToLower(s), strings.ToLower(val))
	case "gt", "gte", "lt", "lte":
		f, ok := fieldValue.(float64)
		val, ok2 := cond.Value.(float64)
		if !ok || !ok2 {
			return false
		}
		switch cond.Op {
		case "gt":
			return f > val
		case "gte":
			return f >= val
		case "lt":
			return f < val
		}
		return f <= val
	case "in":
		s, ok := fieldValue.(string)
		arr, ok2 := cond.Value.([]interface{})
		if !ok || !ok2 {
			return false
		}
		for _, v := range arr {
			if str, ok := v.(string); ok && strings.EqualFold(s, str) {
				return true
			}
		}
		return false
	}
	return false
}

// Categorize sets the category of every uncategorized transaction to that of
// the first matching rule, in rule order. Rules whose conditions do not parse
// are skipped. It returns how many transactions were changed.
func Categorize(rules []models.TransactionRule, txns []models.Transaction) int {
	type compiled struct {
		cond     models.Condition
		category string
	}
	var active []compiled
	for _, r := range rules {
		cond, err := Parse(r.Conditions)
		if err != nil {
			continue
		}
		active = append(active, compiled{cond: cond, category: r.Category})
	}

	changed := 0
	for i := range txns {
		if strings.TrimSpace(txns[i].Category) != "" {
			continue
		}
		for _, r := range active {
			if Matches(r.cond, txns[i]) {
				txns[i].Category = r.category
				changed++
				break
			}
		}
	}
	return changed
}
