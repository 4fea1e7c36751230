package models

// Condition is one node of a transaction rule. A node with And or Or set
// combines its children; otherwise Field, Op and Value form a leaf test.
type Condition struct {
	Field string      `json:"field,omitempty"`
	Op    string      `json:"op,omitempty"`
	Value interface{} `json:"value,omitempty"`
	And   []Condition `json:"and,omitempty"`
	Or    []Condition `json:"or,omitempty"`
}
