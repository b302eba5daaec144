// Package formula models royalty calculation expressions as a closed set of
// node types. Every node is encoded as a JSON object tagged by "type".
package formula

import (
	"encoding/json"
	"errors"
)

// Kind is the "type" tag of a formula node.
type Kind string

const (
	KindPercentage  Kind = "percentage"
	KindFixed       Kind = "fixed"
	KindTier        Kind = "tier"
	KindConditional Kind = "conditional"
	KindArithmetic  Kind = "arithmetic"
	KindMinimum     Kind = "minimum"
	KindMaximum     Kind = "maximum"
)

// DefaultMaxDepth bounds nesting when no explicit limit is configured.
const DefaultMaxDepth = 32

var (
	ErrUnknownType  = errors.New("unknown formula type")
	ErrMissingField = errors.New("missing required field")
	ErrInvalidField = errors.New("invalid field value")
	ErrTooDeep      = errors.New("formula nesting too deep")
)

// Operators accepted by Arithmetic nodes.
var Operators = []string{"+", "-", "*", "/", "min", "max"}

// Node is a formula expression. The set of implementations is closed.
type Node interface {
	Kind() Kind
	isNode()
}

// Percentage applies Rate to the named Base amount (e.g. "netSales").
type Percentage struct {
	Rate float64
	Base string
}

// Fixed is a flat amount.
type Fixed struct {
	Amount   float64
	Currency string
}

// Tier is one band of a tiered rate. A nil Max means unbounded.
type Tier struct {
	Min  float64  `json:"min"`
	Max  *float64 `json:"max"`
	Rate float64  `json:"rate"`
}

// Tiered selects a rate by the band the Base amount falls in.
type Tiered struct {
	Base  string
	Tiers []Tier
}

// Conditional evaluates Then when Condition holds, Else otherwise.
type Conditional struct {
	Condition string
	Then      Node
	Else      Node
}

// Arithmetic combines operands left to right with Operator.
type Arithmetic struct {
	Operator string
	Operands []Node
}

// Minimum is a floor amount (minimum guarantee).
type Minimum struct {
	Amount   float64
	Currency string
}

// Maximum is a cap amount.
type Maximum struct {
	Amount   float64
	Currency string
}

func (Percentage) Kind() Kind  { return KindPercentage }
func (Fixed) Kind() Kind       { return KindFixed }
func (Tiered) Kind() Kind      { return KindTier }
func (Conditional) Kind() Kind { return KindConditional }
func (Arithmetic) Kind() Kind  { return KindArithmetic }
func (Minimum) Kind() Kind     { return KindMinimum }
func (Maximum) Kind() Kind     { return KindMaximum }

func (Percentage) isNode()  {}
func (Fixed) isNode()       {}
func (Tiered) isNode()      {}
func (Conditional) isNode() {}
func (Arithmetic) isNode()  {}
func (Minimum) isNode()     {}
func (Maximum) isNode()     {}

func (n Percentage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type Kind    `json:"type"`
		Rate float64 `json:"rate"`
		Base string  `json:"base,omitempty"`
	}{KindPercentage, n.Rate, n.Base})
}

func (n Fixed) MarshalJSON() ([]byte, error) {
	return marshalAmount(KindFixed, n.Amount, n.Currency)
}

func (n Minimum) MarshalJSON() ([]byte, error) {
	return marshalAmount(KindMinimum, n.Amount, n.Currency)
}

func (n Maximum) MarshalJSON() ([]byte, error) {
	return marshalAmount(KindMaximum, n.Amount, n.Currency)
}

func marshalAmount(kind Kind, amount float64, currency string) ([]byte, error) {
	return json.Marshal(struct {
		Type     Kind    `json:"type"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency,omitempty"`
	}{kind, amount, currency})
}

func (n Tiered) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  Kind   `json:"type"`
		Base  string `json:"base,omitempty"`
		Tiers []Tier `json:"tiers"`
	}{KindTier, n.Base, n.Tiers})
}

func (n Conditional) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      Kind   `json:"type"`
		Condition string `json:"condition"`
		Then      Node   `json:"then"`
		Else      Node   `json:"else"`
	}{KindConditional, n.Condition, n.Then, n.Else})
}

func (n Arithmetic) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     Kind   `json:"type"`
		Operator string `json:"operator"`
		Operands []Node `json:"operands"`
	}{KindArithmetic, n.Operator, n.Operands})
}

// ToMap returns the canonical JSON object form of n.
func ToMap(n Node) (map[string]any, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Depth returns the nesting depth of n; a leaf has depth 1.
func Depth(n Node) int {
	switch v := n.(type) {
	case Conditional:
		return 1 + max(Depth(v.Then), Depth(v.Else))
	case Arithmetic:
		d := 0
		for _, op := range v.Operands {
			d = max(d, Depth(op))
		}
		return 1 + d
	default:
		return 1
	}
}
