package formula

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

// Unmarshal decodes a JSON formula and validates it.
func Unmarshal(data []byte, maxDepth int) (Node, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse formula: %w", err)
	}
	return Decode(v, maxDepth)
}

// Decode converts a generic JSON value (as produced by encoding/json) into a
// validated Node. maxDepth <= 0 selects DefaultMaxDepth.
func Decode(v any, maxDepth int) (Node, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	d := decoder{maxDepth: maxDepth}
	return d.node(v, "formula", 1)
}

type decoder struct {
	maxDepth int
}

func (d decoder) node(v any, path string, depth int) (Node, error) {
	if depth > d.maxDepth {
		return nil, fmt.Errorf("%s: %w (limit %d)", path, ErrTooDeep, d.maxDepth)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: %w: expected object, got %T", path, ErrInvalidField, v)
	}

	tag, ok := obj["type"].(string)
	if !ok || strings.TrimSpace(tag) == "" {
		return nil, fmt.Errorf("%s.type: %w", path, ErrMissingField)
	}

	switch Kind(strings.ToLower(strings.TrimSpace(tag))) {
	case KindPercentage:
		rate, err := requiredAmount(obj, "rate", path)
		if err != nil {
			return nil, err
		}
		return Percentage{Rate: rate, Base: optionalString(obj, "base")}, nil

	case KindFixed:
		amount, err := requiredAmount(obj, "amount", path)
		if err != nil {
			return nil, err
		}
		return Fixed{Amount: amount, Currency: optionalString(obj, "currency")}, nil

	case KindMinimum:
		amount, err := requiredAmount(obj, "amount", path)
		if err != nil {
			return nil, err
		}
		return Minimum{Amount: amount, Currency: optionalString(obj, "currency")}, nil

	case KindMaximum:
		amount, err := requiredAmount(obj, "amount", path)
		if err != nil {
			return nil, err
		}
		return Maximum{Amount: amount, Currency: optionalString(obj, "currency")}, nil

	case KindTier:
		tiers, err := d.tiers(obj, path)
		if err != nil {
			return nil, err
		}
		return Tiered{Base: optionalString(obj, "base"), Tiers: tiers}, nil

	case KindConditional:
		cond := optionalString(obj, "condition")
		if strings.TrimSpace(cond) == "" {
			return nil, fmt.Errorf("%s.condition: %w", path, ErrMissingField)
		}
		then, err := d.child(obj, "then", path, depth)
		if err != nil {
			return nil, err
		}
		otherwise, err := d.child(obj, "else", path, depth)
		if err != nil {
			return nil, err
		}
		return Conditional{Condition: cond, Then: then, Else: otherwise}, nil

	case KindArithmetic:
		op := strings.ToLower(strings.TrimSpace(optionalString(obj, "operator")))
		if op == "" {
			return nil, fmt.Errorf("%s.operator: %w", path, ErrMissingField)
		}
		if !slices.Contains(Operators, op) {
			return nil, fmt.Errorf("%s.operator: %w: %q", path, ErrInvalidField, op)
		}
		raw, ok := obj["operands"].([]any)
		if !ok {
			return nil, fmt.Errorf("%s.operands: %w", path, ErrMissingField)
		}
		if len(raw) < 2 {
			return nil, fmt.Errorf("%s.operands: %w: need at least 2, got %d", path, ErrInvalidField, len(raw))
		}
		operands := make([]Node, 0, len(raw))
		for i, item := range raw {
			n, err := d.node(item, fmt.Sprintf("%s.operands[%d]", path, i), depth+1)
			if err != nil {
				return nil, err
			}
			operands = append(operands, n)
		}
		return Arithmetic{Operator: op, Operands: operands}, nil

	default:
		return nil, fmt.Errorf("%s.type: %w: %q", path, ErrUnknownType, tag)
	}
}

func (d decoder) child(obj map[string]any, key, path string, depth int) (Node, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%s.%s: %w", path, key, ErrMissingField)
	}
	return d.node(v, path+"."+key, depth+1)
}

func (d decoder) tiers(obj map[string]any, path string) ([]Tier, error) {
	raw, ok := obj["tiers"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%s.tiers: %w", path, ErrMissingField)
	}

	tiers := make([]Tier, 0, len(raw))
	for i, item := range raw {
		tpath := fmt.Sprintf("%s.tiers[%d]", path, i)
		t, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: %w: expected object", tpath, ErrInvalidField)
		}

		lower, err := requiredAmount(t, "min", tpath)
		if err != nil {
			return nil, err
		}
		rate, err := requiredAmount(t, "rate", tpath)
		if err != nil {
			return nil, err
		}

		var maxPtr *float64
		if mv, ok := t["max"]; ok && mv != nil {
			m, err := finite(mv, tpath+".max")
			if err != nil {
				return nil, err
			}
			if m < lower {
				return nil, fmt.Errorf("%s.max: %w: %g below min %g", tpath, ErrInvalidField, m, lower)
			}
			maxPtr = &m
		}

		if i > 0 && lower < tiers[i-1].Min {
			return nil, fmt.Errorf("%s.min: %w: tiers must be ordered by min", tpath, ErrInvalidField)
		}

		tiers = append(tiers, Tier{Min: lower, Max: maxPtr, Rate: rate})
	}
	return tiers, nil
}

// requiredAmount reads a non-negative number. Numeric strings are accepted
// because model output often quotes numbers.
func requiredAmount(obj map[string]any, key, path string) (float64, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s.%s: %w", path, key, ErrMissingField)
	}
	f, err := finite(v, path+"."+key)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("%s.%s: %w: must not be negative", path, key, ErrInvalidField)
	}
	return f, nil
}

// finite coerces v to a float64. NaN and the infinities are rejected: they
// cannot be encoded as JSON.
func finite(v any, path string) (float64, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", path, ErrInvalidField, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: %w: %v is not a finite number", path, ErrInvalidField, v)
	}
	return f, nil
}

func optionalString(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}
