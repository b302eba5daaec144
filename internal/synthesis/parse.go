package synthesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/licenseiq/licenseiq/internal/formula"
	"github.com/spf13/cast"
)

var (
	ErrCompletion        = errors.New("model completion failed")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrInvalidFormula    = errors.New("invalid formula in model response")
)

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n?(.*?)```")

// extractJSON returns the body of the first fenced code block, or the trimmed
// text when there is none.
func extractJSON(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// parsedRule is one rule object as stated by the model.
type parsedRule struct {
	RuleType             string
	RuleName             string
	Description          string
	Formula              formula.Node
	ApplicabilityFilters map[string]any
	Confidence           float64
	HasConfidence        bool
}

func parseRuleObject(text string, maxDepth int) (parsedRule, error) {
	var v any
	if err := json.Unmarshal([]byte(extractJSON(text)), &v); err != nil {
		return parsedRule{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return parsedRule{}, fmt.Errorf("%w: expected JSON object, got %s", ErrMalformedResponse, jsonKind(v))
	}
	return ruleFromObject(obj, maxDepth)
}

// parseRuleList accepts a JSON array of rule objects or an object wrapping
// one under "rules". Items that fail validation are returned as skip errors.
func parseRuleList(text string, maxDepth int) ([]parsedRule, []error, error) {
	var v any
	if err := json.Unmarshal([]byte(extractJSON(text)), &v); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		list, ok := t["rules"].([]any)
		if !ok {
			return nil, nil, fmt.Errorf("%w: expected JSON array of rules", ErrMalformedResponse)
		}
		items = list
	default:
		return nil, nil, fmt.Errorf("%w: expected JSON array, got %s", ErrMalformedResponse, jsonKind(v))
	}

	var rules []parsedRule
	var skipped []error
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			skipped = append(skipped, fmt.Errorf("item %d: %w: expected object, got %s", i, ErrMalformedResponse, jsonKind(item)))
			continue
		}
		rule, err := ruleFromObject(obj, maxDepth)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		rules = append(rules, rule)
	}
	return rules, skipped, nil
}

func ruleFromObject(obj map[string]any, maxDepth int) (parsedRule, error) {
	raw, ok := obj["formulaDefinition"]
	if !ok || raw == nil {
		return parsedRule{}, fmt.Errorf("%w: %w: formulaDefinition", ErrInvalidFormula, formula.ErrMissingField)
	}
	node, err := formula.Decode(raw, maxDepth)
	if err != nil {
		return parsedRule{}, fmt.Errorf("%w: %w", ErrInvalidFormula, err)
	}

	rule := parsedRule{
		RuleType:    cast.ToString(obj["ruleType"]),
		RuleName:    cast.ToString(obj["ruleName"]),
		Description: cast.ToString(obj["description"]),
		Formula:     node,
	}
	if filters, ok := obj["applicabilityFilters"].(map[string]any); ok {
		rule.ApplicabilityFilters = filters
	} else {
		rule.ApplicabilityFilters = map[string]any{}
	}
	rule.Confidence, rule.HasConfidence = parseConfidence(obj["confidence"])
	return rule, nil
}

// parseConfidence coerces a model-stated confidence. Values outside [0,1]
// are treated as absent.
func parseConfidence(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return 0, false
	}
	if _, ok := v.(bool); ok {
		return 0, false
	}
	c, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(c) || c < 0 || c > 1 {
		return 0, false
	}
	return c, true
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
