package synthesis

import (
	"context"
	"fmt"

	"github.com/licenseiq/licenseiq/internal/formula"
	"github.com/licenseiq/licenseiq/internal/llm"
	"github.com/licenseiq/licenseiq/internal/types"
)

// Sampling parameters per generation mode.
const (
	entityTemperature  = 0.1
	entityMaxTokens    = 1500
	contextTemperature = 0.2
	contextMaxTokens   = 2000

	DefaultFallbackEntityLimit = 20
	DefaultFallbackDiscount    = 0.8

	// defaultInferredConfidence stands in for a missing model confidence in
	// context mode, before the fallback discount is applied.
	defaultInferredConfidence = 0.5
)

// GeneratorConfig holds the tunables of a Generator.
type GeneratorConfig struct {
	MaxFormulaDepth     int
	FallbackEntityLimit int
	FallbackDiscount    float64
}

// Generator turns entities into rules by prompting a Completer.
type Generator struct {
	completer llm.Completer
	cfg       GeneratorConfig
}

// NewGenerator creates a Generator. Zero config values fall back to defaults.
func NewGenerator(c llm.Completer, cfg GeneratorConfig) *Generator {
	if cfg.MaxFormulaDepth <= 0 {
		cfg.MaxFormulaDepth = formula.DefaultMaxDepth
	}
	if cfg.FallbackEntityLimit <= 0 {
		cfg.FallbackEntityLimit = DefaultFallbackEntityLimit
	}
	if cfg.FallbackDiscount <= 0 {
		cfg.FallbackDiscount = DefaultFallbackDiscount
	}
	return &Generator{completer: c, cfg: cfg}
}

// EntityGeneration is the outcome of per-entity generation.
type EntityGeneration struct {
	Rule types.SynthesizedRule
	Raw  string
}

// GenerateForEntity asks the model for a single rule describing entity.
// The raw response is returned even when parsing fails.
func (g *Generator) GenerateForEntity(ctx context.Context, entity types.ExtractedEntity, graphNodes []types.GraphNode) (EntityGeneration, error) {
	raw, err := g.completer.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: entityPrompt(entity)},
		},
		Temperature: entityTemperature,
		MaxTokens:   entityMaxTokens,
	})
	if err != nil {
		return EntityGeneration{}, fmt.Errorf("%w: %w", ErrCompletion, err)
	}

	parsed, err := parseRuleObject(raw, g.cfg.MaxFormulaDepth)
	if err != nil {
		return EntityGeneration{Raw: raw}, err
	}

	rule := types.SynthesizedRule{
		RuleType:             parsed.RuleType,
		RuleName:             parsed.RuleName,
		Description:          parsed.Description,
		Formula:              parsed.Formula,
		ApplicabilityFilters: parsed.ApplicabilityFilters,
		Confidence:           entity.Confidence,
		LinkedNodeID:         linkedNodeID(graphNodes, entity.Label),
	}
	if rule.RuleName == "" {
		rule.RuleName = entity.Label
	}
	if parsed.HasConfidence {
		rule.Confidence = parsed.Confidence
	}

	return EntityGeneration{Rule: rule, Raw: raw}, nil
}

// ContextGeneration is the outcome of context-mode generation.
type ContextGeneration struct {
	Rules []types.SynthesizedRule
	// Skipped holds one error per response item that was dropped.
	Skipped []error
	Raw     string
}

// GenerateFromContext infers rules from the whole entity set when no entity
// is explicitly a payment term. Only the first FallbackEntityLimit entities
// are sent. Every returned rule is marked Inferred with discounted confidence.
func (g *Generator) GenerateFromContext(ctx context.Context, entities []types.ExtractedEntity) (ContextGeneration, error) {
	shown := entities
	if len(shown) > g.cfg.FallbackEntityLimit {
		shown = shown[:g.cfg.FallbackEntityLimit]
	}

	raw, err := g.completer.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: contextPrompt(shown, len(entities))},
		},
		Temperature: contextTemperature,
		MaxTokens:   contextMaxTokens,
	})
	if err != nil {
		return ContextGeneration{}, fmt.Errorf("%w: %w", ErrCompletion, err)
	}

	parsed, skipped, err := parseRuleList(raw, g.cfg.MaxFormulaDepth)
	if err != nil {
		return ContextGeneration{Raw: raw}, err
	}

	out := ContextGeneration{Raw: raw, Skipped: skipped}
	for i, p := range parsed {
		confidence := defaultInferredConfidence
		if p.HasConfidence {
			confidence = p.Confidence
		}
		name := p.RuleName
		if name == "" {
			name = fmt.Sprintf("Inferred rule %d", i+1)
		}
		out.Rules = append(out.Rules, types.SynthesizedRule{
			RuleType:             p.RuleType,
			RuleName:             name,
			Description:          p.Description,
			Formula:              p.Formula,
			ApplicabilityFilters: p.ApplicabilityFilters,
			Confidence:           confidence * g.cfg.FallbackDiscount,
			Inferred:             true,
		})
	}
	return out, nil
}

// linkedNodeID returns the ID of the first graph node labelled label.
func linkedNodeID(nodes []types.GraphNode, label string) string {
	for _, n := range nodes {
		if n.Label == label {
			return n.ID
		}
	}
	return ""
}
