package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/licenseiq/licenseiq/internal/formula"
	"github.com/licenseiq/licenseiq/internal/llm"
	"github.com/licenseiq/licenseiq/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const percentageResponse = `{"ruleType":"percentage_of_sales","ruleName":"15% Royalty","description":"15% of net sales","formulaDefinition":{"type":"percentage","rate":0.15,"base":"netSales"},"applicabilityFilters":{},"confidence":0.9}`

func royaltyEntity() types.ExtractedEntity {
	return types.ExtractedEntity{
		Type:       "Royalty Rate",
		Label:      "R1",
		Properties: map[string]any{"rate": 0.15},
		Confidence: 0.6,
	}
}

func TestGenerateForEntity(t *testing.T) {
	mock := &mockCompleter{respond: replies(percentageResponse)}
	g := NewGenerator(mock, GeneratorConfig{})

	graph := []types.GraphNode{
		{ID: "n0", Label: "Licensor"},
		{ID: "n1", Label: "R1"},
		{ID: "n2", Label: "R1"},
	}

	gen, err := g.GenerateForEntity(context.Background(), royaltyEntity(), graph)
	require.NoError(t, err)

	assert.Equal(t, "15% Royalty", gen.Rule.RuleName)
	assert.Equal(t, "percentage_of_sales", gen.Rule.RuleType)
	assert.Equal(t, formula.Percentage{Rate: 0.15, Base: "netSales"}, gen.Rule.Formula)
	assert.InDelta(t, 0.9, gen.Rule.Confidence, 1e-9)
	assert.Equal(t, "n1", gen.Rule.LinkedNodeID)
	assert.False(t, gen.Rule.Inferred)
	assert.Nil(t, gen.Rule.TermMappings)
	assert.Equal(t, percentageResponse, gen.Raw)
}

func TestGenerateForEntity_RequestShape(t *testing.T) {
	mock := &mockCompleter{respond: replies(percentageResponse)}
	g := NewGenerator(mock, GeneratorConfig{})

	_, err := g.GenerateForEntity(context.Background(), royaltyEntity(), nil)
	require.NoError(t, err)

	require.Len(t, mock.requests, 1)
	req := mock.requests[0]
	assert.Equal(t, 0.1, req.Temperature)
	assert.Equal(t, 1500, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, llm.RoleUser, req.Messages[1].Role)
	assert.Contains(t, req.Messages[1].Content, `"label": "R1"`)
	assert.Contains(t, req.Messages[1].Content, `"type":"tier"`)
}

func TestGenerateForEntity_ConfidenceFallsBackToEntity(t *testing.T) {
	tests := []struct {
		name       string
		confidence string
	}{
		{"missing", ``},
		{"unparseable", `,"confidence":"very high"`},
		{"out of range", `,"confidence":90`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := `{"ruleName":"x","formulaDefinition":{"type":"fixed","amount":100}` + tt.confidence + `}`
			g := NewGenerator(&mockCompleter{respond: replies(resp)}, GeneratorConfig{})

			gen, err := g.GenerateForEntity(context.Background(), royaltyEntity(), nil)
			require.NoError(t, err)
			assert.InDelta(t, 0.6, gen.Rule.Confidence, 1e-9)
		})
	}
}

func TestGenerateForEntity_NumericStringConfidence(t *testing.T) {
	resp := `{"formulaDefinition":{"type":"fixed","amount":100},"confidence":"0.8"}`
	g := NewGenerator(&mockCompleter{respond: replies(resp)}, GeneratorConfig{})

	gen, err := g.GenerateForEntity(context.Background(), royaltyEntity(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, gen.Rule.Confidence, 1e-9)
	assert.Equal(t, "R1", gen.Rule.RuleName, "empty rule name falls back to the entity label")
}

func TestGenerateForEntity_Failures(t *testing.T) {
	t.Run("completion error", func(t *testing.T) {
		mock := &mockCompleter{respond: func(llm.Request) (string, error) {
			return "", errors.New("503 service unavailable")
		}}
		g := NewGenerator(mock, GeneratorConfig{})

		gen, err := g.GenerateForEntity(context.Background(), royaltyEntity(), nil)
		assert.ErrorIs(t, err, ErrCompletion)
		assert.Empty(t, gen.Raw)
	})

	t.Run("malformed response keeps raw text", func(t *testing.T) {
		g := NewGenerator(&mockCompleter{respond: replies("Sorry, no JSON today")}, GeneratorConfig{})

		gen, err := g.GenerateForEntity(context.Background(), royaltyEntity(), nil)
		assert.ErrorIs(t, err, ErrMalformedResponse)
		assert.Equal(t, "Sorry, no JSON today", gen.Raw)
	})

	t.Run("formula deeper than limit", func(t *testing.T) {
		deep := `{"type":"fixed","amount":1}`
		for i := 0; i < 5; i++ {
			deep = fmt.Sprintf(`{"type":"conditional","condition":"c","then":%s,"else":{"type":"fixed","amount":0}}`, deep)
		}
		resp := `{"formulaDefinition":` + deep + `}`
		g := NewGenerator(&mockCompleter{respond: replies(resp)}, GeneratorConfig{MaxFormulaDepth: 3})

		_, err := g.GenerateForEntity(context.Background(), royaltyEntity(), nil)
		assert.ErrorIs(t, err, ErrInvalidFormula)
		assert.ErrorIs(t, err, formula.ErrTooDeep)
	})
}

func TestGenerateFromContext(t *testing.T) {
	resp := "```json\n" + `[
		{"ruleType":"minimum_guarantee","ruleName":"Annual Minimum","formulaDefinition":{"type":"minimum","amount":5000,"currency":"USD"},"confidence":0.9},
		{"ruleName":"Cap","formulaDefinition":{"type":"maximum","amount":100000}},
		{"ruleName":"Broken","formulaDefinition":{"type":"percentage"}}
	]` + "\n```"
	mock := &mockCompleter{respond: replies(resp)}
	g := NewGenerator(mock, GeneratorConfig{FallbackDiscount: 0.8})

	gen, err := g.GenerateFromContext(context.Background(), []types.ExtractedEntity{{Type: "Party", Label: "Acme"}})
	require.NoError(t, err)

	require.Len(t, gen.Rules, 2)
	assert.Len(t, gen.Skipped, 1)

	assert.Equal(t, "Annual Minimum", gen.Rules[0].RuleName)
	assert.InDelta(t, 0.9*0.8, gen.Rules[0].Confidence, 1e-9)
	assert.True(t, gen.Rules[0].Inferred)

	assert.InDelta(t, 0.5*0.8, gen.Rules[1].Confidence, 1e-9, "missing confidence defaults to 0.5 before discount")
	assert.True(t, gen.Rules[1].Inferred)
	assert.Empty(t, gen.Rules[1].LinkedNodeID)

	require.Len(t, mock.requests, 1)
	assert.Equal(t, 0.2, mock.requests[0].Temperature)
	assert.Equal(t, 2000, mock.requests[0].MaxTokens)
}

func TestGenerateFromContext_TruncatesEntities(t *testing.T) {
	entities := make([]types.ExtractedEntity, 25)
	for i := range entities {
		entities[i] = types.ExtractedEntity{Type: "Clause", Label: fmt.Sprintf("entity-%02d", i)}
	}
	mock := &mockCompleter{respond: replies(`[]`)}
	g := NewGenerator(mock, GeneratorConfig{})

	gen, err := g.GenerateFromContext(context.Background(), entities)
	require.NoError(t, err)
	assert.Empty(t, gen.Rules)

	prompt := mock.requests[0].Messages[1].Content
	assert.Contains(t, prompt, "entity-19")
	assert.NotContains(t, prompt, "entity-20")
	assert.Contains(t, prompt, "first 20 of 25")
}

func TestGenerateFromContext_NoPartialNoticeWhenComplete(t *testing.T) {
	mock := &mockCompleter{respond: replies(`[]`)}
	g := NewGenerator(mock, GeneratorConfig{})

	_, err := g.GenerateFromContext(context.Background(), []types.ExtractedEntity{{Type: "Clause"}})
	require.NoError(t, err)
	assert.False(t, strings.Contains(mock.requests[0].Messages[1].Content, "partial"))
}

func TestGenerateFromContext_Failures(t *testing.T) {
	t.Run("completion error", func(t *testing.T) {
		mock := &mockCompleter{respond: func(llm.Request) (string, error) {
			return "", context.DeadlineExceeded
		}}
		_, err := NewGenerator(mock, GeneratorConfig{}).GenerateFromContext(context.Background(), nil)
		assert.ErrorIs(t, err, ErrCompletion)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("malformed", func(t *testing.T) {
		mock := &mockCompleter{respond: replies(`{"summary":"nothing"}`)}
		gen, err := NewGenerator(mock, GeneratorConfig{}).GenerateFromContext(context.Background(), nil)
		assert.ErrorIs(t, err, ErrMalformedResponse)
		assert.Equal(t, `{"summary":"nothing"}`, gen.Raw)
	})
}
