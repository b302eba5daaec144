package synthesis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/licenseiq/licenseiq/internal/types"
)

const systemPrompt = `You are a licensing contract analyst. You convert extracted contract terms into machine-readable royalty calculation rules. Respond with JSON only.`

// formulaShapes documents the accepted FormulaNode variants for the model.
const formulaShapes = `FormulaNode variants (every node is a JSON object with a "type"):
- {"type":"percentage","rate":0.05,"base":"netSales"}
- {"type":"fixed","amount":1000,"currency":"USD"}
- {"type":"tier","base":"netSales","tiers":[{"min":0,"max":100000,"rate":0.05},{"min":100000,"max":null,"rate":0.07}]}
- {"type":"conditional","condition":"territory == 'EU'","then":<FormulaNode>,"else":<FormulaNode>}
- {"type":"arithmetic","operator":"+","operands":[<FormulaNode>,<FormulaNode>]}  (operator is one of + - * / min max)
- {"type":"minimum","amount":5000,"currency":"USD"}
- {"type":"maximum","amount":250000,"currency":"USD"}
Rates are fractions (15% is 0.15). Amounts are non-negative numbers.`

const ruleShape = `{
  "ruleType": "percentage_of_sales",
  "ruleName": "short human readable name",
  "description": "one sentence describing the rule",
  "formulaDefinition": <FormulaNode>,
  "applicabilityFilters": {"product": "...", "territory": "..."},
  "confidence": 0.0 to 1.0
}`

func entityPrompt(entity types.ExtractedEntity) string {
	var b strings.Builder
	b.WriteString("Convert the following contract entity into a single royalty calculation rule.\n\n")
	b.WriteString(formulaShapes)
	b.WriteString("\n\nReturn exactly one JSON object with this shape:\n")
	b.WriteString(ruleShape)
	b.WriteString("\n\nEntity:\n")
	b.WriteString(mustJSON(entity))
	return b.String()
}

func contextPrompt(entities []types.ExtractedEntity, total int) string {
	var b strings.Builder
	b.WriteString("No entity in this contract was explicitly classified as a royalty, payment, or fee term. ")
	b.WriteString("Infer any royalty calculation rules the entities below imply. ")
	if total > len(entities) {
		fmt.Fprintf(&b, "Only the first %d of %d entities are shown; the list is partial. ", len(entities), total)
	}
	b.WriteString("Return an empty array if nothing can be inferred.\n\n")
	b.WriteString(formulaShapes)
	b.WriteString("\n\nReturn a JSON array whose items have this shape:\n")
	b.WriteString(ruleShape)
	b.WriteString("\n\nEntities:\n")
	b.WriteString(mustJSON(entities))
	return b.String()
}

// mustJSON renders v for a prompt. Entities hold decoded JSON values, so
// marshalling only fails on values no upstream decoder can produce.
func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(data)
}
