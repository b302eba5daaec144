package client

import (
	"encoding/json"
	"net/http"
	"time"
)

// Config holds the LicenseIQ client configuration
type Config struct {
	BaseURL    string        // LicenseIQ service URL, e.g. http://localhost:8080
	APIKey     string        // API key for authentication
	Timeout    time.Duration // Request timeout (default: 5 minutes; synthesis runs are slow)
	HTTPClient *http.Client  // Optional; overrides Timeout when set
}

// Entity is a structured fact extracted from contract text.
type Entity struct {
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
	Confidence float64        `json:"confidence"`
}

// GraphNode is a node of the contract's dependency graph.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
}

// SynthesizeParams holds parameters for a synthesis run
type SynthesizeParams struct {
	ExtractionRunID string      `json:"extraction_run_id"`
	Entities        []Entity    `json:"entities"`
	GraphNodes      []GraphNode `json:"graph_nodes,omitempty"`
}

// TermMapping is a contract term matched to an ERP field.
type TermMapping struct {
	ContractTerm  string  `json:"contract_term"`
	ERPFieldName  string  `json:"erp_field_name"`
	ERPEntityName string  `json:"erp_entity_name,omitempty"`
	Confidence    float64 `json:"confidence"`
}

// Rule is a persisted rule definition. FormulaDefinition is the raw
// formula tree as stored by the service.
type Rule struct {
	ID                   string          `json:"id"`
	ContractID           string          `json:"contract_id"`
	ExtractionRunID      string          `json:"extraction_run_id"`
	RuleType             string          `json:"rule_type"`
	RuleName             string          `json:"rule_name"`
	Description          string          `json:"description"`
	FormulaDefinition    json.RawMessage `json:"formula_definition"`
	ApplicabilityFilters map[string]any  `json:"applicability_filters"`
	Confidence           float64         `json:"confidence"`
	LinkedNodeID         string          `json:"linked_node_id,omitempty"`
	TermMappings         []TermMapping   `json:"term_mappings,omitempty"`
	Inferred             bool            `json:"inferred"`
	ValidationStatus     string          `json:"validation_status"`
	IsActive             bool            `json:"is_active"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// UnitFailure is a unit of work that produced no persisted rule.
type UnitFailure struct {
	Unit  string `json:"unit"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// SynthesisResult is the outcome of one synthesis run
type SynthesisResult struct {
	RunID              string        `json:"run_id"`
	Mode               string        `json:"mode"`
	Rules              []Rule        `json:"rules"`
	LowConfidenceRules []Rule        `json:"low_confidence_rules"`
	AverageConfidence  float64       `json:"average_confidence"`
	Failures           []UnitFailure `json:"failures"`
}

// TermMappingRecord is a proposed or reviewed term mapping.
type TermMappingRecord struct {
	TermMapping
	ID         string    `json:"id"`
	ContractID string    `json:"contract_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Health is the service health report
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Model     string `json:"model"`
	RuleCount int64  `json:"rule_count"`
}

// FieldError is a single field validation failure reported by the service.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
