package types

import (
	"time"

	"github.com/licenseiq/licenseiq/internal/formula"
)

// ValidationStatus represents the review state of a persisted rule
type ValidationStatus string

const (
	StatusPending   ValidationStatus = "pending"
	StatusValidated ValidationStatus = "validated"
)

// MappingStatus represents the review state of a term mapping
type MappingStatus string

const (
	MappingPending   MappingStatus = "pending"
	MappingConfirmed MappingStatus = "confirmed"
	MappingRejected  MappingStatus = "rejected"
)

// SynthesisMode identifies which generator path produced a run's rules
type SynthesisMode string

const (
	ModeEntity  SynthesisMode = "entity"
	ModeContext SynthesisMode = "context"
)

// Failure stages reported in UnitFailure
const (
	StageGenerate = "generate"
	StageEnrich   = "enrich"
	StagePersist  = "persist"
)

// ExtractedEntity is a structured fact extracted from contract text upstream.
type ExtractedEntity struct {
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

// TermMapping is a confirmed equivalence between a contract term and an ERP field.
type TermMapping struct {
	ContractTerm  string  `json:"contract_term"`
	ERPFieldName  string  `json:"erp_field_name"`
	ERPEntityName string  `json:"erp_entity_name,omitempty"`
	Confidence    float64 `json:"confidence"`
}

// TermMappingRecord is a row of the pending term mappings table.
type TermMappingRecord struct {
	TermMapping
	ID         string        `json:"id"`
	ContractID string        `json:"contract_id"`
	Status     MappingStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// NewTermMapping is the input type for proposing a term mapping.
type NewTermMapping struct {
	ContractID    string  `json:"contract_id"`
	ContractTerm  string  `json:"contract_term"`
	ERPFieldName  string  `json:"erp_field_name"`
	ERPEntityName string  `json:"erp_entity_name,omitempty"`
	Confidence    float64 `json:"confidence"`
}

// SynthesizedRule is a rule produced by the synthesis pipeline before persistence.
// A nil TermMappings means the rule was never enriched; an empty slice means
// enrichment ran and matched nothing.
type SynthesizedRule struct {
	RuleType             string         `json:"rule_type"`
	RuleName             string         `json:"rule_name"`
	Description          string         `json:"description"`
	Formula              formula.Node   `json:"formula_definition"`
	ApplicabilityFilters map[string]any `json:"applicability_filters"`
	Confidence           float64        `json:"confidence"`
	LinkedNodeID         string         `json:"linked_node_id,omitempty"`
	TermMappings         []TermMapping  `json:"term_mappings,omitempty"`
	Inferred             bool           `json:"inferred"`
}

// NewRule is the input type for persisting a synthesized rule.
type NewRule struct {
	SynthesizedRule
	ContractID       string
	ExtractionRunID  string
	SourceKey        string
	ValidationStatus ValidationStatus
	IsActive         bool
}

// RuleRecord is a persisted rule definition.
type RuleRecord struct {
	SynthesizedRule
	ID               string           `json:"id"`
	ContractID       string           `json:"contract_id"`
	ExtractionRunID  string           `json:"extraction_run_id"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	IsActive         bool             `json:"is_active"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// UnitFailure records one unit of work that produced no persisted rule.
type UnitFailure struct {
	Unit  string `json:"unit"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// SynthesisRequest is the input of one synthesis run.
type SynthesisRequest struct {
	ContractID      string            `json:"contract_id"`
	ExtractionRunID string            `json:"extraction_run_id"`
	Entities        []ExtractedEntity `json:"entities"`
	GraphNodes      []GraphNode       `json:"graph_nodes,omitempty"`
}

// SynthesisResult is the outcome of one synthesis run.
type SynthesisResult struct {
	RunID              string        `json:"run_id"`
	Mode               SynthesisMode `json:"mode"`
	Rules              []RuleRecord  `json:"rules"`
	LowConfidenceRules []RuleRecord  `json:"low_confidence_rules"`
	AverageConfidence  float64       `json:"average_confidence"`
	Failures           []UnitFailure `json:"failures"`
}

// ModelResponse is the raw completion text returned for one unit of work.
type ModelResponse struct {
	Unit string `json:"unit"`
	Raw  string `json:"raw"`
}

// RunReport is the archived record of one synthesis run.
type RunReport struct {
	RunID           string          `json:"run_id"`
	ContractID      string          `json:"contract_id"`
	ExtractionRunID string          `json:"extraction_run_id"`
	Mode            SynthesisMode   `json:"mode"`
	Model           string          `json:"model"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	EntityCount     int             `json:"entity_count"`
	Responses       []ModelResponse `json:"responses"`
	Rules           []RuleRecord    `json:"rules"`
	Failures        []UnitFailure   `json:"failures"`
}

// StoreStats contains aggregate store statistics.
type StoreStats struct {
	RuleCount           int64 `json:"rule_count"`
	PendingRuleCount    int64 `json:"pending_rule_count"`
	ConfirmedTermsCount int64 `json:"confirmed_terms_count"`
}

// --- HTTP request/response types ---

// SynthesizeRequest is the body of POST /contracts/{contractID}/synthesize.
type SynthesizeRequest struct {
	ExtractionRunID string            `json:"extraction_run_id"`
	Entities        []ExtractedEntity `json:"entities"`
	GraphNodes      []GraphNode       `json:"graph_nodes,omitempty"`
}

// ReviewRequest is the body of PATCH /rules/{id}/review.
type ReviewRequest struct {
	Status ValidationStatus `json:"status"`
}

// CreateTermMappingRequest is the body of POST /contracts/{contractID}/term-mappings.
type CreateTermMappingRequest struct {
	ContractTerm  string  `json:"contract_term"`
	ERPFieldName  string  `json:"erp_field_name"`
	ERPEntityName string  `json:"erp_entity_name,omitempty"`
	Confidence    float64 `json:"confidence"`
}

// UpdateTermMappingRequest is the body of PATCH /term-mappings/{id}.
type UpdateTermMappingRequest struct {
	Status MappingStatus `json:"status"`
}

// RuleListResponse lists a contract's rules.
type RuleListResponse struct {
	ContractID string       `json:"contract_id"`
	Rules      []RuleRecord `json:"rules"`
	Total      int          `json:"total"`
}

// TermMappingListResponse lists a contract's term mappings.
type TermMappingListResponse struct {
	ContractID string              `json:"contract_id"`
	Mappings   []TermMappingRecord `json:"mappings"`
	Total      int                 `json:"total"`
}

// TerminologyResponse is the dual-terminology rendering of a single term.
type TerminologyResponse struct {
	Term    string `json:"term"`
	Display string `json:"display"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Model     string `json:"model"`
	RuleCount int64  `json:"rule_count"`
}
