package validation

import (
	"fmt"

	"github.com/licenseiq/licenseiq/internal/types"
)

// Request limits.
const (
	MaxEntities     = 500
	MaxGraphNodes   = 5000
	MaxIDLength     = 128
	MaxLabelLength  = 500
	MaxTypeLength   = 200
	MaxTermLength   = 200
	MaxFieldLength  = 200
	MaxEntityLength = 200
)

// ContractID checks a contract ID taken from a URL or flag.
func ContractID(id string) Errors {
	var c Collector
	c.Identifier("contract_id", id)
	return c.Errors()
}

// ID checks a rule or term mapping ID.
func ID(field, id string) Errors {
	var c Collector
	c.ULID(field, id)
	return c.Errors()
}

// Synthesize checks a synthesis run for contractID. An empty entity list is
// valid: it triggers context-mode generation.
func Synthesize(contractID string, req types.SynthesizeRequest) Errors {
	var c Collector
	c.Merge(ContractID(contractID))
	c.Identifier("extraction_run_id", req.ExtractionRunID)

	if c.AtMost("entities", len(req.Entities), MaxEntities, "entities") {
		for i, e := range req.Entities {
			entity(&c, fmt.Sprintf("entities[%d]", i), e)
		}
	}
	if c.AtMost("graph_nodes", len(req.GraphNodes), MaxGraphNodes, "nodes") {
		for i, n := range req.GraphNodes {
			graphNode(&c, fmt.Sprintf("graph_nodes[%d]", i), n)
		}
	}
	return c.Errors()
}

// entity checks the fields that end up in prompts and source keys.
// Properties are free-form model context and are not inspected.
func entity(c *Collector, prefix string, e types.ExtractedEntity) {
	c.Text(prefix+".type", e.Type, MaxTypeLength)
	c.Text(prefix+".label", e.Label, MaxLabelLength)
	c.Confidence(prefix+".confidence", e.Confidence)
}

// graphNode checks a node used for provenance lookup by label.
func graphNode(c *Collector, prefix string, n types.GraphNode) {
	if c.Required(prefix+".id", n.ID) {
		c.Text(prefix+".id", n.ID, MaxIDLength)
	}
	c.Text(prefix+".label", n.Label, MaxLabelLength)
}

// Review checks a rule review transition target.
func Review(req types.ReviewRequest) Errors {
	var c Collector
	c.OneOf("status", string(req.Status),
		string(types.StatusPending),
		string(types.StatusValidated),
	)
	return c.Errors()
}

// NewTermMapping checks a proposed contract term to ERP field mapping.
func NewTermMapping(req types.CreateTermMappingRequest) Errors {
	var c Collector
	if c.Required("contract_term", req.ContractTerm) {
		c.Text("contract_term", req.ContractTerm, MaxTermLength)
	}
	if c.Required("erp_field_name", req.ERPFieldName) {
		c.Text("erp_field_name", req.ERPFieldName, MaxFieldLength)
	}
	c.Text("erp_entity_name", req.ERPEntityName, MaxEntityLength)
	c.Confidence("confidence", req.Confidence)
	return c.Errors()
}

// MappingStatus checks a term mapping status, as a transition target or a
// list filter.
func MappingStatus(status types.MappingStatus) Errors {
	var c Collector
	c.OneOf("status", string(status),
		string(types.MappingPending),
		string(types.MappingConfirmed),
		string(types.MappingRejected),
	)
	return c.Errors()
}

// Term checks a contract term passed for dual-terminology rendering.
func Term(term string) Errors {
	var c Collector
	if c.Required("term", term) {
		c.Text("term", term, MaxTermLength)
	}
	return c.Errors()
}
